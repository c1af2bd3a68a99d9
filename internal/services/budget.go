package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/GregMSThompson/budget-tracker/internal/dto"
	"github.com/GregMSThompson/budget-tracker/internal/errs"
	"github.com/GregMSThompson/budget-tracker/internal/models"
	"github.com/GregMSThompson/budget-tracker/pkg/logger"
)

const dateLayout = "2006-01-02"

type budgetBSStore interface {
	Create(ctx context.Context, b *models.Budget) error
	Get(ctx context.Context, uid, budgetID string) (*models.Budget, error)
	List(ctx context.Context, uid string, q dto.BudgetQuery) ([]*models.Budget, error)
	Update(ctx context.Context, b *models.Budget) error
	Delete(ctx context.Context, uid, budgetID string) error
}

type transactionQuerier interface {
	Query(ctx context.Context, uid string, q dto.TransactionQuery) (<-chan *models.Transaction, <-chan error)
}

type budgetService struct {
	budgets  budgetBSStore
	txs      transactionQuerier
	clockNow func() time.Time
}

func NewBudgetService(budgets budgetBSStore, txs transactionQuerier) *budgetService {
	return &budgetService{
		budgets:  budgets,
		txs:      txs,
		clockNow: time.Now,
	}
}

// Spending sums the non-deleted expenses filed under the budget's category
// (and subcategory, when the budget has one) between its start date and its
// end date, or today for an open-ended budget. The ledger is only read.
func (s *budgetService) Spending(ctx context.Context, uid string, b *models.Budget) (dto.BudgetSpending, error) {
	spending, _, err := s.aggregate(ctx, uid, b, false)
	return spending, err
}

func (s *budgetService) aggregate(ctx context.Context, uid string, b *models.Budget, keep bool) (dto.BudgetSpending, []models.Transaction, error) {
	from, to := s.window(b)
	spending := dto.BudgetSpending{From: from, To: to}
	if to < from {
		return spending, nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cat, typ := b.Category, models.TransactionExpense
	txCh, errCh := s.txs.Query(ctx, uid, dto.TransactionQuery{
		Category: &cat,
		Type:     &typ,
		DateFrom: &from,
		DateTo:   &to,
	})

	total := decimal.Zero
	var contributing []models.Transaction
	if err := streamTransactions(txCh, errCh, func(tx *models.Transaction) error {
		if tx.IsDeleted || tx.Type != models.TransactionExpense {
			return nil
		}
		if b.Subcategory != "" && tx.Subcategory != b.Subcategory {
			return nil
		}
		total = total.Add(decimal.NewFromFloat(tx.Amount))
		if keep {
			contributing = append(contributing, *tx)
		}
		return nil
	}); err != nil {
		return spending, nil, err
	}

	spending.CurrentSpending = total.Round(2).InexactFloat64()
	spending.PercentUsed = percentOf(total, b.Amount)
	return spending, contributing, nil
}

func (s *budgetService) window(b *models.Budget) (from, to string) {
	from = b.StartDate
	if b.EndDate != nil && *b.EndDate != "" {
		return from, *b.EndDate
	}
	return from, s.clockNow().UTC().Format(dateLayout)
}

func percentOf(spent decimal.Decimal, amount float64) float64 {
	limit := decimal.NewFromFloat(amount)
	if limit.IsZero() {
		return 0
	}
	return spent.Div(limit).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}

func (s *budgetService) CreateBudget(ctx context.Context, uid string, req dto.CreateBudgetRequest) (*dto.BudgetWithSpending, error) {
	b := &models.Budget{
		BudgetID:       uuid.NewString(),
		UserID:         uid,
		Name:           strings.TrimSpace(req.Name),
		Amount:         req.Amount,
		Category:       req.Category,
		Subcategory:    req.Subcategory,
		Period:         req.Period,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		IsRecurring:    req.IsRecurring == nil || *req.IsRecurring,
		AlertThreshold: 80,
		Notes:          req.Notes,
		IsActive:       true,
	}
	if req.AlertThreshold != nil {
		b.AlertThreshold = *req.AlertThreshold
	}
	if err := validateBudget(b); err != nil {
		return nil, err
	}
	if err := s.budgets.Create(ctx, b); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("budget created", "budget_id", b.BudgetID, "category", b.Category)
	return s.withSpending(ctx, uid, b, false)
}

// GetBudget returns the budget with its spending and the entries that make
// it up.
func (s *budgetService) GetBudget(ctx context.Context, uid, budgetID string) (*dto.BudgetWithSpending, error) {
	b, err := s.budgets.Get(ctx, uid, budgetID)
	if err != nil {
		return nil, err
	}
	return s.withSpending(ctx, uid, b, true)
}

func (s *budgetService) ListBudgets(ctx context.Context, uid string, q dto.BudgetQuery) ([]*dto.BudgetWithSpending, error) {
	budgets, err := s.budgets.List(ctx, uid, q)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.BudgetWithSpending, 0, len(budgets))
	for _, b := range budgets {
		bw, err := s.withSpending(ctx, uid, b, false)
		if err != nil {
			return nil, err
		}
		out = append(out, bw)
	}
	return out, nil
}

func (s *budgetService) UpdateBudget(ctx context.Context, uid, budgetID string, req dto.UpdateBudgetRequest) (*dto.BudgetWithSpending, error) {
	b, err := s.budgets.Get(ctx, uid, budgetID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		b.Name = strings.TrimSpace(*req.Name)
	}
	if req.Amount != nil {
		b.Amount = *req.Amount
	}
	if req.Category != nil {
		b.Category = *req.Category
	}
	if req.Subcategory != nil {
		b.Subcategory = *req.Subcategory
	}
	if req.Period != nil {
		b.Period = *req.Period
	}
	if req.StartDate != nil {
		b.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		if *req.EndDate == "" {
			b.EndDate = nil
		} else {
			b.EndDate = req.EndDate
		}
	}
	if req.IsRecurring != nil {
		b.IsRecurring = *req.IsRecurring
	}
	if req.AlertThreshold != nil {
		b.AlertThreshold = *req.AlertThreshold
	}
	if req.Notes != nil {
		b.Notes = *req.Notes
	}
	if req.IsActive != nil {
		b.IsActive = *req.IsActive
	}

	if err := validateBudget(b); err != nil {
		return nil, err
	}
	if err := s.budgets.Update(ctx, b); err != nil {
		return nil, err
	}
	return s.withSpending(ctx, uid, b, false)
}

func (s *budgetService) DeleteBudget(ctx context.Context, uid, budgetID string) error {
	if err := s.budgets.Delete(ctx, uid, budgetID); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("budget deleted", "budget_id", budgetID)
	return nil
}

func (s *budgetService) withSpending(ctx context.Context, uid string, b *models.Budget, withTxs bool) (*dto.BudgetWithSpending, error) {
	spending, txs, err := s.aggregate(ctx, uid, b, withTxs)
	if err != nil {
		return nil, err
	}
	return &dto.BudgetWithSpending{Budget: *b, BudgetSpending: spending, Transactions: txs}, nil
}

func validateBudget(b *models.Budget) error {
	switch {
	case b.Name == "":
		return errs.NewValidationError("budget name is required")
	case b.Amount < 0:
		return errs.NewValidationError("budget amount must not be negative")
	case !b.Category.Valid():
		return errs.NewValidationError("invalid budget category")
	case !b.Period.Valid():
		return errs.NewValidationError("invalid budget period")
	case b.AlertThreshold < 0 || b.AlertThreshold > 100:
		return errs.NewValidationError("alertThreshold must be between 0 and 100")
	}
	if _, err := time.Parse(dateLayout, b.StartDate); err != nil {
		return errs.NewValidationError("startDate must be YYYY-MM-DD")
	}
	if b.EndDate != nil {
		if _, err := time.Parse(dateLayout, *b.EndDate); err != nil {
			return errs.NewValidationError("endDate must be YYYY-MM-DD")
		}
		if *b.EndDate < b.StartDate {
			return errs.NewValidationError("endDate must not be before startDate")
		}
	}
	return nil
}

// streamTransactions drains a store query, calling handle for each entry.
func streamTransactions(txCh <-chan *models.Transaction, errCh <-chan error, handle func(*models.Transaction) error) error {
	for txCh != nil || errCh != nil {
		select {
		case tx, ok := <-txCh:
			if !ok {
				txCh = nil
				continue
			}
			if handle == nil {
				continue
			}
			if err := handle(tx); err != nil {
				return err
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}
