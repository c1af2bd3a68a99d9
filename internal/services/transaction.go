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

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

type transactionTSStore interface {
	Create(ctx context.Context, tx *models.Transaction) error
	Get(ctx context.Context, uid, id string) (*models.Transaction, error)
	Update(ctx context.Context, uid, id string, apply func(tx *models.Transaction) error) (*models.Transaction, error)
	SoftDelete(ctx context.Context, uid, id string) (bool, error)
	Query(ctx context.Context, uid string, q dto.TransactionQuery) (<-chan *models.Transaction, <-chan error)
}

type accountTSStore interface {
	Get(ctx context.Context, uid, accountID string) (*models.Account, error)
}

type transactionService struct {
	txs      transactionTSStore
	accounts accountTSStore
	clockNow func() time.Time
}

func NewTransactionService(txs transactionTSStore, accounts accountTSStore) *transactionService {
	return &transactionService{
		txs:      txs,
		accounts: accounts,
		clockNow: time.Now,
	}
}

// ListTransactions returns one page of the user's ledger. Page numbers start
// at 1.
func (s *transactionService) ListTransactions(ctx context.Context, uid string, q dto.TransactionQuery, page dto.Pagination) (dto.TransactionPage, error) {
	if page.Page < 1 {
		page.Page = 1
	}
	switch {
	case page.Limit <= 0:
		page.Limit = defaultPageLimit
	case page.Limit > maxPageLimit:
		page.Limit = maxPageLimit
	}
	if q.MinAmount != nil && q.MaxAmount != nil && *q.MinAmount > *q.MaxAmount {
		return dto.TransactionPage{}, errs.NewValidationError("minAmount must not exceed maxAmount")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// One extra row tells whether a next page exists.
	q.Offset = (page.Page - 1) * page.Limit
	q.Limit = page.Limit + 1
	txCh, errCh := s.txs.Query(ctx, uid, q)

	out := dto.TransactionPage{Transactions: make([]models.Transaction, 0, page.Limit)}
	more := false
	if err := streamTransactions(txCh, errCh, func(tx *models.Transaction) error {
		if len(out.Transactions) == page.Limit {
			more = true
			return nil
		}
		out.Transactions = append(out.Transactions, *tx)
		return nil
	}); err != nil {
		return dto.TransactionPage{}, err
	}

	out.Count = len(out.Transactions)
	if more {
		out.Next = &dto.Pagination{Page: page.Page + 1, Limit: page.Limit}
	}
	if page.Page > 1 {
		out.Prev = &dto.Pagination{Page: page.Page - 1, Limit: page.Limit}
	}
	return out, nil
}

// GetTransaction hides soft-deleted rows.
func (s *transactionService) GetTransaction(ctx context.Context, uid, id string) (*models.Transaction, error) {
	tx, err := s.txs.Get(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	if tx.IsDeleted {
		return nil, errs.NewNotFoundError("transaction not found")
	}
	return tx, nil
}

func (s *transactionService) CreateManual(ctx context.Context, uid string, req dto.CreateTransactionRequest) (*models.Transaction, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, errs.NewValidationError("transaction name is required")
	}
	if req.Amount < 0 {
		return nil, errs.NewValidationError("amount must not be negative, use type to set the direction")
	}
	if !req.Type.Valid() {
		return nil, errs.NewValidationError("invalid transaction type")
	}
	if !req.Category.Valid() {
		return nil, errs.NewValidationError("invalid category")
	}
	if _, err := time.Parse(dateLayout, req.Date); err != nil {
		return nil, errs.NewValidationError("date must be YYYY-MM-DD")
	}

	tx := &models.Transaction{
		TransactionID:      uuid.NewString(),
		UserID:             uid,
		Name:               strings.TrimSpace(req.Name),
		Amount:             decimal.NewFromFloat(req.Amount).Round(2).InexactFloat64(),
		Currency:           "USD",
		Date:               req.Date,
		Category:           req.Category,
		Subcategory:        req.Subcategory,
		Type:               req.Type,
		Notes:              req.Notes,
		IsRecurring:        req.IsRecurring,
		RecurringFrequency: req.RecurringFrequency,
		Location:           req.Location,
		IsManual:           true,
	}
	if req.AccountID != nil && *req.AccountID != "" {
		acc, err := s.accounts.Get(ctx, uid, *req.AccountID)
		if err != nil {
			return nil, err
		}
		tx.AccountID = acc.AccountID
		tx.ItemID = acc.ItemID
		if acc.Balance.Currency != "" {
			tx.Currency = acc.Balance.Currency
		}
	}

	if err := s.txs.Create(ctx, tx); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("manual transaction created", "transaction_id", tx.TransactionID)
	return tx, nil
}

// UpdateTransaction applies a partial update. Synced rows belong to the
// aggregator except for their classification and notes. The change is
// applied to the stored row inside the store's transaction, so a sync
// running at the same time keeps its amount, date and name.
func (s *transactionService) UpdateTransaction(ctx context.Context, uid, id string, req dto.UpdateTransactionRequest) (*models.Transaction, error) {
	if err := validateTransactionUpdate(req); err != nil {
		return nil, err
	}
	var acc *models.Account
	if req.AccountID != nil && *req.AccountID != "" {
		var err error
		if acc, err = s.accounts.Get(ctx, uid, *req.AccountID); err != nil {
			return nil, err
		}
	}

	return s.txs.Update(ctx, uid, id, func(tx *models.Transaction) error {
		if tx.IsDeleted {
			return errs.NewNotFoundError("transaction not found")
		}
		if !tx.IsManual && touchesSyncedFields(req) {
			return errs.NewValidationError("only category, subcategory and notes can be changed on synced transactions")
		}
		if req.Category != nil {
			tx.Category = *req.Category
		}
		if req.Subcategory != nil {
			tx.Subcategory = *req.Subcategory
		}
		if req.Notes != nil {
			tx.Notes = *req.Notes
		}
		if req.Name != nil {
			tx.Name = strings.TrimSpace(*req.Name)
		}
		if req.Amount != nil {
			tx.Amount = decimal.NewFromFloat(*req.Amount).Round(2).InexactFloat64()
		}
		if req.Date != nil {
			tx.Date = *req.Date
		}
		if req.Type != nil {
			tx.Type = *req.Type
		}
		if req.IsRecurring != nil {
			tx.IsRecurring = *req.IsRecurring
		}
		if req.RecurringFrequency != nil {
			tx.RecurringFrequency = *req.RecurringFrequency
		}
		if req.Location != nil {
			tx.Location = req.Location
		}
		if req.AccountID != nil {
			tx.AccountID, tx.ItemID = "", ""
			if acc != nil {
				tx.AccountID, tx.ItemID = acc.AccountID, acc.ItemID
			}
		}
		tx.UpdatedAt = s.clockNow()
		return nil
	})
}

func validateTransactionUpdate(req dto.UpdateTransactionRequest) error {
	switch {
	case req.Category != nil && !req.Category.Valid():
		return errs.NewValidationError("invalid category")
	case req.Name != nil && strings.TrimSpace(*req.Name) == "":
		return errs.NewValidationError("transaction name is required")
	case req.Amount != nil && *req.Amount < 0:
		return errs.NewValidationError("amount must not be negative, use type to set the direction")
	case req.Type != nil && !req.Type.Valid():
		return errs.NewValidationError("invalid transaction type")
	}
	if req.Date != nil {
		if _, err := time.Parse(dateLayout, *req.Date); err != nil {
			return errs.NewValidationError("date must be YYYY-MM-DD")
		}
	}
	return nil
}

func touchesSyncedFields(req dto.UpdateTransactionRequest) bool {
	return req.Name != nil || req.Amount != nil || req.Date != nil || req.Type != nil ||
		req.IsRecurring != nil || req.RecurringFrequency != nil || req.AccountID != nil || req.Location != nil
}

// DeleteTransaction soft-deletes a manual transaction. Synced rows are only
// ever removed by the aggregator.
func (s *transactionService) DeleteTransaction(ctx context.Context, uid, id string) error {
	tx, err := s.GetTransaction(ctx, uid, id)
	if err != nil {
		return err
	}
	if !tx.IsManual {
		return errs.NewValidationError("synced transactions cannot be deleted")
	}
	if _, err := s.txs.SoftDelete(ctx, uid, id); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("manual transaction deleted", "transaction_id", id)
	return nil
}
