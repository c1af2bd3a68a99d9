package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GregMSThompson/budget-tracker/internal/dto"
	"github.com/GregMSThompson/budget-tracker/internal/errs"
	"github.com/GregMSThompson/budget-tracker/internal/models"
	"github.com/GregMSThompson/budget-tracker/pkg/helpers"
)

type fakeBudgets struct {
	rows map[string]*models.Budget
}

func newFakeBudgets(bs ...models.Budget) *fakeBudgets {
	f := &fakeBudgets{rows: map[string]*models.Budget{}}
	for _, b := range bs {
		b := b
		f.rows[key(b.UserID, b.BudgetID)] = &b
	}
	return f
}

func (f *fakeBudgets) Create(_ context.Context, b *models.Budget) error {
	cp := *b
	f.rows[key(b.UserID, b.BudgetID)] = &cp
	return nil
}

func (f *fakeBudgets) Get(_ context.Context, uid, budgetID string) (*models.Budget, error) {
	b, ok := f.rows[key(uid, budgetID)]
	if !ok {
		return nil, errs.NewNotFoundError("budget not found")
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBudgets) List(_ context.Context, uid string, q dto.BudgetQuery) ([]*models.Budget, error) {
	var out []*models.Budget
	for _, b := range f.rows {
		if b.UserID != uid || (q.IsActive != nil && b.IsActive != *q.IsActive) {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeBudgets) Update(_ context.Context, b *models.Budget) error {
	k := key(b.UserID, b.BudgetID)
	if _, ok := f.rows[k]; !ok {
		return errs.NewNotFoundError("budget not found")
	}
	cp := *b
	f.rows[k] = &cp
	return nil
}

func (f *fakeBudgets) Delete(_ context.Context, uid, budgetID string) error {
	k := key(uid, budgetID)
	if _, ok := f.rows[k]; !ok {
		return errs.NewNotFoundError("budget not found")
	}
	delete(f.rows, k)
	return nil
}

func expense(id, date string, amount float64, cat models.Category) models.Transaction {
	return models.Transaction{
		TransactionID: id,
		UserID:        testUID,
		Name:          "Entry " + id,
		Amount:        amount,
		Date:          date,
		Category:      cat,
		Type:          models.TransactionExpense,
	}
}

func newBudgetFixture() (*budgetService, *fakeLedger, *fakeBudgets) {
	ledger := newFakeLedger(nil)
	budgets := newFakeBudgets()
	svc := NewBudgetService(budgets, ledger)
	svc.clockNow = func() time.Time { return time.Date(2024, 3, 20, 15, 0, 0, 0, time.UTC) }
	return svc, ledger, budgets
}

func TestSpendingSumsExpensesInWindow(t *testing.T) {
	svc, ledger, _ := newBudgetFixture()
	ledger.put(expense("t1", "2024-03-01", 10.10, models.CategoryFood))
	ledger.put(expense("t2", "2024-03-15", 20.20, models.CategoryFood))
	ledger.put(expense("t3", "2024-02-28", 99, models.CategoryFood))    // before start
	ledger.put(expense("t4", "2024-03-10", 50, models.CategoryHousing)) // other category
	income := expense("t5", "2024-03-10", 75, models.CategoryFood)
	income.Type = models.TransactionIncome
	ledger.put(income)
	deleted := expense("t6", "2024-03-10", 30, models.CategoryFood)
	deleted.IsDeleted = true
	ledger.put(deleted)

	b := &models.Budget{BudgetID: "b1", UserID: testUID, Amount: 200, Category: models.CategoryFood, StartDate: "2024-03-01"}
	got, err := svc.Spending(helpers.TestCtx(), testUID, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.CurrentSpending != 30.30 {
		t.Fatalf("expected spending 30.30, got %v", got.CurrentSpending)
	}
	if got.PercentUsed != 15.15 {
		t.Fatalf("expected 15.15 percent used, got %v", got.PercentUsed)
	}
	if got.From != "2024-03-01" || got.To != "2024-03-20" {
		t.Fatalf("open-ended budget must end today, got %s..%s", got.From, got.To)
	}
}

func TestSpendingHonoursEndDateAndZeroAmount(t *testing.T) {
	svc, ledger, _ := newBudgetFixture()
	ledger.put(expense("t1", "2024-03-05", 40, models.CategoryFood))
	ledger.put(expense("t2", "2024-03-12", 60, models.CategoryFood))

	b := &models.Budget{UserID: testUID, Amount: 0, Category: models.CategoryFood, StartDate: "2024-03-01", EndDate: helpers.Ptr("2024-03-10")}
	got, err := svc.Spending(helpers.TestCtx(), testUID, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.CurrentSpending != 40 || got.PercentUsed != 0 {
		t.Fatalf("expected 40 spent and 0 percent, got %+v", got)
	}
}

func TestSpendingDoesNotMutateLedger(t *testing.T) {
	svc, ledger, _ := newBudgetFixture()
	ledger.put(expense("t1", "2024-03-05", 40, models.CategoryFood))
	before := *ledger.row(testUID, "t1")

	b := &models.Budget{UserID: testUID, Amount: 100, Category: models.CategoryFood, StartDate: "2024-03-01"}
	if _, err := svc.Spending(helpers.TestCtx(), testUID, b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after := *ledger.row(testUID, "t1"); after != before {
		t.Fatalf("ledger row changed: %+v -> %+v", before, after)
	}
}

func TestGetBudgetIncludesTransactions(t *testing.T) {
	svc, ledger, budgets := newBudgetFixture()
	budgets.rows[key(testUID, "b1")] = &models.Budget{BudgetID: "b1", UserID: testUID, Name: "Food", Amount: 100, Category: models.CategoryFood, Period: models.PeriodMonthly, StartDate: "2024-03-01", IsActive: true}
	ledger.put(expense("t1", "2024-03-05", 25, models.CategoryFood))
	ledger.put(expense("t2", "2024-03-06", 25, models.CategoryFood))

	got, err := svc.GetBudget(helpers.TestCtx(), testUID, "b1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.CurrentSpending != 50 || got.PercentUsed != 50 {
		t.Fatalf("unexpected spending: %+v", got.BudgetSpending)
	}
	if len(got.Transactions) != 2 {
		t.Fatalf("expected 2 contributing transactions, got %d", len(got.Transactions))
	}

	if _, err := svc.GetBudget(helpers.TestCtx(), "someone-else", "b1"); !errs.IsNotFound(err) {
		t.Fatalf("expected other users to get not found, got %v", err)
	}
}

func TestCreateBudgetDefaults(t *testing.T) {
	svc, _, budgets := newBudgetFixture()

	got, err := svc.CreateBudget(helpers.TestCtx(), testUID, dto.CreateBudgetRequest{
		Name:      " Groceries ",
		Amount:    300,
		Category:  models.CategoryFood,
		Period:    models.PeriodMonthly,
		StartDate: "2024-03-01",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Groceries" || !got.IsActive || !got.IsRecurring || got.AlertThreshold != 80 {
		t.Fatalf("unexpected defaults: %+v", got.Budget)
	}
	if _, ok := budgets.rows[key(testUID, got.BudgetID)]; !ok {
		t.Fatalf("budget not stored")
	}
}

func TestCreateBudgetShapeChecks(t *testing.T) {
	tests := []struct {
		name string
		req  dto.CreateBudgetRequest
	}{
		{"missing name", dto.CreateBudgetRequest{Amount: 1, Category: models.CategoryFood, Period: models.PeriodMonthly, StartDate: "2024-03-01"}},
		{"bad category", dto.CreateBudgetRequest{Name: "x", Category: "Groceries", Period: models.PeriodMonthly, StartDate: "2024-03-01"}},
		{"bad period", dto.CreateBudgetRequest{Name: "x", Category: models.CategoryFood, Period: "yearly", StartDate: "2024-03-01"}},
		{"bad date", dto.CreateBudgetRequest{Name: "x", Category: models.CategoryFood, Period: models.PeriodMonthly, StartDate: "03/01/2024"}},
		{"end before start", dto.CreateBudgetRequest{Name: "x", Category: models.CategoryFood, Period: models.PeriodMonthly, StartDate: "2024-03-01", EndDate: helpers.Ptr("2024-02-01")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newBudgetFixture()
			_, err := svc.CreateBudget(helpers.TestCtx(), testUID, tt.req)
			var validation *errs.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestUpdateBudgetClearsEndDate(t *testing.T) {
	svc, _, budgets := newBudgetFixture()
	budgets.rows[key(testUID, "b1")] = &models.Budget{BudgetID: "b1", UserID: testUID, Name: "Food", Amount: 100, Category: models.CategoryFood, Period: models.PeriodMonthly, StartDate: "2024-03-01", EndDate: helpers.Ptr("2024-03-31"), IsActive: true}

	got, err := svc.UpdateBudget(helpers.TestCtx(), testUID, "b1", dto.UpdateBudgetRequest{EndDate: helpers.Ptr(""), Amount: helpers.Ptr(250.0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.EndDate != nil || got.Amount != 250 {
		t.Fatalf("expected open-ended budget of 250, got %+v", got.Budget)
	}
}

func TestDeleteBudget(t *testing.T) {
	svc, _, budgets := newBudgetFixture()
	budgets.rows[key(testUID, "b1")] = &models.Budget{BudgetID: "b1", UserID: testUID}

	if err := svc.DeleteBudget(helpers.TestCtx(), testUID, "b1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.DeleteBudget(helpers.TestCtx(), testUID, "b1"); !errs.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStreamTransactionsPropagatesError(t *testing.T) {
	txCh := make(chan *models.Transaction)
	errCh := make(chan error, 1)
	close(txCh)
	errCh <- errs.NewDatabaseError("read", "boom", nil)
	close(errCh)

	err := streamTransactions(txCh, errCh, func(*models.Transaction) error { return nil })
	var dbErr *errs.DatabaseError
	if !errors.As(err, &dbErr) {
		t.Fatalf("expected database error, got %v", err)
	}
}
