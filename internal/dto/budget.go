package dto

import (
	"github.com/GregMSThompson/budget-tracker/internal/models"
)

type BudgetQuery struct {
	IsActive  *bool
	Category  *models.Category
	Period    *models.BudgetPeriod
	StartDate *string // budgets ending on or after
	EndDate   *string // budgets starting on or before
}

type CreateBudgetRequest struct {
	Name           string              `json:"name"`
	Amount         float64             `json:"amount"`
	Category       models.Category     `json:"category"`
	Subcategory    string              `json:"subcategory,omitempty"`
	Period         models.BudgetPeriod `json:"period"`
	StartDate      string              `json:"startDate"`
	EndDate        *string             `json:"endDate,omitempty"`
	IsRecurring    *bool               `json:"isRecurring,omitempty"`
	AlertThreshold *int                `json:"alertThreshold,omitempty"`
	Notes          string              `json:"notes,omitempty"`
}

type UpdateBudgetRequest struct {
	Name           *string              `json:"name,omitempty"`
	Amount         *float64             `json:"amount,omitempty"`
	Category       *models.Category     `json:"category,omitempty"`
	Subcategory    *string              `json:"subcategory,omitempty"`
	Period         *models.BudgetPeriod `json:"period,omitempty"`
	StartDate      *string              `json:"startDate,omitempty"`
	EndDate        *string              `json:"endDate,omitempty"`
	IsRecurring    *bool                `json:"isRecurring,omitempty"`
	AlertThreshold *int                 `json:"alertThreshold,omitempty"`
	Notes          *string              `json:"notes,omitempty"`
	IsActive       *bool                `json:"isActive,omitempty"`
}

// BudgetSpending is computed from the ledger at read time.
type BudgetSpending struct {
	CurrentSpending float64 `json:"currentSpending"`
	PercentUsed     float64 `json:"percentUsed"`
	From            string  `json:"from"`
	To              string  `json:"to"`
}

type BudgetWithSpending struct {
	models.Budget
	BudgetSpending
	Transactions []models.Transaction `json:"transactions,omitempty"`
}
