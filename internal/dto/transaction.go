package dto

import (
	"github.com/GregMSThompson/budget-tracker/internal/models"
)

// TransactionQuery filters the ledger for one user. Nil fields do not filter.
// Soft-deleted rows are excluded unless IncludeDeleted is set.
type TransactionQuery struct {
	Category       *models.Category
	Type           *models.TransactionType
	AccountID      *string
	AccountIDs     []string
	DateFrom       *string
	DateTo         *string
	MinAmount      *float64
	MaxAmount      *float64
	Search         *string
	IncludeDeleted bool
	OrderBy        string
	Desc           bool
	Limit          int
	Offset         int
}

type CreateTransactionRequest struct {
	AccountID          *string                `json:"accountId,omitempty"`
	Name               string                 `json:"name"`
	Amount             float64                `json:"amount"`
	Date               string                 `json:"date"`
	Category           models.Category        `json:"category"`
	Subcategory        string                 `json:"subcategory,omitempty"`
	Type               models.TransactionType `json:"type"`
	Notes              string                 `json:"notes,omitempty"`
	IsRecurring        bool                   `json:"isRecurring"`
	RecurringFrequency string                 `json:"recurringFrequency,omitempty"`
	Location           *models.Location       `json:"location,omitempty"`
}

// UpdateTransactionRequest is a partial update. Synced transactions accept
// only Category, Subcategory and Notes.
type UpdateTransactionRequest struct {
	Name               *string                 `json:"name,omitempty"`
	Amount             *float64                `json:"amount,omitempty"`
	Date               *string                 `json:"date,omitempty"`
	Category           *models.Category        `json:"category,omitempty"`
	Subcategory        *string                 `json:"subcategory,omitempty"`
	Type               *models.TransactionType `json:"type,omitempty"`
	Notes              *string                 `json:"notes,omitempty"`
	IsRecurring        *bool                   `json:"isRecurring,omitempty"`
	RecurringFrequency *string                 `json:"recurringFrequency,omitempty"`
	AccountID          *string                 `json:"accountId,omitempty"`
	Location           *models.Location        `json:"location,omitempty"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type TransactionPage struct {
	Transactions []models.Transaction `json:"transactions"`
	Count        int                  `json:"count"`
	Next         *Pagination          `json:"next,omitempty"`
	Prev         *Pagination          `json:"prev,omitempty"`
}
