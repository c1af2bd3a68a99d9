package models

import (
	"time"
)

type BudgetPeriod string

const (
	PeriodDaily     BudgetPeriod = "daily"
	PeriodWeekly    BudgetPeriod = "weekly"
	PeriodMonthly   BudgetPeriod = "monthly"
	PeriodQuarterly BudgetPeriod = "quarterly"
	PeriodAnnually  BudgetPeriod = "annually"
)

func (p BudgetPeriod) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodAnnually:
		return true
	}
	return false
}

// Budget is a spending target for one category over [StartDate, EndDate].
// Dates are YYYY-MM-DD and a nil EndDate is open-ended. AlertThreshold is a
// percentage of Amount. Budgets are never touched by sync.
type Budget struct {
	BudgetID       string       `firestore:"budgetId" json:"budgetId"`
	UserID         string       `firestore:"userId" json:"-"`
	Name           string       `firestore:"name" json:"name"`
	Amount         float64      `firestore:"amount" json:"amount"`
	Category       Category     `firestore:"category" json:"category"`
	Subcategory    string       `firestore:"subcategory,omitempty" json:"subcategory,omitempty"`
	Period         BudgetPeriod `firestore:"period" json:"period"`
	StartDate      string       `firestore:"startDate" json:"startDate"`
	EndDate        *string      `firestore:"endDate" json:"endDate,omitempty"`
	IsRecurring    bool         `firestore:"isRecurring" json:"isRecurring"`
	AlertThreshold int          `firestore:"alertThreshold" json:"alertThreshold"`
	Notes          string       `firestore:"notes,omitempty" json:"notes,omitempty"`
	IsActive       bool         `firestore:"isActive" json:"isActive"`
	CreatedAt      time.Time    `firestore:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time    `firestore:"updatedAt" json:"updatedAt"`
}
