package models

import (
	"time"
)

type TransactionType string

const (
	TransactionExpense  TransactionType = "expense"
	TransactionIncome   TransactionType = "income"
	TransactionTransfer TransactionType = "transfer"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionExpense, TransactionIncome, TransactionTransfer:
		return true
	}
	return false
}

// Transaction is one ledger entry. Amount is never negative; the direction
// lives in Type. Synced entries use the external transaction id as their
// document id, so a second insert of the same id fails at the store.
type Transaction struct {
	TransactionID      string          `firestore:"transactionId" json:"transactionId"`
	UserID             string          `firestore:"userId" json:"-"`
	AccountID          string          `firestore:"accountId,omitempty" json:"accountId,omitempty"`
	ItemID             string          `firestore:"itemId,omitempty" json:"itemId,omitempty"`
	ExternalID         string          `firestore:"externalId,omitempty" json:"externalId,omitempty"`
	Name               string          `firestore:"name" json:"name"`
	Amount             float64         `firestore:"amount" json:"amount"`
	Currency           string          `firestore:"currency,omitempty" json:"currency,omitempty"`
	Date               string          `firestore:"date" json:"date"` // YYYY-MM-DD
	Category           Category        `firestore:"category" json:"category"`
	Subcategory        string          `firestore:"subcategory,omitempty" json:"subcategory,omitempty"`
	Type               TransactionType `firestore:"type" json:"type"`
	Notes              string          `firestore:"notes" json:"notes"`
	Pending            bool            `firestore:"pending" json:"pending"`
	IsRecurring        bool            `firestore:"isRecurring" json:"isRecurring"`
	RecurringFrequency string          `firestore:"recurringFrequency,omitempty" json:"recurringFrequency,omitempty"`
	Location           *Location       `firestore:"location" json:"location,omitempty"`
	IsManual           bool            `firestore:"isManual" json:"isManual"`
	IsDeleted          bool            `firestore:"isDeleted" json:"isDeleted"`
	CreatedAt          time.Time       `firestore:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time       `firestore:"updatedAt" json:"updatedAt"`
}

type Location struct {
	Merchant   string   `firestore:"merchant,omitempty" json:"merchant,omitempty"`
	Address    string   `firestore:"address,omitempty" json:"address,omitempty"`
	City       string   `firestore:"city,omitempty" json:"city,omitempty"`
	Region     string   `firestore:"region,omitempty" json:"region,omitempty"`
	PostalCode string   `firestore:"postalCode,omitempty" json:"postalCode,omitempty"`
	Country    string   `firestore:"country,omitempty" json:"country,omitempty"`
	Lat        *float64 `firestore:"lat,omitempty" json:"lat,omitempty"`
	Lon        *float64 `firestore:"lon,omitempty" json:"lon,omitempty"`
}
