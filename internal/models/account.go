package models

import (
	"time"
)

type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCredit     AccountType = "credit"
	AccountInvestment AccountType = "investment"
	AccountLoan       AccountType = "loan"
	AccountOther      AccountType = "other"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountChecking, AccountSavings, AccountCredit, AccountInvestment, AccountLoan, AccountOther:
		return true
	}
	return false
}

// Account is a financial account. Synced accounts use the external account id
// as their document id, which makes it unique across the system; manual
// accounts get a generated id and no external id.
type Account struct {
	AccountID         string      `firestore:"accountId" json:"accountId"`
	UserID            string      `firestore:"userId" json:"-"`
	ItemID            string      `firestore:"itemId,omitempty" json:"itemId,omitempty"`
	ExternalAccountID string      `firestore:"externalAccountId,omitempty" json:"externalAccountId,omitempty"`
	Name              string      `firestore:"name" json:"name"`
	OfficialName      string      `firestore:"officialName,omitempty" json:"officialName,omitempty"`
	Type              AccountType `firestore:"type" json:"type"`
	Subtype           string      `firestore:"subtype,omitempty" json:"subtype,omitempty"`
	Mask              string      `firestore:"mask,omitempty" json:"mask,omitempty"`
	Balance           Balance     `firestore:"balance" json:"balance"`
	Institution       Institution `firestore:"institution" json:"institution"`
	IsManual          bool        `firestore:"isManual" json:"isManual"`
	IsActive          bool        `firestore:"isActive" json:"isActive"`
	IncludeInNetWorth bool        `firestore:"includeInNetWorth" json:"includeInNetWorth"`
	CreatedAt         time.Time   `firestore:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time   `firestore:"updatedAt" json:"updatedAt"`
}

type Balance struct {
	Current     *float64  `firestore:"current" json:"current"`
	Available   *float64  `firestore:"available" json:"available"`
	Limit       *float64  `firestore:"limit" json:"limit"`
	Currency    string    `firestore:"currency" json:"currency"`
	LastUpdated time.Time `firestore:"lastUpdated" json:"lastUpdated"`
}

type Institution struct {
	ID   string `firestore:"id,omitempty" json:"id,omitempty"`
	Name string `firestore:"name,omitempty" json:"name,omitempty"`
}
