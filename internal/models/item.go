package models

import (
	"time"
)

type ItemStatus string

const (
	ItemStatusGood          ItemStatus = "good"
	ItemStatusLoginRequired ItemStatus = "login_required"
	ItemStatusError         ItemStatus = "error"
)

// LinkedItem is one institution connection at the aggregator (a Plaid item).
// The document id is the external item id.
type LinkedItem struct {
	ItemID          string     `firestore:"itemId" json:"itemId"`
	UserID          string     `firestore:"userId" json:"-"`
	AccessToken     string     `firestore:"accessToken" json:"-"` // sealed, see internal/crypto
	InstitutionID   string     `firestore:"institutionId" json:"institutionId"`
	InstitutionName string     `firestore:"institutionName" json:"institutionName"`
	AccountIDs      []string   `firestore:"accountIds" json:"accountIds"`
	Cursor          *string    `firestore:"cursor" json:"-"` // nil until the first page is received
	Status          ItemStatus `firestore:"status" json:"status"`
	Error           *ItemError `firestore:"error" json:"error,omitempty"`
	IsActive        bool       `firestore:"isActive" json:"isActive"`
	LastUpdated     time.Time  `firestore:"lastUpdated" json:"lastUpdated"`
	CreatedAt       time.Time  `firestore:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt" json:"updatedAt"`
}

// ItemError is the structured error the aggregator reported for an item.
type ItemError struct {
	ErrorType      string `firestore:"errorType" json:"errorType"`
	ErrorCode      string `firestore:"errorCode" json:"errorCode"`
	ErrorMessage   string `firestore:"errorMessage" json:"errorMessage"`
	DisplayMessage string `firestore:"displayMessage,omitempty" json:"displayMessage,omitempty"`
	Status         int    `firestore:"status,omitempty" json:"status,omitempty"`
}

func (i *LinkedItem) HasAccount(accountID string) bool {
	for _, id := range i.AccountIDs {
		if id == accountID {
			return true
		}
	}
	return false
}
