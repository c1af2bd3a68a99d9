package dto

import (
	"github.com/GregMSThompson/budget-tracker/internal/models"
)

// One page of the aggregator's changeset protocol.
type SyncPage struct {
	Added      []ExternalTransaction
	Modified   []ExternalTransaction
	Removed    []string // external transaction ids
	HasMore    bool
	NextCursor string // empty when the protocol did not advance
}

// ExternalTransaction is an added or modified entry as the aggregator
// reports it. Amount is signed: negative means money flowing in.
type ExternalTransaction struct {
	TransactionID string
	AccountID     string
	Name          string
	Amount        float64
	Currency      string
	Date          string // YYYY-MM-DD
	Pending       bool
	Category      []string
	Location      *models.Location
}

// ExternalAccount is one account from /accounts/get.
type ExternalAccount struct {
	AccountID    string
	Name         string
	OfficialName string
	Type         string
	Subtype      string
	Mask         string
	Current      *float64 // nil when the institution did not report it
	Available    *float64
	Limit        *float64
	Currency     string
}

// SyncCounts are the ledger mutations applied by one sync.
type SyncCounts struct {
	Added    int `json:"added"`
	Modified int `json:"modified"`
	Removed  int `json:"removed"`
}

func (c *SyncCounts) Add(o SyncCounts) {
	c.Added += o.Added
	c.Modified += o.Modified
	c.Removed += o.Removed
}

// ItemFailure describes a linked item whose sync did not complete.
type ItemFailure struct {
	ItemID      string `json:"itemId"`
	Institution string `json:"institution"`
	Reason      string `json:"reason"`
	Transient   bool   `json:"transient"`
}

// SyncResult is what a sync returns to the API: aggregate counts across all
// items that were attempted plus the items that failed.
type SyncResult struct {
	SyncCounts
	ItemsSynced int           `json:"itemsSynced"`
	Failures    []ItemFailure `json:"failures"`
}

type LinkItemRequest struct {
	PublicToken     string `json:"publicToken"`
	InstitutionID   string `json:"institutionId"`
	InstitutionName string `json:"institutionName"`
}

type PlaidEnvironment string

const (
	PlaidSandbox    PlaidEnvironment = "sandbox"
	PlaidProduction PlaidEnvironment = "production"
)

// PlaidWebhook is the subset of a Plaid webhook body the API acts on.
type PlaidWebhook struct {
	WebhookType string             `json:"webhook_type"`
	WebhookCode string             `json:"webhook_code"`
	ItemID      string             `json:"item_id"`
	Error       *PlaidWebhookError `json:"error,omitempty"`
}

type PlaidWebhookError struct {
	ErrorType      string `json:"error_type"`
	ErrorCode      string `json:"error_code"`
	ErrorMessage   string `json:"error_message"`
	DisplayMessage string `json:"display_message"`
	Status         int    `json:"status"`
}
