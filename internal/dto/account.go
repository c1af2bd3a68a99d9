package dto

import (
	"github.com/GregMSThompson/budget-tracker/internal/models"
)

type CreateAccountRequest struct {
	Name              string             `json:"name"`
	Type              models.AccountType `json:"type"`
	Subtype           string             `json:"subtype,omitempty"`
	Current           *float64           `json:"current"`
	Available         *float64           `json:"available"`
	Limit             *float64           `json:"limit,omitempty"`
	Currency          string             `json:"currency,omitempty"`
	InstitutionName   string             `json:"institutionName,omitempty"`
	IncludeInNetWorth *bool              `json:"includeInNetWorth,omitempty"`
}
