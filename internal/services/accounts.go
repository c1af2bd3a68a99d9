package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GregMSThompson/budget-tracker/internal/dto"
	"github.com/GregMSThompson/budget-tracker/internal/errs"
	"github.com/GregMSThompson/budget-tracker/internal/models"
	"github.com/GregMSThompson/budget-tracker/pkg/logger"
)

type accountARStore interface {
	Create(ctx context.Context, acc *models.Account) error
	GetByExternalID(ctx context.Context, uid, externalID string) (*models.Account, error)
	UpdateBalance(ctx context.Context, uid, accountID string, bal models.Balance) error
	List(ctx context.Context, uid string) ([]*models.Account, error)
}

type itemARStore interface {
	AddAccount(ctx context.Context, uid, itemID, accountID string) error
}

type accountFetcher interface {
	GetAccounts(ctx context.Context, accessToken string) ([]dto.ExternalAccount, error)
}

type accountRegistry struct {
	accounts accountARStore
	items    itemARStore
	plaid    accountFetcher
	clockNow func() time.Time
}

func NewAccountRegistry(accounts accountARStore, items itemARStore, plaid accountFetcher) *accountRegistry {
	return &accountRegistry{
		accounts: accounts,
		items:    items,
		plaid:    plaid,
		clockNow: time.Now,
	}
}

// UpsertFromExternal records an aggregator account for uid. An existing
// account only has its balance refreshed. The account id is appended to the
// item's account list at most once.
func (r *accountRegistry) UpsertFromExternal(ctx context.Context, ext dto.ExternalAccount, item *models.LinkedItem, uid string) (*models.Account, error) {
	now := r.clockNow()
	bal := balanceFrom(ext, now)

	acc, err := r.accounts.GetByExternalID(ctx, uid, ext.AccountID)
	switch {
	case err == nil:
		if err := r.accounts.UpdateBalance(ctx, uid, acc.AccountID, bal); err != nil {
			return nil, err
		}
		acc.Balance = bal
		acc.IsActive = true
	case errs.IsNotFound(err):
		acc = &models.Account{
			AccountID:         ext.AccountID,
			UserID:            uid,
			ItemID:            item.ItemID,
			ExternalAccountID: ext.AccountID,
			Name:              ext.Name,
			OfficialName:      ext.OfficialName,
			Type:              accountType(ext.Type, ext.Subtype),
			Subtype:           ext.Subtype,
			Mask:              ext.Mask,
			Balance:           bal,
			Institution:       models.Institution{ID: item.InstitutionID, Name: item.InstitutionName},
			IsActive:          true,
			IncludeInNetWorth: true,
		}
		err := r.accounts.Create(ctx, acc)
		if errs.IsAlreadyExists(err) {
			// Lost a race with a concurrent sync; the row is there now.
			err = r.accounts.UpdateBalance(ctx, uid, acc.AccountID, bal)
		}
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if !item.HasAccount(acc.AccountID) {
		if err := r.items.AddAccount(ctx, uid, item.ItemID, acc.AccountID); err != nil {
			return nil, err
		}
		item.AccountIDs = append(item.AccountIDs, acc.AccountID)
	}
	return acc, nil
}

// SyncAccounts refreshes every account the aggregator reports for item.
func (r *accountRegistry) SyncAccounts(ctx context.Context, uid string, item *models.LinkedItem, accessToken string) ([]*models.Account, error) {
	exts, err := r.plaid.GetAccounts(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Account, 0, len(exts))
	for _, ext := range exts {
		acc, err := r.UpsertFromExternal(ctx, ext, item, uid)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	logger.FromContext(ctx).Debug("accounts refreshed", "item_id", item.ItemID, "count", len(out))
	return out, nil
}

func (r *accountRegistry) CreateManualAccount(ctx context.Context, uid string, req dto.CreateAccountRequest) (*models.Account, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, errs.NewValidationError("account name is required")
	}
	if !req.Type.Valid() {
		return nil, errs.NewValidationError("invalid account type")
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	includeInNetWorth := true
	if req.IncludeInNetWorth != nil {
		includeInNetWorth = *req.IncludeInNetWorth
	}

	acc := &models.Account{
		AccountID: uuid.NewString(),
		UserID:    uid,
		Name:      strings.TrimSpace(req.Name),
		Type:      req.Type,
		Subtype:   req.Subtype,
		Balance: models.Balance{
			Current:     req.Current,
			Available:   req.Available,
			Limit:       req.Limit,
			Currency:    currency,
			LastUpdated: r.clockNow(),
		},
		Institution:       models.Institution{Name: req.InstitutionName},
		IsManual:          true,
		IsActive:          true,
		IncludeInNetWorth: includeInNetWorth,
	}
	if err := r.accounts.Create(ctx, acc); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("manual account created", "account_id", acc.AccountID)
	return acc, nil
}

// ListAccounts returns active accounts grouped by institution, then type.
func (r *accountRegistry) ListAccounts(ctx context.Context, uid string) ([]*models.Account, error) {
	accounts, err := r.accounts.List(ctx, uid)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		a, b := accounts[i], accounts[j]
		if a.Institution.Name != b.Institution.Name {
			return a.Institution.Name < b.Institution.Name
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Name < b.Name
	})
	return accounts, nil
}

func balanceFrom(ext dto.ExternalAccount, now time.Time) models.Balance {
	currency := ext.Currency
	if currency == "" {
		currency = "USD"
	}
	return models.Balance{
		Current:     ext.Current,
		Available:   ext.Available,
		Limit:       ext.Limit,
		Currency:    currency,
		LastUpdated: now,
	}
}

func accountType(typ, subtype string) models.AccountType {
	switch strings.ToLower(typ) {
	case "depository":
		switch strings.ToLower(subtype) {
		case "savings", "money market", "cd", "hsa":
			return models.AccountSavings
		default:
			return models.AccountChecking
		}
	case "credit":
		return models.AccountCredit
	case "investment", "brokerage":
		return models.AccountInvestment
	case "loan":
		return models.AccountLoan
	default:
		return models.AccountOther
	}
}
