package plaidclient

import (
	"github.com/plaid/plaid-go/v24/plaid"

	"github.com/GregMSThompson/budget-tracker/internal/dto"
	"github.com/GregMSThompson/budget-tracker/internal/models"
)

func toSyncPage(resp plaid.TransactionsSyncResponse) dto.SyncPage {
	page := dto.SyncPage{
		Added:      make([]dto.ExternalTransaction, 0, len(resp.GetAdded())),
		Modified:   make([]dto.ExternalTransaction, 0, len(resp.GetModified())),
		Removed:    make([]string, 0, len(resp.GetRemoved())),
		HasMore:    resp.GetHasMore(),
		NextCursor: resp.GetNextCursor(),
	}
	for _, t := range resp.GetAdded() {
		page.Added = append(page.Added, toExternalTransaction(t))
	}
	for _, t := range resp.GetModified() {
		page.Modified = append(page.Modified, toExternalTransaction(t))
	}
	for _, r := range resp.GetRemoved() {
		if id := r.GetTransactionId(); id != "" {
			page.Removed = append(page.Removed, id)
		}
	}
	return page
}

func toExternalTransaction(t plaid.Transaction) dto.ExternalTransaction {
	currency := t.GetIsoCurrencyCode()
	if currency == "" {
		currency = t.GetUnofficialCurrencyCode()
	}
	return dto.ExternalTransaction{
		TransactionID: t.GetTransactionId(),
		AccountID:     t.GetAccountId(),
		Name:          t.GetName(),
		Amount:        t.GetAmount(),
		Currency:      currency,
		Date:          t.GetDate(),
		Pending:       t.GetPending(),
		Category:      categoryPath(t),
		Location:      toLocation(t),
	}
}

// categoryPath prefers the personal finance category and falls back to the
// legacy hierarchy for items that predate it.
func categoryPath(t plaid.Transaction) []string {
	if pfc, ok := t.GetPersonalFinanceCategoryOk(); ok && pfc != nil && pfc.GetPrimary() != "" {
		path := []string{pfc.GetPrimary()}
		if d := pfc.GetDetailed(); d != "" {
			path = append(path, d)
		}
		return path
	}
	return t.GetCategory()
}

func toLocation(t plaid.Transaction) *models.Location {
	loc := t.GetLocation()
	out := models.Location{
		Merchant:   t.GetMerchantName(),
		Address:    loc.GetAddress(),
		City:       loc.GetCity(),
		Region:     loc.GetRegion(),
		PostalCode: loc.GetPostalCode(),
		Country:    loc.GetCountry(),
	}
	if lat, ok := loc.GetLatOk(); ok {
		out.Lat = lat
	}
	if lon, ok := loc.GetLonOk(); ok {
		out.Lon = lon
	}
	if out == (models.Location{}) {
		return nil
	}
	return &out
}

func toExternalAccount(acc plaid.AccountBase) dto.ExternalAccount {
	bal := acc.GetBalances()
	out := dto.ExternalAccount{
		AccountID:    acc.GetAccountId(),
		Name:         acc.GetName(),
		OfficialName: acc.GetOfficialName(),
		Type:         string(acc.GetType()),
		Subtype:      string(acc.GetSubtype()),
		Mask:         acc.GetMask(),
		Currency:     bal.GetIsoCurrencyCode(),
	}
	out.Current = optionalAmount(bal.GetCurrentOk())
	out.Available = optionalAmount(bal.GetAvailableOk())
	out.Limit = optionalAmount(bal.GetLimitOk())
	return out
}

// optionalAmount copies a nullable Plaid balance, keeping null as nil.
func optionalAmount(v *float64, ok bool) *float64 {
	if !ok || v == nil {
		return nil
	}
	out := *v
	return &out
}
