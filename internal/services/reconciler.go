package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GregMSThompson/budget-tracker/internal/category"
	"github.com/GregMSThompson/budget-tracker/internal/dto"
	"github.com/GregMSThompson/budget-tracker/internal/errs"
	"github.com/GregMSThompson/budget-tracker/internal/metrics"
	"github.com/GregMSThompson/budget-tracker/internal/models"
	"github.com/GregMSThompson/budget-tracker/pkg/helpers"
	"github.com/GregMSThompson/budget-tracker/pkg/logger"
)

// --- Dependencies (minimal interfaces scoped to the reconciler) ---

type changesetFetcher interface {
	FetchInitial(ctx context.Context, accessToken string, start, end time.Time) (dto.SyncPage, error)
	FetchIncremental(ctx context.Context, accessToken, cursor string) (dto.SyncPage, error)
}

type itemLRStore interface {
	SetCursor(ctx context.Context, uid, itemID, cursor string) error
	SetStatus(ctx context.Context, uid, itemID string, status models.ItemStatus, itemErr *models.ItemError) error
	MarkSynced(ctx context.Context, uid, itemID string, at time.Time) error
}

type accountLRStore interface {
	GetByExternalID(ctx context.Context, uid, externalID string) (*models.Account, error)
}

type transactionLRStore interface {
	GetByExternalID(ctx context.Context, uid, externalID string) (*models.Transaction, error)
	Create(ctx context.Context, tx *models.Transaction) error
	Update(ctx context.Context, uid, id string, apply func(tx *models.Transaction) error) (*models.Transaction, error)
	SoftDelete(ctx context.Context, uid, id string) (bool, error)
}

// Sentinels returned from update closures to abort a write.
var (
	errNotSynced   = errors.New("entry is not owned by the aggregator") // modify on a manual row
	errAlreadyLive = errors.New("entry was restored concurrently")
)

type syncState int

const (
	stateInitial syncState = iota
	stateFetching
	stateApplying
	stateDone
	stateFailed
)

func (s syncState) String() string {
	switch s {
	case stateInitial:
		return "INITIAL"
	case stateFetching:
		return "FETCHING"
	case stateApplying:
		return "APPLYING"
	case stateDone:
		return "DONE"
	case stateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

type ledgerReconciler struct {
	plaid        changesetFetcher
	items        itemLRStore
	accounts     accountLRStore
	txs          transactionLRStore
	metrics      metrics.Recorder
	lookbackDays int
	clockNow     func() time.Time
}

func NewLedgerReconciler(plaid changesetFetcher, items itemLRStore, accounts accountLRStore, txs transactionLRStore, rec metrics.Recorder, lookbackDays int) *ledgerReconciler {
	if rec == nil {
		rec = metrics.NoOp{}
	}
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	return &ledgerReconciler{
		plaid:        plaid,
		items:        items,
		accounts:     accounts,
		txs:          txs,
		metrics:      rec,
		lookbackDays: lookbackDays,
		clockNow:     time.Now,
	}
}

// Reconcile pages through the item's changesets and merges them into the
// ledger. The cursor of each page is persisted before any of its entries are
// applied, so a pass that stops midway resumes from the last received page
// and re-applies at most that page. Counts cover everything applied before a
// failure.
func (r *ledgerReconciler) Reconcile(ctx context.Context, item *models.LinkedItem, accessToken string) (dto.SyncCounts, error) {
	log, ctx := logger.WithItem(ctx, item.UserID, item.ItemID)

	var (
		counts dto.SyncCounts
		page   dto.SyncPage
		cause  error
		pages  int
	)
	cursor := helpers.Value(item.Cursor)
	state := stateFetching
	if item.Cursor == nil {
		state = stateInitial
	}

	for {
		switch state {
		case stateInitial, stateFetching:
			if err := ctx.Err(); err != nil {
				cause = errs.NewExternalServiceError("sync", "sync cancelled", true, err)
				state = stateFailed
				continue
			}
			var err error
			page, err = r.fetch(ctx, state == stateInitial, accessToken, cursor)
			if err != nil {
				cause = err
				state = stateFailed
				continue
			}
			pages++
			r.metrics.PageFetched(state == stateInitial)

			advanced := page.NextCursor != "" && page.NextCursor != cursor
			if advanced {
				if err := r.items.SetCursor(ctx, item.UserID, item.ItemID, page.NextCursor); err != nil {
					cause = err
					state = stateFailed
					continue
				}
				cursor = page.NextCursor
				item.Cursor = helpers.Ptr(cursor)
			} else if page.HasMore {
				cause = errs.NewExternalServiceError("plaid", "changeset cursor did not advance", false, nil)
				state = stateFailed
				continue
			}
			state = stateApplying

		case stateApplying:
			pageCounts, err := r.apply(ctx, item, page)
			counts.Add(pageCounts)
			if err != nil {
				cause = err
				state = stateFailed
				continue
			}
			log.Debug("page applied", "page", pages, "added", pageCounts.Added, "modified", pageCounts.Modified, "removed", pageCounts.Removed)
			if page.HasMore {
				state = stateFetching
			} else {
				state = stateDone
			}

		case stateDone:
			now := r.clockNow()
			if err := r.items.MarkSynced(ctx, item.UserID, item.ItemID, now); err != nil {
				return counts, err
			}
			item.Status = models.ItemStatusGood
			item.Error = nil
			item.LastUpdated = now
			log.Info("item synced", "pages", pages, "added", counts.Added, "modified", counts.Modified, "removed", counts.Removed)
			return counts, nil

		case stateFailed:
			return counts, r.fail(ctx, item, cause)
		}
	}
}

func (r *ledgerReconciler) fetch(ctx context.Context, initial bool, accessToken, cursor string) (dto.SyncPage, error) {
	if initial {
		end := r.clockNow()
		start := end.AddDate(0, 0, -r.lookbackDays)
		return r.plaid.FetchInitial(ctx, accessToken, start, end)
	}
	return r.plaid.FetchIncremental(ctx, accessToken, cursor)
}

// fail records the item's health for cause and returns cause. Transient
// failures leave the status alone.
func (r *ledgerReconciler) fail(ctx context.Context, item *models.LinkedItem, cause error) error {
	log := logger.FromContext(ctx)

	var (
		status  models.ItemStatus
		itemErr *models.ItemError
		credErr *errs.CredentialError
		extErr  *errs.ExternalServiceError
	)
	switch {
	case errors.As(cause, &credErr):
		credErr.ItemID = item.ItemID
		status = models.ItemStatusLoginRequired
		itemErr = &models.ItemError{
			ErrorType:      credErr.ErrorType,
			ErrorCode:      credErr.Code,
			ErrorMessage:   credErr.Message,
			DisplayMessage: credErr.DisplayMessage,
			Status:         credErr.Status,
		}
	case errors.As(cause, &extErr) && !extErr.Transient:
		status = models.ItemStatusError
		itemErr = &models.ItemError{
			ErrorType:    "EXTERNAL_ERROR",
			ErrorCode:    extErr.Message,
			ErrorMessage: cause.Error(),
		}
	default:
		log.Warn("item sync aborted", "error", cause, "transient", errs.IsTransient(cause))
		return cause
	}

	log.Warn("item sync failed", "error", cause, "status", status)
	if err := r.items.SetStatus(ctx, item.UserID, item.ItemID, status, itemErr); err != nil {
		log.Error("failed to record item status", "error", err)
	} else {
		item.Status = status
		item.Error = itemErr
	}
	return cause
}

func (r *ledgerReconciler) apply(ctx context.Context, item *models.LinkedItem, page dto.SyncPage) (dto.SyncCounts, error) {
	var counts dto.SyncCounts
	defer func() {
		r.metrics.EntriesApplied("added", counts.Added)
		r.metrics.EntriesApplied("modified", counts.Modified)
		r.metrics.EntriesApplied("removed", counts.Removed)
	}()

	for _, e := range page.Added {
		ok, err := r.applyAdded(ctx, item, e)
		if err != nil {
			return counts, err
		}
		if ok {
			counts.Added++
		}
	}
	for _, e := range page.Modified {
		ok, err := r.applyModified(ctx, item, e)
		if err != nil {
			return counts, err
		}
		if ok {
			counts.Modified++
		}
	}
	for _, id := range page.Removed {
		ok, err := r.applyRemoved(ctx, item, id)
		if err != nil {
			return counts, err
		}
		if ok {
			counts.Removed++
		}
	}
	return counts, nil
}

func (r *ledgerReconciler) applyAdded(ctx context.Context, item *models.LinkedItem, e dto.ExternalTransaction) (bool, error) {
	log := logger.FromContext(ctx)
	uid := item.UserID

	existing, err := r.txs.GetByExternalID(ctx, uid, e.TransactionID)
	// Rows soft-deleted by an unlink come back when the item is relinked.
	revive := err == nil && existing.IsDeleted && !existing.IsManual
	switch {
	case err == nil && !revive:
		log.Debug("duplicate added entry ignored", "transaction_id", e.TransactionID)
		r.metrics.EntrySkipped("duplicate")
		return false, nil
	case err != nil && !errs.IsNotFound(err):
		return false, err
	}

	acc, err := r.accounts.GetByExternalID(ctx, uid, e.AccountID)
	if errs.IsNotFound(err) {
		log.Warn("added entry references unknown account", "transaction_id", e.TransactionID, "account_id", e.AccountID)
		r.metrics.EntrySkipped("unknown_account")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if revive {
		_, err := r.txs.Update(ctx, uid, e.TransactionID, func(tx *models.Transaction) error {
			if !tx.IsDeleted {
				return errAlreadyLive
			}
			tx.IsDeleted = false
			tx.AccountID, tx.ItemID = acc.AccountID, item.ItemID
			applySynced(tx, e)
			return nil
		})
		switch {
		case errors.Is(err, errAlreadyLive):
			r.metrics.EntrySkipped("duplicate")
			return false, nil
		case err != nil:
			return false, err
		}
		log.Debug("deleted transaction restored", "transaction_id", e.TransactionID)
		return true, nil
	}

	tx := &models.Transaction{
		TransactionID: e.TransactionID,
		UserID:        uid,
		AccountID:     acc.AccountID,
		ItemID:        item.ItemID,
		ExternalID:    e.TransactionID,
	}
	applySynced(tx, e)
	if err := r.txs.Create(ctx, tx); err != nil {
		if errs.IsAlreadyExists(err) {
			log.Debug("added entry inserted concurrently", "transaction_id", e.TransactionID)
			r.metrics.EntrySkipped("duplicate")
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *ledgerReconciler) applyModified(ctx context.Context, item *models.LinkedItem, e dto.ExternalTransaction) (bool, error) {
	log := logger.FromContext(ctx)

	// Only aggregator-owned fields are written; notes and any user edit made
	// since the page was fetched survive.
	_, err := r.txs.Update(ctx, item.UserID, e.TransactionID, func(tx *models.Transaction) error {
		if tx.IsManual || tx.ExternalID != e.TransactionID {
			return errNotSynced
		}
		applySynced(tx, e)
		return nil
	})
	switch {
	case errs.IsNotFound(err), errors.Is(err, errNotSynced):
		log.Debug("modified entry for unknown transaction ignored", "transaction_id", e.TransactionID)
		r.metrics.EntrySkipped("unknown_transaction")
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// applySynced writes the aggregator-owned fields of e onto tx.
func applySynced(tx *models.Transaction, e dto.ExternalTransaction) {
	tx.Amount, tx.Type = normalizeAmount(e.Amount)
	// A degraded mapping never replaces a category that was resolved before.
	if cat, sub := category.FromPath(e.Category); cat != category.Fallback || tx.Category == "" {
		tx.Category, tx.Subcategory = cat, sub
	}
	tx.Name = e.Name
	tx.Date = e.Date
	tx.Location = e.Location
	tx.Pending = e.Pending
	if e.Currency != "" || tx.Currency == "" {
		tx.Currency = e.Currency
	}
}

func (r *ledgerReconciler) applyRemoved(ctx context.Context, item *models.LinkedItem, externalID string) (bool, error) {
	changed, err := r.txs.SoftDelete(ctx, item.UserID, externalID)
	if errs.IsNotFound(err) {
		return false, nil
	}
	return changed, err
}

// normalizeAmount converts a signed aggregator amount into a non-negative
// ledger amount and its direction. Negative means money flowed in; the sign
// is read before rounding so tiny credits stay income.
func normalizeAmount(amount float64) (float64, models.TransactionType) {
	typ := models.TransactionExpense
	if amount < 0 {
		typ = models.TransactionIncome
	}
	f, _ := decimal.NewFromFloat(amount).Abs().Round(2).Float64()
	return f, typ
}
