package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/GregMSThompson/budget-tracker/internal/crypto"
	"github.com/GregMSThompson/budget-tracker/internal/dto"
	"github.com/GregMSThompson/budget-tracker/internal/errs"
	"github.com/GregMSThompson/budget-tracker/internal/metrics"
	"github.com/GregMSThompson/budget-tracker/internal/models"
	"github.com/GregMSThompson/budget-tracker/pkg/logger"
)

// --- Dependencies (minimal interfaces scoped to this service) ---

type itemSSStore interface {
	Create(ctx context.Context, item *models.LinkedItem) error
	Get(ctx context.Context, uid, itemID string) (*models.LinkedItem, error)
	FindByItemID(ctx context.Context, itemID string) (*models.LinkedItem, error)
	ListActive(ctx context.Context, uid string) ([]*models.LinkedItem, error)
	SetStatus(ctx context.Context, uid, itemID string, status models.ItemStatus, itemErr *models.ItemError) error
	SetAccessToken(ctx context.Context, uid, itemID, sealed string) error
	Deactivate(ctx context.Context, uid, itemID string) error
	Reactivate(ctx context.Context, uid, itemID, sealed string) error
}

type accountSSStore interface {
	DeactivateByItem(ctx context.Context, uid, itemID string) ([]string, error)
}

type transactionSSStore interface {
	SoftDeleteByAccounts(ctx context.Context, uid string, accountIDs []string) (int, error)
}

type accountSyncer interface {
	SyncAccounts(ctx context.Context, uid string, item *models.LinkedItem, accessToken string) ([]*models.Account, error)
}

type itemReconciler interface {
	Reconcile(ctx context.Context, item *models.LinkedItem, accessToken string) (dto.SyncCounts, error)
}

type failureRecorder interface {
	fail(ctx context.Context, item *models.LinkedItem, cause error) error
}

// linkClient is the Plaid adapter surface used for linking and unlinking.
type linkClient interface {
	CreateLinkToken(ctx context.Context, uid, accessToken string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (itemID, accessToken string, err error)
	RemoveItem(ctx context.Context, accessToken string) error
}

type SyncDeps struct {
	Plaid       linkClient
	Items       itemSSStore
	Accounts    accountSSStore
	Txs         transactionSSStore
	Registry    accountSyncer
	Reconciler  *ledgerReconciler
	Vault       crypto.Vault
	Metrics     metrics.Recorder
	Concurrency int
}

type syncService struct {
	plaid       linkClient
	items       itemSSStore
	accounts    accountSSStore
	txs         transactionSSStore
	registry    accountSyncer
	reconciler  itemReconciler
	failures    failureRecorder
	vault       crypto.Vault
	metrics     metrics.Recorder
	concurrency int
	flight      singleflight.Group
	clockNow    func() time.Time
}

func NewSyncService(d SyncDeps) *syncService {
	rec := d.Metrics
	if rec == nil {
		rec = metrics.NoOp{}
	}
	concurrency := d.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &syncService{
		plaid:       d.Plaid,
		items:       d.Items,
		accounts:    d.Accounts,
		txs:         d.Txs,
		registry:    d.Registry,
		reconciler:  d.Reconciler,
		failures:    d.Reconciler,
		vault:       d.Vault,
		metrics:     rec,
		concurrency: concurrency,
		clockNow:    time.Now,
	}
}

// SyncAll syncs every active linked item of uid. Item failures are reported
// in the result and never abort the other items; only a user without linked
// items, or a failure to list them, fails the call.
func (s *syncService) SyncAll(ctx context.Context, uid string) (dto.SyncResult, error) {
	result := dto.SyncResult{Failures: []dto.ItemFailure{}}
	log := logger.FromContext(ctx)

	items, err := s.items.ListActive(ctx, uid)
	if err != nil {
		return result, err
	}
	if len(items) == 0 {
		return result, errs.NewNothingToSyncError("no linked accounts to sync")
	}
	log.Info("transaction sync started", "item_count", len(items))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)
	for _, item := range items {
		g.Go(func() error {
			counts, err := s.syncItem(ctx, item)

			mu.Lock()
			defer mu.Unlock()
			result.Add(counts)
			if err != nil {
				result.Failures = append(result.Failures, failureFor(item, err))
				return nil
			}
			result.ItemsSynced++
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].ItemID < result.Failures[j].ItemID
	})
	log.Info("transaction sync completed",
		"items_synced", result.ItemsSynced,
		"items_failed", len(result.Failures),
		"added", result.Added,
		"modified", result.Modified,
		"removed", result.Removed,
	)
	return result, nil
}

// SyncItem syncs a single item of uid.
func (s *syncService) SyncItem(ctx context.Context, uid, itemID string) (dto.SyncResult, error) {
	result := dto.SyncResult{Failures: []dto.ItemFailure{}}
	item, err := s.activeItem(ctx, uid, itemID)
	if err != nil {
		return result, err
	}
	counts, err := s.syncItem(ctx, item)
	result.SyncCounts = counts
	if err != nil {
		result.Failures = append(result.Failures, failureFor(item, err))
		return result, err
	}
	result.ItemsSynced = 1
	return result, nil
}

// syncItem runs one pass for item. Overlapping passes for the same item
// (duplicate webhooks, a manual sync during a scheduled one) share a single
// run.
func (s *syncService) syncItem(ctx context.Context, item *models.LinkedItem) (dto.SyncCounts, error) {
	if item.Status == models.ItemStatusLoginRequired {
		s.metrics.ItemSynced(metrics.ResultSkipped, 0)
		return dto.SyncCounts{}, credentialErrorFor(item)
	}

	v, err, shared := s.flight.Do(item.UserID+"/"+item.ItemID, func() (interface{}, error) {
		start := s.clockNow()
		counts, err := s.runItem(ctx, item)
		s.metrics.ItemSynced(resultLabel(err), s.clockNow().Sub(start))
		return counts, err
	})
	if shared {
		logger.FromContext(ctx).Debug("joined in-flight sync", "item_id", item.ItemID)
	}
	counts, _ := v.(dto.SyncCounts)
	return counts, err
}

func (s *syncService) runItem(ctx context.Context, item *models.LinkedItem) (dto.SyncCounts, error) {
	log, ctx := logger.WithItem(ctx, item.UserID, item.ItemID)

	token, err := s.vault.Open(ctx, item.UserID, item.ItemID, item.AccessToken)
	if err != nil {
		log.Error("failed to open access token", "error", err)
		return dto.SyncCounts{}, err
	}
	if _, err := s.registry.SyncAccounts(ctx, item.UserID, item, token); err != nil {
		return dto.SyncCounts{}, s.failures.fail(ctx, item, err)
	}
	return s.reconciler.Reconcile(ctx, item, token)
}

func (s *syncService) activeItem(ctx context.Context, uid, itemID string) (*models.LinkedItem, error) {
	item, err := s.items.Get(ctx, uid, itemID)
	if err != nil {
		return nil, err
	}
	if !item.IsActive {
		return nil, errs.NewNotFoundError("linked item not found")
	}
	return item, nil
}

// CreateLinkToken returns a Link token. With itemID set, Link opens in update
// mode for that item so the user can repair its credentials.
func (s *syncService) CreateLinkToken(ctx context.Context, uid, itemID string) (string, error) {
	var accessToken string
	if itemID != "" {
		item, err := s.activeItem(ctx, uid, itemID)
		if err != nil {
			return "", err
		}
		if accessToken, err = s.vault.Open(ctx, uid, itemID, item.AccessToken); err != nil {
			return "", err
		}
	}
	return s.plaid.CreateLinkToken(ctx, uid, accessToken)
}

// ExchangePublicToken completes Link: it stores the new item with a sealed
// credential and registers its accounts. Relinking an item that already
// exists refreshes its credential and reactivates it.
func (s *syncService) ExchangePublicToken(ctx context.Context, uid string, req dto.LinkItemRequest) (*models.LinkedItem, error) {
	if strings.TrimSpace(req.PublicToken) == "" {
		return nil, errs.NewValidationError("publicToken is required")
	}
	itemID, accessToken, err := s.plaid.ExchangePublicToken(ctx, req.PublicToken)
	if err != nil {
		return nil, err
	}
	log, ctx := logger.WithItem(ctx, uid, itemID)

	sealed, err := s.vault.Seal(ctx, uid, itemID, accessToken)
	if err != nil {
		return nil, err
	}

	now := s.clockNow()
	item := &models.LinkedItem{
		ItemID:          itemID,
		UserID:          uid,
		AccessToken:     sealed,
		InstitutionID:   req.InstitutionID,
		InstitutionName: req.InstitutionName,
		AccountIDs:      []string{},
		Status:          models.ItemStatusGood,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	switch err := s.items.Create(ctx, item); {
	case errs.IsAlreadyExists(err):
		if item, err = s.relink(ctx, uid, itemID, sealed); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	if _, err := s.registry.SyncAccounts(ctx, uid, item, accessToken); err != nil {
		// The item is linked; accounts are retried on the next sync.
		log.Warn("initial account sync failed", "error", err)
	}
	log.Info("item linked", "institution", item.InstitutionName, "accounts", len(item.AccountIDs))
	return item, nil
}

// relink refreshes the credential of an existing item. An item that was
// unlinked comes back with a cleared cursor so its soft-deleted history is
// replayed.
func (s *syncService) relink(ctx context.Context, uid, itemID, sealed string) (*models.LinkedItem, error) {
	existing, err := s.items.Get(ctx, uid, itemID)
	if err != nil {
		return nil, err
	}
	if existing.IsActive {
		if err := s.items.SetAccessToken(ctx, uid, itemID, sealed); err != nil {
			return nil, err
		}
		if err := s.items.SetStatus(ctx, uid, itemID, models.ItemStatusGood, nil); err != nil {
			return nil, err
		}
	} else {
		if err := s.items.Reactivate(ctx, uid, itemID, sealed); err != nil {
			return nil, err
		}
		logger.FromContext(ctx).Info("unlinked item reactivated")
	}
	return s.items.Get(ctx, uid, itemID)
}

func (s *syncService) ListItems(ctx context.Context, uid string) ([]*models.LinkedItem, error) {
	return s.items.ListActive(ctx, uid)
}

// MarkReauthorized clears a credential failure after the user went through
// Link update mode.
func (s *syncService) MarkReauthorized(ctx context.Context, uid, itemID string) error {
	if _, err := s.activeItem(ctx, uid, itemID); err != nil {
		return err
	}
	if err := s.items.SetStatus(ctx, uid, itemID, models.ItemStatusGood, nil); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("item reauthorized", "item_id", itemID)
	return nil
}

// UnlinkItem soft-unlinks an item: its transactions are marked deleted, its
// accounts and the item itself inactive. Nothing is erased. Revoking the
// credential at Plaid is best effort. It returns the number of transactions
// marked deleted.
func (s *syncService) UnlinkItem(ctx context.Context, uid, itemID string) (int, error) {
	item, err := s.activeItem(ctx, uid, itemID)
	if err != nil {
		return 0, err
	}
	log, ctx := logger.WithItem(ctx, uid, itemID)

	if token, err := s.vault.Open(ctx, uid, itemID, item.AccessToken); err != nil {
		log.Warn("cannot open access token for removal", "error", err)
	} else if err := s.plaid.RemoveItem(ctx, token); err != nil {
		log.Warn("plaid item removal failed", "error", err)
	}

	accountIDs, err := s.accounts.DeactivateByItem(ctx, uid, itemID)
	if err != nil {
		return 0, err
	}
	for _, id := range item.AccountIDs {
		if !containsString(accountIDs, id) {
			accountIDs = append(accountIDs, id)
		}
	}
	removed, err := s.txs.SoftDeleteByAccounts(ctx, uid, accountIDs)
	if err != nil {
		return 0, err
	}
	if err := s.items.Deactivate(ctx, uid, itemID); err != nil {
		return 0, err
	}
	if err := s.vault.Discard(ctx, uid, itemID); err != nil {
		log.Warn("failed to discard access token", "error", err)
	}

	log.Info("item unlinked", "accounts", len(accountIDs), "transactions", removed)
	return removed, nil
}

// HandleWebhook reacts to a Plaid webhook. Unknown items and webhook codes
// are acknowledged and ignored.
func (s *syncService) HandleWebhook(ctx context.Context, hook dto.PlaidWebhook) error {
	log := logger.FromContext(ctx)
	item, err := s.items.FindByItemID(ctx, hook.ItemID)
	if errs.IsNotFound(err) {
		log.Warn("webhook for unknown item", "item_id", hook.ItemID, "type", hook.WebhookType, "code", hook.WebhookCode)
		return nil
	}
	if err != nil {
		return err
	}
	log, ctx = logger.WithItem(ctx, item.UserID, item.ItemID)
	log.Info("webhook received", "type", hook.WebhookType, "code", hook.WebhookCode)

	switch hook.WebhookType + "/" + hook.WebhookCode {
	case "TRANSACTIONS/SYNC_UPDATES_AVAILABLE", "TRANSACTIONS/DEFAULT_UPDATE",
		"TRANSACTIONS/INITIAL_UPDATE", "TRANSACTIONS/HISTORICAL_UPDATE":
		if !item.IsActive {
			return nil
		}
		_, err := s.syncItem(ctx, item)
		var credErr *errs.CredentialError
		if errors.As(err, &credErr) {
			// Recorded on the item; retrying the webhook cannot fix it.
			return nil
		}
		return err
	case "ITEM/ERROR":
		status, itemErr := models.ItemStatusError, webhookItemError(hook)
		if itemErr.ErrorCode == "ITEM_LOGIN_REQUIRED" {
			status = models.ItemStatusLoginRequired
		}
		return s.items.SetStatus(ctx, item.UserID, item.ItemID, status, itemErr)
	case "ITEM/PENDING_EXPIRATION", "ITEM/PENDING_DISCONNECT":
		return s.items.SetStatus(ctx, item.UserID, item.ItemID, models.ItemStatusLoginRequired, &models.ItemError{
			ErrorType:    "ITEM_ERROR",
			ErrorCode:    hook.WebhookCode,
			ErrorMessage: "consent is about to expire, the user must reauthorize",
		})
	case "ITEM/LOGIN_REPAIRED":
		return s.items.SetStatus(ctx, item.UserID, item.ItemID, models.ItemStatusGood, nil)
	default:
		return nil
	}
}

func webhookItemError(hook dto.PlaidWebhook) *models.ItemError {
	if hook.Error == nil {
		return &models.ItemError{ErrorType: "ITEM_ERROR", ErrorCode: "UNKNOWN"}
	}
	return &models.ItemError{
		ErrorType:      hook.Error.ErrorType,
		ErrorCode:      hook.Error.ErrorCode,
		ErrorMessage:   hook.Error.ErrorMessage,
		DisplayMessage: hook.Error.DisplayMessage,
		Status:         hook.Error.Status,
	}
}

func credentialErrorFor(item *models.LinkedItem) *errs.CredentialError {
	ce := errs.NewCredentialError(item.ItemID, "ITEM_ERROR", "ITEM_LOGIN_REQUIRED", "item requires re-authentication")
	if item.Error != nil {
		ce.ErrorType = item.Error.ErrorType
		ce.Code = item.Error.ErrorCode
		ce.DisplayMessage = item.Error.DisplayMessage
	}
	return ce
}

func failureFor(item *models.LinkedItem, err error) dto.ItemFailure {
	return dto.ItemFailure{
		ItemID:      item.ItemID,
		Institution: item.InstitutionName,
		Reason:      errs.Classify(err).Code,
		Transient:   errs.IsTransient(err),
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errs.IsTransient(err):
		return metrics.ResultTransient
	default:
		return metrics.ResultFailed
	}
}

func containsString(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
