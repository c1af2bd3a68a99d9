package plaidclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/plaid/plaid-go/v24/plaid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/GregMSThompson/budget-tracker/internal/dto"
	"github.com/GregMSThompson/budget-tracker/internal/errs"
	"github.com/GregMSThompson/budget-tracker/internal/metrics"
)

const (
	serviceName   = "plaid"
	maxLookback   = 730
	clientName    = "Budget Tracker"
	clientLang    = "en"
	breakerTrips  = 5
	breakerWindow = time.Minute
	breakerCool   = 30 * time.Second
)

type Options struct {
	ClientID     string
	Secret       string
	Environment  dto.PlaidEnvironment
	CountryCodes []string
	WebhookURL   string
	PageSize     int32
	PageTimeout  time.Duration
	RateLimit    float64 // requests per second, 0 disables
	Metrics      metrics.Recorder
	Log          *slog.Logger
}

// Adapter wraps the Plaid API. Every call goes through a client-side rate
// limiter and a shared circuit breaker, and every error it returns has been
// classified into an internal/errs type.
type Adapter struct {
	client       *plaid.APIClient
	breaker      *gobreaker.CircuitBreaker
	limiter      *rate.Limiter
	countryCodes []plaid.CountryCode
	webhookURL   string
	pageSize     int32
	pageTimeout  time.Duration
}

func NewAdapter(opts Options) *Adapter {
	cfg := plaid.NewConfiguration()
	cfg.AddDefaultHeader("PLAID-CLIENT-ID", opts.ClientID)
	cfg.AddDefaultHeader("PLAID-SECRET", opts.Secret)
	cfg.UseEnvironment(toPlaidEnv(opts.Environment))

	rec := opts.Metrics
	if rec == nil {
		rec = metrics.NoOp{}
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(1, int(opts.RateLimit)))
	}

	codes := make([]plaid.CountryCode, 0, len(opts.CountryCodes))
	for _, c := range opts.CountryCodes {
		codes = append(codes, plaid.CountryCode(c))
	}
	if len(codes) == 0 {
		codes = append(codes, plaid.CountryCode("US"))
	}

	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 500
	}

	return &Adapter{
		client:       plaid.NewAPIClient(cfg),
		breaker:      newBreaker(rec, log),
		limiter:      limiter,
		countryCodes: codes,
		webhookURL:   opts.WebhookURL,
		pageSize:     pageSize,
		pageTimeout:  opts.PageTimeout,
	}
}

func newBreaker(rec metrics.Recorder, log *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        serviceName,
		MaxRequests: 1,
		Interval:    breakerWindow,
		Timeout:     breakerCool,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTrips
		},
		// Only outages count against the breaker; a revoked credential on one
		// item says nothing about Plaid's health.
		IsSuccessful: func(err error) bool {
			return err == nil || !errs.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			rec.BreakerState(name, to.String())
		},
	})
}

// call runs fn behind the limiter and breaker. fn must return an already
// classified error.
func call[T any](ctx context.Context, a *Adapter, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := a.limiter.Wait(ctx); err != nil {
		return zero, errs.NewExternalServiceError(serviceName, "rate limiter", true, err)
	}
	out, err := a.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, errs.NewExternalServiceError(serviceName, "circuit open", true, err)
		}
		return zero, err
	}
	return out.(T), nil
}

// CreateLinkToken returns a Link token for uid. When accessToken is set the
// token opens Link in update mode to repair that item's credentials.
func (a *Adapter) CreateLinkToken(ctx context.Context, uid, accessToken string) (string, error) {
	req := plaid.NewLinkTokenCreateRequest(
		clientName,
		clientLang,
		a.countryCodes,
		plaid.LinkTokenCreateRequestUser{ClientUserId: uid},
	)
	if accessToken != "" {
		req.SetAccessToken(accessToken)
	} else {
		req.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})
	}
	if a.webhookURL != "" {
		req.SetWebhook(a.webhookURL)
	}

	return call(ctx, a, func(ctx context.Context) (string, error) {
		resp, httpResp, err := a.client.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*req).Execute()
		if err != nil {
			return "", classify(httpResp, err)
		}
		return resp.GetLinkToken(), nil
	})
}

type exchange struct {
	itemID, accessToken string
}

func (a *Adapter) ExchangePublicToken(ctx context.Context, publicToken string) (itemID, accessToken string, err error) {
	req := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	out, err := call(ctx, a, func(ctx context.Context) (exchange, error) {
		resp, httpResp, err := a.client.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*req).Execute()
		if err != nil {
			return exchange{}, classify(httpResp, err)
		}
		return exchange{itemID: resp.GetItemId(), accessToken: resp.GetAccessToken()}, nil
	})
	return out.itemID, out.accessToken, err
}

func (a *Adapter) GetAccounts(ctx context.Context, accessToken string) ([]dto.ExternalAccount, error) {
	req := plaid.NewAccountsGetRequest(accessToken)
	return call(ctx, a, func(ctx context.Context) ([]dto.ExternalAccount, error) {
		resp, httpResp, err := a.client.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*req).Execute()
		if err != nil {
			return nil, classify(httpResp, err)
		}
		accounts := make([]dto.ExternalAccount, 0, len(resp.GetAccounts()))
		for _, acc := range resp.GetAccounts() {
			accounts = append(accounts, toExternalAccount(acc))
		}
		return accounts, nil
	})
}

// RemoveItem revokes the access token at Plaid.
func (a *Adapter) RemoveItem(ctx context.Context, accessToken string) error {
	req := plaid.NewItemRemoveRequest(accessToken)
	_, err := call(ctx, a, func(ctx context.Context) (struct{}, error) {
		_, httpResp, err := a.client.PlaidApi.ItemRemove(ctx).ItemRemoveRequest(*req).Execute()
		if err != nil {
			return struct{}{}, classify(httpResp, err)
		}
		return struct{}{}, nil
	})
	return err
}

// FetchInitial requests the first changeset page for an item that has never
// been synced. The window is passed to Plaid as days_requested, which bounds
// every page of the initial snapshot, not only this one.
func (a *Adapter) FetchInitial(ctx context.Context, accessToken string, start, end time.Time) (dto.SyncPage, error) {
	if end.Before(start) {
		return dto.SyncPage{}, errs.NewValidationError("initial window ends before it starts")
	}
	return a.syncPage(ctx, accessToken, "", lookbackDays(start, end))
}

// lookbackDays converts [start, end] into Plaid's days_requested, counting
// both ends and capped at what Plaid serves.
func lookbackDays(start, end time.Time) int32 {
	days := int32(end.Sub(start).Hours()/24) + 1
	return max(1, min(days, maxLookback))
}

// FetchIncremental requests the changeset after cursor.
func (a *Adapter) FetchIncremental(ctx context.Context, accessToken, cursor string) (dto.SyncPage, error) {
	if cursor == "" {
		return dto.SyncPage{}, errs.NewValidationError("incremental fetch requires a cursor")
	}
	return a.syncPage(ctx, accessToken, cursor, 0)
}

func (a *Adapter) syncPage(ctx context.Context, accessToken, cursor string, days int32) (dto.SyncPage, error) {
	req := plaid.NewTransactionsSyncRequest(accessToken)
	if cursor != "" {
		req.SetCursor(cursor)
	}
	req.SetCount(a.pageSize)
	opts := plaid.NewTransactionsSyncRequestOptions()
	opts.SetIncludePersonalFinanceCategory(true)
	if days > 0 {
		opts.SetDaysRequested(days)
	}
	req.SetOptions(*opts)

	return call(ctx, a, func(ctx context.Context) (dto.SyncPage, error) {
		if a.pageTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.pageTimeout)
			defer cancel()
		}
		resp, httpResp, err := a.client.PlaidApi.TransactionsSync(ctx).TransactionsSyncRequest(*req).Execute()
		if err != nil {
			return dto.SyncPage{}, classify(httpResp, err)
		}
		return toSyncPage(resp), nil
	})
}

func toPlaidEnv(env dto.PlaidEnvironment) plaid.Environment {
	switch env {
	case dto.PlaidSandbox:
		return plaid.Sandbox
	default: // dto.PlaidProduction
		return plaid.Production
	}
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
