package bootstrap

import (
	"log/slog"

	plaidclient "github.com/GregMSThompson/budget-tracker/internal/client/plaid"
	"github.com/GregMSThompson/budget-tracker/internal/config"
	"github.com/GregMSThompson/budget-tracker/internal/metrics"
)

func InitPlaid(cfg *config.Config, rec metrics.Recorder, log *slog.Logger) *plaidclient.Adapter {
	return plaidclient.NewAdapter(plaidclient.Options{
		ClientID:     cfg.PlaidClientID,
		Secret:       cfg.PlaidSecret,
		Environment:  cfg.PlaidEnvironment,
		CountryCodes: cfg.PlaidCountryCodes,
		WebhookURL:   cfg.PlaidWebhookURL,
		PageSize:     cfg.PlaidPageSize,
		PageTimeout:  cfg.PlaidPageTimeout,
		RateLimit:    cfg.PlaidRateLimit,
		Metrics:      rec,
		Log:          log,
	})
}
