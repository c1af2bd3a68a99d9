package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"cloud.google.com/go/firestore"
	"firebase.google.com/go/v4/auth"

	plaidclient "github.com/GregMSThompson/budget-tracker/internal/client/plaid"
	"github.com/GregMSThompson/budget-tracker/internal/config"
	"github.com/GregMSThompson/budget-tracker/internal/crypto"
	"github.com/GregMSThompson/budget-tracker/internal/metrics"
	"github.com/GregMSThompson/budget-tracker/pkg/logger"
)

const metricsNamespace = "budget_tracker"

type Bootstrap struct {
	Log          *slog.Logger
	Firestore    *firestore.Client
	Firebase     *auth.Client
	Vault        crypto.Vault
	PlaidAdapter *plaidclient.Adapter
	Metrics      *metrics.Prometheus

	closers []func() error
}

// Run builds the process-wide clients. The API server and the batch syncer
// share it; withAuth is false for the syncer, which never verifies tokens.
func Run(cfg *config.Config, withAuth bool) (*Bootstrap, error) {
	var err error
	applicationCtx := context.Background()
	bs := new(Bootstrap)

	bs.Log = logger.New(cfg.LogLevel, logger.NewCloudRunHandler)
	bs.Metrics = metrics.NewPrometheus(metricsNamespace)

	bs.Firestore, err = InitFirestore(applicationCtx, cfg.ProjectID)
	if err != nil {
		return bs, err
	}
	bs.closers = append(bs.closers, bs.Firestore.Close)

	if withAuth {
		bs.Firebase, err = InitFirebase(applicationCtx, cfg.ProjectID)
		if err != nil {
			return bs, err
		}
	}

	var closeVault func() error
	bs.Vault, closeVault, err = InitVault(applicationCtx, cfg)
	if err != nil {
		return bs, err
	}
	bs.closers = append(bs.closers, closeVault)

	bs.PlaidAdapter = InitPlaid(cfg, bs.Metrics, bs.Log)
	return bs, nil
}

// Close releases every client Run opened.
func (bs *Bootstrap) Close() error {
	var errList []error
	for i := len(bs.closers) - 1; i >= 0; i-- {
		if err := bs.closers[i](); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}
