package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/GregMSThompson/budget-tracker/internal/bootstrap"
	"github.com/GregMSThompson/budget-tracker/internal/config"
	"github.com/GregMSThompson/budget-tracker/internal/errs"
	"github.com/GregMSThompson/budget-tracker/internal/services"
	"github.com/GregMSThompson/budget-tracker/internal/store"
	"github.com/GregMSThompson/budget-tracker/pkg/logger"
)

func exitOnError(message string, err error, log *slog.Logger) {
	if err != nil {
		log.Error(message, "error", err)
		os.Exit(1)
	}
}

// syncer runs a full sync for every user id given on the command line.
// Per-item failures are reported in the log; only failures that stop a
// user's sync from running at all set a non-zero exit status.
func main() {
	uids := os.Args[1:]
	if len(uids) == 0 {
		exitOnError("usage", errors.New("syncer <uid>..."), slog.Default())
	}

	cfg, err := config.New()
	exitOnError("config invalid", err, slog.Default())
	bs, err := bootstrap.Run(cfg, false)
	if err != nil {
		_ = bs.Close()
	}
	exitOnError("bootstrap failed", err, bs.Log)
	defer bs.Close()

	istore := store.NewItemStore(bs.Firestore)
	acstore := store.NewAccountStore(bs.Firestore)
	tstore := store.NewTransactionStore(bs.Firestore)

	syserv := services.NewSyncService(services.SyncDeps{
		Plaid:       bs.PlaidAdapter,
		Items:       istore,
		Accounts:    acstore,
		Txs:         tstore,
		Registry:    services.NewAccountRegistry(acstore, istore, bs.PlaidAdapter),
		Reconciler:  services.NewLedgerReconciler(bs.PlaidAdapter, istore, acstore, tstore, bs.Metrics, cfg.SyncLookbackDays),
		Vault:       bs.Vault,
		Metrics:     bs.Metrics,
		Concurrency: cfg.SyncConcurrency,
	})

	ctx := logger.ToContext(context.Background(), bs.Log)
	failed := false
	for _, uid := range uids {
		log, uctx := logger.With(ctx, "uid", uid)
		res, err := syserv.SyncAll(uctx, uid)
		var nothing *errs.NothingToSyncError
		switch {
		case errors.As(err, &nothing):
			log.Info("no linked items")
		case err != nil:
			log.Error("sync failed", "error", err)
			failed = true
		default:
			log.Info("sync complete",
				"items", res.ItemsSynced,
				"added", res.Added,
				"modified", res.Modified,
				"removed", res.Removed,
				"failures", len(res.Failures),
			)
		}
	}
	if failed {
		bs.Close()
		os.Exit(1)
	}
}
