package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GregMSThompson/budget-tracker/internal/bootstrap"
	"github.com/GregMSThompson/budget-tracker/internal/config"
	"github.com/GregMSThompson/budget-tracker/internal/handlers"
	"github.com/GregMSThompson/budget-tracker/internal/middleware"
	"github.com/GregMSThompson/budget-tracker/internal/response"
	"github.com/GregMSThompson/budget-tracker/internal/router"
	"github.com/GregMSThompson/budget-tracker/internal/services"
	"github.com/GregMSThompson/budget-tracker/internal/store"
)

const shutdownTimeout = 30 * time.Second

func exitOnError(message string, err error, log *slog.Logger) {
	if err != nil {
		log.Error(message, "error", err)
		os.Exit(1)
	}
}

func main() {
	// bootstrap
	cfg, err := config.New()
	exitOnError("config invalid", err, slog.Default())
	bs, err := bootstrap.Run(cfg, true)
	if err != nil {
		_ = bs.Close()
	}
	exitOnError("bootstrap failed", err, bs.Log)
	defer bs.Close()

	// stores
	ustore := store.NewUserStore(bs.Firestore)
	istore := store.NewItemStore(bs.Firestore)
	acstore := store.NewAccountStore(bs.Firestore)
	tstore := store.NewTransactionStore(bs.Firestore)
	bustore := store.NewBudgetStore(bs.Firestore)

	// services
	registry := services.NewAccountRegistry(acstore, istore, bs.PlaidAdapter)
	reconciler := services.NewLedgerReconciler(bs.PlaidAdapter, istore, acstore, tstore, bs.Metrics, cfg.SyncLookbackDays)
	userv := services.NewUserService(ustore)
	syserv := services.NewSyncService(services.SyncDeps{
		Plaid:       bs.PlaidAdapter,
		Items:       istore,
		Accounts:    acstore,
		Txs:         tstore,
		Registry:    registry,
		Reconciler:  reconciler,
		Vault:       bs.Vault,
		Metrics:     bs.Metrics,
		Concurrency: cfg.SyncConcurrency,
	})
	tserv := services.NewTransactionService(tstore, acstore)
	buserv := services.NewBudgetService(bustore, tstore)

	// response handler
	rh := response.New(bs.Log)

	// dependancies
	deps := new(handlers.Deps)
	deps.Log = bs.Log
	deps.ResponseHandler = rh
	deps.UserSvc = userv
	deps.PlaidSvc = syserv
	deps.AccountSvc = registry
	deps.TransactionSvc = tserv
	deps.BudgetSvc = buserv
	deps.WebhookSecret = cfg.PlaidWebhookSecret
	deps.WebhookWorkers = handlers.NewWebhookWorkers(cfg.WebhookConcurrency)

	// middleware
	mw := router.Middlewares{
		Logger: middleware.NewLoggerMiddleware(bs.Log).LoggerMiddleware,
		Auth:   middleware.NewMiddleware(bs.Firebase, rh).FirebaseAuth,
	}

	// router
	r := router.NewRouter(deps, mw, bs.Metrics.Handler())
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		bs.Log.Info("server listening", "port", cfg.Port)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
	case <-ctx.Done():
		bs.Log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
		if werr := deps.WebhookWorkers.Wait(shutdownCtx); werr != nil {
			bs.Log.Warn("webhooks still running at shutdown", "error", werr)
		}
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		bs.Log.Error("server stopped", "error", err)
		bs.Close()
		os.Exit(1)
	}
}
