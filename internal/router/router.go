package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/GregMSThompson/budget-tracker/internal/handlers"
)

type Middlewares struct {
	Logger func(http.Handler) http.Handler
	Auth   func(http.Handler) http.Handler
}

// NewRouter mounts the authenticated API under /api next to the Plaid
// webhook, health and metrics endpoints. metrics may be nil.
func NewRouter(deps *handlers.Deps, mw Middlewares, metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	if mw.Logger != nil {
		r.Use(mw.Logger)
	}
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	wh := handlers.NewWebhookHandlers(deps)
	r.Mount("/webhooks", wh.WebhookRoutes())

	ush := handlers.NewUserHandlers(deps)
	plh := handlers.NewPlaidHandlers(deps)
	ach := handlers.NewAccountHandlers(deps)
	txh := handlers.NewTransactionHandlers(deps)
	bdh := handlers.NewBudgetHandlers(deps)

	r.Route("/api", func(r chi.Router) {
		if mw.Auth != nil {
			r.Use(mw.Auth)
		}
		r.Mount("/users", ush.UserRoutes())
		r.Mount("/plaid", plh.PlaidRoutes())
		r.Mount("/accounts", ach.AccountRoutes())
		r.Mount("/transactions", txh.TransactionRoutes())
		r.Mount("/budgets", bdh.BudgetRoutes())
	})
	return r
}
