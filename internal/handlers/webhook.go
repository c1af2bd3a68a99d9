package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GregMSThompson/budget-tracker/internal/dto"
	"github.com/GregMSThompson/budget-tracker/internal/response"
	"github.com/GregMSThompson/budget-tracker/pkg/logger"
)

const defaultWebhookTimeout = 2 * time.Minute

type webhookHandlers struct {
	ResponseHandler response.ResponseHandler
	PlaidSvc        plaidService
	Secret          string
	Timeout         time.Duration

	// dispatch starts the webhook work and reports false when no worker is
	// free.
	dispatch func(func()) bool
}

func NewWebhookHandlers(deps *Deps) *webhookHandlers {
	timeout := deps.WebhookTimeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	workers := deps.WebhookWorkers
	if workers == nil {
		workers = NewWebhookWorkers(defaultWebhookWorkers)
	}
	return &webhookHandlers{
		ResponseHandler: deps.ResponseHandler,
		PlaidSvc:        deps.PlaidSvc,
		Secret:          deps.WebhookSecret,
		Timeout:         timeout,
		dispatch:        workers.TryGo,
	}
}

func (h *webhookHandlers) WebhookRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/plaid", h.PlaidWebhook)
	return r
}

// PlaidWebhook acknowledges a Plaid webhook right away and processes it in
// the background, so a long sync never makes Plaid retry the delivery. When
// every worker is busy it answers 503 and Plaid redelivers later.
func (h *webhookHandlers) PlaidWebhook(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if h.Secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.Secret)) != 1 {
		h.ResponseHandler.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "invalid webhook token")
		return
	}

	var hook dto.PlaidWebhook
	if err := decodeJSON(r, &hook, false); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	if hook.ItemID == "" {
		h.ResponseHandler.WriteError(w, r, http.StatusBadRequest, "invalid_input", "item_id is required")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	started := h.dispatch(func() {
		ctx, cancel := context.WithTimeout(ctx, h.Timeout)
		defer cancel()
		if err := h.PlaidSvc.HandleWebhook(ctx, hook); err != nil {
			logger.FromContext(ctx).Error("webhook processing failed",
				"error", err,
				"type", hook.WebhookType,
				"code", hook.WebhookCode,
				"item_id", hook.ItemID,
			)
		}
	})
	if !started {
		logger.FromContext(r.Context()).Warn("webhook rejected, workers busy", "item_id", hook.ItemID)
		h.ResponseHandler.WriteError(w, r, http.StatusServiceUnavailable, "service_unavailable", "webhook workers busy")
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, nil)
}
