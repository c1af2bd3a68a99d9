package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GregMSThompson/budget-tracker/internal/dto"
	"github.com/GregMSThompson/budget-tracker/internal/middleware"
	"github.com/GregMSThompson/budget-tracker/internal/models"
	"github.com/GregMSThompson/budget-tracker/internal/response"
)

type plaidService interface {
	CreateLinkToken(ctx context.Context, uid, itemID string) (string, error)
	ExchangePublicToken(ctx context.Context, uid string, req dto.LinkItemRequest) (*models.LinkedItem, error)
	ListItems(ctx context.Context, uid string) ([]*models.LinkedItem, error)
	UnlinkItem(ctx context.Context, uid, itemID string) (int, error)
	MarkReauthorized(ctx context.Context, uid, itemID string) error
	SyncAll(ctx context.Context, uid string) (dto.SyncResult, error)
	SyncItem(ctx context.Context, uid, itemID string) (dto.SyncResult, error)
	HandleWebhook(ctx context.Context, hook dto.PlaidWebhook) error
}

type plaidHandlers struct {
	ResponseHandler response.ResponseHandler
	PlaidSvc        plaidService
}

func NewPlaidHandlers(deps *Deps) *plaidHandlers {
	return &plaidHandlers{
		ResponseHandler: deps.ResponseHandler,
		PlaidSvc:        deps.PlaidSvc,
	}
}

func (h *plaidHandlers) PlaidRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/link-token", h.CreateLinkToken)
	r.Route("/items", func(r chi.Router) {
		r.Post("/", h.LinkItem)
		r.Get("/", h.ListItems)
		r.Delete("/{itemId}", h.UnlinkItem)
		r.Post("/{itemId}/sync", h.SyncItem)
		r.Post("/{itemId}/reauthorized", h.MarkReauthorized)
	})
	r.Post("/sync", h.SyncAll)
	return r
}

func (h *plaidHandlers) CreateLinkToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ItemID string `json:"itemId,omitempty"` // set for update mode
	}
	if err := decodeJSON(r, &body, true); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	uid := middleware.UID(r.Context())
	linkToken, err := h.PlaidSvc.CreateLinkToken(r.Context(), uid, body.ItemID)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, map[string]string{"linkToken": linkToken})
}

func (h *plaidHandlers) LinkItem(w http.ResponseWriter, r *http.Request) {
	var req dto.LinkItemRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	uid := middleware.UID(r.Context())
	item, err := h.PlaidSvc.ExchangePublicToken(r.Context(), uid, req)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusCreated, item)
}

func (h *plaidHandlers) ListItems(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UID(r.Context())

	items, err := h.PlaidSvc.ListItems(r.Context(), uid)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, items)
}

func (h *plaidHandlers) UnlinkItem(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UID(r.Context())
	itemID := chi.URLParam(r, "itemId")

	removed, err := h.PlaidSvc.UnlinkItem(r.Context(), uid, itemID)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, map[string]int{"transactionsRemoved": removed})
}

func (h *plaidHandlers) MarkReauthorized(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UID(r.Context())
	itemID := chi.URLParam(r, "itemId")

	if err := h.PlaidSvc.MarkReauthorized(r.Context(), uid, itemID); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, nil)
}

func (h *plaidHandlers) SyncAll(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UID(r.Context())

	result, err := h.PlaidSvc.SyncAll(r.Context(), uid)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, result)
}

func (h *plaidHandlers) SyncItem(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UID(r.Context())
	itemID := chi.URLParam(r, "itemId")

	result, err := h.PlaidSvc.SyncItem(r.Context(), uid, itemID)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, result)
}
