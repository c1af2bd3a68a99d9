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

type transactionService interface {
	ListTransactions(ctx context.Context, uid string, q dto.TransactionQuery, page dto.Pagination) (dto.TransactionPage, error)
	GetTransaction(ctx context.Context, uid, id string) (*models.Transaction, error)
	CreateManual(ctx context.Context, uid string, req dto.CreateTransactionRequest) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, uid, id string, req dto.UpdateTransactionRequest) (*models.Transaction, error)
	DeleteTransaction(ctx context.Context, uid, id string) error
}

type transactionHandlers struct {
	ResponseHandler response.ResponseHandler
	TransactionSvc  transactionService
}

func NewTransactionHandlers(deps *Deps) *transactionHandlers {
	return &transactionHandlers{
		ResponseHandler: deps.ResponseHandler,
		TransactionSvc:  deps.TransactionSvc,
	}
}

func (h *transactionHandlers) TransactionRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListTransactions)
	r.Post("/", h.CreateTransaction)
	r.Get("/{transactionId}", h.GetTransaction)
	r.Patch("/{transactionId}", h.UpdateTransaction)
	r.Put("/{transactionId}", h.UpdateTransaction)
	r.Delete("/{transactionId}", h.DeleteTransaction)
	return r
}

// ListTransactions supports ?category, type, accountId, from, to, minAmount,
// maxAmount, search, sort (date|amount|name), order (asc|desc), page, limit.
func (h *transactionHandlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	params := newQueryParams(r)
	q := dto.TransactionQuery{
		AccountID: params.String("accountId"),
		DateFrom:  params.String("from"),
		DateTo:    params.String("to"),
		MinAmount: params.Float("minAmount"),
		MaxAmount: params.Float("maxAmount"),
		Search:    params.String("search"),
		OrderBy:   "date",
		Desc:      true,
	}
	if v := params.String("category"); v != nil {
		c := models.Category(*v)
		q.Category = &c
	}
	if v := params.String("type"); v != nil {
		t := models.TransactionType(*v)
		q.Type = &t
	}
	if v := params.String("sort"); v != nil {
		q.OrderBy = *v
	}
	if v := params.String("order"); v != nil {
		q.Desc = *v != "asc"
	}
	page := dto.Pagination{Page: params.Int("page", 1), Limit: params.Int("limit", 0)}
	if err := params.Err(); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	uid := middleware.UID(r.Context())
	result, err := h.TransactionSvc.ListTransactions(r.Context(), uid, q, page)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, result)
}

func (h *transactionHandlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UID(r.Context())
	tx, err := h.TransactionSvc.GetTransaction(r.Context(), uid, chi.URLParam(r, "transactionId"))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, tx)
}

func (h *transactionHandlers) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateTransactionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	uid := middleware.UID(r.Context())
	tx, err := h.TransactionSvc.CreateManual(r.Context(), uid, req)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusCreated, tx)
}

func (h *transactionHandlers) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateTransactionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	uid := middleware.UID(r.Context())
	tx, err := h.TransactionSvc.UpdateTransaction(r.Context(), uid, chi.URLParam(r, "transactionId"), req)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, tx)
}

func (h *transactionHandlers) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UID(r.Context())
	if err := h.TransactionSvc.DeleteTransaction(r.Context(), uid, chi.URLParam(r, "transactionId")); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, nil)
}
