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

type budgetService interface {
	ListBudgets(ctx context.Context, uid string, q dto.BudgetQuery) ([]*dto.BudgetWithSpending, error)
	GetBudget(ctx context.Context, uid, budgetID string) (*dto.BudgetWithSpending, error)
	CreateBudget(ctx context.Context, uid string, req dto.CreateBudgetRequest) (*dto.BudgetWithSpending, error)
	UpdateBudget(ctx context.Context, uid, budgetID string, req dto.UpdateBudgetRequest) (*dto.BudgetWithSpending, error)
	DeleteBudget(ctx context.Context, uid, budgetID string) error
}

type budgetHandlers struct {
	ResponseHandler response.ResponseHandler
	BudgetSvc       budgetService
}

func NewBudgetHandlers(deps *Deps) *budgetHandlers {
	return &budgetHandlers{
		ResponseHandler: deps.ResponseHandler,
		BudgetSvc:       deps.BudgetSvc,
	}
}

func (h *budgetHandlers) BudgetRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListBudgets)
	r.Post("/", h.CreateBudget)
	r.Get("/{budgetId}", h.GetBudget)
	r.Put("/{budgetId}", h.UpdateBudget)
	r.Delete("/{budgetId}", h.DeleteBudget)
	return r
}

func (h *budgetHandlers) ListBudgets(w http.ResponseWriter, r *http.Request) {
	params := newQueryParams(r)
	q := dto.BudgetQuery{
		IsActive:  params.Bool("isActive"),
		StartDate: params.String("from"),
		EndDate:   params.String("to"),
	}
	if v := params.String("category"); v != nil {
		c := models.Category(*v)
		q.Category = &c
	}
	if v := params.String("period"); v != nil {
		p := models.BudgetPeriod(*v)
		q.Period = &p
	}
	if err := params.Err(); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	uid := middleware.UID(r.Context())
	budgets, err := h.BudgetSvc.ListBudgets(r.Context(), uid, q)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, budgets)
}

func (h *budgetHandlers) GetBudget(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UID(r.Context())
	b, err := h.BudgetSvc.GetBudget(r.Context(), uid, chi.URLParam(r, "budgetId"))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, b)
}

func (h *budgetHandlers) CreateBudget(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateBudgetRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	uid := middleware.UID(r.Context())
	b, err := h.BudgetSvc.CreateBudget(r.Context(), uid, req)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusCreated, b)
}

func (h *budgetHandlers) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateBudgetRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	uid := middleware.UID(r.Context())
	b, err := h.BudgetSvc.UpdateBudget(r.Context(), uid, chi.URLParam(r, "budgetId"), req)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, b)
}

func (h *budgetHandlers) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UID(r.Context())
	if err := h.BudgetSvc.DeleteBudget(r.Context(), uid, chi.URLParam(r, "budgetId")); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, nil)
}
