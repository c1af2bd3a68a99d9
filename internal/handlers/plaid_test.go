package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/GregMSThompson/budget-tracker/internal/dto"
	"github.com/GregMSThompson/budget-tracker/internal/errs"
	"github.com/GregMSThompson/budget-tracker/internal/middleware"
	"github.com/GregMSThompson/budget-tracker/internal/models"
	"github.com/GregMSThompson/budget-tracker/internal/response"
)

// fakes implementing handler interfaces
type fakePlaidSvc struct {
	mu        sync.Mutex
	linkToken string
	item      *models.LinkedItem
	syncRes   dto.SyncResult
	removed   int
	err       error

	gotLinkItemID string
	gotExchange   dto.LinkItemRequest
	gotUID        string
	gotItemID     string
	gotHooks      []dto.PlaidWebhook
}

func (f *fakePlaidSvc) CreateLinkToken(ctx context.Context, uid, itemID string) (string, error) {
	f.gotUID, f.gotLinkItemID = uid, itemID
	return f.linkToken, f.err
}
func (f *fakePlaidSvc) ExchangePublicToken(ctx context.Context, uid string, req dto.LinkItemRequest) (*models.LinkedItem, error) {
	f.gotUID, f.gotExchange = uid, req
	return f.item, f.err
}
func (f *fakePlaidSvc) ListItems(ctx context.Context, uid string) ([]*models.LinkedItem, error) {
	return []*models.LinkedItem{f.item}, f.err
}
func (f *fakePlaidSvc) UnlinkItem(ctx context.Context, uid, itemID string) (int, error) {
	f.gotUID, f.gotItemID = uid, itemID
	return f.removed, f.err
}
func (f *fakePlaidSvc) MarkReauthorized(ctx context.Context, uid, itemID string) error {
	f.gotUID, f.gotItemID = uid, itemID
	return f.err
}
func (f *fakePlaidSvc) SyncAll(ctx context.Context, uid string) (dto.SyncResult, error) {
	f.gotUID = uid
	return f.syncRes, f.err
}
func (f *fakePlaidSvc) SyncItem(ctx context.Context, uid, itemID string) (dto.SyncResult, error) {
	f.gotUID, f.gotItemID = uid, itemID
	return f.syncRes, f.err
}
func (f *fakePlaidSvc) HandleWebhook(ctx context.Context, hook dto.PlaidWebhook) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotHooks = append(f.gotHooks, hook)
	return f.err
}

func testDeps(p *fakePlaidSvc) *Deps {
	log := slog.New(slog.NewTextHandler(testDiscard{}, nil))
	return &Deps{
		Log:             log,
		ResponseHandler: response.New(log),
		PlaidSvc:        p,
		WebhookSecret:   "s3cret",
	}
}

func ctxWithUID(ctx context.Context) context.Context {
	return context.WithValue(ctx, middleware.UIDKey, "uid-123")
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder, data any) {
	t.Helper()
	resp := struct {
		Success bool
		Data    any
	}{Data: data}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v, body=%s", err, rr.Body.String())
	}
}

func TestCreateLinkTokenHandler(t *testing.T) {
	p := &fakePlaidSvc{linkToken: "link-abc"}
	h := NewPlaidHandlers(testDeps(p))

	req := httptest.NewRequest(http.MethodPost, "/link-token", nil).WithContext(ctxWithUID(context.Background()))
	rr := httptest.NewRecorder()
	h.PlaidRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	var data map[string]string
	decodeEnvelope(t, rr, &data)
	if data["linkToken"] != "link-abc" || p.gotLinkItemID != "" {
		t.Fatalf("unexpected response: %+v (itemID=%q)", data, p.gotLinkItemID)
	}
}

func TestCreateLinkTokenUpdateModeHandler(t *testing.T) {
	p := &fakePlaidSvc{linkToken: "link-abc"}
	h := NewPlaidHandlers(testDeps(p))

	req := httptest.NewRequest(http.MethodPost, "/link-token", bytes.NewBufferString(`{"itemId":"item-1"}`)).WithContext(ctxWithUID(context.Background()))
	rr := httptest.NewRecorder()
	h.PlaidRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || p.gotLinkItemID != "item-1" {
		t.Fatalf("status = %d, itemID=%q", rr.Code, p.gotLinkItemID)
	}
}

func TestLinkItemHandler(t *testing.T) {
	p := &fakePlaidSvc{item: &models.LinkedItem{ItemID: "item-1", InstitutionName: "Chase"}}
	h := NewPlaidHandlers(testDeps(p))

	body := `{"publicToken":"pub-123","institutionId":"ins_3","institutionName":"Chase"}`
	req := httptest.NewRequest(http.MethodPost, "/items", bytes.NewBufferString(body)).WithContext(ctxWithUID(context.Background()))
	rr := httptest.NewRecorder()
	h.PlaidRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if p.gotUID != "uid-123" || p.gotExchange.PublicToken != "pub-123" || p.gotExchange.InstitutionName != "Chase" {
		t.Fatalf("exchange called with uid=%q req=%+v", p.gotUID, p.gotExchange)
	}
}

func TestLinkItemHandlerInvalidJSON(t *testing.T) {
	p := &fakePlaidSvc{}
	h := NewPlaidHandlers(testDeps(p))

	req := httptest.NewRequest(http.MethodPost, "/items", bytes.NewBufferString("not-json")).WithContext(ctxWithUID(context.Background()))
	rr := httptest.NewRecorder()
	h.PlaidRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestSyncAllHandler(t *testing.T) {
	p := &fakePlaidSvc{syncRes: dto.SyncResult{
		SyncCounts:  dto.SyncCounts{Added: 3},
		ItemsSynced: 1,
		Failures:    []dto.ItemFailure{{ItemID: "item-2", Reason: "login_required"}},
	}}
	h := NewPlaidHandlers(testDeps(p))

	req := httptest.NewRequest(http.MethodPost, "/sync", nil).WithContext(ctxWithUID(context.Background()))
	rr := httptest.NewRecorder()
	h.PlaidRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	var data map[string]any
	decodeEnvelope(t, rr, &data)
	if data["added"] != float64(3) || data["itemsSynced"] != float64(1) {
		t.Fatalf("unexpected body: %+v", data)
	}
	if failures, _ := data["failures"].([]any); len(failures) != 1 {
		t.Fatalf("expected one failure, got %+v", data["failures"])
	}
}

func TestSyncAllHandlerNothingToSync(t *testing.T) {
	p := &fakePlaidSvc{err: errs.NewNothingToSyncError("no linked accounts to sync")}
	h := NewPlaidHandlers(testDeps(p))

	req := httptest.NewRequest(http.MethodPost, "/sync", nil).WithContext(ctxWithUID(context.Background()))
	rr := httptest.NewRecorder()
	h.PlaidRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var body response.ErrorResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body.Code != "nothing_to_sync" {
		t.Fatalf("unexpected code %q", body.Code)
	}
}

func TestItemRoutesPassItemID(t *testing.T) {
	tests := []struct {
		method, path string
	}{
		{http.MethodPost, "/items/item-9/sync"},
		{http.MethodPost, "/items/item-9/reauthorized"},
		{http.MethodDelete, "/items/item-9"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			p := &fakePlaidSvc{}
			h := NewPlaidHandlers(testDeps(p))

			req := httptest.NewRequest(tt.method, tt.path, nil).WithContext(ctxWithUID(context.Background()))
			rr := httptest.NewRecorder()
			h.PlaidRoutes().ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
			}
			if p.gotUID != "uid-123" || p.gotItemID != "item-9" {
				t.Fatalf("service called with uid=%q item=%q", p.gotUID, p.gotItemID)
			}
		})
	}
}

func TestSyncItemHandlerLoginRequired(t *testing.T) {
	p := &fakePlaidSvc{err: errs.NewCredentialError("item-9", "ITEM_ERROR", "ITEM_LOGIN_REQUIRED", "login")}
	h := NewPlaidHandlers(testDeps(p))

	req := httptest.NewRequest(http.MethodPost, "/items/item-9/sync", nil).WithContext(ctxWithUID(context.Background()))
	rr := httptest.NewRecorder()
	h.PlaidRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
}

// discard logger output in tests
type testDiscard struct{}

func (testDiscard) Write(p []byte) (int, error) { return len(p), nil }
