package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestWebhookHandler(p *fakePlaidSvc) *webhookHandlers {
	h := NewWebhookHandlers(testDeps(p))
	h.dispatch = func(fn func()) bool {
		fn()
		return true
	}
	return h
}

func TestPlaidWebhookDispatches(t *testing.T) {
	p := &fakePlaidSvc{}
	h := newTestWebhookHandler(p)

	body := `{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE","item_id":"item-1"}`
	req := httptest.NewRequest(http.MethodPost, "/plaid?token=s3cret", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	h.WebhookRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if len(p.gotHooks) != 1 {
		t.Fatalf("expected one webhook handled, got %d", len(p.gotHooks))
	}
	hook := p.gotHooks[0]
	if hook.WebhookType != "TRANSACTIONS" || hook.WebhookCode != "SYNC_UPDATES_AVAILABLE" || hook.ItemID != "item-1" {
		t.Fatalf("unexpected webhook: %+v", hook)
	}
}

func TestPlaidWebhookRejectsBadToken(t *testing.T) {
	for _, path := range []string{"/plaid", "/plaid?token=wrong"} {
		p := &fakePlaidSvc{}
		h := newTestWebhookHandler(p)

		req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(`{"item_id":"item-1"}`))
		rr := httptest.NewRecorder()
		h.WebhookRoutes().ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", path, rr.Code)
		}
		if len(p.gotHooks) != 0 {
			t.Fatalf("%s: webhook must not be handled", path)
		}
	}
}

func TestPlaidWebhookRequiresItemID(t *testing.T) {
	p := &fakePlaidSvc{}
	h := newTestWebhookHandler(p)

	req := httptest.NewRequest(http.MethodPost, "/plaid?token=s3cret", bytes.NewBufferString(`{"webhook_type":"ITEM"}`))
	rr := httptest.NewRecorder()
	h.WebhookRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestPlaidWebhookRunsInBackground(t *testing.T) {
	p := &fakePlaidSvc{}
	deps := testDeps(p)
	deps.WebhookWorkers = NewWebhookWorkers(2)
	h := NewWebhookHandlers(deps)

	req := httptest.NewRequest(http.MethodPost, "/plaid?token=s3cret", bytes.NewBufferString(`{"webhook_type":"ITEM","webhook_code":"ERROR","item_id":"item-1"}`))
	rr := httptest.NewRecorder()
	h.WebhookRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := deps.WebhookWorkers.Wait(ctx); err != nil {
		t.Fatalf("webhook was not processed: %v", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.gotHooks) != 1 {
		t.Fatalf("expected one webhook handled, got %d", len(p.gotHooks))
	}
}

func TestPlaidWebhookBusyWorkersAskForRedelivery(t *testing.T) {
	p := &fakePlaidSvc{}
	deps := testDeps(p)
	deps.WebhookWorkers = NewWebhookWorkers(1)
	h := NewWebhookHandlers(deps)

	release := make(chan struct{})
	if !deps.WebhookWorkers.TryGo(func() { <-release }) {
		t.Fatalf("expected the first worker slot to be free")
	}

	req := httptest.NewRequest(http.MethodPost, "/plaid?token=s3cret", bytes.NewBufferString(`{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE","item_id":"item-1"}`))
	rr := httptest.NewRecorder()
	h.WebhookRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := deps.WebhookWorkers.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.gotHooks) != 0 {
		t.Fatalf("rejected webhook must not be handled, got %d", len(p.gotHooks))
	}
}

func TestWebhookWorkersWaitHonoursContext(t *testing.T) {
	w := NewWebhookWorkers(1)
	release := make(chan struct{})
	defer close(release)
	w.TryGo(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := w.Wait(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
