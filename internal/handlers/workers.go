package handlers

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const defaultWebhookWorkers = 8

// WebhookWorkers runs acknowledged webhooks in the background, at most limit
// at a time.
type WebhookWorkers struct {
	g errgroup.Group
}

func NewWebhookWorkers(limit int) *WebhookWorkers {
	if limit < 1 {
		limit = defaultWebhookWorkers
	}
	w := &WebhookWorkers{}
	w.g.SetLimit(limit)
	return w
}

// TryGo starts fn when a slot is free and reports whether it did.
func (w *WebhookWorkers) TryGo(fn func()) bool {
	return w.g.TryGo(func() error {
		fn()
		return nil
	})
}

// Wait blocks until running work has finished or ctx is done. Callers stop
// submitting work before calling it.
func (w *WebhookWorkers) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		_ = w.g.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
