// Package metrics records sync activity. The API process exposes it on
// /metrics; tests and the batch syncer use NoOp.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultSuccess   = "success"
	ResultTransient = "transient"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped"
)

type Recorder interface {
	ItemSynced(result string, duration time.Duration)
	EntriesApplied(op string, n int)
	EntrySkipped(reason string)
	PageFetched(initial bool)
	BreakerState(name, state string)
}

type NoOp struct{}

func (NoOp) ItemSynced(string, time.Duration) {}
func (NoOp) EntriesApplied(string, int) {}
func (NoOp) EntrySkipped(string) {}
func (NoOp) PageFetched(bool) {}
func (NoOp) BreakerState(string, string) {}

type Prometheus struct {
	registry     *prometheus.Registry
	itemRuns     *prometheus.CounterVec
	itemLatency  *prometheus.HistogramVec
	entries      *prometheus.CounterVec
	skipped      *prometheus.CounterVec
	pages        *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

func NewPrometheus(namespace string) *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		itemRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_item_runs_total",
				Help:      "Linked item sync passes by result",
			},
			[]string{"result"},
		),
		itemLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_item_duration_seconds",
				Help:      "Duration of one linked item sync pass",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"result"},
		),
		entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_entries_applied_total",
				Help:      "Ledger mutations applied by sync, by operation",
			},
			[]string{"op"},
		),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_entries_skipped_total",
				Help:      "Changeset entries skipped by sync, by reason",
			},
			[]string{"reason"},
		),
		pages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_pages_fetched_total",
				Help:      "Changeset pages fetched from the aggregator",
			},
			[]string{"kind"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "aggregator_circuit_state",
				Help:      "Aggregator circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
	}
	p.registry.MustRegister(p.itemRuns, p.itemLatency, p.entries, p.skipped, p.pages, p.breakerState)
	return p
}

func (p *Prometheus) ItemSynced(result string, duration time.Duration) {
	p.itemRuns.WithLabelValues(result).Inc()
	p.itemLatency.WithLabelValues(result).Observe(duration.Seconds())
}

func (p *Prometheus) EntriesApplied(op string, n int) {
	if n > 0 {
		p.entries.WithLabelValues(op).Add(float64(n))
	}
}

func (p *Prometheus) EntrySkipped(reason string) {
	p.skipped.WithLabelValues(reason).Inc()
}

func (p *Prometheus) PageFetched(initial bool) {
	kind := "incremental"
	if initial {
		kind = "initial"
	}
	p.pages.WithLabelValues(kind).Inc()
}

func (p *Prometheus) BreakerState(name, state string) {
	var v float64
	switch state {
	case "open":
		v = 1
	case "half-open":
		v = 2
	}
	p.breakerState.WithLabelValues(name).Set(v)
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
