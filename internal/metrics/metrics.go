// Package metrics exposes Prometheus counters for sync, mutations and
// provider calls. A nil *Metrics records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the orai collectors.
type Metrics struct {
	syncRuns      *prometheus.CounterVec
	syncMessages  *prometheus.CounterVec
	mutations     *prometheus.CounterVec
	providerCalls *prometheus.CounterVec
	gatherer      prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		syncRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orai_sync_runs_total",
				Help: "Mailbox sync runs by result.",
			},
			[]string{"result"},
		),
		syncMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orai_sync_messages_total",
				Help: "Messages handled by sync, by outcome.",
			},
			[]string{"outcome"},
		),
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orai_mutations_total",
				Help: "Propagated mutations by action and result.",
			},
			[]string{"action", "result"},
		),
		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orai_provider_calls_total",
				Help: "Gmail API calls by operation and result.",
			},
			[]string{"op", "result"},
		),
		gatherer: reg,
	}
	reg.MustRegister(m.syncRuns, m.syncMessages, m.mutations, m.providerCalls)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// SyncRun counts one sync run.
func (m *Metrics) SyncRun(err error) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(result(err)).Inc()
}

// SyncMessages adds n to the outcome counter (stored, updated, skipped,
// failed).
func (m *Metrics) SyncMessages(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.syncMessages.WithLabelValues(outcome).Add(float64(n))
}

// Mutation counts one propagated mutation.
func (m *Metrics) Mutation(action string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(action, result(err)).Inc()
}

// ProviderCall counts one provider call.
func (m *Metrics) ProviderCall(op string, err error) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(op, result(err)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
