package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics records how card events flow through the synchronization engine
// and its two remote collaborators. A nil *SyncMetrics is a valid no-op.
type SyncMetrics struct {
	events            *prometheus.CounterVec
	processorCalls    *prometheus.CounterVec
	processorDuration *prometheus.HistogramVec
	reports           *prometheus.CounterVec
	tokenFetches      *prometheus.CounterVec
}

// NewSyncMetrics registers the synchronization metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "card_events_total",
		Help: "Card events processed, by category and outcome.",
	}, []string{"category", "outcome"})
	processorCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "processor_calls_total",
		Help: "Processor action calls, by action and result.",
	}, []string{"action", "result"})
	processorDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "processor_call_duration_seconds",
		Help:    "Latency of processor action calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})
	reports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_reports_total",
		Help: "Outcome reports sent upstream, by outcome and result.",
	}, []string{"outcome", "result"})
	tokenFetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_token_fetches_total",
		Help: "Upstream access token acquisitions, by result.",
	}, []string{"result"})
	reg.MustRegister(events, processorCalls, processorDuration, reports, tokenFetches)
	return &SyncMetrics{
		events:            events,
		processorCalls:    processorCalls,
		processorDuration: processorDuration,
		reports:           reports,
		tokenFetches:      tokenFetches,
	}
}

// IncEvent counts one processed event.
func (m *SyncMetrics) IncEvent(category, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(category), normalizeLabel(outcome)).Inc()
}

// ObserveProcessorCall records one processor call and its latency.
func (m *SyncMetrics) ObserveProcessorCall(action string, success bool, duration time.Duration) {
	if m == nil || m.processorCalls == nil {
		return
	}
	action = normalizeLabel(action)
	m.processorCalls.WithLabelValues(action, resultLabel(success)).Inc()
	m.processorDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// IncReport counts one upstream report attempt.
func (m *SyncMetrics) IncReport(outcome string, success bool) {
	if m == nil || m.reports == nil {
		return
	}
	m.reports.WithLabelValues(normalizeLabel(outcome), resultLabel(success)).Inc()
}

// IncTokenFetch counts one token acquisition attempt.
func (m *SyncMetrics) IncTokenFetch(success bool) {
	if m == nil || m.tokenFetches == nil {
		return
	}
	m.tokenFetches.WithLabelValues(resultLabel(success)).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
