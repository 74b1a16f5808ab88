package metrics

import "github.com/prometheus/client_golang/prometheus"

// VoiceMetrics exposes counters/histograms for the voice handoff flow.
type VoiceMetrics struct {
	evaluationsTotal *prometheus.CounterVec
	handoffsTotal    *prometheus.CounterVec
	webhookLatency   *prometheus.HistogramVec
	configCacheOps   *prometheus.CounterVec
}

func NewVoiceMetrics(reg prometheus.Registerer) *VoiceMetrics {
	m := &VoiceMetrics{
		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engage",
			Subsystem: "voice",
			Name:      "handoff_evaluations_total",
			Help:      "Total handoff evaluations by outcome",
		}, []string{"outcome"}),
		handoffsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engage",
			Subsystem: "voice",
			Name:      "handoffs_total",
			Help:      "Total handoffs by reason and mode",
		}, []string{"reason", "mode"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "engage",
			Subsystem: "voice",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of voice webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		configCacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engage",
			Subsystem: "voice",
			Name:      "config_cache_ops_total",
			Help:      "Voice config cache lookups by result",
		}, []string{"purpose", "result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.evaluationsTotal, m.handoffsTotal, m.webhookLatency, m.configCacheOps)
	return m
}

// ObserveEvaluation counts one handoff evaluation. outcome is "handoff",
// "no_handoff", or "disabled".
func (m *VoiceMetrics) ObserveEvaluation(outcome string) {
	if m == nil {
		return
	}
	m.evaluationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveHandoff counts one escalation by firing reason and handoff mode.
// The reason label is truncated at the rule tag so high_value_intent does not
// explode label cardinality per intent.
func (m *VoiceMetrics) ObserveHandoff(reason, mode string) {
	if m == nil {
		return
	}
	m.handoffsTotal.WithLabelValues(reason, mode).Inc()
}

// ObserveWebhookLatency records voice webhook handling time.
func (m *VoiceMetrics) ObserveWebhookLatency(endpoint string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(endpoint).Observe(seconds)
}

// ObserveCacheLookup counts a config cache hit or miss.
func (m *VoiceMetrics) ObserveCacheLookup(purpose, result string) {
	if m == nil {
		return
	}
	m.configCacheOps.WithLabelValues(purpose, result).Inc()
}
