// Package metrics holds the Prometheus collectors of the triage service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var LLMLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "kontify",
		Subsystem: "assistant",
		Name:      "llm_latency_seconds",
		Help:      "Latency of LLM completions",
		Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 8, 10, 15, 20, 30},
	},
	[]string{"status"},
)

var LLMFallbacks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kontify",
		Subsystem: "assistant",
		Name:      "fallback_total",
		Help:      "Assistant replies replaced by the canned fallback, by reason",
	},
	[]string{"reason"}, // credential, request, parse
)

var CaseLevels = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kontify",
		Subsystem: "session",
		Name:      "case_level_total",
		Help:      "Case levels assigned after each answered question",
	},
	[]string{"level"},
)

var QuotaRejections = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "kontify",
		Subsystem: "session",
		Name:      "quota_rejections_total",
		Help:      "Messages rejected because the free-question gate was closed",
	},
)

var LeadHandoffs = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kontify",
		Subsystem: "leads",
		Name:      "handoffs_total",
		Help:      "Escalated cases handed to the lead funnel, by outcome",
	},
	[]string{"outcome"}, // ok, error
)

func init() {
	prometheus.MustRegister(LLMLatency, LLMFallbacks, CaseLevels, QuotaRejections, LeadHandoffs)
}

// Register adds the collectors to a non-default registry.
func Register(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(LLMLatency, LLMFallbacks, CaseLevels, QuotaRejections, LeadHandoffs)
}
