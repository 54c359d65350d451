package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MetricChatTurns counts chat turns by outcome ("ok" or "error").
	MetricChatTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deepdrone",
		Name:      "chat_turns_total",
		Help:      "Number of chat turns processed, by outcome.",
	}, []string{"outcome"})

	// MetricSnippets counts sandbox snippet executions by outcome
	// ("ok", "error", "timeout").
	MetricSnippets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deepdrone",
		Name:      "snippets_total",
		Help:      "Number of sandboxed snippets executed, by outcome.",
	}, []string{"outcome"})

	// MetricVehicleCommands counts vehicle capability invocations by command
	// and outcome.
	MetricVehicleCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deepdrone",
		Name:      "vehicle_commands_total",
		Help:      "Number of vehicle commands issued, by command and outcome.",
	}, []string{"command", "outcome"})

	// MetricProviderLatency observes provider chat round-trip latency.
	MetricProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "deepdrone",
		Name:      "provider_latency_seconds",
		Help:      "Chat completion latency by provider.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})
)

// CommandOutcome maps a boolean command result onto the metric label.
func CommandOutcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
