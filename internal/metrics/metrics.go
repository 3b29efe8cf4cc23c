// internal/metrics/metrics.go

// Package metrics exposes Prometheus counters for the agent's protocol
// activity. The /metrics listener is optional and bound from config.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nodeagent_frames_received_total",
		Help: "Inbound frames read from the server connection.",
	})

	FramesDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nodeagent_frames_discarded_total",
		Help: "Inbound frames dropped because they were not valid JSON.",
	})

	HeartbeatsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nodeagent_heartbeats_sent_total",
		Help: "Heartbeat frames sent while the connection was open.",
	})

	ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nodeagent_reconnect_attempts_total",
		Help: "Connection attempts made after a retryable close.",
	})

	CommandsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nodeagent_commands_received_total",
		Help: "Commands acknowledged and handed to the executor.",
	})

	CommandsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nodeagent_commands_completed_total",
		Help: "Commands whose process ran to exit (any exit code).",
	})

	CommandFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nodeagent_command_failures_total",
		Help: "Commands whose process could not be started.",
	})

	RepliesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nodeagent_replies_dropped_total",
		Help: "Outbound messages dropped because the connection was not open.",
	})
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
