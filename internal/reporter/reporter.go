// internal/reporter/reporter.go

// Package reporter wraps outbound payloads in the canonical envelope and
// merges the agent identity into every reply before transmission.
package reporter

import (
	"log"

	"nodeagent/internal/metrics"
	"nodeagent/internal/protocol"
)

// Sender is the outbound half of the connection. SendJSON is expected to
// serialize concurrent writers internally.
type Sender interface {
	SendJSON(v interface{}) error
	IsOpen() bool
}

// Reporter builds envelopes for reply payloads. There is no outbound
// buffering or delivery guarantee: when the connection is not open the
// message is dropped, not queued.
type Reporter struct {
	agentID string
	sender  Sender
}

// New creates a reporter bound to the agent identity and a sender.
func New(agentID string, sender Sender) *Reporter {
	return &Reporter{agentID: agentID, sender: sender}
}

// Report merges the agent identity into the reply, wraps it in an
// envelope addressed to the server, and sends it.
func (r *Reporter) Report(reply protocol.Reply) {
	reply.SetAgentID(r.agentID)
	r.send(protocol.Envelope{
		Target:   protocol.TargetServer,
		SourceID: r.agentID,
		Payload:  reply,
	})
}

// Forward sends a pre-built envelope as-is. Used by the event
// pass-through path, whose payload shape skips the identity merge.
func (r *Reporter) Forward(env protocol.Envelope) {
	r.send(env)
}

func (r *Reporter) send(env protocol.Envelope) {
	if !r.sender.IsOpen() {
		metrics.RepliesDropped.Inc()
		log.Printf("[Reporter] Connection not open, dropping outbound message")
		return
	}

	if err := r.sender.SendJSON(env); err != nil {
		// Write failures are the connection's problem; it force-closes
		// the socket and the reconnect loop takes over.
		metrics.RepliesDropped.Inc()
		log.Printf("[Reporter] Failed to send message: %v", err)
	}
}
