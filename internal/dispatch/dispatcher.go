// internal/dispatch/dispatcher.go

// Package dispatch turns an inbound command into an immediate
// acknowledgement and an execution request.
package dispatch

import (
	"log"

	"nodeagent/internal/metrics"
	"nodeagent/internal/protocol"
)

// Executor runs one command to completion and reports its results,
// scoped by the command id.
type Executor interface {
	Execute(cmd protocol.Command)
}

// Reporter sends a reply payload upstream.
type Reporter interface {
	Report(reply protocol.Reply)
}

// Dispatcher acknowledges commands and delegates execution. All
// reporting after the ack is the executor's responsibility.
type Dispatcher struct {
	reporter Reporter
	executor Executor
}

// New creates a dispatcher.
func New(reporter Reporter, executor Executor) *Dispatcher {
	return &Dispatcher{reporter: reporter, executor: executor}
}

// Dispatch sends the ack synchronously before the executor goroutine
// starts. This ordering is a hard contract: the server must never
// observe a result frame for a command id before its ack. Commands are
// not serialized against each other; each runs in its own goroutine.
func (d *Dispatcher) Dispatch(cmd protocol.Command) {
	log.Printf("[Dispatcher] Received command %s (script: %s)", cmd.ID, cmd.Script)

	d.reporter.Report(protocol.NewAck(cmd.ID))
	metrics.CommandsReceived.Inc()

	go d.executor.Execute(cmd)
}
