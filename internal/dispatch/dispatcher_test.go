// internal/dispatch/dispatcher_test.go
package dispatch

import (
	"sync"
	"testing"
	"time"

	"nodeagent/internal/protocol"
)

// recorder tracks the observable order of ack and execution start.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

type recordingReporter struct {
	rec     *recorder
	entries []protocol.Reply
}

func (r *recordingReporter) Report(reply protocol.Reply) {
	r.rec.add("report")
	r.entries = append(r.entries, reply)
}

type recordingExecutor struct {
	rec  *recorder
	done chan struct{}
}

func (e *recordingExecutor) Execute(cmd protocol.Command) {
	e.rec.add("execute")
	close(e.done)
}

func TestDispatchAcksBeforeExecuting(t *testing.T) {
	rec := &recorder{}
	rep := &recordingReporter{rec: rec}
	exe := &recordingExecutor{rec: rec, done: make(chan struct{})}

	d := New(rep, exe)
	d.Dispatch(protocol.Command{ID: "cmd-1", Script: "deploy.sh"})

	select {
	case <-exe.done:
	case <-time.After(time.Second):
		t.Fatal("executor never ran")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 2 || rec.events[0] != "report" || rec.events[1] != "execute" {
		t.Fatalf("event order = %v, want ack strictly before execution", rec.events)
	}

	ack, ok := rep.entries[0].(*protocol.Ack)
	if !ok {
		t.Fatalf("expected ack reply, got %T", rep.entries[0])
	}
	if ack.CommandID != "cmd-1" || ack.Status != protocol.StatusStarted {
		t.Errorf("ack = %+v, want commandId cmd-1 with status started", ack)
	}
}
