// internal/protocol/messages.go

// Package protocol defines the JSON wire format spoken between the agent
// and the coordinating server. Every message the agent sends is wrapped
// in exactly one Envelope addressed to the server; inbound frames are
// recognized as commands when they carry both a script and an id.
package protocol

import "encoding/json"

// TargetServer is the only destination the agent ever addresses.
const TargetServer = "server"

// Reply type tags.
const (
	TypeHeartbeat         = "heartbeat"
	TypeAck               = "ack"
	TypeLog               = "log"
	TypeStatus            = "status"
	TypeAgentStatusUpdate = "agent-status-update"
	TypeEvent             = "event"
)

// Status values carried by Ack and Status replies.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Command is a unit of work pushed down by the server: an external
// script to run, identified by an opaque id. The agent does not enforce
// id uniqueness; that is the server's problem.
type Command struct {
	ID        string   `json:"id"`
	Script    string   `json:"script"`
	Args      []string `json:"args,omitempty"`
	StdinData []string `json:"stdin_data,omitempty"`
}

// ParseCommand decodes an inbound frame. It returns ok=false for frames
// that parse but are not commands (missing script or id) - those are
// silently ignored upstream, which is the extension point for future
// frame types. A non-nil error means the frame was not valid JSON.
func ParseCommand(data []byte) (Command, bool, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, false, err
	}
	if cmd.Script == "" || cmd.ID == "" {
		return Command{}, false, nil
	}
	return cmd, true, nil
}

// Envelope is the outer wrapper on every outbound message:
// destination, source identity, and the actual payload.
type Envelope struct {
	Target   string      `json:"target"`
	SourceID string      `json:"sourceId"`
	Payload  interface{} `json:"payload"`
}

// Heartbeat is the fixed fire-and-forget liveness frame. It is sent
// bare, not wrapped in an Envelope.
type Heartbeat struct {
	Type string `json:"type"`
}

// NewHeartbeat returns the heartbeat frame.
func NewHeartbeat() Heartbeat {
	return Heartbeat{Type: TypeHeartbeat}
}

// Reply is the sealed union of payloads that go through the reporter's
// identity merge. Event deliberately does not implement it - the event
// forwarding path builds its envelope directly.
type Reply interface {
	// SetAgentID merges the agent identity into the payload before it
	// is wrapped and sent.
	SetAgentID(id string)
}

// Ack acknowledges receipt of a command, always with status "started".
// The server must never observe a result frame for a command id before
// its ack.
type Ack struct {
	Type      string `json:"type"`
	CommandID string `json:"commandId"`
	Status    string `json:"status"`
	AgentID   string `json:"agentId,omitempty"`
}

// NewAck builds the ack for a command id.
func NewAck(commandID string) *Ack {
	return &Ack{Type: TypeAck, CommandID: commandID, Status: StatusStarted}
}

func (a *Ack) SetAgentID(id string) { a.AgentID = id }

// Log carries one unit of script output: either a single stdout line,
// or the entire trimmed output for raw-output scripts.
type Log struct {
	Type      string `json:"type"`
	CommandID string `json:"commandId"`
	Stream    string `json:"stream"`
	Data      string `json:"data"`
	AgentID   string `json:"agentId,omitempty"`
}

// NewLog builds a log reply for the stdout stream.
func NewLog(commandID, data string) *Log {
	return &Log{Type: TypeLog, CommandID: commandID, Stream: "stdout", Data: data}
}

func (l *Log) SetAgentID(id string) { l.AgentID = id }

// Status is the terminal reply for a command. "completed" carries the
// process exit code (non-zero included - the agent reports, the server
// interprets); "error" carries a human-readable spawn failure message.
type Status struct {
	Type      string `json:"type"`
	CommandID string `json:"commandId"`
	Status    string `json:"status"`
	ExitCode  *int   `json:"exitCode,omitempty"`
	Message   string `json:"message,omitempty"`
	AgentID   string `json:"agentId,omitempty"`
}

// NewCompletedStatus builds the completion reply with the exit code.
func NewCompletedStatus(commandID string, exitCode int) *Status {
	return &Status{Type: TypeStatus, CommandID: commandID, Status: StatusCompleted, ExitCode: &exitCode}
}

// NewErrorStatus builds the terminal error reply for a spawn failure.
func NewErrorStatus(commandID, message string) *Status {
	return &Status{Type: TypeStatus, CommandID: commandID, Status: StatusError, Message: message}
}

func (s *Status) SetAgentID(id string) { s.AgentID = id }

// AgentStatusUpdate carries a structured status blob emitted by a
// script via the STATUS_JSON: stdout convention. The blob is passed
// through verbatim.
type AgentStatusUpdate struct {
	Type      string          `json:"type"`
	CommandID string          `json:"commandId"`
	Status    json.RawMessage `json:"status"`
	AgentID   string          `json:"agentId,omitempty"`
}

// NewAgentStatusUpdate builds a status update carrying the raw JSON blob.
func NewAgentStatusUpdate(commandID string, status json.RawMessage) *AgentStatusUpdate {
	return &AgentStatusUpdate{Type: TypeAgentStatusUpdate, CommandID: commandID, Status: status}
}

func (u *AgentStatusUpdate) SetAgentID(id string) { u.AgentID = id }

// Event is the pass-through frame for the EVENT_PAYLOAD: stdout
// convention. Its envelope is built directly by the executor because
// its shape differs from the other replies: the payload carries an id
// and the arbitrary blob, with no merged agent identity.
type Event struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// NewEventEnvelope wraps an event in its outbound envelope.
func NewEventEnvelope(sourceID, eventID string, payload json.RawMessage) Envelope {
	return Envelope{
		Target:   TargetServer,
		SourceID: sourceID,
		Payload:  Event{Type: TypeEvent, ID: eventID, Payload: payload},
	}
}
