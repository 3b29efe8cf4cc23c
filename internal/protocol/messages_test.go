// internal/protocol/messages_test.go
package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantOK  bool
		wantErr bool
		wantID  string
	}{
		{
			name:   "command frame",
			frame:  `{"id":"cmd-1","script":"deploy.sh","args":["-v"],"stdin_data":["a","b"]}`,
			wantOK: true,
			wantID: "cmd-1",
		},
		{
			name:  "missing id",
			frame: `{"script":"deploy.sh"}`,
		},
		{
			name:  "missing script",
			frame: `{"id":"cmd-1"}`,
		},
		{
			name:  "unrelated frame shape is ignored",
			frame: `{"type":"notice","body":"hello"}`,
		},
		{
			name:    "malformed json",
			frame:   `{"id":"cmd-1",`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, ok, err := ParseCommand([]byte(tt.frame))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantOK && cmd.ID != tt.wantID {
				t.Errorf("id = %q, want %q", cmd.ID, tt.wantID)
			}
		})
	}
}

func TestEnvelopeShape(t *testing.T) {
	ack := NewAck("cmd-9")
	ack.SetAgentID("agent-1")

	data, err := json.Marshal(Envelope{Target: TargetServer, SourceID: "agent-1", Payload: ack})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]json.RawMessage
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if string(got["target"]) != `"server"` {
		t.Errorf("target = %s, want \"server\"", got["target"])
	}
	if string(got["sourceId"]) != `"agent-1"` {
		t.Errorf("sourceId = %s, want \"agent-1\"", got["sourceId"])
	}

	var payload map[string]string
	if err := json.Unmarshal(got["payload"], &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["type"] != TypeAck || payload["commandId"] != "cmd-9" ||
		payload["status"] != StatusStarted || payload["agentId"] != "agent-1" {
		t.Errorf("payload = %v, want ack/cmd-9/started with merged agentId", payload)
	}
}

func TestCompletedStatusSerializesZeroExitCode(t *testing.T) {
	data, err := json.Marshal(NewCompletedStatus("cmd-1", 0))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if code, ok := got["exitCode"]; !ok || code != float64(0) {
		t.Errorf("exitCode = %v (present=%v), want explicit 0", code, ok)
	}
	if _, ok := got["message"]; ok {
		t.Error("completed status must not carry a message")
	}
}

func TestEventEnvelopeBypassesIdentityMerge(t *testing.T) {
	env := NewEventEnvelope("agent-1", "bulk-7", json.RawMessage(`{"x":1}`))

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got struct {
		Target   string `json:"target"`
		SourceID string `json:"sourceId"`
		Payload  map[string]json.RawMessage
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Target != TargetServer || got.SourceID != "agent-1" {
		t.Errorf("addressing = %+v, want server/agent-1", got)
	}
	if string(got.Payload["id"]) != `"bulk-7"` {
		t.Errorf("event id = %s, want \"bulk-7\"", got.Payload["id"])
	}
	if _, ok := got.Payload["agentId"]; ok {
		t.Error("event payload must not carry a merged agentId")
	}
	if string(got.Payload["payload"]) != `{"x":1}` {
		t.Errorf("event payload blob = %s, want {\"x\":1}", got.Payload["payload"])
	}
}
