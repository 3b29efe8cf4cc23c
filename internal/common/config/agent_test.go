// internal/common/config/agent_test.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadAgentConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
url = "wss://c2.example.com:3131/ws"

[agent]
id = "agent-1"
access_code = "s3cret"
fingerprint = "ab12cd34"
scripts_dir = "/opt/agent/scripts"

[metrics]
listen = ":9100"

[logging]
dir = "/var/log/agent"
`)

	cfg, err := LoadAgentConfig(path)
	if err != nil {
		t.Fatalf("LoadAgentConfig: %v", err)
	}

	if cfg.ServerURL != "wss://c2.example.com:3131/ws" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.AgentID != "agent-1" || cfg.AccessCode != "s3cret" || cfg.Fingerprint != "ab12cd34" {
		t.Errorf("identity = %q/%q/%q", cfg.AgentID, cfg.AccessCode, cfg.Fingerprint)
	}
	if cfg.ScriptsDir != "/opt/agent/scripts" {
		t.Errorf("ScriptsDir = %q", cfg.ScriptsDir)
	}
	if cfg.MetricsAddr != ":9100" {
		t.Errorf("MetricsAddr = %q", cfg.MetricsAddr)
	}
	if cfg.LogDir != "/var/log/agent" {
		t.Errorf("LogDir = %q", cfg.LogDir)
	}
}

func TestLoadAgentConfigDefaultsScriptsDir(t *testing.T) {
	path := writeConfig(t, `
[server]
url = "wss://c2.example.com/ws"

[agent]
id = "agent-1"
access_code = "s3cret"
fingerprint = "ab12cd34"
`)

	cfg, err := LoadAgentConfig(path)
	if err != nil {
		t.Fatalf("LoadAgentConfig: %v", err)
	}
	if cfg.ScriptsDir != "." {
		t.Errorf("ScriptsDir = %q, want current directory default", cfg.ScriptsDir)
	}
}

func TestLoadAgentConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "missing server url",
			body: `
[agent]
id = "agent-1"
access_code = "s3cret"
fingerprint = "ab12cd34"
`,
			wantErr: "server.url",
		},
		{
			name: "missing agent id",
			body: `
[server]
url = "wss://c2.example.com/ws"

[agent]
access_code = "s3cret"
fingerprint = "ab12cd34"
`,
			wantErr: "agent.id",
		},
		{
			name: "missing fingerprint",
			body: `
[server]
url = "wss://c2.example.com/ws"

[agent]
id = "agent-1"
access_code = "s3cret"
`,
			wantErr: "agent.fingerprint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAgentConfig(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
