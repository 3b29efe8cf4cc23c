// internal/common/config/agent.go
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// AgentConfig is the runtime configuration of the agent. Identity and
// credentials (id, access code, fingerprint) are provisioned externally
// and supplied through the config file; the agent never generates them.
type AgentConfig struct {
	ServerURL   string
	AgentID     string
	AccessCode  string
	Fingerprint string

	// ScriptsDir is the working directory scripts are resolved against.
	ScriptsDir string

	// MetricsAddr, when set, binds the Prometheus /metrics listener.
	MetricsAddr string

	LogDir string
}

type tomlConfig struct {
	Server struct {
		URL string `toml:"url"`
	} `toml:"server"`
	Agent struct {
		ID          string `toml:"id"`
		AccessCode  string `toml:"access_code"`
		Fingerprint string `toml:"fingerprint"`
		ScriptsDir  string `toml:"scripts_dir"`
	} `toml:"agent"`
	Metrics struct {
		Listen string `toml:"listen"`
	} `toml:"metrics"`
	Logging struct {
		Dir string `toml:"dir"`
	} `toml:"logging"`
}

// LoadAgentConfig reads and validates the agent configuration. An empty
// path falls back to AGENT_CONFIG, then the default install location.
func LoadAgentConfig(path string) (*AgentConfig, error) {
	if path == "" {
		path = os.Getenv("AGENT_CONFIG")
	}
	if path == "" {
		path = "/app/agent.toml"
	}

	var conf tomlConfig
	if _, err := toml.DecodeFile(path, &conf); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %v", path, err)
	}

	cfg := &AgentConfig{
		ServerURL:   conf.Server.URL,
		AgentID:     conf.Agent.ID,
		AccessCode:  conf.Agent.AccessCode,
		Fingerprint: conf.Agent.Fingerprint,
		ScriptsDir:  conf.Agent.ScriptsDir,
		MetricsAddr: conf.Metrics.Listen,
		LogDir:      conf.Logging.Dir,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "."
	}

	return cfg, nil
}

func (c *AgentConfig) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("config: server.url is required")
	}
	if c.AgentID == "" {
		return fmt.Errorf("config: agent.id is required")
	}
	if c.AccessCode == "" {
		return fmt.Errorf("config: agent.access_code is required")
	}
	if c.Fingerprint == "" {
		return fmt.Errorf("config: agent.fingerprint is required")
	}
	return nil
}
