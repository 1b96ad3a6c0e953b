// Package config loads the YAML configuration of a nodeflow graph and the
// services that run it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/nomis52/nodeflow/logging"
	"github.com/nomis52/nodeflow/orchestrator"
)

const (
	// Default orchestrator settings
	defaultBackoff = orchestrator.DefaultBackoff

	// Default monitoring settings
	defaultMetricsPrefix = "nodeflow"
	defaultJobName       = "nodeflow"

	// Default history settings
	defaultMaxRuns = 50

	// Default server settings
	defaultListen = ":8080"

	// Default SSH settings
	defaultSSHPort    = 22
	defaultSSHTimeout = 30 * time.Second

	redacted = "REDACTED"
)

// Config represents the complete application configuration
type Config struct {
	Orchestrator OrchestratorConfig       `yaml:"orchestrator"`
	Logging      logging.Config           `yaml:"logging"`
	Monitoring   MonitoringConfig         `yaml:"monitoring"`
	History      HistoryConfig            `yaml:"history"`
	Server       ServerConfig             `yaml:"server"`
	SSHHosts     map[string]SSHHostConfig `yaml:"ssh_hosts"`
	Nodes        []NodeConfig             `yaml:"nodes"`
}

// OrchestratorConfig holds the engine options.
type OrchestratorConfig struct {
	// Backoff is how long the driver waits when no node is ready.
	Backoff time.Duration `yaml:"backoff"`

	// Identity is "content" (default) or "sequential".
	Identity string `yaml:"identity"`

	// FailurePolicy is "last" (default) or "first".
	FailurePolicy string `yaml:"failure_policy"`

	// Resume seeds a new run with the checkpoint ledger of the latest failed run.
	Resume bool `yaml:"resume"`
}

// MonitoringConfig holds metrics settings. VictoriaMetricsURL is only needed
// when metrics are pushed.
type MonitoringConfig struct {
	VictoriaMetricsURL string `yaml:"victoriametrics_url"`
	MetricsPrefix      string `yaml:"metrics_prefix"`
	JobName            string `yaml:"jobname"`
	Instance           string `yaml:"instance"`
}

// HistoryConfig controls where run history is kept. An empty Dir keeps
// history in memory.
type HistoryConfig struct {
	Dir     string `yaml:"dir"`
	MaxRuns int    `yaml:"max_runs"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen string `yaml:"listen"`
	// Cron is an optional standard 5-field cron expression that triggers runs.
	Cron string `yaml:"cron"`
	// TLSCert and TLSKey enable HTTPS when both are set. The files are
	// re-read when they change.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// SSHHostConfig describes a host that nodes can run commands on.
type SSHHostConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	User    string `yaml:"user"`
	KeyFile string `yaml:"key_file"`
	// KnownHosts is an optional known_hosts file. Host keys are not checked
	// when it is empty.
	KnownHosts string        `yaml:"known_hosts"`
	Timeout    time.Duration `yaml:"timeout"`
}

// NodeConfig defines one node of the graph.
type NodeConfig struct {
	Name    string            `yaml:"name"`
	Parents []string          `yaml:"parents"`
	Command string            `yaml:"command"`
	Host    string            `yaml:"host"` // key into ssh_hosts; empty runs locally
	Dir     string            `yaml:"dir"`
	Env     map[string]string `yaml:"env"`
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	if _, err := orchestrator.ParseIdentityScheme(c.Orchestrator.Identity); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	if _, err := orchestrator.ParseFailurePolicy(c.Orchestrator.FailurePolicy); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	if c.Orchestrator.Backoff < 0 {
		return fmt.Errorf("orchestrator backoff must not be negative")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.History.MaxRuns < 0 {
		return fmt.Errorf("history max_runs must not be negative")
	}
	if c.Server.Cron != "" {
		if _, err := cron.ParseStandard(c.Server.Cron); err != nil {
			return fmt.Errorf("server cron %q: %w", c.Server.Cron, err)
		}
	}

	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return errors.New("server tls_cert and tls_key must be set together")
	}

	for name, h := range c.SSHHosts {
		if h.Address == "" {
			return fmt.Errorf("ssh host %q: address is required", name)
		}
		if h.User == "" {
			return fmt.Errorf("ssh host %q: user is required", name)
		}
		if h.KeyFile == "" {
			return fmt.Errorf("ssh host %q: key_file is required", name)
		}
	}

	if len(c.Nodes) == 0 {
		return errors.New("at least one node is required")
	}
	names := make(map[string]bool, len(c.Nodes))
	for i, n := range c.Nodes {
		if n.Name == "" {
			return fmt.Errorf("node %d: name is required", i)
		}
		if names[n.Name] {
			return fmt.Errorf("node %q: duplicate name", n.Name)
		}
		names[n.Name] = true
		if n.Command == "" {
			return fmt.Errorf("node %q: command is required", n.Name)
		}
		if n.Host != "" {
			if _, ok := c.SSHHosts[n.Host]; !ok {
				return fmt.Errorf("node %q: unknown ssh host %q", n.Name, n.Host)
			}
		}
	}
	for _, n := range c.Nodes {
		for _, p := range n.Parents {
			if !names[p] {
				return fmt.Errorf("node %q: unknown parent %q", n.Name, p)
			}
		}
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields
func (c *Config) SetDefaults() {
	if c.Orchestrator.Backoff == 0 {
		c.Orchestrator.Backoff = defaultBackoff
	}
	c.Logging.SetDefaults()
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	if c.Monitoring.Instance == "" {
		if host, err := os.Hostname(); err == nil {
			c.Monitoring.Instance = host
		}
	}
	if c.History.MaxRuns == 0 {
		c.History.MaxRuns = defaultMaxRuns
	}
	if c.Server.Listen == "" {
		c.Server.Listen = defaultListen
	}
	for name, h := range c.SSHHosts {
		if h.Port == 0 {
			h.Port = defaultSSHPort
		}
		if h.Timeout == 0 {
			h.Timeout = defaultSSHTimeout
		}
		c.SSHHosts[name] = h
	}
}

// Redacted returns a copy of the config with node environment values hidden.
func (c *Config) Redacted() Config {
	out := *c
	out.Nodes = make([]NodeConfig, len(c.Nodes))
	for i, n := range c.Nodes {
		if len(n.Env) > 0 {
			env := make(map[string]string, len(n.Env))
			for k := range n.Env {
				env[k] = redacted
			}
			n.Env = env
		}
		out.Nodes[i] = n
	}
	return out
}

// IdentityScheme returns the parsed orchestrator identity scheme.
func (c *Config) IdentityScheme() orchestrator.IdentityScheme {
	s, _ := orchestrator.ParseIdentityScheme(c.Orchestrator.Identity)
	return s
}

// FailurePolicy returns the parsed orchestrator failure policy.
func (c *Config) FailurePolicy() orchestrator.FailurePolicy {
	p, _ := orchestrator.ParseFailurePolicy(c.Orchestrator.FailurePolicy)
	return p
}

// Parse decodes YAML config data, applies defaults and validates the result.
// Unknown fields are rejected.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadConfig reads the YAML config file at the given path and returns a Config struct
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}
