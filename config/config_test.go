package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/nodeflow/orchestrator"
)

const sampleConfig = `
orchestrator:
  backoff: 250ms
  identity: sequential
  failure_policy: first
  resume: true
logging:
  level: debug
  format: text
monitoring:
  victoriametrics_url: http://vm:8428
  instance: test-host
history:
  dir: /var/lib/nodeflow
server:
  listen: ":9000"
  cron: "0 3 * * *"
ssh_hosts:
  nas:
    address: 10.0.0.5
    user: backup
    key_file: /etc/nodeflow/id_ed25519
nodes:
  - name: fetch
    command: curl -fsSL https://example.com -o /tmp/page
  - name: archive
    parents: [fetch]
    command: tar czf /tmp/page.tgz /tmp/page
    dir: /tmp
    env:
      GZIP: "-9"
  - name: upload
    parents: [archive]
    host: nas
    command: ls /srv
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Orchestrator.Backoff)
	assert.Equal(t, orchestrator.SequentialIdentity, cfg.IdentityScheme())
	assert.Equal(t, orchestrator.FirstFailureWins, cfg.FailurePolicy())
	assert.True(t, cfg.Orchestrator.Resume)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "stdout", cfg.Logging.Output)

	assert.Equal(t, "http://vm:8428", cfg.Monitoring.VictoriaMetricsURL)
	assert.Equal(t, "nodeflow", cfg.Monitoring.MetricsPrefix)
	assert.Equal(t, "test-host", cfg.Monitoring.Instance)

	assert.Equal(t, defaultMaxRuns, cfg.History.MaxRuns)
	assert.Equal(t, ":9000", cfg.Server.Listen)

	nas := cfg.SSHHosts["nas"]
	assert.Equal(t, 22, nas.Port)
	assert.Equal(t, 30*time.Second, nas.Timeout)

	require.Len(t, cfg.Nodes, 3)
	assert.Equal(t, []string{"archive"}, cfg.Nodes[2].Parents)
	assert.Equal(t, map[string]string{"GZIP": "-9"}, cfg.Nodes[1].Env)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("nodes:\n  - name: a\n    command: \"true\"\n"))
	require.NoError(t, err)

	assert.Equal(t, orchestrator.DefaultBackoff, cfg.Orchestrator.Backoff)
	assert.Equal(t, orchestrator.ContentIdentity, cfg.IdentityScheme())
	assert.Equal(t, orchestrator.LastFailureWins, cfg.FailurePolicy())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Empty(t, cfg.History.Dir)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("nodes: []\nbogus: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		cfg := Config{
			SSHHosts: map[string]SSHHostConfig{
				"nas": {Address: "10.0.0.5", User: "u", KeyFile: "/k"},
			},
			Nodes: []NodeConfig{
				{Name: "a", Command: "true"},
				{Name: "b", Parents: []string{"a"}, Command: "true", Host: "nas"},
			},
		}
		cfg.SetDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no nodes", mutate: func(c *Config) { c.Nodes = nil }, wantErr: "at least one node"},
		{name: "missing name", mutate: func(c *Config) { c.Nodes[0].Name = "" }, wantErr: "name is required"},
		{name: "duplicate name", mutate: func(c *Config) { c.Nodes[1].Name = "a" }, wantErr: "duplicate name"},
		{name: "missing command", mutate: func(c *Config) { c.Nodes[0].Command = "" }, wantErr: "command is required"},
		{name: "unknown parent", mutate: func(c *Config) { c.Nodes[1].Parents = []string{"zzz"} }, wantErr: "unknown parent"},
		{name: "unknown host", mutate: func(c *Config) { c.Nodes[1].Host = "nope" }, wantErr: "unknown ssh host"},
		{name: "host without key", mutate: func(c *Config) {
			c.SSHHosts["nas"] = SSHHostConfig{Address: "x", User: "u"}
		}, wantErr: "key_file is required"},
		{name: "bad identity", mutate: func(c *Config) { c.Orchestrator.Identity = "random" }, wantErr: "identity scheme"},
		{name: "bad failure policy", mutate: func(c *Config) { c.Orchestrator.FailurePolicy = "middle" }, wantErr: "failure policy"},
		{name: "bad cron", mutate: func(c *Config) { c.Server.Cron = "every day" }, wantErr: "server cron"},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "logging"},
		{name: "tls cert without key", mutate: func(c *Config) { c.Server.TLSCert = "/c.pem" }, wantErr: "tls_cert and tls_key"},
		{name: "negative max runs", mutate: func(c *Config) { c.History.MaxRuns = -1 }, wantErr: "max_runs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodeflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Nodes, 3)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Redacted(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	red := cfg.Redacted()
	assert.Equal(t, map[string]string{"GZIP": "REDACTED"}, red.Nodes[1].Env)
	assert.Nil(t, red.Nodes[0].Env)
	assert.Equal(t, "tar czf /tmp/page.tgz /tmp/page", red.Nodes[1].Command)

	// The original is untouched.
	assert.Equal(t, "-9", cfg.Nodes[1].Env["GZIP"])
}
