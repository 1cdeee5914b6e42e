package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"throttle/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))
	return configFile
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	configFile := writeConfig(t, `
server:
  port: 8081
  host: "localhost"
  read_timeout: 10s
  write_timeout: 15s
  idle_timeout: 90s

admission:
  limit: 5
  max_capacity: 1000
  cooldown: 30s
  idle_ttl: 10m
  sweep_interval: 1m
  guard_enabled: false

security:
  admin_token: "s3cret"
  trust_proxy_headers: false

logging:
  level: "debug"
  format: "text"
  output: "stderr"

metrics:
  enabled: true
  path: "/prom"
  port: 9191

observability:
  service_name: "edge-throttle"
  tracing:
    enabled: true
    exporter: "otlp"
    otlp_endpoint: "collector:4317"
    sample_rate: 0.25
`)

	config, err := Load(configFile)
	require.NoError(t, err)

	// Verify server config
	assert.Equal(t, 8081, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 10*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, config.Server.WriteTimeout)
	assert.Equal(t, 90*time.Second, config.Server.IdleTimeout)

	// Verify admission config
	assert.Equal(t, 5, config.Admission.Limit)
	assert.Equal(t, 1000, config.Admission.MaxCapacity)
	assert.Equal(t, 30*time.Second, config.Admission.Cooldown)
	assert.Equal(t, 10*time.Minute, config.Admission.IdleTTL)
	assert.Equal(t, time.Minute, config.Admission.SweepInterval)
	assert.False(t, config.Admission.GuardEnabled)

	// Verify security config
	assert.Equal(t, "s3cret", config.Security.AdminToken)
	assert.False(t, config.Security.TrustProxyHeaders)

	// Verify logging config
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
	assert.Equal(t, "stderr", config.Logging.Output)

	// Verify metrics config
	assert.Equal(t, "/prom", config.Metrics.Path)
	assert.Equal(t, 9191, config.Metrics.Port)

	// Verify observability config
	assert.Equal(t, "edge-throttle", config.Observability.ServiceName)
	assert.True(t, config.Observability.Tracing.Enabled)
	assert.Equal(t, "otlp", config.Observability.Tracing.Exporter)
	assert.Equal(t, "collector:4317", config.Observability.Tracing.OTLPEndpoint)
	assert.Equal(t, 0.25, config.Observability.Tracing.SampleRate)
}

func TestLoad_WithDefaults(t *testing.T) {
	configFile := writeConfig(t, `
server:
  port: 3000
`)

	config, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 3000, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host) // Default

	// Admission defaults
	assert.Equal(t, 3, config.Admission.Limit)
	assert.Equal(t, 120, config.Admission.MaxCapacity)
	assert.Equal(t, time.Minute, config.Admission.Cooldown)
	assert.Zero(t, config.Admission.IdleTTL)

	// Logging defaults
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
	assert.Equal(t, "stdout", config.Logging.Output)
}

func TestLoad_NoFile(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, models.NewDefaultConfig(), config)
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	t.Setenv("THROTTLE_PORT", "9000")
	t.Setenv("THROTTLE_HOST", "127.0.0.1")
	t.Setenv("THROTTLE_LIMIT", "10")
	t.Setenv("THROTTLE_MAX_CAPACITY", "500")
	t.Setenv("THROTTLE_COOLDOWN", "2m")
	t.Setenv("THROTTLE_IDLE_TTL", "1h")
	t.Setenv("THROTTLE_SWEEP_INTERVAL", "5m")
	t.Setenv("THROTTLE_MAX_IDENTIFIER_LENGTH", "64")
	t.Setenv("THROTTLE_GUARD_ENABLED", "false")
	t.Setenv("THROTTLE_ADMIN_TOKEN", "env-token")
	t.Setenv("THROTTLE_LOG_LEVEL", "warn")
	t.Setenv("THROTTLE_METRICS_ENABLED", "false")

	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, 10, config.Admission.Limit)
	assert.Equal(t, 500, config.Admission.MaxCapacity)
	assert.Equal(t, 2*time.Minute, config.Admission.Cooldown)
	assert.Equal(t, time.Hour, config.Admission.IdleTTL)
	assert.Equal(t, 5*time.Minute, config.Admission.SweepInterval)
	assert.Equal(t, 64, config.Admission.MaxIdentifierLength)
	assert.False(t, config.Admission.GuardEnabled)
	assert.Equal(t, "env-token", config.Security.AdminToken)
	assert.Equal(t, "warn", config.Logging.Level)
	assert.False(t, config.Metrics.Enabled)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	configFile := writeConfig(t, `
admission:
  limit: 5
`)
	t.Setenv("THROTTLE_LIMIT", "7")

	config, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, 7, config.Admission.Limit)
}

func TestLoad_MalformedEnvironmentValues(t *testing.T) {
	t.Setenv("THROTTLE_LIMIT", "three")
	t.Setenv("THROTTLE_COOLDOWN", "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "THROTTLE_LIMIT")
	assert.Contains(t, err.Error(), "THROTTLE_COOLDOWN")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_InvalidYAML(t *testing.T) {
	configFile := writeConfig(t, "admission: [not, a, map")

	_, err := Load(configFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML config")
}

func TestLoad_InvalidAdmission(t *testing.T) {
	configFile := writeConfig(t, `
admission:
  limit: 0
`)

	_, err := Load(configFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit must be positive")
}

func TestLoad_UnknownSectionIsIgnored(t *testing.T) {
	configFile := writeConfig(t, `
storage:
  type: json
admission:
  limit: 4
`)

	config, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, 4, config.Admission.Limit)
}

func TestSaveExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "example.yaml")

	require.NoError(t, SaveExample(path))

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, config.Admission.IdleTTL)
	assert.Equal(t, 5*time.Minute, config.Admission.SweepInterval)
	assert.Equal(t, 256, config.Admission.MaxIdentifierLength)
	assert.Equal(t, "change-me", config.Security.AdminToken)
}
