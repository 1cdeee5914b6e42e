// Package models - Service configuration and operational settings.
// This file defines the configuration structures for every service component.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, admission, security, etc.)
// - Defaults that match the admission controller's documented behaviour
// - Validation that catches misconfigurations before the server starts
package models

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"throttle/internal/admission"
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Admission: per-identifier limit, capacity, cooldown and idle sweeping
// - Security: admin token and proxy header trust
// - Logging: Structured logging and output configuration
// - Metrics: Prometheus metrics endpoint
// - Observability: OpenTelemetry tracing
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Admission     AdmissionConfig     `yaml:"admission" json:"admission"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
}

// AdmissionConfig mirrors admission.Config in a serializable form.
type AdmissionConfig struct {
	Limit         int           `yaml:"limit" json:"limit"`
	MaxCapacity   int           `yaml:"max_capacity" json:"max_capacity"`
	Cooldown      time.Duration `yaml:"cooldown" json:"cooldown"`
	IdleTTL       time.Duration `yaml:"idle_ttl" json:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
	GuardEnabled  bool          `yaml:"guard_enabled" json:"guard_enabled"` // throttle /api/v1/protected by client IP

	MaxIdentifierLength int `yaml:"max_identifier_length" json:"max_identifier_length"`
}

type SecurityConfig struct {
	AdminToken        string `yaml:"admin_token" json:"-"`
	TrustProxyHeaders bool   `yaml:"trust_proxy_headers" json:"trust_proxy_headers"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with production-ready defaults.
//
// Default Values Rationale:
// - Port 8080: Standard non-privileged HTTP port
// - Admission: 3 calls per identifier, 120 identifiers, 1 minute cooldown
// - Idle sweeping off: records live for the process lifetime unless reset
// - Structured JSON logging to stdout
// - Metrics on a separate port so they are not throttled
func NewDefaultConfig() *Config {
	adm := admission.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Admission: AdmissionConfig{
			Limit:        adm.Limit,
			MaxCapacity:  adm.MaxCapacity,
			Cooldown:     adm.Cooldown,
			GuardEnabled: true,

			MaxIdentifierLength: adm.MaxIdentifierLength,
		},
		Security: SecurityConfig{
			TrustProxyHeaders: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "throttle",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Admission.Validate(); err != nil {
		return fmt.Errorf("invalid admission config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

// ToAdmission converts to the admission controller's configuration.
func (ac *AdmissionConfig) ToAdmission() admission.Config {
	return admission.Config{
		Limit:         ac.Limit,
		MaxCapacity:   ac.MaxCapacity,
		Cooldown:      ac.Cooldown,
		IdleTTL:       ac.IdleTTL,
		SweepInterval: ac.SweepInterval,

		MaxIdentifierLength: ac.MaxIdentifierLength,
	}
}

func (ac *AdmissionConfig) Validate() error {
	return ac.ToAdmission().Validate()
}

func (lc *LoggingConfig) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !slices.Contains([]string{"json", "text"}, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !slices.Contains([]string{"stdout", "stderr", "file"}, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if !oc.Tracing.Enabled {
		return nil
	}

	if oc.Tracing.Exporter != "stdout" && oc.Tracing.Exporter != "otlp" {
		return fmt.Errorf("invalid tracing exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("tracing sample rate must be between 0 and 1")
	}

	if oc.Tracing.Exporter == "otlp" && oc.Tracing.OTLPEndpoint == "" {
		return errors.New("OTLP endpoint is required when tracing exporter is otlp")
	}

	return nil
}
