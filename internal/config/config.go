package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"throttle/internal/models"
)

// envPrefix namespaces every environment override.
const envPrefix = "THROTTLE_"

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	if err := loadFromEnvironment(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// knownSections lists the top-level keys the decoder understands.
var knownSections = []string{"server", "admission", "security", "logging", "metrics", "observability"}

// warnUnknownSections logs a warning for each top-level key the service ignores.
func warnUnknownSections(data []byte) {
	var top map[string]yaml.Node
	if err := yaml.Unmarshal(data, &top); err != nil {
		return
	}
	for key := range top {
		known := false
		for _, s := range knownSections {
			if key == s {
				known = true
				break
			}
		}
		if !known {
			slog.Warn("Ignoring unknown config section", "config_key", key)
		}
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	warnUnknownSections(data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment loads configuration from environment variables.
// Malformed numeric, boolean or duration values are reported rather than ignored.
func loadFromEnvironment(config *models.Config) error {
	var errs []string

	setString := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(envPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(envPrefix + name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v := os.Getenv(envPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	// Server configuration
	setInt("PORT", &config.Server.Port)
	setString("HOST", &config.Server.Host)
	setDuration("READ_TIMEOUT", &config.Server.ReadTimeout)
	setDuration("WRITE_TIMEOUT", &config.Server.WriteTimeout)
	setDuration("IDLE_TIMEOUT", &config.Server.IdleTimeout)
	setBool("TLS_ENABLED", &config.Server.TLSEnabled)
	setString("TLS_CERT_FILE", &config.Server.TLSCertFile)
	setString("TLS_KEY_FILE", &config.Server.TLSKeyFile)

	// Admission configuration
	setInt("LIMIT", &config.Admission.Limit)
	setInt("MAX_CAPACITY", &config.Admission.MaxCapacity)
	setDuration("COOLDOWN", &config.Admission.Cooldown)
	setDuration("IDLE_TTL", &config.Admission.IdleTTL)
	setDuration("SWEEP_INTERVAL", &config.Admission.SweepInterval)
	setInt("MAX_IDENTIFIER_LENGTH", &config.Admission.MaxIdentifierLength)
	setBool("GUARD_ENABLED", &config.Admission.GuardEnabled)

	// Security configuration
	setString("ADMIN_TOKEN", &config.Security.AdminToken)
	setBool("TRUST_PROXY_HEADERS", &config.Security.TrustProxyHeaders)

	// Logging configuration
	setString("LOG_LEVEL", &config.Logging.Level)
	setString("LOG_FORMAT", &config.Logging.Format)
	setString("LOG_OUTPUT", &config.Logging.Output)
	setString("LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics configuration
	setBool("METRICS_ENABLED", &config.Metrics.Enabled)
	setString("METRICS_PATH", &config.Metrics.Path)
	setInt("METRICS_PORT", &config.Metrics.Port)

	// Observability configuration
	setString("SERVICE_NAME", &config.Observability.ServiceName)
	setBool("TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	setString("TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	setString("OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment values: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	// Example values for the optional features
	config.Admission.IdleTTL = 30 * time.Minute
	config.Admission.SweepInterval = 5 * time.Minute
	config.Security.AdminToken = "change-me"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
