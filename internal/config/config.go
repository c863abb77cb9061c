// Package config handles configuration loading and validation for the tracing stack.
//
// Configuration is strictly environment-based with fail-fast validation.
// All settings are loaded from environment variables with sensible defaults
// where appropriate. Outside production a local .env file is loaded first,
// if present, so development setups need no exported shell state.
//
// # Environment Variables
//
// Required variables:
//   - APP_NAME: Service name for identification
//   - APP_VERSION: Service version (e.g., "1.0.0", "v2.3.1")
//   - APP_ENV: Environment (development, dev, local, staging, stage, test, production, prod)
//
// Feature flags (default: false):
//   - TRACING_ENABLED: Enable distributed tracing export
//   - TRACING_METRICS_ENABLED: Enable request-path metrics export
//   - TRACING_TRACE_ALL_REQUESTS: Instrument every request via middleware and
//     suppress decorator-based instrumentation to avoid double spans
//
// Endpoint (required when a feature is enabled):
//   - TRACING_OTLP_ENDPOINT: OTLP collector endpoint in host:port format
//
// Optional configuration:
//   - DEPLOYMENT_ID: Unique deployment identifier
//   - HOSTNAME: Override system hostname
//   - TRACING_SAMPLING_RATE: Trace sampling rate 0.0-1.0 (default: environment-based)
//   - TRACING_TRACE_BATCH_SIZE: Span export batch size (default: 512)
//   - METRIC_EXPORT_INTERVAL: Metrics export interval in seconds (default: 10)
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config defines the complete tracing stack configuration.
//
// All fields are populated from environment variables during LoadFromEnv().
// The configuration enforces strict validation rules to ensure production safety.
type Config struct {
	// ServiceName identifies the application (from APP_NAME).
	ServiceName string

	// ServiceVersion is the application version (from APP_VERSION).
	ServiceVersion string

	// Environment specifies the deployment environment (from APP_ENV).
	// Valid values: development, dev, local, staging, stage, test, production, prod.
	Environment string

	// DeploymentID is an optional unique identifier for this deployment.
	DeploymentID string

	// HostName is the system hostname, auto-detected if not provided.
	HostName string

	// TracingEnabled controls whether spans are exported.
	TracingEnabled bool

	// MetricsEnabled controls whether request-path metrics are exported.
	MetricsEnabled bool

	// TraceAllRequests makes the middleware instrument every handled request
	// and suppresses decorator-based instrumentation for those calls.
	TraceAllRequests bool

	// OTLPEndpoint is the OTLP collector endpoint in host:port format.
	// Required when TracingEnabled or MetricsEnabled is true.
	OTLPEndpoint string

	// SamplingRate determines what fraction of traces to sample.
	// Valid range: 0.0-1.0. Default is environment-based:
	//   - development/staging: 1.0 (100%)
	//   - production: 0.1 (10%)
	SamplingRate float64

	// TraceBatchSize is the maximum number of spans per export batch.
	// Default: 512.
	TraceBatchSize int

	// MetricExportIntervalSec is the interval in seconds between metric exports.
	// Valid range: 1-300. Default: 10.
	MetricExportIntervalSec int
}

// Common validation errors returned by LoadFromEnv and Validate.
var (
	// ErrMissingServiceName indicates APP_NAME is not set or empty.
	ErrMissingServiceName = errors.New("APP_NAME is required and cannot be empty")

	// ErrMissingServiceVersion indicates APP_VERSION is not set or empty.
	ErrMissingServiceVersion = errors.New("APP_VERSION is required and cannot be empty")

	// ErrMissingEnvironment indicates APP_ENV is not set or empty.
	ErrMissingEnvironment = errors.New("APP_ENV is required and cannot be empty")

	// ErrInvalidEnvironment indicates APP_ENV has an invalid value.
	ErrInvalidEnvironment = errors.New("APP_ENV must be one of: development, dev, local, staging, stage, test, production, prod")

	// ErrMissingOTLPEndpoint indicates the OTLP endpoint is required but not set.
	ErrMissingOTLPEndpoint = errors.New("TRACING_OTLP_ENDPOINT is required when tracing or metrics are enabled")

	// ErrInvalidOTLPEndpoint indicates the OTLP endpoint format is invalid.
	ErrInvalidOTLPEndpoint = errors.New("TRACING_OTLP_ENDPOINT must be in format host:port")

	// ErrInvalidSamplingRate indicates the trace sampling rate is out of valid range.
	ErrInvalidSamplingRate = errors.New("TRACING_SAMPLING_RATE must be between 0.0 and 1.0")
)

var validEnvs = map[string]bool{
	"development": true,
	"dev":         true,
	"local":       true,
	"staging":     true,
	"stage":       true,
	"test":        true,
	"production":  true,
	"prod":        true,
}

// LoadFromEnv loads and validates tracing configuration from environment variables.
//
// This function performs strict validation with fail-fast behavior. It will
// return an error if:
//   - Required variables (APP_NAME, APP_VERSION, APP_ENV) are missing or empty
//   - APP_ENV contains an invalid environment name
//   - A feature is enabled but TRACING_OTLP_ENDPOINT is missing or malformed
//   - Numeric values are out of valid ranges
//
// Sensible defaults are applied for optional values, and the hostname is
// auto-detected when not explicitly provided.
func LoadFromEnv() (Config, error) {
	// Best-effort .env for local development; exported variables win.
	if env := strings.ToLower(os.Getenv("APP_ENV")); env != "production" && env != "prod" {
		_ = godotenv.Load()
	}

	serviceName := os.Getenv("APP_NAME")
	if strings.TrimSpace(serviceName) == "" {
		return Config{}, ErrMissingServiceName
	}

	serviceVersion := os.Getenv("APP_VERSION")
	if strings.TrimSpace(serviceVersion) == "" {
		return Config{}, ErrMissingServiceVersion
	}

	environment := os.Getenv("APP_ENV")
	if strings.TrimSpace(environment) == "" {
		return Config{}, ErrMissingEnvironment
	}
	if !validEnvs[strings.ToLower(environment)] {
		return Config{}, fmt.Errorf("%w: got '%s'", ErrInvalidEnvironment, environment)
	}

	cfg := Config{
		ServiceName:             serviceName,
		ServiceVersion:          serviceVersion,
		Environment:             environment,
		DeploymentID:            getEnvString("DEPLOYMENT_ID", ""),
		TracingEnabled:          getEnvBool("TRACING_ENABLED", false),
		MetricsEnabled:          getEnvBool("TRACING_METRICS_ENABLED", false),
		TraceAllRequests:        getEnvBool("TRACING_TRACE_ALL_REQUESTS", false),
		OTLPEndpoint:            getEnvString("TRACING_OTLP_ENDPOINT", ""),
		SamplingRate:            getEnvFloat("TRACING_SAMPLING_RATE", 0),
		TraceBatchSize:          getEnvInt("TRACING_TRACE_BATCH_SIZE", 512),
		MetricExportIntervalSec: getEnvInt("METRIC_EXPORT_INTERVAL", 10),
	}

	if cfg.TracingEnabled || cfg.MetricsEnabled {
		if strings.TrimSpace(cfg.OTLPEndpoint) == "" {
			return Config{}, ErrMissingOTLPEndpoint
		}
		if !isValidEndpoint(cfg.OTLPEndpoint) {
			return Config{}, fmt.Errorf("%w: got '%s'", ErrInvalidOTLPEndpoint, cfg.OTLPEndpoint)
		}
	}

	cfg = applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MustLoadFromEnv loads configuration from environment or panics on error.
func MustLoadFromEnv() Config {
	cfg, err := LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("failed to load tracing configuration from environment: %v", err))
	}
	return cfg
}

// Validate verifies that the configuration is internally consistent and complete.
//
// If no components are enabled (IsEnabled() returns false), validation of the
// export surface is skipped, allowing the stack to be safely disabled.
func (c Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.ServiceName) == "" {
		problems = append(problems, "ServiceName is required")
	}
	if strings.TrimSpace(c.ServiceVersion) == "" {
		problems = append(problems, "ServiceVersion is required")
	}
	if strings.TrimSpace(c.Environment) == "" {
		problems = append(problems, "Environment is required")
	}

	if c.IsEnabled() {
		if c.OTLPEndpoint == "" {
			problems = append(problems, "TRACING_OTLP_ENDPOINT is required when tracing/metrics are enabled")
		} else if !isValidEndpoint(c.OTLPEndpoint) {
			problems = append(problems, fmt.Sprintf("TRACING_OTLP_ENDPOINT invalid format '%s' (expected host:port)", c.OTLPEndpoint))
		}
	}

	if c.SamplingRate < 0.0 || c.SamplingRate > 1.0 {
		problems = append(problems, fmt.Sprintf("TRACING_SAMPLING_RATE must be 0.0-1.0, got: %f", c.SamplingRate))
	}
	if c.MetricExportIntervalSec < 1 || c.MetricExportIntervalSec > 300 {
		problems = append(problems, fmt.Sprintf("METRIC_EXPORT_INTERVAL must be 1-300, got: %d", c.MetricExportIntervalSec))
	}

	if len(problems) > 0 {
		return fmt.Errorf("tracing configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// IsEnabled returns true if at least one exporting component is enabled.
func (c Config) IsEnabled() bool {
	return c.TracingEnabled || c.MetricsEnabled
}

// EnabledComponents returns the names of enabled components, one or more of
// "tracing" and "metrics". Useful for logging what is active at startup.
func (c Config) EnabledComponents() []string {
	components := []string{}
	if c.TracingEnabled {
		components = append(components, "tracing")
	}
	if c.MetricsEnabled {
		components = append(components, "metrics")
	}
	return components
}

// applyDefaults fills in default values for unset configuration fields.
func applyDefaults(cfg Config) Config {
	if cfg.TraceBatchSize == 0 {
		cfg.TraceBatchSize = 512
	}
	if cfg.MetricExportIntervalSec == 0 {
		cfg.MetricExportIntervalSec = 10
	}
	if cfg.SamplingRate == 0 {
		cfg.SamplingRate = getDefaultSamplingRate(cfg.Environment)
	}
	if cfg.HostName == "" {
		cfg.HostName = getHostName()
	}
	return cfg
}

// getDefaultSamplingRate returns the default trace sampling rate based on environment.
func getDefaultSamplingRate(env string) float64 {
	switch strings.ToLower(env) {
	case "development", "dev", "local":
		return 1.0
	case "staging", "stage", "test":
		return 1.0
	case "production", "prod":
		return 0.1
	default:
		return 0.05
	}
}

// getHostName returns the system hostname, preferring the HOSTNAME variable.
func getHostName() string {
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	if hostname, err := os.Hostname(); err == nil {
		return hostname
	}
	return "unknown"
}

// isValidEndpoint verifies that an endpoint string is in valid host:port format.
func isValidEndpoint(endpoint string) bool {
	parts := strings.Split(endpoint, ":")
	if len(parts) != 2 {
		return false
	}
	if _, err := strconv.Atoi(parts[1]); err != nil {
		return false
	}
	return parts[0] != ""
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
