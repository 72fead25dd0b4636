package instrumentation

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config controls metrics, tracing and audit logging.
//
// Keys follow the OpenTelemetry conventions where one exists, so the same
// environment works for any collector setup.
type Config struct {
	ServiceName    string `envconfig:"OTEL_SERVICE_NAME" default:"inboxgate"`
	ServiceVersion string `ignored:"true"`

	// ServiceInstanceID defaults to the hostname.
	ServiceInstanceID string `envconfig:"OTEL_SERVICE_INSTANCE_ID"`

	Enabled bool `envconfig:"INSTRUMENTATION_ENABLED" default:"true"`

	// MetricsExporter is one of prometheus, otlp or stdout.
	MetricsExporter string `envconfig:"METRICS_EXPORTER" default:"prometheus"`

	// TracingExporter is one of otlp, stdout or none.
	TracingExporter string `envconfig:"TRACING_EXPORTER" default:"none"`

	// OTLPEndpoint is host:port without a scheme.
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// OTLPInsecure disables TLS for OTLP export. Spans carry integration and
	// tool names, so keep it off outside local setups.
	OTLPInsecure bool `envconfig:"OTEL_EXPORTER_OTLP_INSECURE"`

	TraceSamplingRate float64 `envconfig:"OTEL_TRACES_SAMPLER_ARG" default:"0.1"`

	// DetailedLabels adds the caller's email domain to tool metrics.
	DetailedLabels bool `envconfig:"METRICS_DETAILED_LABELS"`

	AuditLogging AuditLoggingConfig `envconfig:"AUDIT_LOGGING"`
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	Enabled bool `envconfig:"ENABLED" default:"true"`

	// IncludePII logs full user ids instead of their email domain.
	IncludePII bool `envconfig:"INCLUDE_PII"`
}

// DefaultConfig returns the built-in defaults without consulting the
// environment.
func DefaultConfig() Config {
	return Config{
		ServiceName:       "inboxgate",
		ServiceVersion:    "unknown",
		Enabled:           true,
		MetricsExporter:   ExporterPrometheus,
		TracingExporter:   ExporterNone,
		TraceSamplingRate: 0.1,
		AuditLogging:      AuditLoggingConfig{Enabled: true},
	}
}

// LoadConfig reads the instrumentation settings from the environment.
func LoadConfig() (Config, error) {
	cfg := Config{ServiceVersion: "unknown"}
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process instrumentation env vars: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterOTLP, ExporterStdout:
	default:
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}
	switch c.TracingExporter {
	case "", ExporterOTLP, ExporterStdout, ExporterNone:
	default:
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	if c.OTLPEndpoint == "" && (c.TracingExporter == ExporterOTLP || c.MetricsExporter == ExporterOTLP) {
		return fmt.Errorf("OTEL_EXPORTER_OTLP_ENDPOINT is required when an otlp exporter is selected")
	}
	return nil
}

// Constants for metric label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	OAuthResultSuccess = "success"
	OAuthResultFailure = "failure"

	// Google services behind the gmail and calendar integrations.
	ServiceGmail    = "gmail"
	ServiceCalendar = "calendar"

	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// DefaultMetricInterval is the push interval for otlp and stdout metrics.
	DefaultMetricInterval = 10 * time.Second
)
