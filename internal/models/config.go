package models

import "fmt"

// Config holds the application configuration
type Config struct {
	Gateway  GatewayConfig  `json:"gateway"`
	Database DatabaseConfig `json:"database"`
	Dispatch DispatchConfig `json:"dispatch"`
	Server   ServerConfig   `json:"server"`
	Tracing  TracingConfig  `json:"tracing"`
	Retry    RetryConfig    `json:"retry"`
	LogLevel string         `json:"log_level"`
}

// GatewayConfig holds WhatsApp gateway related configurations
type GatewayConfig struct {
	APIBaseURL     string  `json:"api_base_url"`
	EventsURL      string  `json:"events_url"`
	TimeoutSec     int     `json:"timeout_sec"`
	RetryCount     int     `json:"retry_count"`
	SendsPerSecond float64 `json:"sends_per_second"`
	SendBurst      int     `json:"send_burst"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// DispatchConfig holds scheduled-dispatch related configurations
type DispatchConfig struct {
	// Spec is a cron spec driving the scan tick, e.g. "@every 1m".
	Spec string `json:"spec"`
	// DefaultDelayMs applies to jobs created without an explicit
	// per-recipient delay.
	DefaultDelayMs int64 `json:"default_delay_ms"`
}

// ServerConfig holds HTTP server related configurations
type ServerConfig struct {
	Port int `json:"port"`
}

// TracingConfig holds OpenTelemetry related configurations
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initial_backoff_ms"`
	MaxBackoffMs     int `json:"max_backoff_ms"`
	MaxAttempts      int `json:"max_attempts"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("config error: %s", e.Message)
}
