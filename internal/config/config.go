package config

import (
	"encoding/json"
	"os"
	"strconv"

	"wacast/internal/constants"
	"wacast/internal/models"
)

var (
	ErrMissingGatewayURL = models.ConfigError{Message: "missing gateway API URL"}
	ErrMissingDBPath     = models.ConfigError{Message: "missing database path"}
)

// LoadConfig reads the JSON config file at path, applies defaults and
// environment overrides, and validates the result.
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path) // #nosec G304 - path comes from the operator's -config flag
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Gateway.APIBaseURL == "" {
		return ErrMissingGatewayURL
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	if c.Gateway.TimeoutSec <= 0 {
		c.Gateway.TimeoutSec = constants.DefaultHTTPTimeoutSec
	}
	if c.Gateway.RetryCount <= 0 {
		c.Gateway.RetryCount = constants.DefaultGatewayRetryCount
	}
	if c.Gateway.SendsPerSecond <= 0 {
		c.Gateway.SendsPerSecond = constants.DefaultSendsPerSecond
	}
	if c.Gateway.SendBurst <= 0 {
		c.Gateway.SendBurst = constants.DefaultSendBurst
	}
	if c.Dispatch.Spec == "" {
		c.Dispatch.Spec = constants.DefaultDispatchSpec
	}
	if c.Dispatch.DefaultDelayMs <= 0 {
		c.Dispatch.DefaultDelayMs = constants.DefaultRecipientDelayMs
	}
	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("WACAST_GATEWAY_API_URL"); url != "" {
		c.Gateway.APIBaseURL = url
	}
	if url := os.Getenv("WACAST_GATEWAY_EVENTS_URL"); url != "" {
		c.Gateway.EventsURL = url
	}
	if path := os.Getenv("WACAST_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if spec := os.Getenv("WACAST_DISPATCH_SPEC"); spec != "" {
		c.Dispatch.Spec = spec
	}
	if port := os.Getenv("WACAST_SERVER_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			c.Server.Port = n
		}
	}
	if level := os.Getenv("WACAST_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}
