// Package config handles loading and managing application configuration.
package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server configuration
	Server ServerConfig

	// Payment provider configuration
	Provider ProviderConfig

	// Notification delivery configuration
	Notify NotifyConfig

	// Logging configuration
	Logs LogsConfig

	// Security settings
	Security SecurityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port    string
	GinMode string // "debug", "release", or "test"
}

// ProviderConfig holds payment provider configuration. The access token is
// the server-side credential supplied out-of-band.
type ProviderConfig struct {
	BaseURL     string
	AccessToken string
}

// NotifyConfig holds notification delivery configuration.
type NotifyConfig struct {
	// PushEndpoint is the registered durable delivery endpoint. Empty means
	// the durable channel is unavailable and delivery falls back to the
	// immediate channel.
	PushEndpoint  string
	PushTimeoutMs int

	// BufferWindowMs is the dedupe buffering window of the channel adapter.
	BufferWindowMs int

	// GrantDelivery is the deployment-level permission decision consulted
	// on the first permission request.
	GrantDelivery bool

	// PendingGraceSec and PendingSweepSec drive the payment-pending watcher.
	PendingGraceSec int
	PendingSweepSec int
}

// LogsConfig holds logging configuration.
type LogsConfig struct {
	LokiURL string // empty means local JSON logging
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	ServiceAPIKey string
}

// Load reads configuration from environment variables.
// Returns a Config struct with all settings populated.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    getEnv("PORT", "8080"),
			GinMode: getEnv("GIN_MODE", "debug"),
		},
		Provider: ProviderConfig{
			BaseURL:     getEnv("PROVIDER_BASE_URL", "https://api.mercadopago.com"),
			AccessToken: getEnv("MP_ACCESS_TOKEN", ""),
		},
		Notify: NotifyConfig{
			PushEndpoint:    getEnv("NOTIFY_PUSH_ENDPOINT", ""),
			PushTimeoutMs:   getEnvInt("NOTIFY_PUSH_TIMEOUT_MS", 10_000),
			BufferWindowMs:  getEnvInt("NOTIFY_BUFFER_WINDOW_MS", 250),
			GrantDelivery:   getEnvBool("NOTIFY_GRANT_DELIVERY", true),
			PendingGraceSec: getEnvInt("PAYMENT_PENDING_GRACE_SEC", 120),
			PendingSweepSec: getEnvInt("PAYMENT_PENDING_SWEEP_SEC", 15),
		},
		Logs: LogsConfig{
			LokiURL: getEnv("LOKI_URL", ""),
		},
		Security: SecurityConfig{
			ServiceAPIKey: getEnv("PAYMENTS_SERVICE_API_KEY", ""),
		},
	}
}

// getEnv retrieves an environment variable with a fallback default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer with a fallback.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean with a fallback.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
