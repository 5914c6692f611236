// Package config loads process configuration from environment variables
// (with .env support for local development) via conf-tag-driven structs.
package config

import (
	"fmt"
	"strings"

	"github.com/ardanlabs/conf/v3"
	"github.com/joho/godotenv"
)

// Environment name constants used in the ENVIRONMENT config field.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

// Config holds every environment variable the edge and controller binaries
// read, plus the ambient observability fields carried on both.
type Config struct {
	// Ambient
	LogLevel    string `conf:"default:info,env:LOG_LEVEL"`
	Environment string `conf:"default:development,enum:development|testing|production,env:ENVIRONMENT"`
	APIPort     int    `conf:"default:8000,env:API_PORT"`

	// Storage
	DBPath    string `conf:"default:xsedge.db,env:DB_PATH"`
	RulesPath string `conf:"default:rules.json,env:RULES_PATH"`
	PluginDir string `conf:"default:plugins,env:PLUGIN_DIR"`

	// MQTT
	MQTTEnabled bool   `conf:"default:false,env:MQTT_ENABLED"`
	MQTTBroker  string `conf:"default:test.mosquitto.org,env:MQTT_BROKER"`
	MQTTPort    int    `conf:"default:1883,env:MQTT_PORT"`
	EdgeID      string `conf:"env:EDGE_ID"`

	// Auth
	EdgeToken        string `conf:"env:EDGE_TOKEN,noprint"`
	PluginSigningKey string `conf:"default:EdgeOSDevSecret,env:PLUGIN_SIGNING_KEY,noprint"`
	PluginVerifySHA  bool   `conf:"default:false,env:PLUGIN_VERIFY_SHA"`
	CtrlMasterKey    string `conf:"default:CtrlMasterKey,env:CTRL_MASTER_KEY,noprint"`
	CtrlJWTSecret    string `conf:"default:ControllerSecret,env:CTRL_JWT_SECRET,noprint"`

	// CORS — comma-separated list of allowed origins; use * to allow all (dev only)
	CORSAllowedOrigins string `conf:"default:*,env:CORS_ALLOWED_ORIGINS"`

	// Observability
	ServiceName    string `conf:"default:xscontrol,env:SERVICE_NAME"`
	ServiceVersion string `conf:"default:dev,env:SERVICE_VERSION"`
	OtelEndpoint   string `conf:"default:,env:OTEL_ENDPOINT"`
	SentryDSN      string `conf:"default:,env:SENTRY_DSN,noprint"`
}

// MQTTBrokerURL resolves the configured broker host/port into a URL paho's
// client accepts. A value already carrying a scheme (tcp://, ws://, ssl://)
// is passed through unchanged. Otherwise port 8000 — the conventional
// WebSocket listener port for Mosquitto-style brokers — resolves to
// ws://<host>:<port>/mqtt; any other port resolves to the plain tcp://
// transport (default 1883). Both transports are reachable through this one
// field pair; no separate MQTT_TRANSPORT env var is needed.
func (c *Config) MQTTBrokerURL() string {
	if strings.Contains(c.MQTTBroker, "://") {
		return c.MQTTBroker
	}
	if c.MQTTPort == 8000 {
		return fmt.Sprintf("ws://%s:%d/mqtt", c.MQTTBroker, c.MQTTPort)
	}
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBroker, c.MQTTPort)
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	var cfg Config
	_ = godotenv.Load()
	if _, err := conf.Parse("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// ValidateForProduction enforces security requirements when ENVIRONMENT=production.
// Returns an error if any critical settings are missing or unsafe. No-ops
// for non-production environments.
func ValidateForProduction(cfg *Config) error {
	if cfg.Environment != EnvProduction {
		return nil
	}

	var errs []string

	if cfg.EdgeToken == "" && cfg.CtrlJWTSecret == "ControllerSecret" {
		errs = append(errs, "EDGE_TOKEN or CTRL_JWT_SECRET must be set to a non-default value in production")
	}

	if cfg.PluginSigningKey == "EdgeOSDevSecret" {
		errs = append(errs, "PLUGIN_SIGNING_KEY must not use the development default in production")
	}

	if cfg.LogLevel == "debug" {
		errs = append(errs, "LOG_LEVEL must not be 'debug' in production (may leak sensitive data)")
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("production config validation failed: %s", strings.Join(errs, "; "))
}
