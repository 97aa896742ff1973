package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration. Values come from the
// environment with a .env file as fallback; API_URL takes precedence over
// the legacy BACKEND_SERVER name.
type Config struct {
	BackendURL     string `mapstructure:"API_URL"`
	BackendServer  string `mapstructure:"BACKEND_SERVER"`
	PushURL        string `mapstructure:"PUSH_URL"`
	GatewayAddr    string `mapstructure:"GATEWAY_ADDR"`
	ReconnectDelay int    `mapstructure:"RECONNECT_DELAY_MS"`
	AuditDB        string `mapstructure:"AUDIT_DB"`
	LogDir         string `mapstructure:"LOG_DIR"`
	Debug          bool   `mapstructure:"DEBUG"`
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("API_URL", "")
	v.SetDefault("BACKEND_SERVER", "")
	v.SetDefault("PUSH_URL", "ws://localhost:8810/ws")
	v.SetDefault("GATEWAY_ADDR", "127.0.0.1:8820")
	v.SetDefault("RECONNECT_DELAY_MS", 5000)
	v.SetDefault("AUDIT_DB", "medidesk.db")
	v.SetDefault("LOG_DIR", "logs")
	v.SetDefault("DEBUG", false)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("API_URL")
	v.BindEnv("BACKEND_SERVER")
	v.BindEnv("PUSH_URL")
	v.BindEnv("GATEWAY_ADDR")
	v.BindEnv("RECONNECT_DELAY_MS")
	v.BindEnv("AUDIT_DB")
	v.BindEnv("LOG_DIR")
	v.BindEnv("DEBUG")

	// Try reading .env, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.BackendURL == "" {
		cfg.BackendURL = cfg.BackendServer
	}
	if cfg.BackendURL == "" {
		cfg.BackendURL = "http://localhost:8810"
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5000
	}

	return cfg, nil
}

// ReconnectDelayDuration returns the reconnect delay as a time.Duration.
func (c *Config) ReconnectDelayDuration() time.Duration {
	return time.Duration(c.ReconnectDelay) * time.Millisecond
}
