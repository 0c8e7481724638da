// Package config loads console configuration from the environment and an
// optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds console configuration loaded from the environment.
type Config struct {
	// Listen is the address the console HTTP server listens on.
	Listen string `mapstructure:"TUNNELDECK_LISTEN"`
	// UpstreamURL is the base URL of the proxy-management backend.
	UpstreamURL string `mapstructure:"TUNNELDECK_UPSTREAM_URL"`
	// StatePath is the SQLite file holding the persisted session snapshot.
	StatePath string `mapstructure:"TUNNELDECK_STATE_PATH"`
	// StaticDir optionally points at the built frontend to serve.
	StaticDir string `mapstructure:"TUNNELDECK_STATIC_DIR"`
	// ExpiryCheckInterval is the expiry-watch tick (e.g. "30s").
	ExpiryCheckInterval string `mapstructure:"TUNNELDECK_EXPIRY_CHECK_INTERVAL"`
	// HealthCheckInterval is the periodic health-check tick (e.g. "15s").
	HealthCheckInterval string `mapstructure:"TUNNELDECK_HEALTH_CHECK_INTERVAL"`
	// RenewThreshold is the remaining-time low-water mark below which
	// proactive token renewal is attempted (e.g. "5m").
	RenewThreshold string `mapstructure:"TUNNELDECK_RENEW_THRESHOLD"`
	// RenewWindow is how far a renewal extends the token expiry (e.g. "30m").
	RenewWindow string `mapstructure:"TUNNELDECK_RENEW_WINDOW"`
	// RequestTimeout bounds each upstream HTTP call (e.g. "10s").
	RequestTimeout string `mapstructure:"TUNNELDECK_REQUEST_TIMEOUT"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Missing .env is ignored; env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("TUNNELDECK_LISTEN", ":8088")
	v.SetDefault("TUNNELDECK_UPSTREAM_URL", "http://127.0.0.1:10085")
	v.SetDefault("TUNNELDECK_STATE_PATH", "./tunneldeck.db")
	v.SetDefault("TUNNELDECK_STATIC_DIR", "")
	v.SetDefault("TUNNELDECK_EXPIRY_CHECK_INTERVAL", "30s")
	v.SetDefault("TUNNELDECK_HEALTH_CHECK_INTERVAL", "15s")
	v.SetDefault("TUNNELDECK_RENEW_THRESHOLD", "5m")
	v.SetDefault("TUNNELDECK_RENEW_WINDOW", "30m")
	v.SetDefault("TUNNELDECK_REQUEST_TIMEOUT", "10s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Listen == "" {
		return nil, errors.New("config: TUNNELDECK_LISTEN must be set")
	}
	if cfg.UpstreamURL == "" {
		return nil, errors.New("config: TUNNELDECK_UPSTREAM_URL must be set")
	}
	if cfg.StatePath == "" {
		return nil, errors.New("config: TUNNELDECK_STATE_PATH must be set")
	}
	for _, d := range []string{
		cfg.ExpiryCheckInterval, cfg.HealthCheckInterval,
		cfg.RenewThreshold, cfg.RenewWindow, cfg.RequestTimeout,
	} {
		if parsed, err := time.ParseDuration(d); err != nil || parsed <= 0 {
			return nil, fmt.Errorf("config: %q is not a positive duration", d)
		}
	}
	if cfg.Threshold() >= cfg.Window() {
		return nil, errors.New("config: TUNNELDECK_RENEW_THRESHOLD must be below TUNNELDECK_RENEW_WINDOW")
	}

	return &cfg, nil
}

// ExpiryInterval parses ExpiryCheckInterval. Returns 30s if unset or invalid.
func (c *Config) ExpiryInterval() time.Duration {
	return durationOr(c.ExpiryCheckInterval, 30*time.Second)
}

// HealthInterval parses HealthCheckInterval. Returns 15s if unset or invalid.
func (c *Config) HealthInterval() time.Duration {
	return durationOr(c.HealthCheckInterval, 15*time.Second)
}

// Threshold parses RenewThreshold. Returns 5m if unset or invalid.
func (c *Config) Threshold() time.Duration {
	return durationOr(c.RenewThreshold, 5*time.Minute)
}

// Window parses RenewWindow. Returns 30m if unset or invalid.
func (c *Config) Window() time.Duration {
	return durationOr(c.RenewWindow, 30*time.Minute)
}

// Timeout parses RequestTimeout. Returns 10s if unset or invalid.
func (c *Config) Timeout() time.Duration {
	return durationOr(c.RequestTimeout, 10*time.Second)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
