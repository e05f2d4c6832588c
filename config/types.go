package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrMissingSecret is returned when neither a literal JWT secret nor a
// populated environment variable is configured.
var ErrMissingSecret = errors.New("config: jwt secret not configured")

// AuthConfig controls verification of caller tokens on the RPC surface.
type AuthConfig struct {
	HMACSecret    string   `toml:"HMACSecret,omitempty"`
	HMACSecretEnv string   `toml:"HMACSecretEnv"`
	Issuer        string   `toml:"Issuer"`
	Audience      []string `toml:"Audience,omitempty"`
	// ClockSkewSeconds tolerates small drift when validating exp/nbf.
	ClockSkewSeconds int `toml:"ClockSkewSeconds"`
}

// Secret resolves the HMAC secret, preferring the environment variable.
func (a AuthConfig) Secret() ([]byte, error) {
	if name := strings.TrimSpace(a.HMACSecretEnv); name != "" {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			return []byte(value), nil
		}
	}
	if secret := strings.TrimSpace(a.HMACSecret); secret != "" {
		return []byte(secret), nil
	}
	if a.HMACSecretEnv != "" {
		return nil, fmt.Errorf("%w: env %s is empty", ErrMissingSecret, a.HMACSecretEnv)
	}
	return nil, ErrMissingSecret
}

// ClockSkew returns the configured leeway.
func (a AuthConfig) ClockSkew() time.Duration {
	return time.Duration(a.ClockSkewSeconds) * time.Second
}

// RateLimitConfig bounds per-client request throughput.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

type IdempotencyConfig struct {
	Enabled    bool   `toml:"Enabled"`
	Path       string `toml:"Path,omitempty"`
	TTLSeconds int64  `toml:"TTLSeconds"`
}

// TTL returns how long cached responses are replayed.
func (i IdempotencyConfig) TTL() time.Duration {
	return time.Duration(i.TTLSeconds) * time.Second
}

// EventIndexConfig selects the relational store mirroring committed events.
type EventIndexConfig struct {
	Enabled bool   `toml:"Enabled"`
	Driver  string `toml:"Driver"`
	DSN     string `toml:"DSN,omitempty"`
}

type LoggingConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File,omitempty"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// TelemetryConfig configures OTLP export. An empty endpoint disables it.
type TelemetryConfig struct {
	Endpoint string            `toml:"Endpoint,omitempty"`
	Insecure bool              `toml:"Insecure"`
	Headers  map[string]string `toml:"Headers,omitempty"`
	Metrics  bool              `toml:"Metrics"`
	Traces   bool              `toml:"Traces"`
}
