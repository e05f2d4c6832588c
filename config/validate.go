package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	MaxRequestsPerSecond = float64(10_000)
	MinIdempotencyTTL    = int64(60)
)

// Validate checks listen addresses, limits and driver selections.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if _, _, err := net.SplitHostPort(cfg.RPCAddress); err != nil {
		return fmt.Errorf("rpc: invalid RPCAddress %q: %w", cfg.RPCAddress, err)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("storage: DataDir must be set")
	}
	if cfg.RPCMaxBodySize <= 0 {
		return fmt.Errorf("rpc: RPCMaxBodySize must be positive")
	}
	if cfg.RPCReadTimeout < 0 || cfg.RPCWriteTimeout < 0 {
		return fmt.Errorf("rpc: timeouts must not be negative")
	}
	if cfg.Auth.ClockSkewSeconds < 0 {
		return fmt.Errorf("auth: ClockSkewSeconds must not be negative")
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 || cfg.RateLimit.RequestsPerSecond > MaxRequestsPerSecond {
		return fmt.Errorf("rate_limit: RequestsPerSecond must be in (0, %.0f]", MaxRequestsPerSecond)
	}
	if cfg.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit: Burst must be at least 1")
	}
	if cfg.Idempotency.Enabled && cfg.Idempotency.TTLSeconds < MinIdempotencyTTL {
		return fmt.Errorf("idempotency: TTLSeconds must be at least %d", MinIdempotencyTTL)
	}
	if cfg.EventIndex.Enabled {
		switch cfg.EventIndex.Driver {
		case "sqlite":
		case "postgres":
			if strings.TrimSpace(cfg.EventIndex.DSN) == "" {
				return fmt.Errorf("event_index: postgres driver requires a DSN")
			}
		default:
			return fmt.Errorf("event_index: unsupported driver %q", cfg.EventIndex.Driver)
		}
	}
	if cfg.Logging.MaxSizeMB < 0 || cfg.Logging.MaxBackups < 0 || cfg.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	if endpoint := strings.TrimSpace(cfg.Telemetry.Endpoint); endpoint != "" {
		if strings.Contains(endpoint, "://") {
			if _, err := url.Parse(endpoint); err != nil {
				return fmt.Errorf("telemetry: invalid Endpoint: %w", err)
			}
		} else if _, _, err := net.SplitHostPort(endpoint); err != nil {
			return fmt.Errorf("telemetry: invalid Endpoint %q: %w", endpoint, err)
		}
	}
	return nil
}
