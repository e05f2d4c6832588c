package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultRPCAddress        = ":8080"
	DefaultDataDir           = "./viewledger-data"
	DefaultEnvironment       = "dev"
	DefaultIssuer            = "viewledger"
	DefaultRequestsPerSecond = 20
	DefaultBurst             = 40
	DefaultIdempotencyTTL    = 24 * 60 * 60
	DefaultEventIndexDriver  = "sqlite"
	DefaultLogLevel          = "info"
)

type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	DataDir        string `toml:"DataDir"`
	Environment    string `toml:"Environment"`
	GenesisFile    string `toml:"GenesisFile"`
	RPCMaxBodySize int64  `toml:"RPCMaxBodySize"`
	// RPCReadTimeout and RPCWriteTimeout are expressed in seconds.
	RPCReadTimeout  int `toml:"RPCReadTimeout"`
	RPCWriteTimeout int `toml:"RPCWriteTimeout"`

	Auth        AuthConfig        `toml:"auth"`
	RateLimit   RateLimitConfig   `toml:"rate_limit"`
	Idempotency IdempotencyConfig `toml:"idempotency"`
	EventIndex  EventIndexConfig  `toml:"event_index"`
	Logging     LoggingConfig     `toml:"logging"`
	Telemetry   TelemetryConfig   `toml:"telemetry"`
}

// Load loads the configuration from the given path. A missing file is
// replaced by a freshly written default configuration.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.normalize()
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		RPCAddress:      DefaultRPCAddress,
		DataDir:         DefaultDataDir,
		Environment:     DefaultEnvironment,
		RPCMaxBodySize:  1 << 20,
		RPCReadTimeout:  15,
		RPCWriteTimeout: 15,
		Auth: AuthConfig{
			HMACSecretEnv: "VIEWLEDGER_JWT_SECRET",
			Issuer:        DefaultIssuer,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: DefaultRequestsPerSecond,
			Burst:             DefaultBurst,
		},
		Idempotency: IdempotencyConfig{
			Enabled:    true,
			TTLSeconds: DefaultIdempotencyTTL,
		},
		EventIndex: EventIndexConfig{
			Enabled: true,
			Driver:  DefaultEventIndexDriver,
		},
		Logging: LoggingConfig{
			Level:      DefaultLogLevel,
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}

func (c *Config) normalize() {
	c.RPCAddress = strings.TrimSpace(c.RPCAddress)
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}
	c.EventIndex.Driver = strings.ToLower(strings.TrimSpace(c.EventIndex.Driver))
	if c.EventIndex.Driver == "" {
		c.EventIndex.Driver = DefaultEventIndexDriver
	}
	if strings.TrimSpace(c.Auth.Issuer) == "" {
		c.Auth.Issuer = DefaultIssuer
	}
}

// LedgerPath returns the LevelDB directory beneath DataDir.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "ledger")
}

// IdempotencyPath returns the bbolt file used to cache mutating responses.
func (c *Config) IdempotencyPath() string {
	if c.Idempotency.Path != "" {
		return c.Idempotency.Path
	}
	return filepath.Join(c.DataDir, "idempotency.db")
}

// EventIndexDSN returns the configured DSN, defaulting to a sqlite file under
// DataDir for the sqlite driver.
func (c *Config) EventIndexDSN() string {
	if c.EventIndex.DSN != "" {
		return c.EventIndex.DSN
	}
	if c.EventIndex.Driver == DefaultEventIndexDriver {
		return filepath.Join(c.DataDir, "events.sqlite")
	}
	return ""
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
