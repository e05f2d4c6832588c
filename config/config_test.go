package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DefaultRPCAddress, cfg.RPCAddress)
	require.Equal(t, DefaultEnvironment, cfg.Environment)
	require.True(t, cfg.EventIndex.Enabled)
	require.Equal(t, "sqlite", cfg.EventIndex.Driver)

	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPCAddress, reloaded.RPCAddress)
	require.Equal(t, cfg.RateLimit, reloaded.RateLimit)
	require.Equal(t, cfg.Idempotency, reloaded.Idempotency)
}

func TestLoadParsesSections(t *testing.T) {
	path := writeConfig(t, `RPCAddress = "127.0.0.1:9090"
DataDir = "/var/lib/viewledger"
Environment = "Prod"
GenesisFile = "genesis.yaml"
RPCMaxBodySize = 2048
RPCReadTimeout = 5
RPCWriteTimeout = 7

[auth]
HMACSecret = "literal"
Issuer = "viewledger-test"
Audience = ["viewctl"]
ClockSkewSeconds = 30

[rate_limit]
RequestsPerSecond = 2.5
Burst = 5

[idempotency]
Enabled = true
TTLSeconds = 600

[event_index]
Enabled = true
Driver = "postgres"
DSN = "host=localhost user=view dbname=view sslmode=disable"

[logging]
Level = "debug"
File = "/var/log/viewledger.log"
MaxSizeMB = 10
MaxBackups = 2
MaxAgeDays = 3

[telemetry]
Endpoint = "otel-collector:4318"
Insecure = true
Metrics = true
Traces = false

[telemetry.Headers]
authorization = "Bearer abc"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9090", cfg.RPCAddress)
	require.Equal(t, "prod", cfg.Environment)
	require.Equal(t, "genesis.yaml", cfg.GenesisFile)
	require.Equal(t, int64(2048), cfg.RPCMaxBodySize)
	require.Equal(t, []string{"viewctl"}, cfg.Auth.Audience)
	require.Equal(t, 30*time.Second, cfg.Auth.ClockSkew())
	require.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
	require.Equal(t, 5, cfg.RateLimit.Burst)
	require.Equal(t, 10*time.Minute, cfg.Idempotency.TTL())
	require.Equal(t, "postgres", cfg.EventIndex.Driver)
	require.Equal(t, cfg.EventIndex.DSN, cfg.EventIndexDSN())
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "Bearer abc", cfg.Telemetry.Headers["authorization"])
	require.True(t, cfg.Telemetry.Metrics)
	require.False(t, cfg.Telemetry.Traces)
	require.Equal(t, filepath.Join("/var/lib/viewledger", "ledger"), cfg.LedgerPath())
	require.Equal(t, filepath.Join("/var/lib/viewledger", "idempotency.db"), cfg.IdempotencyPath())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `RPCAddress = ":8080"
DataDir = "./data"
ListenAddress = ":6001"
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ListenAddress")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"bad address": `RPCAddress = "not-an-address"`,
		"zero rate": `[rate_limit]
RequestsPerSecond = 0
Burst = 1`,
		"unknown driver": `[event_index]
Enabled = true
Driver = "mysql"`,
		"postgres without dsn": `[event_index]
Enabled = true
Driver = "postgres"`,
		"short idempotency ttl": `[idempotency]
Enabled = true
TTLSeconds = 5`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestDefaultEventIndexDSNUnderDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data"
	require.Equal(t, filepath.Join("/data", "events.sqlite"), cfg.EventIndexDSN())

	cfg.EventIndex.Driver = "postgres"
	require.Equal(t, "", cfg.EventIndexDSN())
}

func TestAuthSecretResolution(t *testing.T) {
	t.Setenv("VIEWLEDGER_TEST_SECRET", "  from-env  ")

	secret, err := AuthConfig{HMACSecretEnv: "VIEWLEDGER_TEST_SECRET", HMACSecret: "literal"}.Secret()
	require.NoError(t, err)
	require.Equal(t, []byte("from-env"), secret)

	secret, err = AuthConfig{HMACSecret: "literal"}.Secret()
	require.NoError(t, err)
	require.Equal(t, []byte("literal"), secret)

	_, err = AuthConfig{HMACSecretEnv: "VIEWLEDGER_UNSET_SECRET"}.Secret()
	require.True(t, errors.Is(err, ErrMissingSecret))
	require.True(t, strings.Contains(err.Error(), "VIEWLEDGER_UNSET_SECRET"))
}
