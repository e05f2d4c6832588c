package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, slog.LevelInfo))
	logger.Info("transition committed", slog.Uint64("height", 3))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "transition committed", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Contains(t, line, "timestamp")
	require.EqualValues(t, 3, line["height"])
}

func TestHandlerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, ParseLevel("warn")))
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	logger.Warn("kept")
	require.NotZero(t, buf.Len())
}

func TestMaskFieldRedactsUnlistedKeys(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("token", "eyJhbGciOi").Value.String())
	require.Equal(t, RedactedValue, MaskField("contentRef", "ipfs://bafy").Value.String())
	require.Equal(t, "paywall_unlock", MaskField("method", "paywall_unlock").Value.String())
	require.Equal(t, "2026-01-01", MaskField("genesisTime", "2026-01-01").Value.String())
	require.Equal(t, "", MaskField("token", "").Value.String())
}

func TestHandlerMasksSecretKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, slog.LevelInfo))
	logger.Info("event index opened",
		slog.String("driver", "postgres"),
		slog.String("dsn", "postgres://ledger:hunter2@db/events"),
		slog.Group("request", slog.String("Authorization", "Bearer abc")),
		slog.String("token", ""))

	require.NotContains(t, buf.String(), "hunter2")
	require.NotContains(t, buf.String(), "Bearer abc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "postgres", line["driver"])
	require.Equal(t, RedactedValue, line["dsn"])
	require.Equal(t, map[string]any{"Authorization": RedactedValue}, line["request"])
	require.Equal(t, "", line["token"])
}
