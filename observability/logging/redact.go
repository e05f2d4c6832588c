package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// clearKeys are the attribute keys the daemon logs in the clear. MaskField
// redacts any other key.
var clearKeys = map[string]struct{}{
	"service":     {},
	"env":         {},
	"message":     {},
	"severity":    {},
	"timestamp":   {},
	"error":       {},
	"component":   {},
	"method":      {},
	"type":        {},
	"outcome":     {},
	"height":      {},
	"root":        {},
	"seq":         {},
	"events":      {},
	"removed":     {},
	"indexed":     {},
	"eventindex":  {},
	"idempotency": {},
	"genesistime": {},
	"allocations": {},
	"driver":      {},
	"path":        {},
	"address":     {},
}

// secretKeys are masked by the handler regardless of the call site. They
// cover the RPC credentials and the config fields that carry secrets.
var secretKeys = map[string]struct{}{
	"authorization":   {},
	"token":           {},
	"idempotency-key": {},
	"idempotencykey":  {},
	"hmacsecret":      {},
	"jwtsecret":       {},
	"dsn":             {},
	"headers":         {},
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsAllowlisted reports whether key may be logged without redaction.
func IsAllowlisted(key string) bool {
	_, ok := clearKeys[normalizeKey(key)]
	return ok
}

// IsSecret reports whether the handler always masks values under key.
func IsSecret(key string) bool {
	_, ok := secretKeys[normalizeKey(key)]
	return ok
}

// MaskField returns a slog.Attr that redacts value unless key is allowlisted.
// Empty values pass through so missing settings stay visible.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

func redactAttr(attr slog.Attr) slog.Attr {
	if !IsSecret(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
