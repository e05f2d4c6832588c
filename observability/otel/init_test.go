package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestInitWithoutExportersIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "viewledgerd"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, err = Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestResourceCarriesLedgerAttributes(t *testing.T) {
	res, err := newResource(Config{
		ServiceName:   "viewledgerd",
		Environment:   "dev",
		LedgerBackend: "memory",
	})
	require.NoError(t, err)

	set := res.Set()
	value, ok := set.Value(attribute.Key("service.namespace"))
	require.True(t, ok)
	require.Equal(t, "viewledger", value.AsString())
	value, ok = set.Value(LedgerBackendKey)
	require.True(t, ok)
	require.Equal(t, "memory", value.AsString())
	value, ok = set.Value(attribute.Key("deployment.environment"))
	require.True(t, ok)
	require.Equal(t, "dev", value.AsString())
}

func TestResourceOmitsUnsetLedgerBackend(t *testing.T) {
	res, err := newResource(Config{ServiceName: "viewledgerd"})
	require.NoError(t, err)
	_, ok := res.Set().Value(LedgerBackendKey)
	require.False(t, ok)
}
