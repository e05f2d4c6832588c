package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityRoundTrip(t *testing.T) {
	var id [20]byte
	for i := range id {
		id[i] = byte(i + 1)
	}
	encoded := FormatIdentity(id)
	require.Contains(t, encoded, "view1")

	decoded, err := ParseIdentity(encoded)
	require.NoError(t, err)
	require.Equal(t, id, decoded)
}

func TestParseIdentityRejectsForeignPrefix(t *testing.T) {
	var id [20]byte
	id[19] = 7
	other := MustNewAddress("cosmos", id[:]).String()

	_, err := ParseIdentity(other)
	require.Error(t, err)

	_, err = ParseIdentity("  ")
	require.ErrorIs(t, err, errEmptyAddress)
}

func TestNewAddressValidatesLength(t *testing.T) {
	_, err := NewAddress(ViewPrefix, []byte{1, 2, 3})
	require.Error(t, err)
}
