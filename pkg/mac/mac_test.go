package mac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	m := Addr{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x10}
	require.Equal(t, "DE:AD:BE:EF:01:10", m.String())

	got, err := Parse(m.String())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestParseToleratesAnySeparator(t *testing.T) {
	got, err := Parse("DE-AD.BE EF:01_10")
	require.NoError(t, err)
	assert.Equal(t, Addr{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x10}, got)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("DE:AD:BE")
	assert.Error(t, err)

	_, err = Parse("ZZ:AD:BE:EF:01:10")
	assert.Error(t, err)
}

func TestClassifiers(t *testing.T) {
	assert.True(t, Broadcast.IsBroadcast())
	assert.True(t, Zero.IsNull())

	m, err := Parse("01:00:5E:00:00:01")
	require.NoError(t, err)
	assert.True(t, m.IsMultiBroadcast())

	m, err = Parse("01:00:5E:FF:00:00")
	require.NoError(t, err)
	assert.False(t, m.IsMultiBroadcast())

	m, err = Parse("33:33:00:00:00:01")
	require.NoError(t, err)
	assert.True(t, m.IsMultiBroadcast())

	assert.True(t, Zero.IsNull())
	assert.False(t, Broadcast.IsNull())
}
