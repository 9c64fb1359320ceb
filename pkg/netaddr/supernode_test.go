package netaddr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver map[string][4]byte

func (f fakeResolver) ResolveIPv4(host string) ([4]byte, error) {
	a, ok := f[host]
	if !ok {
		return [4]byte{}, errors.New("no such host")
	}
	return a, nil
}

func TestParseSupernode(t *testing.T) {
	host, port, err := ParseSupernode("sn.example.com:7654")
	require.NoError(t, err)
	assert.Equal(t, "sn.example.com", host)
	assert.Equal(t, 7654, port)
}

func TestParseSupernodeTruncatesNonNumericPort(t *testing.T) {
	_, port, err := ParseSupernode("sn.example.com:7654garbage")
	require.NoError(t, err)
	assert.Equal(t, 7654, port)
}

func TestParseSupernodeMissingPort(t *testing.T) {
	_, _, err := ParseSupernode("sn.example.com")
	assert.Error(t, err)
}

func TestResolveSupernode(t *testing.T) {
	r := fakeResolver{"sn.example.com": [4]byte{1, 2, 3, 4}}
	sock, err := ResolveSupernode("sn.example.com:7654", r)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4:7654", sock.String())
}
