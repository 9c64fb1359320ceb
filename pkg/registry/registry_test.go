package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n3n-project/n3n/pkg/mac"
	"github.com/n3n-project/n3n/pkg/netaddr"
	"github.com/n3n-project/n3n/pkg/stats"
)

func TestAddOrFindLearnByAddressThenPromoteOnMAC(t *testing.T) {
	r := New(stats.New())
	sock := netaddr.NewV4([4]byte{10, 0, 0, 1}, 4242)
	m := mac.Addr{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x10}

	mode := ModeAdd
	p1 := r.AddOrFind(sock, nil, &mode)
	require.NotNil(t, p1)
	assert.Equal(t, ModeAdded, mode)
	assert.True(t, p1.MAC.IsNull())

	mode = ModeNoAdd
	p2 := r.AddOrFind(sock, &m, &mode)
	require.NotNil(t, p2)
	assert.Equal(t, m, p2.MAC)
	assert.Same(t, p1, p2, "promotion must reuse the same Peer object")

	found, ok := r.Find(m)
	require.True(t, ok)
	assert.Same(t, p1, found)

	assert.Equal(t, 1, r.Len(), "the null-keyed entry must not linger after re-keying")
}

func TestAddOrFindLookupByMACHitDoesNotTouchSocket(t *testing.T) {
	r := New(stats.New())
	m := mac.Addr{1, 2, 3, 4, 5, 6}
	sockA := netaddr.NewV4([4]byte{10, 0, 0, 1}, 1)
	sockB := netaddr.NewV4([4]byte{10, 0, 0, 2}, 2)

	mode := ModeAdd
	r.AddOrFind(sockA, &m, &mode)

	mode = ModeAdd
	p := r.AddOrFind(sockB, &m, &mode)
	require.NotNil(t, p)
	assert.Equal(t, ModeAdd, mode, "a MAC hit must not report ModeAdded")
	assert.True(t, netaddr.Equal(sockA, p.Sock), "a MAC hit must not update the socket")
}

func TestAddOrFindNoAddReturnsNilOnMiss(t *testing.T) {
	r := New(stats.New())
	sock := netaddr.NewV4([4]byte{10, 0, 0, 1}, 1)
	mode := ModeNoAdd
	p := r.AddOrFind(sock, nil, &mode)
	assert.Nil(t, p)
}

func TestNoTwoPeersShareAMAC(t *testing.T) {
	r := New(stats.New())
	m := mac.Addr{9, 9, 9, 9, 9, 9}
	sockA := netaddr.NewV4([4]byte{10, 0, 0, 1}, 1)
	sockB := netaddr.NewV4([4]byte{10, 0, 0, 2}, 2)

	mode := ModeAdd
	first := r.AddOrFind(sockA, &m, &mode)

	mode = ModeAdd
	second := r.AddOrFind(sockB, &m, &mode)

	assert.Same(t, first, second, "a MAC hit must win over creating a second peer")
	assert.Equal(t, 1, r.Len())
}
