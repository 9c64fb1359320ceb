package resolver

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n3n-project/n3n/pkg/netaddr"
	"github.com/n3n-project/n3n/pkg/stats"
)

type fakeResolver struct {
	addrs map[string][4]byte
	fail  map[string]bool
}

func (f *fakeResolver) ResolveIPv4(host string) ([4]byte, error) {
	if f.fail[host] {
		return [4]byte{}, errors.New("resolution failed")
	}
	a, ok := f.addrs[host]
	if !ok {
		return [4]byte{}, errors.New("unknown host")
	}
	return a, nil
}

func newTestState(t *testing.T, r *fakeResolver, hostnames ...string) (*State, []*Entry) {
	t.Helper()
	entries := make([]*Entry, len(hostnames))
	backs := make([]netaddr.Sockaddr, len(hostnames))
	for i, h := range hostnames {
		entries[i] = &Entry{Hostname: h + ":9993", BackRef: &backs[i]}
	}
	s := newState(r, entries, stats.New()) // no goroutine: we drive resolvePass ourselves
	return s, entries
}

func TestResolvePassStagesNewSockets(t *testing.T) {
	r := &fakeResolver{addrs: map[string][4]byte{"sn1": {1, 2, 3, 4}}}
	s, entries := newTestState(t, r, "sn1")

	s.resolvePass()

	require.NoError(t, entries[0].LastError())
	assert.True(t, s.changed)
	assert.Equal(t, "1.2.3.4:9993", entries[0].staged.String())
}

func TestResolvePassPreservesLastGoodOnError(t *testing.T) {
	r := &fakeResolver{addrs: map[string][4]byte{"sn1": {1, 2, 3, 4}}}
	s, entries := newTestState(t, r, "sn1")
	s.resolvePass()
	s.changed = false

	r.fail = map[string]bool{"sn1": true}
	s.request = true
	s.resolvePass()

	require.Error(t, entries[0].LastError())
	assert.Equal(t, "1.2.3.4:9993", entries[0].staged.String(), "prior good value must be preserved on error")
	assert.False(t, s.changed, "an errored entry must not announce a change")
	assert.Equal(t, FastInterval, s.repTime, "a failed pass shortens the retry interval")
}

func TestCheckPublishesAllEntriesWhenChanged(t *testing.T) {
	r := &fakeResolver{addrs: map[string][4]byte{"sn1": {1, 2, 3, 4}, "sn2": {5, 6, 7, 8}}}
	s, entries := newTestState(t, r, "sn1", "sn2")
	s.resolvePass()
	require.True(t, s.changed)

	ret := s.Check(false, time.Now())
	assert.False(t, s.changed, "Check must clear changed once published")
	assert.False(t, ret, "no urgent request was made, so Check echoes requiresResolution")

	assert.Equal(t, "1.2.3.4:9993", entries[0].BackRef.String())
	assert.Equal(t, "5.6.7.8:9993", entries[1].BackRef.String())
}

func TestCheckRequestsUrgentResolutionAndReturnsFalse(t *testing.T) {
	r := &fakeResolver{addrs: map[string][4]byte{"sn1": {1, 1, 1, 1}}}
	s, _ := newTestState(t, r, "sn1")

	ret := s.Check(true, time.Now())
	assert.False(t, ret, "an urgent request successfully communicated must return false")
	assert.True(t, s.request)
	assert.Equal(t, FastCheckInterval, s.checkInterval)
}

func TestCheckNeverBlocksOnContendedLock(t *testing.T) {
	r := &fakeResolver{addrs: map[string][4]byte{"sn1": {1, 1, 1, 1}}}
	s, _ := newTestState(t, r, "sn1")

	s.mu.Lock()
	done := make(chan bool, 1)
	go func() {
		done <- s.Check(true, time.Now())
	}()

	select {
	case ret := <-done:
		assert.True(t, ret, "caller must retry later when the lock is contended")
	case <-time.After(time.Second):
		t.Fatal("Check blocked on a contended lock")
	}
	s.mu.Unlock()
}

func TestDegradedModeAlwaysRequiresResolution(t *testing.T) {
	entries := []*Entry{{Hostname: "sn1:9993"}}
	s := CreateDegraded(entries, stats.New())
	assert.True(t, s.Check(false, time.Now()))
	assert.True(t, s.Check(true, time.Now()))
	s.Cancel() // must be a no-op, not a hang
}
