package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/n3n-project/n3n/pkg/stats"
)

func socketpair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestBuildPollSetShedsListenersWhenPoolIsFull(t *testing.T) {
	p := NewPool(1, time.Minute, 4096, stats.New())
	require.NoError(t, p.AddListener(999)) // fd value never dereferenced by buildPollSet

	entries := p.buildPollSet()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].isListener)

	a, _ := socketpair(t)
	p.slots[0].accept(a, 1)
	p.openCount++

	entries = p.buildPollSet()
	require.Len(t, entries, 1, "a full pool must not offer its listener for reading")
	assert.False(t, entries[0].isListener)
}

func TestRunOnceReadsACompleteRequestIntoReady(t *testing.T) {
	p := NewPool(1, time.Minute, 4096, stats.New())
	a, b := socketpair(t)
	p.slots[0].accept(a, 1)
	p.openCount = 1

	_, err := unix.Write(b, []byte("GET / HTTP/1.0\r\n\r\n"))
	require.NoError(t, err)

	require.NoError(t, p.RunOnce(1000, 2))
	assert.Equal(t, Ready, p.slots[0].state)
}

func TestRunOnceSendsAttachedReply(t *testing.T) {
	p := NewPool(1, time.Minute, 4096, stats.New())
	a, b := socketpair(t)
	p.slots[0].accept(a, 1)
	p.openCount = 1
	p.slots[0].state = Ready
	p.slots[0].SetReply([]byte("HTTP/1.0 200 OK\r\n\r\n"), []byte("ok"))

	require.NoError(t, p.RunOnce(1000, 2))
	assert.Equal(t, 0, p.openCount, "a fully-sent reply recycles its slot")

	buf := make([]byte, 64)
	n, err := unix.Read(b, buf)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.0 200 OK\r\n\r\nok", string(buf[:n]))
}

func TestCloseIdleReapsStaleSlotsOnly(t *testing.T) {
	p := NewPool(2, 10*time.Second, 4096, stats.New())
	a, _ := socketpair(t)
	c, _ := socketpair(t)

	p.slots[0].accept(a, 0)
	p.openCount++
	p.slots[1].accept(c, 100)
	p.openCount++

	closed := p.CloseIdle(time.Unix(100, 0))
	assert.Equal(t, 1, closed)
	assert.Equal(t, Empty, p.slots[0].state)
	assert.Equal(t, Reading, p.slots[1].state)
	assert.Equal(t, 1, p.openCount)
}

func TestAcceptReturnsErrNoFreeSlotWhenPoolIsFull(t *testing.T) {
	p := NewPool(0, time.Minute, 4096, stats.New())
	err := p.accept(0, 1)
	assert.ErrorIs(t, err, ErrNoFreeSlot)
}
