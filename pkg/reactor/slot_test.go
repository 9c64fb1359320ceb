package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedReadSimpleRequestBecomesReady(t *testing.T) {
	s := newSlot()
	s.state = Reading

	s.feedRead([]byte("GET / HTTP/1.0\r\n\r\n"), 4096, 1)
	assert.Equal(t, Ready, s.state)
}

func TestFeedReadWithContentLengthWaitsForBody(t *testing.T) {
	s := newSlot()
	s.state = Reading

	s.feedRead([]byte("POST / HTTP/1.0\r\nContent-Length: 5\r\n\r\n"), 4096, 1)
	require.Equal(t, Reading, s.state, "header alone must not complete the request")

	s.feedRead([]byte("HELLO"), 4096, 2)
	assert.Equal(t, Ready, s.state)
}

func TestFeedReadIncompleteHeaderStaysReading(t *testing.T) {
	s := newSlot()
	s.state = Reading

	s.feedRead([]byte("GET / HTTP/1.0\r\n"), 4096, 1)
	assert.Equal(t, Reading, s.state)
}

func TestFeedReadOverRequestMaxIsSlotFatal(t *testing.T) {
	s := newSlot()
	s.state = Reading

	s.feedRead([]byte("GET / HTTP/1.0\r\n"), 8, 1)
	assert.Equal(t, Error, s.state)
}

func TestFeedReadContentLengthOverRequestMaxIsSlotFatal(t *testing.T) {
	s := newSlot()
	s.state = Reading

	s.feedRead([]byte("POST / HTTP/1.0\r\nContent-Length: 999999\r\n\r\n"), 4096, 1)
	assert.Equal(t, Error, s.state)
}

func TestFeedReadSplitAcrossMultipleChunks(t *testing.T) {
	s := newSlot()
	s.state = Reading

	s.feedRead([]byte("GET "), 4096, 1)
	assert.Equal(t, Reading, s.state)
	s.feedRead([]byte("/ HTTP/1.0\r"), 4096, 1)
	assert.Equal(t, Reading, s.state)
	s.feedRead([]byte("\n\r\n"), 4096, 1)
	assert.Equal(t, Ready, s.state)
}

func TestFindContentLengthIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, 5, findContentLength([]byte("POST / HTTP/1.0\r\ncontent-LENGTH: 5\r\n\r\n")))
	assert.Equal(t, -1, findContentLength([]byte("GET / HTTP/1.0\r\n\r\n")))
}

func TestResetClearsAliasedReplyAndRequestSafely(t *testing.T) {
	s := newSlot()
	s.state = Ready
	s.request = []byte("HELLO")
	s.SetReply(nil, s.request) // reply aliases request, the common case

	s.reset()
	assert.Equal(t, Empty, s.state)
	assert.Nil(t, s.reply)
	assert.Equal(t, 0, len(s.request))
}
