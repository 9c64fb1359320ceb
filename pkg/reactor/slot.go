/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package reactor implements the connection-slot reactor: a fixed pool of
// slots multiplexed over a readiness-polled descriptor set, speaking just
// enough HTTP/1.x framing (header terminator plus optional
// Content-Length) to carry management traffic.
package reactor

import (
	"bytes"
	"errors"
	"strconv"

	"golang.org/x/sys/unix"
)

// State is one of a Slot's lifecycle states.
type State int

const (
	// Empty means the slot holds no connection.
	Empty State = iota
	// Reading means a descriptor has been accepted and the reactor is
	// accumulating a request.
	Reading
	// Ready means a complete request has been framed and is waiting for
	// the application to attach a reply.
	Ready
	// Sending means a reply is attached and bytes remain to be written.
	Sending
	// Closed means the peer shut the connection down (a zero-byte read);
	// the pool closes the descriptor and recycles the slot at the end of
	// the pass.
	Closed
	// Error means a non-blocking I/O error other than EAGAIN/EWOULDBLOCK
	// occurred; the slot must be closed.
	Error
)

var (
	// ErrRequestTooLarge names the condition of a request (as framed by
	// Content-Length) exceeding the pool's requestMax. No function in this
	// package returns it: feedRead marks such a slot Error instead, and
	// the pool closes it as slot-fatal.
	ErrRequestTooLarge = errors.New("reactor: request exceeds request_max")

	crlfcrlf       = []byte("\r\n\r\n")
	contentLenHead = []byte("content-length:")
)

// Slot is one connection context: a descriptor, its state, the
// accumulating request buffer, an optional reply split into header and
// body (which may alias the request buffer — see SetReply), a
// send-cursor, and the wall-clock second of its last activity.
type Slot struct {
	fd    int
	state State

	request []byte
	bodyPos int // offset of CRLFCRLF+4 once known, else -1
	total   int // complete request length once known, else -1

	replyHeader []byte
	reply       []byte
	sendPos     int

	lastActivity int64
}

func newSlot() *Slot {
	return &Slot{fd: -1, state: Empty, bodyPos: -1, total: -1}
}

// FD reports the slot's descriptor, or -1 if the slot is free.
func (s *Slot) FD() int { return s.fd }

// Request returns the bytes of the most recently framed request. Valid
// only once State is Ready.
func (s *Slot) Request() []byte { return s.request }

// State reports the slot's current lifecycle state.
func (s *Slot) State() State { return s.state }

// reset clears a slot back to Empty. The request buffer is truncated to
// length zero and the reply header and body are set to nil, so an
// aliased reply==request pair is safe: both
// names just stop referencing any live bytes, and neither is closed or
// freed twice because there is nothing here to free beyond normal GC.
func (s *Slot) reset() {
	s.fd = -1
	s.state = Empty
	s.request = s.request[:0]
	s.bodyPos = -1
	s.total = -1
	s.replyHeader = nil
	s.reply = nil
	s.sendPos = 0
}

func (s *Slot) accept(fd int, now int64) {
	s.fd = fd
	s.state = Reading
	s.request = s.request[:0]
	s.bodyPos = -1
	s.total = -1
	s.lastActivity = now
}

// SetReply attaches a reply to a Ready slot; header and body are sent in
// order and body may alias Request() (the common case of echoing the
// inbound buffer back out). The slot becomes Sending at once, and the
// reactor writes the reply on its next writable pass.
func (s *Slot) SetReply(header, body []byte) {
	s.replyHeader = header
	s.reply = body
	s.sendPos = 0
	s.state = Sending
}

// requestMax is threaded in by the pool at read time; framing logic lives
// here because it only touches this slot's own buffer.
func (s *Slot) feedRead(chunk []byte, requestMax int, now int64) {
	s.request = append(s.request, chunk...)
	s.lastActivity = now

	if len(s.request) > requestMax && s.total < 0 {
		// Still haven't found a complete frame and already over budget:
		// slot-fatal per the Open Question in spec.md §9.
		s.state = Error
		return
	}

	if s.total >= 0 {
		if len(s.request) >= s.total {
			s.state = Ready
		}
		return
	}

	idx := bytes.Index(s.request, crlfcrlf)
	if idx < 0 {
		return
	}
	s.bodyPos = idx + len(crlfcrlf)

	cl := findContentLength(s.request[:s.bodyPos])
	if cl < 0 {
		s.total = s.bodyPos
	} else {
		s.total = s.bodyPos + cl
	}

	if s.total > requestMax {
		s.state = Error
		return
	}

	if len(s.request) >= s.total {
		s.state = Ready
	}
}

// findContentLength scans header bytes (case-insensitively) for a
// Content-Length field and parses its decimal value, truncating at the
// first non-digit the way supernode_parse's port parser does. Returns -1
// if the header is absent or unparsable.
func findContentLength(header []byte) int {
	lower := bytes.ToLower(header)
	idx := bytes.Index(lower, contentLenHead)
	if idx < 0 {
		return -1
	}
	rest := header[idx+len(contentLenHead):]
	i := 0
	for i < len(rest) && (rest[i] == ' ' || rest[i] == '\t') {
		i++
	}
	start := i
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i == start {
		return -1
	}
	n, err := strconv.Atoi(string(rest[start:i]))
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// writeReady sends as much of the reply as a single Writev call accepts,
// advancing sendPos. It returns true once the full reply has been sent,
// at which point the caller recycles the slot.
func (s *Slot) writeReady(now int64) (done bool, err error) {
	total := len(s.replyHeader) + len(s.reply)

	iovs := make([][]byte, 0, 2)
	if s.sendPos < len(s.replyHeader) {
		iovs = append(iovs, s.replyHeader[s.sendPos:])
	}
	bodyStart := s.sendPos - len(s.replyHeader)
	if bodyStart < 0 {
		bodyStart = 0
	}
	if bodyStart < len(s.reply) {
		iovs = append(iovs, s.reply[bodyStart:])
	}
	if len(iovs) == 0 {
		return true, nil
	}

	n, werr := unix.Writev(s.fd, iovs)
	if werr != nil {
		if errors.Is(werr, unix.EAGAIN) || errors.Is(werr, unix.EWOULDBLOCK) {
			return false, nil
		}
		return false, werr
	}

	s.sendPos += n
	s.lastActivity = now
	if s.sendPos >= total {
		return true, nil
	}
	return false, nil
}
