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

package reactor

import (
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/n3n-project/n3n/pkg/stats"
)

// MaxListeners is the compile-time cap on listening descriptors a Pool
// can hold, matching spec.md §3's "small array... up to a compile-time
// cap".
const MaxListeners = 4

// ListenBacklog is the deliberately low backlog used on every listening
// socket the pool creates, the load-shedding knob spec.md §6 calls for.
const ListenBacklog = 1

var (
	// ErrNoFreeSlot is slots_accept's -2: the caller presented a
	// listener while the pool was already full.
	ErrNoFreeSlot = errors.New("reactor: no free slot")
	// ErrTooManyListeners is slots_listen_*'s -2.
	ErrTooManyListeners = errors.New("reactor: listener capacity exhausted")
)

// Pool is a fixed array of slots plus the listening descriptors accepted
// connections are distributed from. The zero value is not usable;
// construct with NewPool. A Pool is not safe for concurrent use — per
// spec.md §5 the reactor runs single-threaded on one event loop.
type Pool struct {
	slots       []*Slot
	listenFDs   []int
	idleTimeout time.Duration
	requestMax  int
	openCount   int
	stats       stats.Stats
}

// NewPool allocates n slots. idleTimeout bounds how long a slot may sit
// without activity before CloseIdle reaps it; requestMax caps a single
// request's framed length. st is the counter block accept/close/error
// events are reported through.
func NewPool(n int, idleTimeout time.Duration, requestMax int, st stats.Stats) *Pool {
	slots := make([]*Slot, n)
	for i := range slots {
		slots[i] = newSlot()
	}
	return &Pool{slots: slots, idleTimeout: idleTimeout, requestMax: requestMax, stats: st}
}

// OpenCount reports how many slots currently hold a connection.
func (p *Pool) OpenCount() int { return p.openCount }

// ReadySlots returns every slot currently holding a fully-framed request
// awaiting a reply, so a caller's own event loop can drive an application
// handler over them and call SetReply without reaching into Pool internals.
func (p *Pool) ReadySlots() []*Slot {
	var ready []*Slot
	for _, s := range p.slots {
		if s.state == Ready {
			ready = append(ready, s)
		}
	}
	return ready
}

// AddListener registers an already-bound, listening descriptor with the
// pool, up to MaxListeners.
func (p *Pool) AddListener(fd int) error {
	if len(p.listenFDs) >= MaxListeners {
		return ErrTooManyListeners
	}
	p.listenFDs = append(p.listenFDs, fd)
	return nil
}

// ListenTCP binds and listens on port, preferring an AF_INET6 dual-stack
// socket (IPV6_V6ONLY disabled, so v4 clients arrive as v4-mapped v6
// addresses) and falling back to AF_INET if the v6 socket cannot be
// created, bound, or listened on. Grounded on worker.go's listen():
// unix.Socket/SetsockoptInt/Bind sequence, generalized to TCP and to the
// dual-stack fallback spec.md §6 requires (ptp4u never needed the
// fallback since it always listens on one specific configured IP).
func (p *Pool) ListenTCP(port int) (int, error) {
	fd, err := listenTCP6(port)
	if err == nil {
		if aerr := p.AddListener(fd); aerr != nil {
			unix.Close(fd)
			return -1, aerr
		}
		return fd, nil
	}
	log.Warningf("reactor: AF_INET6 listen on port %d failed, falling back to AF_INET: %v", port, err)

	fd, err = listenTCP4(port)
	if err != nil {
		return -1, err
	}
	if aerr := p.AddListener(fd); aerr != nil {
		unix.Close(fd)
		return -1, aerr
	}
	return fd, nil
}

func listenTCP6(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("creating ipv6 listen socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setting SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("clearing IPV6_V6ONLY: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet6{Port: port}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("binding ipv6 listen socket: %w", err)
	}
	if err := unix.Listen(fd, ListenBacklog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listening on ipv6 socket: %w", err)
	}
	return fd, nil
}

func listenTCP4(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("creating ipv4 listen socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setting SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("binding ipv4 listen socket: %w", err)
	}
	if err := unix.Listen(fd, ListenBacklog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listening on ipv4 socket: %w", err)
	}
	return fd, nil
}

// ListenUnix binds a filesystem-pathed local listener, removing any stale
// path first. mode of 0 leaves the default umask-derived permissions;
// uid/gid of -1 leave ownership unchanged.
func (p *Pool) ListenUnix(path string, mode os.FileMode, uid, gid int) (int, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return -1, fmt.Errorf("removing stale socket path %q: %w", path, err)
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("creating unix listen socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("binding unix socket %q: %w", path, err)
	}
	if mode != 0 {
		if err := unix.Fchmod(fd, uint32(mode)); err != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("chmod unix socket %q: %w", path, err)
		}
	}
	if uid >= 0 || gid >= 0 {
		if err := unix.Fchown(fd, uid, gid); err != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("chown unix socket %q: %w", path, err)
		}
	}
	if err := unix.Listen(fd, ListenBacklog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listening on unix socket %q: %w", path, err)
	}
	if aerr := p.AddListener(fd); aerr != nil {
		unix.Close(fd)
		return -1, aerr
	}
	return fd, nil
}

func (p *Pool) freeSlot() *Slot {
	for _, s := range p.slots {
		if s.state == Empty {
			return s
		}
	}
	return nil
}

// accept pulls one pending connection off fd into a free slot, setting it
// non-blocking. Returns ErrNoFreeSlot (slots_accept's -2) if the pool is
// saturated.
func (p *Pool) accept(fd int, now int64) error {
	s := p.freeSlot()
	if s == nil {
		return ErrNoFreeSlot
	}
	connFD, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return nil
		}
		return fmt.Errorf("accept: %w", err)
	}
	s.accept(connFD, now)
	p.openCount++
	p.stats.IncSlotAccepts()
	return nil
}

// pollEntry pairs a PollFd with the slot (nil for a listener) it
// represents, so RunOnce doesn't have to re-derive the mapping after
// unix.Poll fills in Revents.
type pollEntry struct {
	fd     unix.PollFd
	slot   *Slot
	isListener bool
}

// buildPollSet is fdset: every non-empty slot is marked readable (and
// also writable while Sending), and every listener is marked readable
// only while nr_open < nr_slots, the load-shedding rule spec.md §4.4
// describes.
func (p *Pool) buildPollSet() []pollEntry {
	entries := make([]pollEntry, 0, len(p.slots)+len(p.listenFDs))
	for _, s := range p.slots {
		if s.state == Empty || s.state == Closed {
			continue
		}
		var events int16 = unix.POLLIN
		if s.state == Sending {
			events |= unix.POLLOUT
		}
		entries = append(entries, pollEntry{fd: unix.PollFd{Fd: int32(s.fd), Events: events}, slot: s})
	}
	if p.openCount < len(p.slots) {
		for _, lfd := range p.listenFDs {
			entries = append(entries, pollEntry{fd: unix.PollFd{Fd: int32(lfd), Events: unix.POLLIN}, isListener: true})
		}
	}
	return entries
}

// RunOnce is fdset_loop: it polls the current readiness set for up to
// timeoutMs milliseconds, accepts any ready listeners into free slots,
// then services every ready slot (read if readable, close on
// Closed/Error, write if writable). now is the wall-clock second stamped
// onto slots touched this pass.
func (p *Pool) RunOnce(timeoutMs int, now int64) error {
	entries := p.buildPollSet()
	if len(entries) == 0 {
		return nil
	}
	pollfds := make([]unix.PollFd, len(entries))
	for i, e := range entries {
		pollfds[i] = e.fd
	}

	n, err := unix.Poll(pollfds, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return nil
	}

	for i, e := range entries {
		if !e.isListener || pollfds[i].Revents == 0 {
			continue
		}
		listenerFD := int(e.fd.Fd)
		if err := p.accept(listenerFD, now); err != nil && !errors.Is(err, ErrNoFreeSlot) {
			log.Warningf("reactor: accept on listener fd %d: %v", listenerFD, err)
		}
	}
	for i, e := range entries {
		revents := pollfds[i].Revents
		if e.isListener || revents == 0 {
			continue
		}
		p.serviceSlot(e.slot, revents, now)
	}

	p.reapClosed()
	return nil
}

func (p *Pool) serviceSlot(s *Slot, revents int16, now int64) {
	if revents&unix.POLLIN != 0 && s.state == Reading {
		buf := make([]byte, 4096)
		n, err := unix.Read(s.fd, buf)
		switch {
		case n == 0 && err == nil:
			s.state = Closed
		case err != nil && errors.Is(err, unix.EAGAIN):
			// spurious wakeup; stay in Reading
		case err != nil && errors.Is(err, unix.EWOULDBLOCK):
		case err != nil:
			s.state = Error
			p.stats.IncSlotErrors()
		default:
			s.feedRead(buf[:n], p.requestMax, now)
			if s.state == Error {
				p.stats.IncSlotErrors()
			}
		}
	}

	if (s.state == Closed || s.state == Error) && revents&(unix.POLLIN|unix.POLLOUT) != 0 {
		return
	}

	if revents&unix.POLLOUT != 0 && s.state == Sending {
		done, err := s.writeReady(now)
		switch {
		case err != nil:
			s.state = Error
			p.stats.IncSlotErrors()
		case done:
			unix.Close(s.fd)
			s.reset()
			p.openCount--
			p.stats.IncSlotCloses()
		}
	}
}

// reapClosed closes and recycles every slot left in Closed or Error by
// this pass's reads or writes.
func (p *Pool) reapClosed() {
	for _, s := range p.slots {
		if s.state == Closed || s.state == Error {
			unix.Close(s.fd)
			s.reset()
			p.openCount--
			p.stats.IncSlotCloses()
		}
	}
}

// CloseIdle closes every non-empty slot whose last activity is older than
// the pool's configured idle timeout, as of now. It returns the number of
// slots reaped.
func (p *Pool) CloseIdle(now time.Time) int {
	cutoff := now.Unix() - int64(p.idleTimeout/time.Second)
	closed := 0
	for _, s := range p.slots {
		if s.state == Empty {
			continue
		}
		if s.lastActivity <= cutoff {
			unix.Close(s.fd)
			s.reset()
			p.openCount--
			closed++
		}
	}
	return closed
}

// Close tears down every slot and listener, releasing all descriptors.
func (p *Pool) Close() {
	for _, s := range p.slots {
		if s.state != Empty {
			unix.Close(s.fd)
			s.reset()
		}
	}
	p.openCount = 0
	for _, fd := range p.listenFDs {
		unix.Close(fd)
	}
	p.listenFDs = nil
}
