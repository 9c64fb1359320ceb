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

// Package resolver implements adaptive, asynchronous re-resolution of
// supernode hostnames with double-buffered publication into the peer
// registry: a background worker re-resolves into a private staging
// socket, and the consumer (the main loop) copies staged results into the
// peer registry on its own schedule, never blocking on the worker's lock.
//
// The two-goroutine split and its "sleep, take the lock, do bounded work,
// release" shape is adapted from the periodic UTC-offset refresh loop in
// ptp4u's server.Start, generalized to a list of independently-resolved
// entries and the adaptive retry-interval rule spec.md §4.3 requires.
package resolver

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/n3n-project/n3n/pkg/netaddr"
	"github.com/n3n-project/n3n/pkg/stats"
)

const (
	// Interval is the steady-state re-resolution period (spec.md's
	// N2N_RESOLVE_INTERVAL).
	Interval = 60 * time.Second
	// FastInterval is the shortened retry period applied after any
	// resolution failure.
	FastInterval = Interval / 10
	// WorkerTick is how often the worker wakes up to check whether it's
	// time to re-resolve (spec.md's N2N_RESOLVE_INTERVAL / 60).
	WorkerTick = Interval / 60
	// CheckInterval is the steady-state minimum gap between consumer
	// publish passes.
	CheckInterval = 5 * time.Second
	// FastCheckInterval is the shortened gap once an urgent resolution
	// has been requested.
	FastCheckInterval = CheckInterval / 10
)

// Entry binds one supernode peer to its hostname. BackRef is a
// non-owning reference into the peer's socket field; per spec.md §9 this
// would be modeled as a registry index plus field selector in a language
// with strict aliasing rules — in Go a pointer into the Peer struct is
// safe since the GC tracks it, but the same discipline applies: BackRef is
// only ever read or written while State's mutex is held.
type Entry struct {
	Hostname string
	BackRef  *netaddr.Sockaddr

	staged  netaddr.Sockaddr
	lastErr error
}

// LastError reports the most recent resolution error for this entry, or
// nil if the last attempt succeeded.
func (e *Entry) LastError() error {
	return e.lastErr
}

// State is the resolver's shared, mutex-guarded parameter block: the
// entry list plus the scalars spec.md §4.3 and §5 describe. lastChecked
// and checkInterval are touched only by the consumer and need no
// protection of their own, per spec.md §5.
type State struct {
	resolver netaddr.Resolver

	mu      sync.Mutex
	entries []*Entry
	request bool
	changed bool

	lastResolved time.Time
	repTime      time.Duration

	lastChecked   time.Time
	checkInterval time.Duration

	degraded bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	stats stats.Stats
}

// newState builds the parameter block without starting the worker
// goroutine, shared by Create and CreateDegraded.
func newState(r netaddr.Resolver, entries []*Entry, st stats.Stats) *State {
	return &State{
		resolver:      r,
		entries:       entries,
		repTime:       Interval,
		checkInterval: CheckInterval,
		stats:         st,
	}
}

// Create allocates the resolver state, seeds one entry per supernode, and
// starts the background worker goroutine. st is the counter block resolver
// passes, failures, and publishes are reported through.
func Create(r netaddr.Resolver, entries []*Entry, st stats.Stats) *State {
	s := newState(r, entries, st)
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run()
	return s
}

// CreateDegraded returns a State for a platform without thread support
// (spec.md §9's degraded mode, never actually reachable in Go but modeled
// for lifecycle parity with the reference). No worker runs; Check is a
// pass-through that always reports resolution is still required. Callers
// must still call Check so the requires-resolution path stays well-defined.
func CreateDegraded(entries []*Entry, st stats.Stats) *State {
	s := newState(nil, entries, st)
	s.degraded = true
	return s
}

// Cancel stops the background worker and waits for it to exit. It is a
// no-op in degraded mode.
func (s *State) Cancel() {
	if s.degraded {
		return
	}
	close(s.stopCh)
	<-s.doneCh
}

// run is the worker goroutine: spec.md §4.3's producer loop.
func (s *State) run() {
	defer close(s.doneCh)
	ticker := time.NewTicker(WorkerTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.resolvePass()
		}
	}
}

func (s *State) resolvePass() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if !s.request && now.Sub(s.lastResolved) <= s.repTime {
		return
	}

	s.stats.IncResolverPasses()

	allOK := true
	for _, e := range s.entries {
		sock, err := netaddr.ResolveSupernode(e.Hostname, s.resolver)
		e.lastErr = err
		if err != nil {
			log.Warningf("resolver: resolving %q: %v", e.Hostname, err)
			s.stats.IncResolverFailures()
			allOK = false
			continue
		}
		if e.BackRef == nil || !netaddr.Equal(sock, *e.BackRef) {
			s.changed = true
		}
		e.staged = sock
	}

	s.lastResolved = now
	s.request = false
	if allOK {
		s.repTime = Interval
	} else {
		s.repTime = FastInterval
	}
}

// Check is the non-blocking consumer of spec.md §4.3. It returns 0 (false)
// if it successfully informed the resolver of an urgent need, or
// requiresResolution unchanged otherwise so the caller retries later. It
// never blocks: a contended lock simply defers to the next call.
func (s *State) Check(requiresResolution bool, now time.Time) bool {
	if s.degraded {
		return true
	}

	if !requiresResolution && now.Sub(s.lastChecked) <= s.checkInterval {
		return requiresResolution
	}

	if !s.mu.TryLock() {
		return requiresResolution
	}
	defer s.mu.Unlock()

	if s.changed {
		for _, e := range s.entries {
			if e.BackRef != nil {
				*e.BackRef = e.staged
			}
		}
		s.changed = false
		s.stats.IncResolverPublishes()
	}

	ret := requiresResolution
	if requiresResolution {
		s.request = true
		ret = false
	}

	s.lastChecked = now
	if s.request {
		s.checkInterval = FastCheckInterval
	} else {
		s.checkInterval = CheckInterval
	}

	return ret
}
