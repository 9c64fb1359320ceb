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

// Package stats implements statistics collection and reporting for the
// core runtime: atomic counters covering the peer registry, resolver, and
// slot reactor, exposed both as a JSON HTTP snapshot and as Prometheus
// metrics.
package stats

import "sync/atomic"

// Stats is the metric collection interface the core's components report
// through, mirroring ptp4u/stats.Stats's shape but with this domain's
// counter set.
type Stats interface {
	IncPeersRegistered()
	IncPeersEvicted()

	IncResolverPasses()
	IncResolverFailures()
	IncResolverPublishes()

	IncSlotAccepts()
	IncSlotCloses()
	IncSlotErrors()
	IncSlotIdleCloses()

	// Snapshot copies the live counters into the reporting buffer, each
	// counter with its own atomic load and store. The copy is not atomic
	// as a set: a reader running alongside Snapshot may see some counters
	// from before it and some from after.
	Snapshot()
	// Reset zeroes every live counter; the reporting buffer keeps its
	// values until the next Snapshot.
	Reset()
	// ToMap returns the most recent snapshot as a flat string-keyed map,
	// the shape both the JSON handler and the Prometheus collector build
	// on.
	ToMap() map[string]int64
}

// counters is the live, atomically-updated counter block.
type counters struct {
	peersRegistered int64
	peersEvicted    int64

	resolverPasses     int64
	resolverFailures   int64
	resolverPublishes  int64

	slotAccepts     int64
	slotCloses      int64
	slotErrors      int64
	slotIdleCloses  int64
}

func (c *counters) reset() {
	atomic.StoreInt64(&c.peersRegistered, 0)
	atomic.StoreInt64(&c.peersEvicted, 0)
	atomic.StoreInt64(&c.resolverPasses, 0)
	atomic.StoreInt64(&c.resolverFailures, 0)
	atomic.StoreInt64(&c.resolverPublishes, 0)
	atomic.StoreInt64(&c.slotAccepts, 0)
	atomic.StoreInt64(&c.slotCloses, 0)
	atomic.StoreInt64(&c.slotErrors, 0)
	atomic.StoreInt64(&c.slotIdleCloses, 0)
}

func (c *counters) copyFrom(src *counters) {
	atomic.StoreInt64(&c.peersRegistered, atomic.LoadInt64(&src.peersRegistered))
	atomic.StoreInt64(&c.peersEvicted, atomic.LoadInt64(&src.peersEvicted))
	atomic.StoreInt64(&c.resolverPasses, atomic.LoadInt64(&src.resolverPasses))
	atomic.StoreInt64(&c.resolverFailures, atomic.LoadInt64(&src.resolverFailures))
	atomic.StoreInt64(&c.resolverPublishes, atomic.LoadInt64(&src.resolverPublishes))
	atomic.StoreInt64(&c.slotAccepts, atomic.LoadInt64(&src.slotAccepts))
	atomic.StoreInt64(&c.slotCloses, atomic.LoadInt64(&src.slotCloses))
	atomic.StoreInt64(&c.slotErrors, atomic.LoadInt64(&src.slotErrors))
	atomic.StoreInt64(&c.slotIdleCloses, atomic.LoadInt64(&src.slotIdleCloses))
}

func (c *counters) toMap() map[string]int64 {
	return map[string]int64{
		"peers.registered":    atomic.LoadInt64(&c.peersRegistered),
		"peers.evicted":       atomic.LoadInt64(&c.peersEvicted),
		"resolver.passes":     atomic.LoadInt64(&c.resolverPasses),
		"resolver.failures":   atomic.LoadInt64(&c.resolverFailures),
		"resolver.publishes":  atomic.LoadInt64(&c.resolverPublishes),
		"slot.accepts":        atomic.LoadInt64(&c.slotAccepts),
		"slot.closes":         atomic.LoadInt64(&c.slotCloses),
		"slot.errors":         atomic.LoadInt64(&c.slotErrors),
		"slot.idle_closes":    atomic.LoadInt64(&c.slotIdleCloses),
	}
}

// liveStats is the concrete Stats implementation: a live counters block
// plus a reporting snapshot, same split ptp4u/stats.JSONStats uses so
// readers see the values of the last Snapshot rather than live counters.
type liveStats struct {
	live   counters
	report counters
}

// New returns a ready-to-use Stats.
func New() Stats {
	return &liveStats{}
}

func (s *liveStats) IncPeersRegistered()   { atomic.AddInt64(&s.live.peersRegistered, 1) }
func (s *liveStats) IncPeersEvicted()      { atomic.AddInt64(&s.live.peersEvicted, 1) }
func (s *liveStats) IncResolverPasses()    { atomic.AddInt64(&s.live.resolverPasses, 1) }
func (s *liveStats) IncResolverFailures()  { atomic.AddInt64(&s.live.resolverFailures, 1) }
func (s *liveStats) IncResolverPublishes() { atomic.AddInt64(&s.live.resolverPublishes, 1) }
func (s *liveStats) IncSlotAccepts()       { atomic.AddInt64(&s.live.slotAccepts, 1) }
func (s *liveStats) IncSlotCloses()        { atomic.AddInt64(&s.live.slotCloses, 1) }
func (s *liveStats) IncSlotErrors()        { atomic.AddInt64(&s.live.slotErrors, 1) }
func (s *liveStats) IncSlotIdleCloses()    { atomic.AddInt64(&s.live.slotIdleCloses, 1) }

func (s *liveStats) Snapshot() { s.report.copyFrom(&s.live) }
func (s *liveStats) Reset()    { s.live.reset() }

func (s *liveStats) ToMap() map[string]int64 { return s.report.toMap() }
