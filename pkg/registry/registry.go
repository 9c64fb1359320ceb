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

// Package registry implements the peer registry: a MAC-keyed associative
// store with the "learn by MAC, learn by address, promote on MAC
// discovery" reconciliation rules spec.md §4.2 requires.
package registry

import (
	"sync"

	"github.com/n3n-project/n3n/pkg/mac"
	"github.com/n3n-project/n3n/pkg/netaddr"
	"github.com/n3n-project/n3n/pkg/stats"
)

// DefaultSelection is the selection-criterion score a newly created Peer
// starts with. The score itself is opaque to the registry; callers own its
// meaning and update it after AddOrFind returns.
const DefaultSelection = 0

// Peer is one known peer: its MAC (the registry key), its current socket
// address, an opaque selection-criterion score, and — for supernodes — the
// hostname it was originally configured with.
type Peer struct {
	MAC       mac.Addr
	Sock      netaddr.Sockaddr
	Selection uint32
	Hostname  string
}

// Mode controls whether AddOrFind is allowed to insert a new Peer on a
// miss (ModeAdd) or must only look one up (ModeNoAdd). On insertion the
// caller's Mode is rewritten to ModeAdded so it can tell a fresh insert
// from a pre-existing hit.
type Mode int

const (
	// ModeNoAdd means AddOrFind must not create a new Peer.
	ModeNoAdd Mode = iota
	// ModeAdd means AddOrFind may create a new Peer on a miss.
	ModeAdd
	// ModeAdded is written back into the caller's Mode when AddOrFind
	// actually inserted a new Peer.
	ModeAdded
)

// Registry is the mutex-guarded MAC -> Peer mapping. The zero value is not
// usable; construct with New.
type Registry struct {
	mu    sync.RWMutex
	peers map[mac.Addr]*Peer
	stats stats.Stats
}

// New returns an empty Registry reporting through st.
func New(st stats.Stats) *Registry {
	return &Registry{peers: make(map[mac.Addr]*Peer), stats: st}
}

// AddOrFind implements the reconciliation rules of spec.md §4.2:
//
//  1. If m is non-null, look it up by MAC; a hit is returned without
//     touching its socket.
//  2. Otherwise (or on a MAC miss), scan for a peer already registered
//     under sock. If found and m is non-null, the peer is re-keyed: MAC is
//     the hash key, so it's removed, its MAC overwritten, and reinserted
//     rather than mutated in place.
//  3. If still not found and mode is ModeAdd, a new Peer is inserted under
//     m with DefaultSelection and sock, and mode is rewritten to
//     ModeAdded.
//  4. Otherwise AddOrFind returns nil.
func (r *Registry) AddOrFind(sock netaddr.Sockaddr, m *mac.Addr, mode *Mode) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m != nil && !m.IsNull() {
		if p, ok := r.peers[*m]; ok {
			return p
		}
	}

	for k, p := range r.peers {
		if !netaddr.Equal(p.Sock, sock) {
			continue
		}
		if m != nil && !m.IsNull() {
			delete(r.peers, k)
			p.MAC = *m
			r.peers[*m] = p
		}
		return p
	}

	if *mode != ModeAdd {
		return nil
	}

	p := &Peer{Sock: sock, Selection: DefaultSelection}
	if m != nil {
		p.MAC = *m
	}
	r.peers[p.MAC] = p
	*mode = ModeAdded
	r.stats.IncPeersRegistered()
	return p
}

// Find looks a peer up by MAC without the insertion side effects of
// AddOrFind.
func (r *Registry) Find(m mac.Addr) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[m]
	return p, ok
}

// Delete removes the peer keyed by m, if any.
func (r *Registry) Delete(m mac.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[m]; !ok {
		return
	}
	delete(r.peers, m)
	r.stats.IncPeersEvicted()
}

// Len reports the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Snapshot returns a new slice of the peers registered at the time of the
// call. The elements are the registry's own *Peer objects, not copies. Grounded
// on the read-mostly RWMutex snapshot style doublezero's
// ledgerPeerDiscovery.GetPeers uses for its own peer cache.
func (r *Registry) Snapshot() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}
