package core

import (
	"encoding/hex"
	"strconv"
	"sync"
)

// Peer is the tuple (host, port, username, agreement-public-key),
// deduplicated by full tuple equality.
type Peer struct {
	Host         string
	Port         int
	Username     string
	AgreementKey []byte
}

func (p Peer) key() string {
	return p.Host + "|" + strconv.Itoa(p.Port) + "|" + p.Username + "|" + hex.EncodeToString(p.AgreementKey)
}

// PeerRegistry is the logical, deduplicated peer set shared by reference
// between the discovery subsystem and the P2P façade. A coarse mutex is
// the chosen strategy.
type PeerRegistry struct {
	mu   sync.RWMutex
	self Peer
	set  map[string]Peer
}

// NewPeerRegistry creates a registry that will silently skip insertion of
// self.
func NewPeerRegistry(self Peer) *PeerRegistry {
	return &PeerRegistry{self: self, set: make(map[string]Peer)}
}

// Add inserts p unless it equals self; duplicates are idempotent. Returns true if p was
// newly added.
func (r *PeerRegistry) Add(p Peer) bool {
	if p.key() == r.self.key() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.set[p.key()]; exists {
		return false
	}
	r.set[p.key()] = p
	return true
}

// Remove deletes p from the set, if present.
func (r *PeerRegistry) Remove(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.set, p.key())
}

// List returns a snapshot of the current peer set.
func (r *PeerRegistry) List() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Peer, 0, len(r.set))
	for _, p := range r.set {
		out = append(out, p)
	}
	return out
}

// Len reports the number of known peers (excluding self).
func (r *PeerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.set)
}
