package netaio

import (
	"sync"
	"time"
)

// Peer is a remote node's identity, reachable addresses, and opaque
// application data as advertised over the peer management protocol.
type Peer struct {
	ID    string
	Addrs []string
	Data  map[string]any
}

type peerEntry struct {
	peer     Peer
	lastSeen time.Time
}

// PeerRegistry tracks peers discovered via ADVERTISE_PEER /
// PEER_DISCOVERED messages and prunes any that haven't re-advertised
// within ttl. The map+mutex+ticker+stop-channel shape follows
// netaio's existing lease-tracking idiom for any set of records that
// expire without an explicit removal.
type PeerRegistry struct {
	mu      sync.RWMutex
	peers   map[string]*peerEntry
	selfID  string
	ttl     time.Duration
	stopCh  chan struct{}
	started bool
}

// NewPeerRegistry returns a registry that ignores advertisements
// matching selfID (so a node never adds itself as a discovered peer)
// and prunes entries not refreshed within ttl.
func NewPeerRegistry(selfID string, ttl time.Duration) *PeerRegistry {
	return &PeerRegistry{
		peers:  make(map[string]*peerEntry),
		selfID: selfID,
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}
}

// Start launches the background pruning loop. Calling Start twice is
// a no-op.
func (r *PeerRegistry) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()
	go r.pruneLoop()
}

// Stop halts the pruning loop.
func (r *PeerRegistry) Stop() {
	close(r.stopCh)
}

func (r *PeerRegistry) pruneLoop() {
	interval := r.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.prune()
		case <-r.stopCh:
			return
		}
	}
}

func (r *PeerRegistry) prune() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for id, entry := range r.peers {
		if now.Sub(entry.lastSeen) > r.ttl {
			delete(r.peers, id)
		}
	}
}

// Upsert records or refreshes a peer. Advertisements for selfID are
// ignored and Upsert reports false, so a node never stores itself as
// a discovered peer.
func (r *PeerRegistry) Upsert(p Peer) bool {
	if p.ID == r.selfID {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.ID] = &peerEntry{peer: p, lastSeen: time.Now()}
	return true
}

// Remove deletes a peer immediately, e.g. on receiving DISCONNECT.
func (r *PeerRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

// Get returns a known peer by ID. A peer past its TTL is still
// returned until the next prune pass removes it.
func (r *PeerRegistry) Get(id string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.peers[id]
	if !ok {
		return Peer{}, false
	}
	return entry.peer, true
}

// EncodePeerBody packs a Peer into a Body suitable for ADVERTISE_PEER
// or PEER_DISCOVERED: the content carries the plugin-encoded data with
// the peer's ID and addresses added under "id" and "addrs" (written
// into p.Data when it is non-nil), and uri is used as the body URI as
// given.
func EncodePeerBody(plugin PeerPlugin, p Peer, uri string) (Body, error) {
	data := p.Data
	if data == nil {
		data = map[string]any{}
	}
	data["id"] = p.ID
	data["addrs"] = p.Addrs
	raw, err := plugin.EncodeData(data)
	if err != nil {
		return Body{}, err
	}
	return Prepare(raw, uri), nil
}

// DecodePeerBody reverses EncodePeerBody.
func DecodePeerBody(plugin PeerPlugin, body Body) (Peer, error) {
	data, err := plugin.ParseData(body.Content)
	if err != nil {
		return Peer{}, err
	}
	p := Peer{Data: data}
	if id, ok := data["id"].(string); ok {
		p.ID = id
		delete(data, "id")
	}
	if addrs, ok := data["addrs"].([]any); ok {
		for _, a := range addrs {
			if s, ok := a.(string); ok {
				p.Addrs = append(p.Addrs, s)
			}
		}
		delete(data, "addrs")
	}
	return p, nil
}

// All returns a snapshot of every currently known peer.
func (r *PeerRegistry) All() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Peer, 0, len(r.peers))
	for _, entry := range r.peers {
		out = append(out, entry.peer)
	}
	return out
}
