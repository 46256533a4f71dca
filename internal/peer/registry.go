package peer

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the thread-safe set of connected peers.
type Registry struct {
	mu sync.RWMutex

	// All live peers indexed by ID.
	peers map[ID]*Peer

	// Last value of the aggregate source flag announced to controllers.
	sourceConnected bool

	now func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[ID]*Peer),
		now:   time.Now,
	}
}

// Register adds a new unauthenticated peer and returns its ID.
func (r *Registry) Register(t Transport, remoteAddr string) ID {
	id := ID(uuid.New().String())

	r.mu.Lock()
	defer r.mu.Unlock()

	r.peers[id] = &Peer{
		ID:          id,
		Role:        RoleUnknown,
		RemoteAddr:  remoteAddr,
		ConnectedAt: r.now(),
		Transport:   t,
	}
	return id
}

// Unregister removes a peer and returns the removed entry.
// Removing an absent ID is a no-op that returns false.
//
// The caller owns aggregate flag reconciliation: when the removed peer
// IsAuthenticatedSource, call ReconcileSource and announce any change.
func (r *Registry) Unregister(id ID) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[id]
	if !ok {
		return Peer{}, false
	}
	delete(r.peers, id)
	return *p, true
}

// Get returns a copy of the peer with the given ID.
func (r *Registry) Get(id ID) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.peers[id]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// Authenticate marks a peer authenticated with the given role.
//
// A role is assigned exactly once: authenticating again with the same role
// is a no-op, with a different role it returns ErrRoleAlreadySet.
func (r *Registry) Authenticate(id ID, role Role) (Peer, error) {
	if role != RoleController && role != RoleSource {
		return Peer{}, ErrInvalidRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[id]
	if !ok {
		return Peer{}, ErrPeerNotFound
	}
	if p.Role != RoleUnknown && p.Role != role {
		return *p, ErrRoleAlreadySet
	}

	p.Role = role
	p.Authenticated = true
	return *p, nil
}

// Select returns copies of all peers matching the filter.
// The snapshot is taken under the read lock; callers iterate without it,
// so peers closing mid-iteration never block or corrupt the registry.
func (r *Registry) Select(match Filter) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		if match(*p) {
			result = append(result, *p)
		}
	}
	return result
}

// ForEach calls fn for every peer matching the filter.
func (r *Registry) ForEach(match Filter, fn func(Peer)) {
	for _, p := range r.Select(match) {
		fn(p)
	}
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// IDs returns all peer IDs ordered by connect time.
func (r *Registry) IDs() []ID {
	peers := r.Select(All)
	sort.Slice(peers, func(i, j int) bool {
		if peers[i].ConnectedAt.Equal(peers[j].ConnectedAt) {
			return peers[i].ID < peers[j].ID
		}
		return peers[i].ConnectedAt.Before(peers[j].ConnectedAt)
	})

	ids := make([]ID, len(peers))
	for i, p := range peers {
		ids[i] = p.ID
	}
	return ids
}

// SourceConnected returns the aggregate source flag.
func (r *Registry) SourceConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sourceConnected
}

// ReconcileSource recomputes the aggregate source flag from the registry
// contents. changed is true when the flag differs from its previous value,
// in which case the caller announces the new value to controllers.
func (r *Registry) ReconcileSource() (connected, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connected = r.hasAuthenticatedSourceLocked()
	changed = connected != r.sourceConnected
	r.sourceConnected = connected
	return connected, changed
}

// hasAuthenticatedSourceLocked reports whether any source is authenticated (caller must hold lock).
func (r *Registry) hasAuthenticatedSourceLocked() bool {
	for _, p := range r.peers {
		if p.IsAuthenticatedSource() {
			return true
		}
	}
	return false
}
