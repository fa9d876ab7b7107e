// Package directory tracks which boards are shared and by whom, and tells
// every connected peer when that changes.
package directory

import (
	"sort"
	"sync"

	"whiteboard-sync/internal/domain"
)

// Registry maps each shared board to the owner key that announced it. An
// owner key is a connection id for local peers, or a relay origin for
// boards announced through another directory replica.
type Registry struct {
	mu     sync.RWMutex
	shares map[domain.BoardID]string
}

func NewRegistry() *Registry {
	return &Registry{shares: make(map[domain.BoardID]string)}
}

// Share records id as shared by owner. It reports false if id is already
// shared, by owner or anyone else.
func (r *Registry) Share(id domain.BoardID, owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shares[id]; ok {
		return false
	}
	r.shares[id] = owner
	return true
}

// Unshare removes id if owner is the one that shared it.
func (r *Registry) Unshare(id domain.BoardID, owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.shares[id]; !ok || current != owner {
		return false
	}
	delete(r.shares, id)
	return true
}

// ReleaseOwner unshares every board owner shared and returns them.
func (r *Registry) ReleaseOwner(owner string) []domain.BoardID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var released []domain.BoardID
	for id, o := range r.shares {
		if o == owner {
			delete(r.shares, id)
			released = append(released, id)
		}
	}
	sortIDs(released)
	return released
}

func (r *Registry) List() []domain.BoardID {
	r.mu.RLock()
	ids := make([]domain.BoardID, 0, len(r.shares))
	for id := range r.shares {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sortIDs(ids)
	return ids
}

func (r *Registry) Owner(id domain.BoardID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.shares[id]
	return o, ok
}

func sortIDs(ids []domain.BoardID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
