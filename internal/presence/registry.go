// Package presence tracks which users are reachable over which live
// connections. It is the single source of truth for "is user online" and
// for the connection sets fan-out pushes to.
package presence

import (
	"sort"
	"sync"
)

type Registry struct {
	// Map of userID -> set of connectionID
	conns map[string]map[string]struct{}

	mu sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]map[string]struct{}),
	}
}

// Add registers a connection for the user and returns the online-user
// snapshot derived under the same lock, so a reader never observes the
// mutation without the matching broadcast state.
func (r *Registry) Add(userID, connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		r.conns[userID] = set
	}
	set[connID] = struct{}{}

	return r.onlineLocked()
}

// Remove drops the connection; removing an absent entry is a no-op. The
// user disappears from the online list only when their last connection
// goes. Returns the snapshot after the mutation.
func (r *Registry) Remove(userID, connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.conns[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.conns, userID)
		}
	}

	return r.onlineLocked()
}

// ConnectionsFor returns the live connection IDs of a user, empty if the
// user is offline.
func (r *Registry) ConnectionsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[userID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// OnlineUserIDs returns the users with at least one live connection.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onlineLocked()
}

func (r *Registry) onlineLocked() []string {
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
