// Package rooms mirrors group membership onto the live broadcast layer.
// A room is keyed by group ID; connections join it to receive live group
// traffic. Send authorization is enforced elsewhere, at send time.
package rooms

import (
	"sync"
)

type Bridge struct {
	// Map of groupID -> set of connectionID
	rooms map[string]map[string]struct{}

	// Reverse index for disconnect cleanup: connectionID -> set of groupID
	joined map[string]map[string]struct{}

	mu sync.RWMutex
}

func NewBridge() *Bridge {
	return &Bridge{
		rooms:  make(map[string]map[string]struct{}),
		joined: make(map[string]map[string]struct{}),
	}
}

// Join places the connection into the room. Callers validate the group
// against the store first; the bridge itself never trusts cached state.
func (b *Bridge) Join(connID, groupID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room, ok := b.rooms[groupID]
	if !ok {
		room = make(map[string]struct{})
		b.rooms[groupID] = room
	}
	room[connID] = struct{}{}

	set, ok := b.joined[connID]
	if !ok {
		set = make(map[string]struct{})
		b.joined[connID] = set
	}
	set[groupID] = struct{}{}
}

// Leave removes the connection from the room; no-op if not present.
func (b *Bridge) Leave(connID, groupID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaveLocked(connID, groupID)
}

func (b *Bridge) leaveLocked(connID, groupID string) {
	if room, ok := b.rooms[groupID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(b.rooms, groupID)
		}
	}
	if set, ok := b.joined[connID]; ok {
		delete(set, groupID)
		if len(set) == 0 {
			delete(b.joined, connID)
		}
	}
}

// DropConnection removes the connection from every room it joined.
// Called on disconnect; tolerates a connection that never joined anything.
func (b *Bridge) DropConnection(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for groupID := range b.joined[connID] {
		b.leaveLocked(connID, groupID)
	}
}

// Close tears down a whole room. Called when the group is ended or expires.
func (b *Bridge) Close(groupID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for connID := range b.rooms[groupID] {
		b.leaveLocked(connID, groupID)
	}
}

// Connections returns the connections currently in the room.
func (b *Bridge) Connections(groupID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	room := b.rooms[groupID]
	ids := make([]string, 0, len(room))
	for id := range room {
		ids = append(ids, id)
	}
	return ids
}
