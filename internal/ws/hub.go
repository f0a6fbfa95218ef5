package ws

import (
	"log/slog"
	"sync"

	"ogonyok/internal/models"
	"ogonyok/internal/presence"
	"ogonyok/internal/rooms"

	"github.com/google/uuid"
)

// groupFinder is the slice of the group manager the hub needs for room
// joins: a fresh lookup that treats expired groups as gone.
type groupFinder interface {
	GetActive(id string) (models.Group, error)
}

// fanout is the send path the hub dispatches into.
type fanout interface {
	SendDirect(senderID, receiverID, text, image string) (*models.DisplayMessage, error)
	SendGroup(senderID, groupID, text, image string) (*models.DisplayMessage, error)
}

// Hub supervises live connections: it owns the per-connection outbound
// channels, keeps the presence registry and room bridge in step with
// connects/disconnects, and routes client events.
type Hub struct {
	registry *presence.Registry
	bridge   *rooms.Bridge
	groups   groupFinder
	fanout   fanout

	// Map of connectionID -> outbound channel
	conns map[string]chan models.ServerEvent

	mu sync.RWMutex
}

func NewHub(registry *presence.Registry, bridge *rooms.Bridge, groups groupFinder) *Hub {
	return &Hub{
		registry: registry,
		bridge:   bridge,
		groups:   groups,
		conns:    make(map[string]chan models.ServerEvent),
	}
}

// SetFanout wires the send path in. The fan-out service pushes through the
// hub, so it is constructed after it.
func (h *Hub) SetFanout(f fanout) {
	h.fanout = f
}

// Register creates a connection identity for the user and broadcasts the
// updated online-user list to everyone.
func (h *Hub) Register(userID string) (string, chan models.ServerEvent) {
	connID := uuid.NewString()
	ch := make(chan models.ServerEvent, 100)

	h.mu.Lock()
	h.conns[connID] = ch
	h.mu.Unlock()

	online := h.registry.Add(userID, connID)
	h.broadcastOnline(online)
	return connID, ch
}

// Unregister tears the connection down: rooms first, then presence, then
// the online-list broadcast. Safe to call for an already-removed entry.
func (h *Hub) Unregister(userID, connID string) {
	h.bridge.DropConnection(connID)

	h.mu.Lock()
	if ch, ok := h.conns[connID]; ok {
		close(ch)
		delete(h.conns, connID)
	}
	h.mu.Unlock()

	online := h.registry.Remove(userID, connID)
	h.broadcastOnline(online)
}

// Push delivers one event to one connection. Delivery over the live
// channel is best-effort: a full buffer drops the event rather than
// blocking the sender.
func (h *Hub) Push(connID string, event models.ServerEvent) {
	// Send under the read lock: Unregister closes channels under the
	// write lock, so a push can never hit a closed channel.
	h.mu.RLock()
	defer h.mu.RUnlock()

	ch, ok := h.conns[connID]
	if !ok {
		return
	}
	select {
	case ch <- event:
	default:
		slog.Warn("dropping event, connection buffer full", "conn_id", connID, "event", event.Type)
	}
}

// Dispatch handles one client event. It runs on the connection's own
// loop, so events from a single sender are processed in order.
func (h *Hub) Dispatch(userID, connID string, event models.ClientEvent) {
	switch event.Type {
	case models.ClientEventTypeJoinRoom:
		// Fresh store lookup on every join attempt; a vanished or
		// expired group is a silent no-op. Membership is enforced at
		// send time, not here.
		if _, err := h.groups.GetActive(event.GroupID); err != nil {
			return
		}
		h.bridge.Join(connID, event.GroupID)

	case models.ClientEventTypeLeaveRoom:
		h.bridge.Leave(connID, event.GroupID)

	case models.ClientEventTypeSendDirect:
		if _, err := h.fanout.SendDirect(userID, event.ReceiverID, event.Text, event.Image); err != nil {
			h.pushError(connID, err)
		}

	case models.ClientEventTypeSendGroup:
		if _, err := h.fanout.SendGroup(userID, event.GroupID, event.Text, event.Image); err != nil {
			h.pushError(connID, err)
		}
	}
}

// CloseRoom drops every connection from the group's room. Wired to the
// group manager's deletion hook.
func (h *Hub) CloseRoom(groupID string) {
	h.bridge.Close(groupID)
}

// pushError surfaces a send failure to the initiating connection only.
// Errors are never broadcast.
func (h *Hub) pushError(connID string, err error) {
	h.Push(connID, models.ServerEvent{
		Type:  models.ServerEventTypeError,
		Error: err.Error(),
	})
}

func (h *Hub) broadcastOnline(online []string) {
	event := models.ServerEvent{
		Type:          models.ServerEventTypeOnlineUsers,
		OnlineUserIDs: online,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.conns {
		select {
		case ch <- event:
		default:
		}
	}
}
