// Package chat is the write path: validate a send, persist the message,
// work out the recipient connection set and broadcast. A message is never
// delivered live without having been durably stored first.
package chat

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ogonyok/internal/content"
	"ogonyok/internal/media"
	"ogonyok/internal/models"

	"github.com/google/uuid"
)

// Store is the slice of the persistence layer the engine needs.
type Store interface {
	AppendMessage(message models.Message) (models.Message, error)
	ListMessages(selector models.ChatSelector) ([]models.Message, error)
	GetUser(id string) (models.User, error)
}

// Groups resolves a group fresh from the store; expired means gone.
type Groups interface {
	GetActive(id string) (models.Group, error)
}

// Presence yields the live connections of a user.
type Presence interface {
	ConnectionsFor(userID string) []string
}

// Rooms yields the connections currently joined to a group's room.
type Rooms interface {
	Connections(groupID string) []string
}

// Pusher delivers one event to one connection, best-effort.
type Pusher interface {
	Push(connID string, event models.ServerEvent)
}

type Service struct {
	store    Store
	groups   Groups
	presence Presence
	rooms    Rooms
	pusher   Pusher
	media    media.Store
	now      func() time.Time
}

func NewService(store Store, groups Groups, presence Presence, rooms Rooms, pusher Pusher, mediaStore media.Store) *Service {
	return &Service{
		store:    store,
		groups:   groups,
		presence: presence,
		rooms:    rooms,
		pusher:   pusher,
		media:    mediaStore,
		now:      time.Now,
	}
}

// SendDirect persists a direct message and pushes it to every live
// connection of the receiver, plus an echo to the sender's own devices.
// An offline receiver still gets the persisted message later via history.
func (s *Service) SendDirect(senderID, receiverID, text, image string) (*models.DisplayMessage, error) {
	msg, err := s.buildMessage(senderID, text, image)
	if err != nil {
		return nil, err
	}
	msg.Kind = models.MessageKindDirect
	msg.ReceiverID = receiverID
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	persisted, err := s.store.AppendMessage(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	display := s.enrich(persisted)
	event := models.ServerEvent{
		Type:    models.ServerEventTypeDirectMessage,
		Message: &display,
	}

	for _, connID := range s.presence.ConnectionsFor(receiverID) {
		s.pusher.Push(connID, event)
	}
	if senderID != receiverID {
		for _, connID := range s.presence.ConnectionsFor(senderID) {
			s.pusher.Push(connID, event)
		}
	}

	return &display, nil
}

// SendGroup persists a group message and broadcasts it to the group's
// room. A vanished/expired group or a sender outside the member list is a
// silent drop (nil, nil): the group expiring between client action and
// server processing is an expected race, not an error. Delivery follows
// room membership; authorization to send follows the member list.
func (s *Service) SendGroup(senderID, groupID, text, image string) (*models.DisplayMessage, error) {
	msg, err := s.buildMessage(senderID, text, image)
	if err != nil {
		return nil, err
	}
	msg.Kind = models.MessageKindGroup
	msg.GroupID = groupID
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	group, err := s.groups.GetActive(groupID)
	if err != nil {
		slog.Debug("group send dropped, group gone", "group_id", groupID, "sender_id", senderID)
		return nil, nil
	}
	if !group.IsMember(senderID) {
		slog.Debug("group send dropped, sender not a member", "group_id", groupID, "sender_id", senderID)
		return nil, nil
	}

	persisted, err := s.store.AppendMessage(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	display := s.enrich(persisted)
	event := models.ServerEvent{
		Type:    models.ServerEventTypeGroupMessage,
		Message: &display,
	}
	for _, connID := range s.rooms.Connections(groupID) {
		s.pusher.Push(connID, event)
	}

	return &display, nil
}

// History returns all messages of a chat in creation order, oldest first,
// enriched the same way live deliveries are.
func (s *Service) History(userID string, selector models.ChatSelector) ([]models.DisplayMessage, error) {
	messages, err := s.store.ListMessages(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	result := make([]models.DisplayMessage, 0, len(messages))
	for _, msg := range messages {
		result = append(result, s.enrich(msg))
	}
	return result, nil
}

func (s *Service) buildMessage(senderID, text, image string) (models.Message, error) {
	text = content.Sanitize(text)
	if text == "" && image == "" {
		return models.Message{}, fmt.Errorf("%w: message needs text or image", models.ErrValidation)
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		SenderID:  senderID,
		Text:      text,
		CreatedAt: s.now(),
	}

	if image != "" {
		data, err := base64.StdEncoding.DecodeString(image)
		if err != nil {
			return models.Message{}, fmt.Errorf("%w: image must be base64", models.ErrValidation)
		}
		url, err := s.media.Save(data)
		if errors.Is(err, media.ErrUnsupportedType) {
			return models.Message{}, fmt.Errorf("%w: %s", models.ErrValidation, err)
		}
		if err != nil {
			return models.Message{}, fmt.Errorf("failed to store image: %w", err)
		}
		msg.Image = url
	}

	return msg, nil
}

func (s *Service) enrich(msg models.Message) models.DisplayMessage {
	display := models.DisplayMessage{Message: msg, SenderName: "Unknown User"}
	if user, err := s.store.GetUser(msg.SenderID); err == nil {
		display.SenderName = user.DisplayName
		display.SenderAvatar = user.AvatarURL
	}
	return display
}
