package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation   = errors.New("invalid request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// User represents an identity owned by the external auth system.
// This core only reads it for display enrichment.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// Group is an ephemeral, password-protected group chat. Once the current
// time passes ExpiresAt the group is gone: not joinable, not postable-to,
// not listable. Password hash and invite token live only in storage records.
type Group struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	AdminID       string    `json:"adminId"`
	MemberIDs     []string  `json:"memberIds"`
	ExpiresAt     time.Time `json:"expiresAt"`
	LastMessageID string    `json:"lastMessageId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Expired reports whether the group is past its lifetime at the given instant.
func (g Group) Expired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

// IsMember reports whether userID is in the group's member list.
func (g Group) IsMember(userID string) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type MessageKind string

const (
	MessageKindDirect MessageKind = "direct"
	MessageKindGroup  MessageKind = "group"
)

// Message is immutable once created. Exactly one of ReceiverID/GroupID is
// set, consistent with Kind. Seq is assigned by the store on append and is
// strictly increasing within a chat.
type Message struct {
	ID         string      `json:"id"`
	Seq        uint64      `json:"seq"`
	SenderID   string      `json:"senderId"`
	ReceiverID string      `json:"receiverId,omitempty"`
	GroupID    string      `json:"groupId,omitempty"`
	Kind       MessageKind `json:"kind"`
	Text       string      `json:"text,omitempty"`
	Image      string      `json:"image,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// Validate enforces the kind/target invariant and the non-empty body rule.
func (m Message) Validate() error {
	if m.Text == "" && m.Image == "" {
		return fmt.Errorf("%w: message needs text or image", ErrValidation)
	}
	switch m.Kind {
	case MessageKindDirect:
		if m.ReceiverID == "" || m.GroupID != "" {
			return fmt.Errorf("%w: direct message must have receiverId only", ErrValidation)
		}
	case MessageKindGroup:
		if m.GroupID == "" || m.ReceiverID != "" {
			return fmt.Errorf("%w: group message must have groupId only", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown message kind %q", ErrValidation, m.Kind)
	}
	return nil
}

// Selector returns the chat the message belongs to.
func (m Message) Selector() ChatSelector {
	if m.Kind == MessageKindGroup {
		return GroupChat(m.GroupID)
	}
	return DirectChat(m.SenderID, m.ReceiverID)
}

// DisplayMessage is a Message enriched with sender display fields for
// delivery to clients.
type DisplayMessage struct {
	Message
	SenderName   string `json:"senderName"`
	SenderAvatar string `json:"senderAvatar,omitempty"`
}
