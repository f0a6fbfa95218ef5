package models

type ClientEventType string

const (
	ClientEventTypeJoinRoom   ClientEventType = "join-room"
	ClientEventTypeLeaveRoom  ClientEventType = "leave-room"
	ClientEventTypeSendDirect ClientEventType = "send-direct"
	ClientEventTypeSendGroup  ClientEventType = "send-group"
)

// ClientEvent is the envelope for everything a client sends over the live
// channel.
type ClientEvent struct {
	Type       ClientEventType `json:"type"`
	GroupID    string          `json:"groupId,omitempty"`
	ReceiverID string          `json:"receiverId,omitempty"`
	Text       string          `json:"text,omitempty"`
	Image      string          `json:"image,omitempty"`
}

type ServerEventType string

const (
	ServerEventTypeOnlineUsers   ServerEventType = "online-users-changed"
	ServerEventTypeDirectMessage ServerEventType = "new-direct-message"
	ServerEventTypeGroupMessage  ServerEventType = "new-group-message"
	ServerEventTypeError         ServerEventType = "error"
)

// ServerEvent is the envelope for everything the server pushes to clients.
type ServerEvent struct {
	Type          ServerEventType `json:"type"`
	OnlineUserIDs []string        `json:"onlineUserIds,omitempty"`
	Message       *DisplayMessage `json:"message,omitempty"`
	Error         string          `json:"error,omitempty"`
}
