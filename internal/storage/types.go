package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBUser struct {
	ID          string `msgpack:"id"`
	DisplayName string `msgpack:"displayName"`
	AvatarURL   string `msgpack:"avatarUrl"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

type DBGroup struct {
	ID                string   `msgpack:"id"`
	Name              string   `msgpack:"name"`
	AdminID           string   `msgpack:"adminId"`
	MemberIDs         []string `msgpack:"memberIds"`
	PasswordHash      string   `msgpack:"passwordHash"`
	ExpiresAt         int64    `msgpack:"expiresAt"`
	InviteToken       string   `msgpack:"inviteToken"`
	InviteTokenExpiry int64    `msgpack:"inviteTokenExpiry"`
	LastMessageID     string   `msgpack:"lastMessageId"`
	CreatedAt         int64    `msgpack:"createdAt"`
}

func (g *DBGroup) Key() []byte {
	return []byte(g.ID)
}

func (g *DBGroup) MarshalBinary() (data []byte, err error) {
	type alias DBGroup
	return msgpack.Marshal((*alias)(g))
}

func (g *DBGroup) UnmarshalBinary(data []byte) error {
	type alias DBGroup
	return msgpack.Unmarshal(data, (*alias)(g))
}

type DBMessage struct {
	ID         string `msgpack:"id"`
	Seq        uint64 `msgpack:"seq"`
	SenderID   string `msgpack:"senderId"`
	ReceiverID string `msgpack:"receiverId"`
	GroupID    string `msgpack:"groupId"`
	Kind       string `msgpack:"kind"`
	Text       string `msgpack:"text"`
	Image      string `msgpack:"image"`
	CreatedAt  int64  `msgpack:"createdAt"`
}

// Key is the message's big-endian sequence number, so a bucket cursor walks
// messages in append order.
func (m *DBMessage) Key() []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, m.Seq)
	return key
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}
