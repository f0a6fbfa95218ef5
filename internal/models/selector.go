package models

import (
	"fmt"
	"sort"
)

// ChatSelector identifies a conversation: either a direct chat with a peer
// pair or a group chat. It is used uniformly by history fetch, send and
// room join so the two chat shapes never mix up.
type ChatSelector struct {
	Kind    MessageKind
	UserA   string // direct only
	UserB   string // direct only
	GroupID string // group only
}

func DirectChat(a, b string) ChatSelector {
	return ChatSelector{Kind: MessageKindDirect, UserA: a, UserB: b}
}

func GroupChat(groupID string) ChatSelector {
	return ChatSelector{Kind: MessageKindGroup, GroupID: groupID}
}

// Key returns the canonical store key for the chat. Direct chats sort the
// two user IDs so both peers resolve to the same bucket.
func (s ChatSelector) Key() string {
	if s.Kind == MessageKindGroup {
		return "grp_" + s.GroupID
	}
	ids := []string{s.UserA, s.UserB}
	sort.Strings(ids)
	return fmt.Sprintf("dm_%s_%s", ids[0], ids[1])
}
