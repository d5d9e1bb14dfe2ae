package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"courtside-chat/internal/identity"
)

// ConversationType discriminates direct and group conversations.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// Conversation is a direct (exactly two members) or group (two or more
// members, named) channel. Membership is immutable after creation.
type Conversation struct {
	ID        uuid.UUID               `db:"id" json:"id"`
	Type      ConversationType        `db:"type" json:"type"`
	Name      string                  `db:"name" json:"name,omitempty"`
	MemberIDs []identity.ChatIdentity `json:"member_ids"`
	UserNames UserNames               `db:"user_names" json:"user_names,omitempty"`
	Avatar    string                  `db:"avatar" json:"avatar,omitempty"`
	CreatedAt time.Time               `db:"created_at" json:"created_at"`
}

// HasMember reports whether the identity belongs to the conversation.
func (c Conversation) HasMember(id identity.ChatIdentity) bool {
	for _, m := range c.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}

// OtherMember returns the counterpart of a direct conversation. The second
// return value is false for groups or when the identity is not a member.
func (c Conversation) OtherMember(self identity.ChatIdentity) (identity.ChatIdentity, bool) {
	if c.Type != ConversationDirect || !c.HasMember(self) {
		return "", false
	}
	for _, m := range c.MemberIDs {
		if m != self {
			return m, true
		}
	}
	return "", false
}

// UserNames maps chat identities to display names seeded at creation time.
// Stored as JSONB.
type UserNames map[identity.ChatIdentity]string

func (n UserNames) Value() (driver.Value, error) {
	if len(n) == 0 {
		return nil, nil
	}
	return json.Marshal(n)
}

func (n *UserNames) Scan(src interface{}) error {
	if src == nil {
		*n = nil
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("user_names: unsupported scan type %T", src)
	}
	return json.Unmarshal(raw, n)
}

// MessagePreview is the denormalized last-message hint carried on directory
// entries. Rendering only; the message stream stays the source of truth.
type MessagePreview struct {
	Text      string                `json:"text"`
	SenderID  identity.ChatIdentity `json:"sender_id"`
	CreatedAt time.Time             `json:"created_at"`
}

// ConversationSummary is the directory view of a conversation for one member.
type ConversationSummary struct {
	Conversation
	DisplayName string          `json:"display_name"`
	LastMessage *MessagePreview `json:"last_message,omitempty"`
	UnreadCount int             `json:"unread_count"`
}

// FilterByMember keeps only conversations whose membership includes the
// identity. The store query already scopes by membership; this guards the
// snapshot path against anything that slipped through.
func FilterByMember(convs []ConversationSummary, id identity.ChatIdentity) []ConversationSummary {
	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		if c.HasMember(id) {
			out = append(out, c)
		}
	}
	return out
}
