package models

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"courtside-chat/internal/identity"
)

// Message is an immutable, append-only record belonging to exactly one
// conversation. CreatedAt is assigned by the store at write time; Seq breaks
// equal-timestamp ties in insertion order.
type Message struct {
	ID             uuid.UUID             `db:"id" json:"id"`
	ConversationID uuid.UUID             `db:"conversation_id" json:"conversation_id"`
	SenderID       identity.ChatIdentity `db:"sender_id" json:"sender_id"`
	SenderName     string                `db:"sender_name" json:"sender_name,omitempty"`
	Text           string                `db:"text" json:"text"`
	Avatar         string                `db:"avatar" json:"avatar,omitempty"`
	Seq            int64                 `db:"seq" json:"-"`
	CreatedAt      time.Time             `db:"created_at" json:"created_at"`
}

// MessageView is a message with its sender name resolved for rendering.
type MessageView struct {
	Message
	SenderName string `json:"sender_name"`
}

// SortMessages orders messages by CreatedAt ascending, insertion order
// breaking ties. The store delivers them ordered already; sorting again keeps
// the stream invariant independent of the query path.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].Seq < msgs[j].Seq
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
