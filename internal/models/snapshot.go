package models

import "github.com/google/uuid"

// Snapshot frame types pushed over websocket subscriptions.
const (
	TypeDirectorySnapshot = "directory_snapshot"
	TypeMessageSnapshot   = "message_snapshot"
)

// DirectorySnapshot is a complete, point-in-time view of the subscriber's
// conversations. Every delivery carries the full set, never a diff.
type DirectorySnapshot struct {
	Type          string                `json:"type"`
	Conversations []ConversationSummary `json:"conversations"`
	Direct        []ConversationSummary `json:"direct"`
	Groups        []ConversationSummary `json:"groups"`
}

// NewDirectorySnapshot builds a snapshot with the direct/group partitions
// derived from the full set.
func NewDirectorySnapshot(convs []ConversationSummary) DirectorySnapshot {
	snap := DirectorySnapshot{
		Type:          TypeDirectorySnapshot,
		Conversations: convs,
		Direct:        make([]ConversationSummary, 0, len(convs)),
		Groups:        make([]ConversationSummary, 0),
	}
	for _, c := range convs {
		switch c.Conversation.Type {
		case ConversationGroup:
			snap.Groups = append(snap.Groups, c)
		default:
			snap.Direct = append(snap.Direct, c)
		}
	}
	return snap
}

// MessageSnapshot is the full ordered message list of the active conversation.
type MessageSnapshot struct {
	Type           string        `json:"type"`
	ConversationID uuid.UUID     `json:"conversation_id"`
	Messages       []MessageView `json:"messages"`
}
