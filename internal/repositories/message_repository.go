package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"courtside-chat/internal/identity"
	"courtside-chat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions with the append-only message log.
type MessageRepository interface {
	Append(ctx context.Context, conversationID uuid.UUID, senderID identity.ChatIdentity, senderName, text, avatar string) (models.Message, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, conversation_id, sender_id, sender_name, text, avatar, seq, created_at`

// Append stores a message. CreatedAt and seq are assigned by the database so
// ordering is decided at write time, not by the caller's clock.
func (r *MessageRepo) Append(ctx context.Context, conversationID uuid.UUID, senderID identity.ChatIdentity, senderName, text, avatar string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, sender_name, text, avatar)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING `+messageColumns,
		uuid.New(), conversationID, string(senderID), senderName, text, avatar).StructScan(&msg)
	return msg, err
}

// ListByConversation returns the conversation's full message list ordered by
// created_at ascending, insertion order breaking ties.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id=$1 ORDER BY created_at ASC, seq ASC`,
		conversationID)
	return msgs, err
}
