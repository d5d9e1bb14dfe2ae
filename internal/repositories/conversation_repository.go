package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"courtside-chat/internal/identity"
	"courtside-chat/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	FindDirectByMembers(ctx context.Context, a, b identity.ChatIdentity) (models.Conversation, error)
	CreateDirect(ctx context.Context, a, b identity.ChatIdentity, userNames models.UserNames) (models.Conversation, error)
	CreateGroup(ctx context.Context, name string, members []identity.ChatIdentity, userNames models.UserNames) (models.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (models.Conversation, error)
	ListForMember(ctx context.Context, member identity.ChatIdentity) ([]models.ConversationSummary, error)
	MarkRead(ctx context.Context, conversationID uuid.UUID, member identity.ChatIdentity) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

type conversationRow struct {
	ID        uuid.UUID        `db:"id"`
	Type      string           `db:"type"`
	Name      string           `db:"name"`
	MemberIDs pq.StringArray   `db:"member_ids"`
	UserNames models.UserNames `db:"user_names"`
	Avatar    string           `db:"avatar"`
	CreatedAt time.Time        `db:"created_at"`
}

func (r conversationRow) toModel() models.Conversation {
	members := make([]identity.ChatIdentity, 0, len(r.MemberIDs))
	for _, m := range r.MemberIDs {
		members = append(members, identity.ChatIdentity(m))
	}
	return models.Conversation{
		ID:        r.ID,
		Type:      models.ConversationType(r.Type),
		Name:      r.Name,
		MemberIDs: members,
		UserNames: r.UserNames,
		Avatar:    r.Avatar,
		CreatedAt: r.CreatedAt,
	}
}

// directPairKey builds the canonical, order-independent key for a direct
// conversation's member pair. A partial unique index on it keeps concurrent
// creations from producing duplicate pairs.
func directPairKey(a, b identity.ChatIdentity) string {
	pair := []string{string(a), string(b)}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}

func memberStrings(members []identity.ChatIdentity) pq.StringArray {
	out := make(pq.StringArray, 0, len(members))
	for _, m := range members {
		out = append(out, string(m))
	}
	return out
}

const conversationColumns = `id, type, name, member_ids, user_names, avatar, created_at`

// FindDirectByMembers looks up the direct conversation with exactly this
// member pair, order-independent.
func (r *ConversationRepo) FindDirectByMembers(ctx context.Context, a, b identity.ChatIdentity) (models.Conversation, error) {
	var row conversationRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+conversationColumns+` FROM conversations WHERE type='direct' AND member_key=$1`,
		directPairKey(a, b))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}
	return row.toModel(), nil
}

// CreateDirect inserts a direct conversation and its two member rows.
func (r *ConversationRepo) CreateDirect(ctx context.Context, a, b identity.ChatIdentity, userNames models.UserNames) (models.Conversation, error) {
	return r.create(ctx, models.ConversationDirect, "", []identity.ChatIdentity{a, b}, directPairKey(a, b), userNames)
}

// CreateGroup inserts a group conversation. Always a new row: identical name
// and membership still produce a distinct conversation.
func (r *ConversationRepo) CreateGroup(ctx context.Context, name string, members []identity.ChatIdentity, userNames models.UserNames) (models.Conversation, error) {
	return r.create(ctx, models.ConversationGroup, name, members, "", userNames)
}

func (r *ConversationRepo) create(ctx context.Context, typ models.ConversationType, name string, members []identity.ChatIdentity, memberKey string, userNames models.UserNames) (models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var key interface{}
	if memberKey != "" {
		key = memberKey
	}

	var row conversationRow
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO conversations (id, type, name, member_ids, member_key, user_names)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING `+conversationColumns,
		uuid.New(), typ, name, memberStrings(members), key, userNames).StructScan(&row)
	if err != nil {
		return models.Conversation{}, err
	}

	for _, m := range members {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO conversation_members (conversation_id, member_id) VALUES ($1, $2)`,
			row.ID, string(m)); err != nil {
			return models.Conversation{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return row.toModel(), nil
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, id uuid.UUID) (models.Conversation, error) {
	var row conversationRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}
	return row.toModel(), nil
}

// ListForMember returns the membership-filtered directory view: every
// conversation containing the member, with the last-message preview and the
// member's unread count.
func (r *ConversationRepo) ListForMember(ctx context.Context, member identity.ChatIdentity) ([]models.ConversationSummary, error) {
	query := `SELECT c.id, c.type, c.name, c.member_ids, c.user_names, c.avatar, c.created_at,
            lm.text AS last_text, lm.sender_id AS last_sender_id, lm.created_at AS last_created_at,
            COALESCE(un.cnt, 0) AS unread_count
        FROM conversations c
        JOIN conversation_members cm ON cm.conversation_id = c.id AND cm.member_id = $1
        LEFT JOIN LATERAL (
            SELECT m.text, m.sender_id, m.created_at FROM messages m
            WHERE m.conversation_id = c.id
            ORDER BY m.created_at DESC, m.seq DESC LIMIT 1
        ) lm ON TRUE
        LEFT JOIN LATERAL (
            SELECT COUNT(*) AS cnt FROM messages m
            WHERE m.conversation_id = c.id
              AND m.created_at > cm.last_read_at
              AND m.sender_id <> cm.member_id
        ) un ON TRUE
        WHERE c.member_ids @> ARRAY[$1]
        ORDER BY COALESCE(lm.created_at, c.created_at) DESC`

	rows, err := r.db.QueryxContext(ctx, query, string(member))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ConversationSummary
	for rows.Next() {
		var row struct {
			conversationRow
			LastText      sql.NullString `db:"last_text"`
			LastSenderID  sql.NullString `db:"last_sender_id"`
			LastCreatedAt sql.NullTime   `db:"last_created_at"`
			UnreadCount   int            `db:"unread_count"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		summary := models.ConversationSummary{
			Conversation: row.conversationRow.toModel(),
			UnreadCount:  row.UnreadCount,
		}
		if row.LastText.Valid {
			summary.LastMessage = &models.MessagePreview{
				Text:      row.LastText.String,
				SenderID:  identity.ChatIdentity(row.LastSenderID.String),
				CreatedAt: row.LastCreatedAt.Time,
			}
		}
		result = append(result, summary)
	}
	return result, rows.Err()
}

// MarkRead advances the member's read watermark to now.
func (r *ConversationRepo) MarkRead(ctx context.Context, conversationID uuid.UUID, member identity.ChatIdentity) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE conversation_members SET last_read_at = NOW() WHERE conversation_id=$1 AND member_id=$2`,
		conversationID, string(member))
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}
