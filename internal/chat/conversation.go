package chat

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// ConversationIndex keeps one summary row per thread.
type ConversationIndex interface {
	UpsertOnMessage(ctx context.Context, requestID, userID, partnerID string, sender Role, body string, timestamp int64) error
	RecentChats(ctx context.Context, userID, partnerID string) ([]*Conversation, error)
	ResetUnread(ctx context.Context, requestID string, side Role) error
}

type ConversationRepository struct {
	db *sql.DB
}

func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// The receiving side's counter is bumped inside the conflict clause so
// concurrent senders never lose an increment.
const (
	upsertFromUserQuery = `
		INSERT INTO conversations (request_id, user_id, partner_id, last_message, last_message_at, unread_user, unread_partner)
		VALUES ($1, $2, $3, $4, $5, 0, 1)
		ON CONFLICT (request_id) DO UPDATE SET
			last_message = EXCLUDED.last_message,
			last_message_at = EXCLUDED.last_message_at,
			unread_partner = conversations.unread_partner + 1
	`
	upsertFromPartnerQuery = `
		INSERT INTO conversations (request_id, user_id, partner_id, last_message, last_message_at, unread_user, unread_partner)
		VALUES ($1, $2, $3, $4, $5, 1, 0)
		ON CONFLICT (request_id) DO UPDATE SET
			last_message = EXCLUDED.last_message,
			last_message_at = EXCLUDED.last_message_at,
			unread_user = conversations.unread_user + 1
	`
)

func (r *ConversationRepository) UpsertOnMessage(ctx context.Context, requestID, userID, partnerID string, sender Role, body string, timestamp int64) error {
	query := upsertFromUserQuery
	if sender == RolePartner {
		query = upsertFromPartnerQuery
	}

	if _, err := r.db.ExecContext(ctx, query, requestID, userID, partnerID, body, timestamp); err != nil {
		return fmt.Errorf("%w: upsert conversation: %w", ErrPersistence, err)
	}
	return nil
}

// RecentChats filters by whichever ids are non-empty; with neither it
// returns every conversation.
func (r *ConversationRepository) RecentChats(ctx context.Context, userID, partnerID string) ([]*Conversation, error) {
	var (
		conds []string
		args  []interface{}
	)
	if userID != "" {
		args = append(args, userID)
		conds = append(conds, "user_id = $"+strconv.Itoa(len(args)))
	}
	if partnerID != "" {
		args = append(args, partnerID)
		conds = append(conds, "partner_id = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT request_id, user_id, partner_id, last_message, last_message_at, unread_user, unread_partner FROM conversations`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY last_message_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: recent chats: %w", ErrPersistence, err)
	}
	defer rows.Close()

	convs := make([]*Conversation, 0)
	for rows.Next() {
		c := &Conversation{}
		if err := rows.Scan(&c.RequestID, &c.UserID, &c.PartnerID, &c.LastMessage, &c.LastMessageAt,
			&c.UnreadCounts.User, &c.UnreadCounts.Partner); err != nil {
			return nil, fmt.Errorf("%w: scan conversation: %w", ErrPersistence, err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: recent chats: %w", ErrPersistence, err)
	}
	return convs, nil
}

func (r *ConversationRepository) ResetUnread(ctx context.Context, requestID string, side Role) error {
	query := `UPDATE conversations SET unread_user = 0 WHERE request_id = $1`
	if side == RolePartner {
		query = `UPDATE conversations SET unread_partner = 0 WHERE request_id = $1`
	}

	if _, err := r.db.ExecContext(ctx, query, requestID); err != nil {
		return fmt.Errorf("%w: reset unread: %w", ErrPersistence, err)
	}
	return nil
}
