package chat

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageStore is the durable, per-thread message log.
type MessageStore interface {
	Append(ctx context.Context, requestID, senderID, partnerID string, sender Role, body string) (*Message, error)
	History(ctx context.Context, requestID string) ([]*Message, error)
	MarkRead(ctx context.Context, requestID string, actingSide Role) (int64, error)
	UnreadCount(ctx context.Context, requestID string, actingSide Role) (int, error)
}

type MessageRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db, now: time.Now}
}

func (r *MessageRepository) Append(ctx context.Context, requestID, senderID, partnerID string, sender Role, body string) (*Message, error) {
	msg := &Message{
		ID:        uuid.NewString(),
		RequestID: requestID,
		UserID:    senderID,
		PartnerID: partnerID,
		Sender:    sender,
		Body:      body,
		Timestamp: r.now().UnixMilli(),
	}

	query := `
		INSERT INTO messages (id, request_id, user_id, partner_id, sender, body, created_at_ms, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
	`
	_, err := r.db.ExecContext(ctx, query,
		msg.ID, msg.RequestID, msg.UserID, nullString(msg.PartnerID), string(msg.Sender), msg.Body, msg.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: append message: %w", ErrPersistence, err)
	}
	return msg, nil
}

// History returns the whole thread, oldest first. seq breaks millisecond ties.
func (r *MessageRepository) History(ctx context.Context, requestID string) ([]*Message, error) {
	query := `
		SELECT id, request_id, user_id, COALESCE(partner_id, ''), sender, body, created_at_ms, is_read
		FROM messages
		WHERE request_id = $1
		ORDER BY created_at_ms ASC, seq ASC
	`
	rows, err := r.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("%w: load history: %w", ErrPersistence, err)
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		msg := &Message{}
		var sender string
		if err := rows.Scan(&msg.ID, &msg.RequestID, &msg.UserID, &msg.PartnerID, &sender, &msg.Body, &msg.Timestamp, &msg.IsRead); err != nil {
			return nil, fmt.Errorf("%w: scan message: %w", ErrPersistence, err)
		}
		msg.Sender = Role(sender)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: load history: %w", ErrPersistence, err)
	}
	return messages, nil
}

// MarkRead flips every unread message sent by the other side. It never
// clears a read flag, so repeated calls return 0.
func (r *MessageRepository) MarkRead(ctx context.Context, requestID string, actingSide Role) (int64, error) {
	query := `
		UPDATE messages
		SET is_read = TRUE
		WHERE request_id = $1 AND sender <> $2 AND is_read = FALSE
	`
	result, err := r.db.ExecContext(ctx, query, requestID, string(actingSide))
	if err != nil {
		return 0, fmt.Errorf("%w: mark read: %w", ErrPersistence, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: mark read: %w", ErrPersistence, err)
	}
	return n, nil
}

func (r *MessageRepository) UnreadCount(ctx context.Context, requestID string, actingSide Role) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages
		WHERE request_id = $1 AND sender <> $2 AND is_read = FALSE
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, requestID, string(actingSide)).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: unread count: %w", ErrPersistence, err)
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
