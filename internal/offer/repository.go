package offer

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

type Store interface {
	Create(ctx context.Context, offerID, author, text string) (*Message, error)
	ListByOffer(ctx context.Context, offerID string) ([]*Message, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, offerID, author, text string) (*Message, error) {
	msg := &Message{ID: uuid.NewString(), OfferID: offerID, Author: author, Text: text}
	query := `
		INSERT INTO offer_messages (id, offer_id, author, text)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query, msg.ID, offerID, author, text).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *Repository) ListByOffer(ctx context.Context, offerID string) ([]*Message, error) {
	query := `
		SELECT id, offer_id, author, text, created_at
		FROM offer_messages
		WHERE offer_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, offerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(&m.ID, &m.OfferID, &m.Author, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
