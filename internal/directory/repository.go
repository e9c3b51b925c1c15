package directory

import (
	"context"
	"database/sql"
	"errors"
)

// Repository holds the account data the chat service needs for push targeting.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ResolveUserIDFromOwnerID returns the account behind a partner id, or ""
// when the partner is unknown.
func (r *Repository) ResolveUserIDFromOwnerID(ctx context.Context, ownerID string) (string, error) {
	var userID string
	query := "SELECT owner_user_id FROM partners WHERE id = $1"

	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return userID, nil
}

func (r *Repository) PushToken(ctx context.Context, userID string) (string, error) {
	var token sql.NullString
	query := "SELECT push_token FROM users WHERE id = $1"

	err := r.db.QueryRowContext(ctx, query, userID).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return token.String, nil
}

func (r *Repository) SetPushToken(ctx context.Context, userID, token string) error {
	query := `
		INSERT INTO users (id, push_token) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET push_token = EXCLUDED.push_token
	`
	_, err := r.db.ExecContext(ctx, query, userID, token)
	return err
}
