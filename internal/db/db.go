package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"autohub-chat/internal/config"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(cfg config.DatabaseConfig) (*Database, error) {
	conn, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return &Database{Conn: conn}, nil
}

func (d *Database) Ping(ctx context.Context) error {
	return d.Conn.PingContext(ctx)
}

func (d *Database) Close() error {
	return d.Conn.Close()
}

// Schema is applied in order by AutoMigrate. Every statement is idempotent.
var Schema = []string{
	// partners is owned by the account side of the product; the chat
	// service only writes users.push_token.
	`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            push_token TEXT,
            created_at TIMESTAMPTZ DEFAULT NOW()
        )`,

	`CREATE TABLE IF NOT EXISTS partners (
            id TEXT PRIMARY KEY,
            owner_user_id TEXT NOT NULL,
            created_at TIMESTAMPTZ DEFAULT NOW()
        )`,

	`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            seq BIGSERIAL,
            request_id TEXT NOT NULL,
            user_id TEXT NOT NULL,
            partner_id TEXT,
            sender TEXT NOT NULL CHECK (sender IN ('user', 'partner')),
            body TEXT NOT NULL,
            created_at_ms BIGINT NOT NULL,
            is_read BOOLEAN NOT NULL DEFAULT FALSE
        )`,

	`CREATE INDEX IF NOT EXISTS idx_messages_request_time
            ON messages (request_id, created_at_ms, seq)`,

	`CREATE TABLE IF NOT EXISTS conversations (
            request_id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            partner_id TEXT NOT NULL DEFAULT '',
            last_message TEXT NOT NULL DEFAULT '',
            last_message_at BIGINT NOT NULL DEFAULT 0,
            unread_user INT NOT NULL DEFAULT 0,
            unread_partner INT NOT NULL DEFAULT 0
        )`,

	`CREATE INDEX IF NOT EXISTS idx_conversations_user
            ON conversations (user_id, last_message_at DESC)`,

	`CREATE INDEX IF NOT EXISTS idx_conversations_partner
            ON conversations (partner_id, last_message_at DESC)`,

	`CREATE TABLE IF NOT EXISTS offer_messages (
            id UUID PRIMARY KEY,
            offer_id TEXT NOT NULL,
            author TEXT NOT NULL CHECK (author IN ('user', 'partner')),
            text TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,

	`CREATE INDEX IF NOT EXISTS idx_offer_messages_offer
            ON offer_messages (offer_id, created_at)`,
}

func (d *Database) AutoMigrate() error {
	for _, query := range Schema {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
