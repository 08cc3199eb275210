package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL for the messaging schema on PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id         BIGSERIAL PRIMARY KEY,
			full_name  VARCHAR(100) NOT NULL,
			avatar_url TEXT,
			phone      VARCHAR(30),
			email      VARCHAR(100)
		)`,
		`CREATE TABLE IF NOT EXISTS properties (
			id       BIGSERIAL PRIMARY KEY,
			title    VARCHAR(200) NOT NULL,
			owner_id BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id                   BIGSERIAL    PRIMARY KEY,
			participant1_id      BIGINT       NOT NULL,
			participant2_id      BIGINT       NOT NULL,
			property_id          BIGINT,
			subject              VARCHAR(200),
			last_message_at      TIMESTAMPTZ,
			last_message_preview TEXT,
			created_at           TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at           TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			CHECK (participant1_id <> participant2_id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_conversations_pair_scope
			ON conversations(
				LEAST(participant1_id, participant2_id),
				GREATEST(participant1_id, participant2_id),
				COALESCE(property_id, 0)
			)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id              BIGSERIAL   PRIMARY KEY,
			conversation_id BIGINT      NOT NULL REFERENCES conversations(id),
			sender_id       BIGINT      NOT NULL,
			receiver_id     BIGINT      NOT NULL,
			content         TEXT        NOT NULL DEFAULT '',
			attachment_url  TEXT,
			attachment_type TEXT,
			attachment_name TEXT,
			attachment_size BIGINT,
			is_read         BOOLEAN     NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_participant1 ON conversations(participant1_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_participant2 ON conversations(participant2_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_last_message ON conversations(last_message_at DESC NULLS LAST)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_receiver_unread ON messages(receiver_id) WHERE NOT is_read`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
