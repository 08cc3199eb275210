package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the given DSN.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL for the messaging schema. The unique index on
// the normalized participant pair is what makes get-or-create safe under
// concurrent first contact from both sides.
func Migrate(db *sql.DB) error {
	stmts := []string{
		// Public profile projections (populated by the account system)
		`CREATE TABLE IF NOT EXISTS profiles (
			id         INTEGER PRIMARY KEY,
			full_name  VARCHAR(100) NOT NULL,
			avatar_url TEXT,
			phone      VARCHAR(30),
			email      VARCHAR(100)
		);`,
		// Property title projections (populated by the listings system)
		`CREATE TABLE IF NOT EXISTS properties (
			id       INTEGER PRIMARY KEY,
			title    VARCHAR(200) NOT NULL,
			owner_id INTEGER
		);`,
		// Conversations
		`CREATE TABLE IF NOT EXISTS conversations (
			id                   INTEGER PRIMARY KEY,
			participant1_id      INTEGER NOT NULL,
			participant2_id      INTEGER NOT NULL,
			property_id          INTEGER,
			subject              VARCHAR(200),
			last_message_at      DATETIME,
			last_message_preview TEXT,
			created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK (participant1_id <> participant2_id)
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_conversations_pair_scope
			ON conversations(
				min(participant1_id, participant2_id),
				max(participant1_id, participant2_id),
				ifnull(property_id, 0)
			);`,
		// Messages
		`CREATE TABLE IF NOT EXISTS messages (
			id              INTEGER PRIMARY KEY,
			conversation_id INTEGER NOT NULL REFERENCES conversations(id),
			sender_id       INTEGER NOT NULL,
			receiver_id     INTEGER NOT NULL,
			content         TEXT NOT NULL DEFAULT '',
			attachment_url  TEXT,
			attachment_type TEXT,
			attachment_name TEXT,
			attachment_size INTEGER,
			is_read         BOOLEAN NOT NULL DEFAULT 0,
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_participant1 ON conversations(participant1_id);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_participant2 ON conversations(participant2_id);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_last_message ON conversations(last_message_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at, id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_receiver_unread ON messages(receiver_id, is_read);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
