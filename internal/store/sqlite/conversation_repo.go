package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"rentline/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

const conversationColumns = `id, participant1_id, participant2_id, property_id, subject,
	last_message_at, last_message_preview, created_at, updated_at`

func scanConversation(row interface{ Scan(...any) error }) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := row.Scan(
		&c.ID,
		&c.Participant1ID,
		&c.Participant2ID,
		&c.PropertyID,
		&c.Subject,
		&c.LastMessageAt,
		&c.LastMessagePreview,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (participant1_id, participant2_id, property_id, subject, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.Participant1ID, c.Participant2ID, c.PropertyID, c.Subject, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert conversation: %w", domain.ErrConflict)
		}
		return transportErr("insert conversation", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return transportErr("last insert id", err)
	}
	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`
	c, err := scanConversation(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, transportErr("get conversation", err)
	}
	return c, nil
}

func (r *ConversationRepo) FindByParticipants(ctx context.Context, a, b int64, propertyID *int64) (*domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE ((participant1_id = ? AND participant2_id = ?)
		    OR (participant1_id = ? AND participant2_id = ?))
	`
	args := []any{a, b, b, a}
	if propertyID == nil {
		query += " AND property_id IS NULL"
	} else {
		query += " AND property_id = ?"
		args = append(args, *propertyID)
	}
	query += " LIMIT 1"

	c, err := scanConversation(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, transportErr("find conversation", err)
	}
	return c, nil
}

func (r *ConversationRepo) ListForViewer(ctx context.Context, viewerID int64) ([]*domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE participant1_id = ? OR participant2_id = ?
		ORDER BY (last_message_at IS NULL) ASC, last_message_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, viewerID, viewerID)
	if err != nil {
		return nil, transportErr("list conversations", err)
	}
	defer rows.Close()

	var res []*domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, transportErr("scan conversation", err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, transportErr("iterate conversations", err)
	}
	return res, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func transportErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
}
