package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

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
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO conversations (participant1_id, participant2_id, property_id, subject)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, c.Participant1ID, c.Participant2ID, c.PropertyID, c.Subject).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert conversation: %w", domain.ErrConflict)
		}
		return transportErr("insert conversation", err)
	}
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
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
		WHERE ((participant1_id = $1 AND participant2_id = $2)
		    OR (participant1_id = $2 AND participant2_id = $1))
	`
	args := []any{a, b}
	if propertyID == nil {
		query += " AND property_id IS NULL"
	} else {
		query += " AND property_id = $3"
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
		WHERE participant1_id = $1 OR participant2_id = $1
		ORDER BY last_message_at DESC NULLS LAST, id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, viewerID)
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
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func transportErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
}
