package sqlite

import (
	"context"
	"database/sql"
	"time"

	"rentline/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `id, conversation_id, sender_id, receiver_id, content,
	attachment_url, attachment_type, attachment_name, attachment_size,
	is_read, created_at, updated_at`

func scanMessage(row interface{ Scan(...any) error }) (*domain.Message, error) {
	m := &domain.Message{}
	err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.SenderID,
		&m.ReceiverID,
		&m.Content,
		&m.AttachmentURL,
		&m.AttachmentType,
		&m.AttachmentName,
		&m.AttachmentSize,
		&m.IsRead,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Create inserts the message and refreshes the conversation's denormalized
// last-message fields in one transaction, so readers never observe a torn
// preview.
func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return transportErr("begin tx", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, receiver_id, content,
			attachment_url, attachment_type, attachment_name, attachment_size,
			is_read, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, m.ConversationID, m.SenderID, m.ReceiverID, m.Content,
		m.AttachmentURL, m.AttachmentType, m.AttachmentName, m.AttachmentSize,
		now, now)
	if err != nil {
		return transportErr("insert message", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return transportErr("last insert id", err)
	}

	preview := domain.PreviewText(m.Content, m.AttachmentName)
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_at = ?, last_message_preview = ?, updated_at = ?
		WHERE id = ?
	`, now, preview, now, m.ConversationID); err != nil {
		return transportErr("update conversation preview", err)
	}

	if err := tx.Commit(); err != nil {
		return transportErr("commit", err)
	}
	m.ID = id
	m.IsRead = false
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	m, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, transportErr("get message", err)
	}
	return m, nil
}

func (r *MessageRepo) ListPage(ctx context.Context, conversationID int64, limit, offset int) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?
	`
	return r.listMessages(ctx, query, conversationID, limit, offset)
}

// ListRecentPage walks history backwards: page 0 is the newest window. The
// DB returns DESC and the slice is reversed to chronological order.
func (r *MessageRepo) ListRecentPage(ctx context.Context, conversationID int64, limit, page int) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	msgs, err := r.listMessages(ctx, query, conversationID, limit, page*limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *MessageRepo) listMessages(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, transportErr("list messages", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, transportErr("scan message", err)
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, transportErr("iterate messages", err)
	}
	return res, nil
}

// UpdateContent edits the body and, when the message is still the latest in
// its conversation, refreshes the denormalized preview in the same
// transaction.
func (r *MessageRepo) UpdateContent(ctx context.Context, id int64, content string, editedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return transportErr("begin tx", err)
	}
	defer tx.Rollback()

	msg, err := scanMessage(tx.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return transportErr("get message", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE messages SET content = ?, updated_at = ? WHERE id = ?
	`, content, editedAt.UTC(), id); err != nil {
		return transportErr("update message", err)
	}

	var latestID int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, msg.ConversationID).Scan(&latestID)
	if err != nil && err != sql.ErrNoRows {
		return transportErr("find latest message", err)
	}
	if latestID == id {
		preview := domain.PreviewText(content, msg.AttachmentName)
		if _, err := tx.ExecContext(ctx, `
			UPDATE conversations SET last_message_preview = ?, updated_at = ? WHERE id = ?
		`, preview, editedAt.UTC(), msg.ConversationID); err != nil {
			return transportErr("update conversation preview", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return transportErr("commit", err)
	}
	return nil
}

// Delete hard-removes the row and recomputes the conversation's last-message
// fields from the surviving messages.
func (r *MessageRepo) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return transportErr("begin tx", err)
	}
	defer tx.Rollback()

	var conversationID int64
	err = tx.QueryRowContext(ctx, `SELECT conversation_id FROM messages WHERE id = ?`, id).Scan(&conversationID)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return transportErr("get message", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
		return transportErr("delete message", err)
	}

	latest, err := scanMessage(tx.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, conversationID))
	now := time.Now().UTC()
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `
			UPDATE conversations
			SET last_message_at = NULL, last_message_preview = NULL, updated_at = ?
			WHERE id = ?
		`, now, conversationID); err != nil {
			return transportErr("clear conversation preview", err)
		}
	case err != nil:
		return transportErr("find latest message", err)
	default:
		preview := domain.PreviewText(latest.Content, latest.AttachmentName)
		if _, err := tx.ExecContext(ctx, `
			UPDATE conversations
			SET last_message_at = ?, last_message_preview = ?, updated_at = ?
			WHERE id = ?
		`, latest.CreatedAt, preview, now, conversationID); err != nil {
			return transportErr("update conversation preview", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return transportErr("commit", err)
	}
	return nil
}

func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationID, viewerID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1
		WHERE conversation_id = ? AND receiver_id = ? AND is_read = 0
	`, conversationID, viewerID)
	if err != nil {
		return 0, transportErr("mark conversation read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, transportErr("rows affected", err)
	}
	return n, nil
}

func (r *MessageRepo) UnreadTotal(ctx context.Context, viewerID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND is_read = 0
	`, viewerID).Scan(&n)
	if err != nil {
		return 0, transportErr("count unread", err)
	}
	return n, nil
}

func (r *MessageRepo) UnreadByConversation(ctx context.Context, viewerID int64) (map[int64]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT conversation_id, COUNT(*)
		FROM messages
		WHERE receiver_id = ? AND is_read = 0
		GROUP BY conversation_id
	`, viewerID)
	if err != nil {
		return nil, transportErr("count unread by conversation", err)
	}
	defer rows.Close()

	res := make(map[int64]int)
	for rows.Next() {
		var convID int64
		var n int
		if err := rows.Scan(&convID, &n); err != nil {
			return nil, transportErr("scan unread count", err)
		}
		res[convID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, transportErr("iterate unread counts", err)
	}
	return res, nil
}
