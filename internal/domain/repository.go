package domain

import (
	"context"
	"time"
)

// ConversationRepository defines persistence operations for conversations.
// Denormalized last-message fields are maintained by the message repository
// inside its own transactions, never by callers.
type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation) error
	GetByID(ctx context.Context, id int64) (*Conversation, error)
	// FindByParticipants matches the unordered pair {a, b} under the exact
	// property scope (nil matches only unscoped conversations).
	FindByParticipants(ctx context.Context, a, b int64, propertyID *int64) (*Conversation, error)
	// ListForViewer returns every conversation the viewer participates in,
	// ordered by last_message_at descending with never-messaged ones last.
	ListForViewer(ctx context.Context, viewerID int64) ([]*Conversation, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	// Create inserts the message and refreshes the owning conversation's
	// last_message_at/last_message_preview in the same transaction.
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	// ListPage returns an ascending (created_at, id) window counted from the
	// oldest message.
	ListPage(ctx context.Context, conversationID int64, limit, offset int) ([]*Message, error)
	// ListRecentPage returns an ascending window counted backwards from the
	// newest message; page 0 is the most recent limit-sized slice.
	ListRecentPage(ctx context.Context, conversationID int64, limit, page int) ([]*Message, error)
	// UpdateContent edits the body, stamps updated_at and refreshes the
	// conversation preview when the message is the latest one.
	UpdateContent(ctx context.Context, id int64, content string, editedAt time.Time) error
	// Delete removes the row and recomputes the conversation's denormalized
	// last-message fields from the surviving messages, transactionally.
	Delete(ctx context.Context, id int64) error
	// MarkConversationRead flips is_read for every unread message addressed
	// to viewerID in the conversation. Idempotent.
	MarkConversationRead(ctx context.Context, conversationID, viewerID int64) (int64, error)
	UnreadTotal(ctx context.Context, viewerID int64) (int, error)
	// UnreadByConversation returns per-conversation unread counts for the
	// viewer in one grouped query.
	UnreadByConversation(ctx context.Context, viewerID int64) (map[int64]int, error)
}

// ProfileDirectory resolves public profile projections. Lookups are batched;
// missing ids are simply absent from the result map.
type ProfileDirectory interface {
	Profiles(ctx context.Context, ids []int64) (map[int64]*Profile, error)
}

// PropertyCatalog resolves property title projections, batched like profiles.
type PropertyCatalog interface {
	Properties(ctx context.Context, ids []int64) (map[int64]*PropertyRef, error)
}
