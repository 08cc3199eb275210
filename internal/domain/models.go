package domain

import (
	"strings"
	"time"
)

// AttachmentType enumerates the supported attachment kinds.
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentDocument AttachmentType = "document"
)

// Conversation is a 1:1 channel between two participants, optionally scoped
// to a property. The pair identity is unordered: the same two users hold at
// most one conversation per property scope (or one unscoped conversation).
type Conversation struct {
	ID                 int64      `db:"id" json:"id"`
	Participant1ID     int64      `db:"participant1_id" json:"participant1_id"`
	Participant2ID     int64      `db:"participant2_id" json:"participant2_id"`
	PropertyID         *int64     `db:"property_id" json:"property_id,omitempty"`
	Subject            *string    `db:"subject" json:"subject,omitempty"`
	LastMessageAt      *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	LastMessagePreview *string    `db:"last_message_preview" json:"last_message_preview,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// OtherParticipant returns the participant that is not viewerID.
func (c *Conversation) OtherParticipant(viewerID int64) int64 {
	if c.Participant1ID == viewerID {
		return c.Participant2ID
	}
	return c.Participant1ID
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID int64) bool {
	return c.Participant1ID == userID || c.Participant2ID == userID
}

// Message is one unit of communication inside a conversation. Attachment
// columns are an all-or-nothing group. IsRead only ever moves false -> true.
type Message struct {
	ID             int64     `db:"id" json:"id"`
	ConversationID int64     `db:"conversation_id" json:"conversation_id"`
	SenderID       int64     `db:"sender_id" json:"sender_id"`
	ReceiverID     int64     `db:"receiver_id" json:"receiver_id"`
	Content        string    `db:"content" json:"content"`
	AttachmentURL  *string   `db:"attachment_url" json:"attachment_url,omitempty"`
	AttachmentType *string   `db:"attachment_type" json:"attachment_type,omitempty"`
	AttachmentName *string   `db:"attachment_name" json:"attachment_name,omitempty"`
	AttachmentSize *int64    `db:"attachment_size" json:"attachment_size,omitempty"`
	IsRead         bool      `db:"is_read" json:"is_read"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Before reports whether m sorts strictly before other in timeline order
// (created_at ascending, id as the monotonic tie-break).
func (m *Message) Before(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

// Attachment is the value object stored on a message once the payload has
// been persisted to object storage.
type Attachment struct {
	URL  string         `json:"url"`
	Type AttachmentType `json:"type"`
	Name string         `json:"name"`
	Size int64          `json:"size"`
}

// Validate checks the all-or-nothing field group.
func (a *Attachment) Validate() error {
	if a.URL == "" || a.Name == "" || a.Size <= 0 {
		return ErrInvalidInput
	}
	if a.Type != AttachmentImage && a.Type != AttachmentDocument {
		return ErrInvalidInput
	}
	return nil
}

// AttachmentUpload carries a raw client payload that still has to be written
// to object storage before the message row can reference it.
type AttachmentUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Type maps the payload content type onto an attachment kind.
func (u *AttachmentUpload) Type() AttachmentType {
	if strings.HasPrefix(u.ContentType, "image/") {
		return AttachmentImage
	}
	return AttachmentDocument
}

// Profile is the public projection of a marketplace user.
type Profile struct {
	ID        int64   `db:"id" json:"id"`
	FullName  string  `db:"full_name" json:"full_name"`
	AvatarURL *string `db:"avatar_url" json:"avatar_url,omitempty"`
	Phone     *string `db:"phone" json:"phone,omitempty"`
	Email     *string `db:"email" json:"email,omitempty"`
}

// PlaceholderProfile substitutes for a missing or unreachable profile row so
// listing operations can degrade instead of failing.
func PlaceholderProfile(id int64) *Profile {
	return &Profile{ID: id, FullName: "Unknown user"}
}

// PropertyRef is the title projection of a listed property.
type PropertyRef struct {
	ID    int64  `db:"id" json:"id"`
	Title string `db:"title" json:"title"`
}

// TypingKind discriminates typing signals.
type TypingKind string

const (
	TypingStart TypingKind = "start"
	TypingStop  TypingKind = "stop"
)

// TypingSignal is an ephemeral broadcast; it is never persisted and expires
// client-side after the idle timeout.
type TypingSignal struct {
	ConversationID int64      `json:"conversation_id"`
	UserID         int64      `json:"user_id"`
	Kind           TypingKind `json:"kind"`
}
