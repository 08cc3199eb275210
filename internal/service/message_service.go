package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"rentline/internal/domain"
	"rentline/internal/notify"
	"rentline/internal/realtime"
	"rentline/internal/storage"
)

// Settings carries the tunables of the messaging core.
type Settings struct {
	EditWindow      time.Duration
	MaxContentChars int
	SendRetries     int
	PageSize        int
}

// DefaultSettings mirrors the config defaults.
func DefaultSettings() Settings {
	return Settings{
		EditWindow:      5 * time.Minute,
		MaxContentChars: 5000,
		SendRetries:     3,
		PageSize:        50,
	}
}

type MessageService struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	profiles      domain.ProfileDirectory
	blobs         storage.BlobStore
	feed          *realtime.Feed
	notifier      notify.Notifier
	settings      Settings

	// Now is the clock used for edit-window checks; overridable in tests.
	Now func() time.Time
}

func NewMessageService(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	profiles domain.ProfileDirectory,
	blobs storage.BlobStore,
	feed *realtime.Feed,
	notifier notify.Notifier,
	settings Settings,
) *MessageService {
	if settings.EditWindow <= 0 {
		settings.EditWindow = 5 * time.Minute
	}
	if settings.PageSize <= 0 {
		settings.PageSize = 50
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &MessageService{
		conversations: conversations,
		messages:      messages,
		profiles:      profiles,
		blobs:         blobs,
		feed:          feed,
		notifier:      notifier,
		settings:      settings,
		Now:           time.Now,
	}
}

// MessageView is a message enriched with the sender's profile projection.
type MessageView struct {
	domain.Message
	Sender *domain.Profile `json:"sender"`
}

type SendMessageInput struct {
	ConversationID int64
	SenderID       int64
	ReceiverID     int64
	Content        string
	// Attachment references an already-staged blob; Upload is a raw payload
	// that is written to object storage before the row insert. At most one
	// of the two may be set.
	Attachment *domain.Attachment
	Upload     *domain.AttachmentUpload
}

// SendMessage validates, stages the attachment if needed, and inserts the
// message; the owning conversation's last-message fields are refreshed in the
// same store transaction. The insert is retried on transient store failures,
// then surfaced on the change feed and handed to the notification queue.
func (s *MessageService) SendMessage(ctx context.Context, in SendMessageInput) (*domain.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && in.Attachment == nil && in.Upload == nil {
		return nil, fmt.Errorf("message requires content or an attachment: %w", domain.ErrInvalidInput)
	}
	if len([]rune(content)) > s.settings.MaxContentChars {
		return nil, fmt.Errorf("message exceeds %d characters: %w", s.settings.MaxContentChars, domain.ErrInvalidInput)
	}
	if in.Attachment != nil && in.Upload != nil {
		return nil, fmt.Errorf("attachment and upload are mutually exclusive: %w", domain.ErrInvalidInput)
	}

	conv, err := s.conversations.GetByID(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return nil, domain.ErrNotFound
	}
	if !conv.HasParticipant(in.SenderID) {
		return nil, domain.ErrForbidden
	}
	if in.ReceiverID != conv.OtherParticipant(in.SenderID) {
		return nil, fmt.Errorf("receiver is not the other participant: %w", domain.ErrInvalidInput)
	}

	att := in.Attachment
	var stagedKey string
	if in.Upload != nil {
		att, stagedKey, err = s.stageUpload(ctx, in.Upload)
		if err != nil {
			return nil, err
		}
	}
	if att != nil {
		if err := att.Validate(); err != nil {
			return nil, fmt.Errorf("malformed attachment: %w", err)
		}
	}

	msg := &domain.Message{
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		ReceiverID:     in.ReceiverID,
		Content:        content,
	}
	if att != nil {
		attType := string(att.Type)
		msg.AttachmentURL = &att.URL
		msg.AttachmentType = &attType
		msg.AttachmentName = &att.Name
		msg.AttachmentSize = &att.Size
	}

	if err := s.createWithRetry(ctx, msg); err != nil {
		// the row never landed; don't leave the staged blob orphaned
		if stagedKey != "" {
			if derr := s.blobs.Delete(ctx, stagedKey); derr != nil {
				log.Printf("messages: could not remove staged attachment %s: %v", stagedKey, derr)
			}
		}
		return nil, err
	}

	s.feed.PublishMessage(realtime.KindInsert, msg)
	if updated, err := s.conversations.GetByID(ctx, in.ConversationID); err == nil && updated != nil {
		s.feed.PublishConversation(realtime.KindUpdate, updated)
	}
	if err := s.notifier.MessageReceived(ctx, msg); err != nil {
		log.Printf("messages: notification enqueue failed for %d: %v", msg.ID, err)
	}
	return msg, nil
}

// createWithRetry retries transient store failures with a short backoff; all
// other errors propagate immediately.
func (s *MessageService) createWithRetry(ctx context.Context, msg *domain.Message) error {
	attempts := s.settings.SendRetries
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(time.Duration(i) * 100 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = s.messages.Create(ctx, msg); err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrUnavailable) {
			break
		}
	}
	return fmt.Errorf("create message: %w", err)
}

func (s *MessageService) stageUpload(ctx context.Context, up *domain.AttachmentUpload) (*domain.Attachment, string, error) {
	if up.Name == "" || len(up.Data) == 0 {
		return nil, "", fmt.Errorf("upload requires a name and a payload: %w", domain.ErrInvalidInput)
	}
	key := uuid.NewString() + strings.ToLower(filepath.Ext(up.Name))
	url, err := s.blobs.Put(ctx, key, up.ContentType, bytes.NewReader(up.Data))
	if err != nil {
		return nil, "", fmt.Errorf("stage attachment: %w", err)
	}
	return &domain.Attachment{
		URL:  url,
		Type: up.Type(),
		Name: up.Name,
		Size: int64(len(up.Data)),
	}, key, nil
}

// ListMessages returns an ascending window over the conversation, offset
// counted from the oldest message, each entry enriched with the sender
// profile. Only the two participants may read the history.
func (s *MessageService) ListMessages(ctx context.Context, conversationID, viewerID int64, limit, offset int) ([]*MessageView, error) {
	if err := s.requireConversation(ctx, conversationID, viewerID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.settings.PageSize {
		limit = s.settings.PageSize
	}
	msgs, err := s.messages.ListPage(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return s.enrich(ctx, msgs), nil
}

// ListRecentPage is the backward pager used by thread views: page 0 is the
// newest limit-sized window, higher pages walk into history. Messages stay
// ascending inside each window.
func (s *MessageService) ListRecentPage(ctx context.Context, conversationID, viewerID int64, limit, page int) ([]*MessageView, error) {
	if err := s.requireConversation(ctx, conversationID, viewerID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.settings.PageSize {
		limit = s.settings.PageSize
	}
	if page < 0 {
		page = 0
	}
	msgs, err := s.messages.ListRecentPage(ctx, conversationID, limit, page)
	if err != nil {
		return nil, fmt.Errorf("list recent page: %w", err)
	}
	return s.enrich(ctx, msgs), nil
}

// EditMessage rewrites the body of the caller's own message while the edit
// window is still open.
func (s *MessageService) EditMessage(ctx context.Context, messageID, editorID int64, newContent string) (*domain.Message, error) {
	newContent = strings.TrimSpace(newContent)
	if newContent == "" {
		return nil, fmt.Errorf("edited content cannot be empty: %w", domain.ErrInvalidInput)
	}
	if len([]rune(newContent)) > s.settings.MaxContentChars {
		return nil, fmt.Errorf("message exceeds %d characters: %w", s.settings.MaxContentChars, domain.ErrInvalidInput)
	}

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return nil, domain.ErrNotFound
	}
	if msg.SenderID != editorID {
		return nil, domain.ErrForbidden
	}
	now := s.Now()
	if now.Sub(msg.CreatedAt) > s.settings.EditWindow {
		return nil, domain.ErrEditWindowExpired
	}

	if err := s.messages.UpdateContent(ctx, messageID, newContent, now); err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	msg.Content = newContent
	msg.UpdatedAt = now

	s.feed.PublishMessage(realtime.KindUpdate, msg)
	if conv, err := s.conversations.GetByID(ctx, msg.ConversationID); err == nil && conv != nil {
		s.feed.PublishConversation(realtime.KindUpdate, conv)
	}
	return msg, nil
}

// DeleteMessage removes the caller's own message. Hard removal: the row is
// gone from subsequent reads and the conversation preview falls back to the
// surviving latest message.
func (s *MessageService) DeleteMessage(ctx context.Context, messageID, requesterID int64) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return domain.ErrNotFound
	}
	if msg.SenderID != requesterID {
		return domain.ErrForbidden
	}

	if err := s.messages.Delete(ctx, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	s.feed.PublishMessage(realtime.KindDelete, msg)
	if conv, err := s.conversations.GetByID(ctx, msg.ConversationID); err == nil && conv != nil {
		s.feed.PublishConversation(realtime.KindUpdate, conv)
	}
	return nil
}

func (s *MessageService) requireConversation(ctx context.Context, conversationID, viewerID int64) error {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return domain.ErrNotFound
	}
	if !conv.HasParticipant(viewerID) {
		return domain.ErrForbidden
	}
	return nil
}

// enrich attaches sender profiles with one batched lookup; a failed lookup
// degrades to placeholders.
func (s *MessageService) enrich(ctx context.Context, msgs []*domain.Message) []*MessageView {
	senderIDs := make([]int64, 0, len(msgs))
	seen := make(map[int64]struct{}, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; ok {
			continue
		}
		seen[m.SenderID] = struct{}{}
		senderIDs = append(senderIDs, m.SenderID)
	}

	var profiles map[int64]*domain.Profile
	if len(senderIDs) > 0 {
		var err error
		profiles, err = s.profiles.Profiles(ctx, senderIDs)
		if err != nil {
			log.Printf("messages: sender lookup failed, using placeholders: %v", err)
			profiles = nil
		}
	}

	views := make([]*MessageView, 0, len(msgs))
	for _, m := range msgs {
		v := &MessageView{Message: *m, Sender: profiles[m.SenderID]}
		if v.Sender == nil {
			v.Sender = domain.PlaceholderProfile(m.SenderID)
		}
		views = append(views, v)
	}
	return views
}
