package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"rentline/internal/domain"
	"rentline/internal/realtime"
)

type ConversationService struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	profiles      domain.ProfileDirectory
	properties    domain.PropertyCatalog
	feed          *realtime.Feed
}

func NewConversationService(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	profiles domain.ProfileDirectory,
	properties domain.PropertyCatalog,
	feed *realtime.Feed,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		profiles:      profiles,
		properties:    properties,
		feed:          feed,
	}
}

// ConversationView is a conversation enriched for one viewer.
type ConversationView struct {
	domain.Conversation
	OtherParticipant *domain.Profile     `json:"other_participant"`
	Property         *domain.PropertyRef `json:"property,omitempty"`
	UnreadCount      int                 `json:"unread_count"`
}

// ListConversations returns every conversation the viewer participates in,
// newest activity first, enriched with the other side's profile, the scoped
// property title and the viewer's unread count. Enrichment lookups are
// batched; a failed lookup degrades to placeholders instead of failing the
// list.
func (s *ConversationService) ListConversations(ctx context.Context, viewerID int64) ([]*ConversationView, error) {
	convs, err := s.conversations.ListForViewer(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if len(convs) == 0 {
		return []*ConversationView{}, nil
	}

	otherIDs := make([]int64, 0, len(convs))
	var propertyIDs []int64
	for _, c := range convs {
		otherIDs = append(otherIDs, c.OtherParticipant(viewerID))
		if c.PropertyID != nil {
			propertyIDs = append(propertyIDs, *c.PropertyID)
		}
	}

	profiles, err := s.profiles.Profiles(ctx, otherIDs)
	if err != nil {
		log.Printf("conversations: profile lookup failed, using placeholders: %v", err)
		profiles = nil
	}
	var properties map[int64]*domain.PropertyRef
	if len(propertyIDs) > 0 {
		properties, err = s.properties.Properties(ctx, propertyIDs)
		if err != nil {
			log.Printf("conversations: property lookup failed: %v", err)
			properties = nil
		}
	}
	unread, err := s.messages.UnreadByConversation(ctx, viewerID)
	if err != nil {
		log.Printf("conversations: unread counts unavailable: %v", err)
		unread = nil
	}

	views := make([]*ConversationView, 0, len(convs))
	for _, c := range convs {
		otherID := c.OtherParticipant(viewerID)
		view := &ConversationView{
			Conversation:     *c,
			OtherParticipant: profiles[otherID],
			UnreadCount:      unread[c.ID],
		}
		if view.OtherParticipant == nil {
			view.OtherParticipant = domain.PlaceholderProfile(otherID)
		}
		if c.PropertyID != nil {
			view.Property = properties[*c.PropertyID]
		}
		views = append(views, view)
	}
	return views, nil
}

// GetOrCreateConversation finds the conversation for the unordered pair
// {viewerID, otherID} under the exact property scope, creating it on first
// contact. Concurrent first contacts from both sides are resolved by the
// store's uniqueness constraint: the losing insert re-reads the winner's row.
func (s *ConversationService) GetOrCreateConversation(
	ctx context.Context,
	viewerID, otherID int64,
	propertyID *int64,
	subject *string,
) (*domain.Conversation, error) {
	if viewerID <= 0 || otherID <= 0 || viewerID == otherID {
		return nil, fmt.Errorf("participants must be two distinct users: %w", domain.ErrInvalidInput)
	}

	existing, err := s.conversations.FindByParticipants(ctx, viewerID, otherID, propertyID)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	conv := &domain.Conversation{
		Participant1ID: viewerID,
		Participant2ID: otherID,
		PropertyID:     propertyID,
		Subject:        subject,
	}
	err = s.conversations.Create(ctx, conv)
	if errors.Is(err, domain.ErrConflict) {
		// the other participant won the race
		winner, findErr := s.conversations.FindByParticipants(ctx, viewerID, otherID, propertyID)
		if findErr != nil {
			return nil, fmt.Errorf("refetch after conflict: %w", findErr)
		}
		if winner == nil {
			return nil, fmt.Errorf("conversation vanished after conflict: %w", domain.ErrUnavailable)
		}
		return winner, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	s.feed.PublishConversation(realtime.KindInsert, conv)
	return conv, nil
}

// GetConversation loads one conversation and enforces participant membership.
func (s *ConversationService) GetConversation(ctx context.Context, conversationID, viewerID int64) (*domain.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return nil, domain.ErrNotFound
	}
	if !conv.HasParticipant(viewerID) {
		return nil, domain.ErrForbidden
	}
	return conv, nil
}

// MarkConversationRead flips is_read on every unread message addressed to
// the viewer in this conversation. Idempotent: repeat calls are no-ops.
func (s *ConversationService) MarkConversationRead(ctx context.Context, conversationID, viewerID int64) error {
	conv, err := s.GetConversation(ctx, conversationID, viewerID)
	if err != nil {
		return err
	}

	n, err := s.messages.MarkConversationRead(ctx, conversationID, viewerID)
	if err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	if n > 0 {
		s.feed.PublishConversation(realtime.KindUpdate, conv)
	}
	return nil
}

// UnreadTotal counts unread messages addressed to the viewer across all
// conversations.
func (s *ConversationService) UnreadTotal(ctx context.Context, viewerID int64) (int, error) {
	n, err := s.messages.UnreadTotal(ctx, viewerID)
	if err != nil {
		return 0, fmt.Errorf("unread total: %w", err)
	}
	return n, nil
}
