package realtime

import (
	"fmt"
	"sync"

	"rentline/internal/domain"
)

// EventKind is the row-change type carried by a feed event.
type EventKind string

const (
	KindInsert EventKind = "insert"
	KindUpdate EventKind = "update"
	KindDelete EventKind = "delete"
)

// Event is a row-level change notification. Exactly one of Message or
// Conversation is set, matching Table.
type Event struct {
	Table          string               `json:"table"`
	Kind           EventKind            `json:"kind"`
	ConversationID int64                `json:"conversation_id"`
	Message        *domain.Message      `json:"message,omitempty"`
	Conversation   *domain.Conversation `json:"conversation,omitempty"`
}

// BroadcastEvent is an application-level event on a named channel. It is
// never persisted; typing signals travel this way.
type BroadcastEvent struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

const (
	TableMessages      = "messages"
	TableConversations = "conversations"

	EventTyping = "typing"
)

// TypingChannel names the broadcast channel carrying typing signals for a
// conversation.
func TypingChannel(conversationID int64) string {
	return fmt.Sprintf("conversation:%d:typing", conversationID)
}

const subscriptionBuffer = 64

// Subscription is a live handle on a row-change stream. Slow consumers lose
// events rather than block the publisher; consumers must tolerate gaps the
// same way they tolerate at-least-once redelivery.
type Subscription struct {
	ch     chan Event
	cancel func()
	once   sync.Once
}

// C returns the event channel. It is closed on Unsubscribe.
func (s *Subscription) C() <-chan Event { return s.ch }

// Unsubscribe detaches from the feed and closes the channel. Safe to call
// more than once.
func (s *Subscription) Unsubscribe() { s.once.Do(s.cancel) }

// BroadcastSub is a live handle on a broadcast channel.
type BroadcastSub struct {
	ch     chan BroadcastEvent
	cancel func()
	once   sync.Once
}

func (s *BroadcastSub) C() <-chan BroadcastEvent { return s.ch }
func (s *BroadcastSub) Unsubscribe()             { s.once.Do(s.cancel) }

// Feed is an in-process change feed: row-level insert/update/delete streams
// scoped per conversation, per-user conversation streams, and a broadcast
// primitive on named channels. Subscriber registries are mutex-guarded maps.
type Feed struct {
	mu        sync.RWMutex
	byConv    map[int64]map[*Subscription]struct{}
	byUser    map[int64]map[*Subscription]struct{}
	byChannel map[string]map[*BroadcastSub]struct{}
}

func NewFeed() *Feed {
	return &Feed{
		byConv:    make(map[int64]map[*Subscription]struct{}),
		byUser:    make(map[int64]map[*Subscription]struct{}),
		byChannel: make(map[string]map[*BroadcastSub]struct{}),
	}
}

// Subscribe attaches to the row-change stream of one conversation.
func (f *Feed) Subscribe(conversationID int64) *Subscription {
	sub := &Subscription{ch: make(chan Event, subscriptionBuffer)}
	sub.cancel = func() {
		f.mu.Lock()
		if subs, ok := f.byConv[conversationID]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(f.byConv, conversationID)
			}
		}
		f.mu.Unlock()
		close(sub.ch)
	}

	f.mu.Lock()
	if f.byConv[conversationID] == nil {
		f.byConv[conversationID] = make(map[*Subscription]struct{})
	}
	f.byConv[conversationID][sub] = struct{}{}
	f.mu.Unlock()
	return sub
}

// SubscribeUser attaches to conversation-row events addressed to one user,
// regardless of which conversation they belong to.
func (f *Feed) SubscribeUser(userID int64) *Subscription {
	sub := &Subscription{ch: make(chan Event, subscriptionBuffer)}
	sub.cancel = func() {
		f.mu.Lock()
		if subs, ok := f.byUser[userID]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(f.byUser, userID)
			}
		}
		f.mu.Unlock()
		close(sub.ch)
	}

	f.mu.Lock()
	if f.byUser[userID] == nil {
		f.byUser[userID] = make(map[*Subscription]struct{})
	}
	f.byUser[userID][sub] = struct{}{}
	f.mu.Unlock()
	return sub
}

// SubscribeBroadcast attaches to a named broadcast channel.
func (f *Feed) SubscribeBroadcast(channel string) *BroadcastSub {
	sub := &BroadcastSub{ch: make(chan BroadcastEvent, subscriptionBuffer)}
	sub.cancel = func() {
		f.mu.Lock()
		if subs, ok := f.byChannel[channel]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(f.byChannel, channel)
			}
		}
		f.mu.Unlock()
		close(sub.ch)
	}

	f.mu.Lock()
	if f.byChannel[channel] == nil {
		f.byChannel[channel] = make(map[*BroadcastSub]struct{})
	}
	f.byChannel[channel][sub] = struct{}{}
	f.mu.Unlock()
	return sub
}

// PublishMessage fans a message row change out to the conversation's
// subscribers.
func (f *Feed) PublishMessage(kind EventKind, m *domain.Message) {
	ev := Event{
		Table:          TableMessages,
		Kind:           kind,
		ConversationID: m.ConversationID,
		Message:        m,
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for sub := range f.byConv[m.ConversationID] {
		select {
		case sub.ch <- ev:
		default:
			// subscriber is saturated; it will re-sync from a snapshot
		}
	}
}

// PublishConversation fans a conversation row update out to the conversation
// stream and to both participants' user streams.
func (f *Feed) PublishConversation(kind EventKind, c *domain.Conversation) {
	ev := Event{
		Table:          TableConversations,
		Kind:           kind,
		ConversationID: c.ID,
		Conversation:   c,
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for sub := range f.byConv[c.ID] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
	for _, uid := range []int64{c.Participant1ID, c.Participant2ID} {
		for sub := range f.byUser[uid] {
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
}

// Broadcast delivers an ad hoc event to every current subscriber of the
// named channel.
func (f *Feed) Broadcast(channel, event string, payload any) {
	ev := BroadcastEvent{Channel: channel, Event: event, Payload: payload}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for sub := range f.byChannel[channel] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}
