package thread

import (
	"sort"
	"sync"
	"time"

	"rentline/internal/domain"
	"rentline/internal/realtime"
)

// DefaultTypingIdle is the inactivity timeout after which a typing burst is
// considered over.
const DefaultTypingIdle = 3 * time.Second

// TypingCoordinator runs the per-conversation typing state machine. The
// local side broadcasts typing_start once per input burst and typing_stop on
// idle expiry or send; the remote side maintains the currently-typing set
// that drives the indicator. A nil feed degrades to no indicator at all,
// never blocking message flow.
type TypingCoordinator struct {
	feed           *realtime.Feed
	conversationID int64
	selfID         int64
	idle           time.Duration

	mu     sync.Mutex
	active bool
	timer  *time.Timer
	typing map[int64]struct{}
	sub    *realtime.BroadcastSub
	closed bool
}

func NewTypingCoordinator(feed *realtime.Feed, conversationID, selfID int64, idle time.Duration) *TypingCoordinator {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	c := &TypingCoordinator{
		feed:           feed,
		conversationID: conversationID,
		selfID:         selfID,
		idle:           idle,
		typing:         make(map[int64]struct{}),
	}
	if feed != nil {
		c.sub = feed.SubscribeBroadcast(realtime.TypingChannel(conversationID))
		go c.listen(c.sub)
	}
	return c
}

func (c *TypingCoordinator) listen(sub *realtime.BroadcastSub) {
	for ev := range sub.C() {
		sig, ok := ev.Payload.(domain.TypingSignal)
		if !ok {
			continue
		}
		c.OnSignal(sig)
	}
}

// InputActivity records local keystrokes: the first one of a burst
// broadcasts typing_start, every one resets the idle timer.
func (c *TypingCoordinator) InputActivity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if !c.active {
		c.active = true
		c.broadcastLocked(domain.TypingStart)
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.idle, c.expire)
}

func (c *TypingCoordinator) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.active {
		return
	}
	c.active = false
	c.broadcastLocked(domain.TypingStop)
}

// MessageSent ends the local burst immediately; sending a message implies
// the composer is empty again.
func (c *TypingCoordinator) MessageSent() { c.stopLocal() }

// Stop explicitly ends the local burst.
func (c *TypingCoordinator) Stop() { c.stopLocal() }

func (c *TypingCoordinator) stopLocal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.active {
		c.active = false
		c.broadcastLocked(domain.TypingStop)
	}
}

func (c *TypingCoordinator) broadcastLocked(kind domain.TypingKind) {
	if c.feed == nil {
		return
	}
	c.feed.Broadcast(realtime.TypingChannel(c.conversationID), realtime.EventTyping, domain.TypingSignal{
		ConversationID: c.conversationID,
		UserID:         c.selfID,
		Kind:           kind,
	})
}

// OnSignal folds a remote typing signal into the currently-typing set.
// Signals from self and from other conversations are ignored.
func (c *TypingCoordinator) OnSignal(sig domain.TypingSignal) {
	if sig.UserID == c.selfID || sig.ConversationID != c.conversationID {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	switch sig.Kind {
	case domain.TypingStart:
		c.typing[sig.UserID] = struct{}{}
	case domain.TypingStop:
		delete(c.typing, sig.UserID)
	}
}

// TypingUsers returns the users currently typing, in stable order.
func (c *TypingCoordinator) TypingUsers() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, 0, len(c.typing))
	for id := range c.typing {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close stops the idle timer, sends a final typing_stop if a burst is open,
// and leaves the broadcast channel so no signals leak into a conversation
// that is no longer being viewed.
func (c *TypingCoordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.active {
		c.active = false
		c.broadcastLocked(domain.TypingStop)
	}
	c.closed = true
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}
