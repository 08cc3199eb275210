// Package thread holds the client-side state layers behind a conversation
// view: the paged message window with realtime merge/dedup, and the typing
// presence coordinator. Both are owned by a session, created when a thread
// is opened and discarded when the user navigates away.
package thread

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"rentline/internal/domain"
	"rentline/internal/realtime"
	"rentline/internal/service"
)

// Pager is the backward page fetch the Timeline sources history from.
// *service.MessageService satisfies it.
type Pager interface {
	ListRecentPage(ctx context.Context, conversationID, viewerID int64, limit, page int) ([]*service.MessageView, error)
}

// Timeline presents a conversation as one growing ascending sequence while
// sourcing it from discrete backward page fetches plus a live insert stream.
// Every message id appears at most once no matter how often the feed replays
// it, and the sequence stays sorted by (created_at, id) regardless of
// arrival order.
type Timeline struct {
	pager    Pager
	viewerID int64
	limit    int

	mu             sync.Mutex
	conversationID int64
	page           int
	hasMore        bool
	loading        bool
	ids            map[int64]struct{}
	msgs           []*service.MessageView
}

func NewTimeline(pager Pager, conversationID, viewerID int64, limit int) *Timeline {
	if limit <= 0 {
		limit = 50
	}
	return &Timeline{
		pager:          pager,
		viewerID:       viewerID,
		limit:          limit,
		conversationID: conversationID,
		hasMore:        true,
		ids:            make(map[int64]struct{}),
	}
}

// LoadInitial clears any prior window and fetches page 0, the newest slice.
func (t *Timeline) LoadInitial(ctx context.Context) error {
	t.mu.Lock()
	convID := t.conversationID
	t.page = 0
	t.hasMore = true
	t.loading = true
	t.ids = make(map[int64]struct{})
	t.msgs = nil
	t.mu.Unlock()

	views, err := t.pager.ListRecentPage(ctx, convID, t.viewerID, t.limit, 0)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.loading = false
	if err != nil {
		return fmt.Errorf("load initial page: %w", err)
	}
	if t.conversationID != convID {
		return nil // switched away mid-flight; result is stale
	}
	t.merge(views)
	if len(views) < t.limit {
		t.hasMore = false
	}
	return nil
}

// LoadMore fetches the next older page and merges it into the front of the
// sequence. No-op while a load is in flight or when history is exhausted.
func (t *Timeline) LoadMore(ctx context.Context) error {
	t.mu.Lock()
	if t.loading || !t.hasMore {
		t.mu.Unlock()
		return nil
	}
	t.loading = true
	convID := t.conversationID
	page := t.page + 1
	t.mu.Unlock()

	views, err := t.pager.ListRecentPage(ctx, convID, t.viewerID, t.limit, page)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.loading = false
	if err != nil {
		return fmt.Errorf("load page %d: %w", page, err)
	}
	if t.conversationID != convID {
		return nil
	}
	t.page = page
	t.merge(views)
	if len(views) < t.limit {
		t.hasMore = false
	}
	return nil
}

// ApplyEvent folds a feed event for this conversation into the window.
// Events for other conversations or tables are ignored.
func (t *Timeline) ApplyEvent(ev realtime.Event) {
	if ev.Table != realtime.TableMessages || ev.Message == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if ev.ConversationID != t.conversationID {
		return
	}
	switch ev.Kind {
	case realtime.KindInsert:
		t.insertLocked(ev.Message)
	case realtime.KindUpdate:
		t.updateLocked(ev.Message)
	case realtime.KindDelete:
		t.deleteLocked(ev.Message.ID)
	}
}

// ApplyInsert merges a live insert; returns false when the id was already
// displayed (exactly-once display guarantee).
func (t *Timeline) ApplyInsert(m *domain.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m.ConversationID != t.conversationID {
		return false
	}
	return t.insertLocked(m)
}

func (t *Timeline) insertLocked(m *domain.Message) bool {
	if _, ok := t.ids[m.ID]; ok {
		return false
	}
	t.ids[m.ID] = struct{}{}
	t.msgs = append(t.msgs, t.viewFor(m))
	t.sortLocked()
	return true
}

func (t *Timeline) updateLocked(m *domain.Message) {
	for i, v := range t.msgs {
		if v.ID == m.ID {
			updated := *t.msgs[i]
			updated.Message = *m
			t.msgs[i] = &updated
			return
		}
	}
}

func (t *Timeline) deleteLocked(id int64) {
	if _, ok := t.ids[id]; !ok {
		return
	}
	delete(t.ids, id)
	for i, v := range t.msgs {
		if v.ID == id {
			t.msgs = append(t.msgs[:i], t.msgs[i+1:]...)
			return
		}
	}
}

// viewFor wraps a bare feed row, reusing a sender profile already present in
// the window so live inserts render with a name without another lookup.
func (t *Timeline) viewFor(m *domain.Message) *service.MessageView {
	sender := domain.PlaceholderProfile(m.SenderID)
	for _, v := range t.msgs {
		if v.SenderID == m.SenderID && v.Sender != nil {
			sender = v.Sender
			break
		}
	}
	return &service.MessageView{Message: *m, Sender: sender}
}

func (t *Timeline) merge(views []*service.MessageView) {
	for _, v := range views {
		if _, ok := t.ids[v.ID]; ok {
			continue
		}
		t.ids[v.ID] = struct{}{}
		t.msgs = append(t.msgs, v)
	}
	t.sortLocked()
}

func (t *Timeline) sortLocked() {
	sort.SliceStable(t.msgs, func(i, j int) bool {
		return t.msgs[i].Message.Before(&t.msgs[j].Message)
	})
}

// Messages returns a snapshot of the current ascending window.
func (t *Timeline) Messages() []*service.MessageView {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*service.MessageView, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Contains reports whether the id is currently displayed.
func (t *Timeline) Contains(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.ids[id]
	return ok
}

func (t *Timeline) HasMore() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasMore
}

// Reset switches the timeline to another conversation, dropping the page
// cursor, the id-set and the window.
func (t *Timeline) Reset(conversationID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conversationID = conversationID
	t.page = 0
	t.hasMore = true
	t.loading = false
	t.ids = make(map[int64]struct{})
	t.msgs = nil
}
