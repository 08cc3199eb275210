package thread_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentline/internal/domain"
	"rentline/internal/realtime"
	"rentline/internal/service"
	"rentline/internal/thread"
)

// fakePager serves canned backward pages and counts fetches.
type fakePager struct {
	pages map[int][]*service.MessageView
	calls int
	err   error
}

func (p *fakePager) ListRecentPage(_ context.Context, _, _ int64, _ int, page int) ([]*service.MessageView, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.pages[page], nil
}

func view(id int64, convID int64, at time.Time) *service.MessageView {
	return &service.MessageView{
		Message: domain.Message{ID: id, ConversationID: convID, SenderID: 10, CreatedAt: at},
		Sender:  &domain.Profile{ID: 10, FullName: "Nino B."},
	}
}

func row(id int64, convID int64, at time.Time) *domain.Message {
	return &domain.Message{ID: id, ConversationID: convID, SenderID: 20, CreatedAt: at}
}

func ids(views []*service.MessageView) []int64 {
	out := make([]int64, 0, len(views))
	for _, v := range views {
		out = append(out, v.ID)
	}
	return out
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestTimelineLoadInitial(t *testing.T) {
	ctx := context.Background()

	t.Run("FullPageKeepsHasMore", func(t *testing.T) {
		pager := &fakePager{pages: map[int][]*service.MessageView{
			0: {view(4, 1, base.Add(3 * time.Minute)), view(5, 1, base.Add(4 * time.Minute)), view(6, 1, base.Add(5 * time.Minute))},
		}}
		tl := thread.NewTimeline(pager, 1, 10, 3)

		require.NoError(t, tl.LoadInitial(ctx))
		assert.Equal(t, []int64{4, 5, 6}, ids(tl.Messages()))
		assert.True(t, tl.HasMore())
	})

	t.Run("ShortPageExhaustsHistory", func(t *testing.T) {
		pager := &fakePager{pages: map[int][]*service.MessageView{
			0: {view(1, 1, base)},
		}}
		tl := thread.NewTimeline(pager, 1, 10, 3)

		require.NoError(t, tl.LoadInitial(ctx))
		assert.False(t, tl.HasMore())
	})

	t.Run("FetchErrorSurfaces", func(t *testing.T) {
		pager := &fakePager{err: errors.New("store down")}
		tl := thread.NewTimeline(pager, 1, 10, 3)

		assert.Error(t, tl.LoadInitial(ctx))
		assert.Empty(t, tl.Messages())
	})
}

func TestTimelineLoadMore(t *testing.T) {
	ctx := context.Background()

	t.Run("MergesOlderPageInFront", func(t *testing.T) {
		pager := &fakePager{pages: map[int][]*service.MessageView{
			0: {view(4, 1, base.Add(3 * time.Minute)), view(5, 1, base.Add(4 * time.Minute))},
			1: {view(2, 1, base.Add(time.Minute)), view(3, 1, base.Add(2 * time.Minute))},
		}}
		tl := thread.NewTimeline(pager, 1, 10, 2)

		require.NoError(t, tl.LoadInitial(ctx))
		require.NoError(t, tl.LoadMore(ctx))
		assert.Equal(t, []int64{2, 3, 4, 5}, ids(tl.Messages()))
	})

	t.Run("OverlappingPagesDeduplicate", func(t *testing.T) {
		// page boundaries shifted by a concurrent insert re-serve message 4
		pager := &fakePager{pages: map[int][]*service.MessageView{
			0: {view(4, 1, base.Add(3 * time.Minute)), view(5, 1, base.Add(4 * time.Minute))},
			1: {view(3, 1, base.Add(2 * time.Minute)), view(4, 1, base.Add(3 * time.Minute))},
		}}
		tl := thread.NewTimeline(pager, 1, 10, 2)

		require.NoError(t, tl.LoadInitial(ctx))
		require.NoError(t, tl.LoadMore(ctx))
		assert.Equal(t, []int64{3, 4, 5}, ids(tl.Messages()))
	})

	t.Run("NoOpOnceExhausted", func(t *testing.T) {
		pager := &fakePager{pages: map[int][]*service.MessageView{
			0: {view(1, 1, base)},
		}}
		tl := thread.NewTimeline(pager, 1, 10, 3)

		require.NoError(t, tl.LoadInitial(ctx))
		require.False(t, tl.HasMore())
		fetched := pager.calls

		require.NoError(t, tl.LoadMore(ctx))
		require.NoError(t, tl.LoadMore(ctx))
		assert.Equal(t, fetched, pager.calls)
	})
}

func TestTimelineApplyInsert(t *testing.T) {
	ctx := context.Background()

	t.Run("ReplayedInsertDisplaysOnce", func(t *testing.T) {
		pager := &fakePager{pages: map[int][]*service.MessageView{}}
		tl := thread.NewTimeline(pager, 1, 10, 10)
		require.NoError(t, tl.LoadInitial(ctx))

		m := row(7, 1, base)
		assert.True(t, tl.ApplyInsert(m))
		for i := 0; i < 5; i++ {
			assert.False(t, tl.ApplyInsert(m))
		}
		assert.Len(t, tl.Messages(), 1)
	})

	t.Run("InsertAlreadyInPageIsIgnored", func(t *testing.T) {
		pager := &fakePager{pages: map[int][]*service.MessageView{
			0: {view(7, 1, base)},
		}}
		tl := thread.NewTimeline(pager, 1, 10, 10)
		require.NoError(t, tl.LoadInitial(ctx))

		assert.False(t, tl.ApplyInsert(row(7, 1, base)))
		assert.Len(t, tl.Messages(), 1)
	})

	t.Run("OutOfOrderArrivalStaysSorted", func(t *testing.T) {
		pager := &fakePager{pages: map[int][]*service.MessageView{}}
		tl := thread.NewTimeline(pager, 1, 10, 10)
		require.NoError(t, tl.LoadInitial(ctx))

		tl.ApplyInsert(row(9, 1, base.Add(2*time.Minute)))
		tl.ApplyInsert(row(8, 1, base.Add(time.Minute)))
		tl.ApplyInsert(row(10, 1, base.Add(3*time.Minute)))
		assert.Equal(t, []int64{8, 9, 10}, ids(tl.Messages()))
	})

	t.Run("EqualTimestampsTieBreakOnID", func(t *testing.T) {
		pager := &fakePager{pages: map[int][]*service.MessageView{}}
		tl := thread.NewTimeline(pager, 1, 10, 10)
		require.NoError(t, tl.LoadInitial(ctx))

		tl.ApplyInsert(row(12, 1, base))
		tl.ApplyInsert(row(11, 1, base))
		assert.Equal(t, []int64{11, 12}, ids(tl.Messages()))
	})

	t.Run("OtherConversationIgnored", func(t *testing.T) {
		pager := &fakePager{pages: map[int][]*service.MessageView{}}
		tl := thread.NewTimeline(pager, 1, 10, 10)
		require.NoError(t, tl.LoadInitial(ctx))

		assert.False(t, tl.ApplyInsert(row(7, 2, base)))
		assert.Empty(t, tl.Messages())
	})
}

func TestTimelineApplyEvent(t *testing.T) {
	ctx := context.Background()

	newLoaded := func(t *testing.T) *thread.Timeline {
		t.Helper()
		pager := &fakePager{pages: map[int][]*service.MessageView{
			0: {view(1, 1, base), view(2, 1, base.Add(time.Minute))},
		}}
		tl := thread.NewTimeline(pager, 1, 10, 10)
		require.NoError(t, tl.LoadInitial(ctx))
		return tl
	}

	t.Run("UpdateRewritesRowInPlace", func(t *testing.T) {
		tl := newLoaded(t)
		updated := &domain.Message{ID: 1, ConversationID: 1, SenderID: 10, Content: "edited", CreatedAt: base}
		tl.ApplyEvent(realtime.Event{Table: realtime.TableMessages, Kind: realtime.KindUpdate, ConversationID: 1, Message: updated})

		msgs := tl.Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, "edited", msgs[0].Content)
	})

	t.Run("DeleteDropsRow", func(t *testing.T) {
		tl := newLoaded(t)
		tl.ApplyEvent(realtime.Event{Table: realtime.TableMessages, Kind: realtime.KindDelete, ConversationID: 1, Message: &domain.Message{ID: 2, ConversationID: 1}})

		assert.Equal(t, []int64{1}, ids(tl.Messages()))
		assert.False(t, tl.Contains(2))
	})

	t.Run("ConversationTableEventIgnored", func(t *testing.T) {
		tl := newLoaded(t)
		tl.ApplyEvent(realtime.Event{Table: realtime.TableConversations, Kind: realtime.KindUpdate, ConversationID: 1})
		assert.Len(t, tl.Messages(), 2)
	})
}

func TestTimelineReset(t *testing.T) {
	ctx := context.Background()
	pager := &fakePager{pages: map[int][]*service.MessageView{
		0: {view(1, 1, base)},
	}}
	tl := thread.NewTimeline(pager, 1, 10, 3)
	require.NoError(t, tl.LoadInitial(ctx))
	require.NotEmpty(t, tl.Messages())

	tl.Reset(2)
	assert.Empty(t, tl.Messages())
	assert.True(t, tl.HasMore())
	assert.False(t, tl.Contains(1))

	// inserts for the old conversation no longer apply
	assert.False(t, tl.ApplyInsert(row(1, 1, base)))
	assert.True(t, tl.ApplyInsert(row(50, 2, base)))
}
