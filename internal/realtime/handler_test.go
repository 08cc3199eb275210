package realtime_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentline/internal/domain"
	"rentline/internal/realtime"
	"rentline/internal/security"
)

// stubConversations serves a fixed conversation set.
type stubConversations struct {
	byID map[int64]*domain.Conversation
}

func (s *stubConversations) Create(context.Context, *domain.Conversation) error { return nil }

func (s *stubConversations) GetByID(_ context.Context, id int64) (*domain.Conversation, error) {
	return s.byID[id], nil
}

func (s *stubConversations) FindByParticipants(context.Context, int64, int64, *int64) (*domain.Conversation, error) {
	return nil, nil
}

func (s *stubConversations) ListForViewer(context.Context, int64) ([]*domain.Conversation, error) {
	return nil, nil
}

const wsTestOrigin = "http://localhost:3000"

type wsFixture struct {
	srv    *httptest.Server
	feed   *realtime.Feed
	tokens *security.TokenService
}

func newWSFixture(t *testing.T) *wsFixture {
	return newWSFixtureIdle(t, time.Minute)
}

func newWSFixtureIdle(t *testing.T, typingIdle time.Duration) *wsFixture {
	t.Helper()
	feed := realtime.NewFeed()
	tokens := security.NewTokenService("test-secret", time.Hour)
	conversations := &stubConversations{byID: map[int64]*domain.Conversation{
		1: {ID: 1, Participant1ID: 10, Participant2ID: 20},
	}}

	handler := realtime.MakeHandler(feed, tokens, conversations, []string{wsTestOrigin}, typingIdle)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &wsFixture{srv: srv, feed: feed, tokens: tokens}
}

func (f *wsFixture) dial(t *testing.T, userID int64) *websocket.Conn {
	t.Helper()
	token, err := f.tokens.CreateForUser(userID)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Origin", wsTestOrigin)
	header.Set("Authorization", "Bearer "+token)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrameOfType drains frames until one of the wanted type arrives.
func readFrameOfType(t *testing.T, conn *websocket.Conn, frameType string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		if frame["type"] == frameType {
			return frame
		}
	}
}

func TestWSRejectsMissingToken(t *testing.T) {
	f := newWSFixture(t)

	header := http.Header{}
	header.Set("Origin", wsTestOrigin)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWSRejectsUnknownOrigin(t *testing.T) {
	f := newWSFixture(t)
	token, err := f.tokens.CreateForUser(10)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	header.Set("Authorization", "Bearer "+token)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWSTokenViaSubprotocol(t *testing.T) {
	f := newWSFixture(t)
	token, err := f.tokens.CreateForUser(10)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Origin", wsTestOrigin)
	dialer := websocket.Dialer{Subprotocols: []string{"bearer", token}}
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http")

	conn, resp, err := dialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	conn.Close()
}

func TestWSSubscribeReceivesMessageEvents(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, 10)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "subscribe", "conversation_id": 1}))

	// no ack frame exists; give the server a beat to attach the stream
	time.Sleep(50 * time.Millisecond)
	f.feed.PublishMessage(realtime.KindInsert, &domain.Message{
		ID: 5, ConversationID: 1, SenderID: 20, ReceiverID: 10, Content: "hi",
	})

	frame := readFrameOfType(t, conn, "message")
	assert.Equal(t, "insert", frame["kind"])
	assert.Equal(t, float64(1), frame["conversation_id"])
	msg, ok := frame["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(5), msg["id"])
}

func TestWSSubscribeDeniedForOutsider(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, 30)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "subscribe", "conversation_id": 1}))

	frame := readFrameOfType(t, conn, "error")
	assert.Contains(t, frame["message"], "not allowed")
}

func TestWSTypingRelay(t *testing.T) {
	f := newWSFixture(t)
	sender := f.dial(t, 10)
	receiver := f.dial(t, 20)

	require.NoError(t, receiver.WriteJSON(map[string]any{"type": "subscribe", "conversation_id": 1}))
	require.NoError(t, sender.WriteJSON(map[string]any{"type": "subscribe", "conversation_id": 1}))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, sender.WriteJSON(map[string]any{"type": "typing_start", "conversation_id": 1}))

	frame := readFrameOfType(t, receiver, "typing")
	signal, ok := frame["signal"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(10), signal["user_id"])
	assert.Equal(t, "start", signal["kind"])
}

// readTypingSignal drains frames until a typing signal of the wanted kind
// arrives.
func readTypingSignal(t *testing.T, conn *websocket.Conn, kind string) map[string]any {
	t.Helper()
	for {
		frame := readFrameOfType(t, conn, "typing")
		signal, ok := frame["signal"].(map[string]any)
		require.True(t, ok)
		if signal["kind"] == kind {
			return signal
		}
	}
}

func TestWSTypingFailsafeStopsStaleBurst(t *testing.T) {
	f := newWSFixtureIdle(t, 60*time.Millisecond)
	sender := f.dial(t, 10)
	receiver := f.dial(t, 20)

	require.NoError(t, receiver.WriteJSON(map[string]any{"type": "subscribe", "conversation_id": 1}))
	require.NoError(t, sender.WriteJSON(map[string]any{"type": "subscribe", "conversation_id": 1}))
	time.Sleep(50 * time.Millisecond)

	// start a burst and then go silent; the server must end it on its own
	require.NoError(t, sender.WriteJSON(map[string]any{"type": "typing_start", "conversation_id": 1}))

	signal := readTypingSignal(t, receiver, "stop")
	assert.Equal(t, float64(10), signal["user_id"])
}

func TestWSDisconnectMidBurstBroadcastsStop(t *testing.T) {
	f := newWSFixture(t)
	sender := f.dial(t, 10)
	receiver := f.dial(t, 20)

	require.NoError(t, receiver.WriteJSON(map[string]any{"type": "subscribe", "conversation_id": 1}))
	require.NoError(t, sender.WriteJSON(map[string]any{"type": "subscribe", "conversation_id": 1}))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, sender.WriteJSON(map[string]any{"type": "typing_start", "conversation_id": 1}))
	readTypingSignal(t, receiver, "start")

	// client vanishes without a typing_stop
	require.NoError(t, sender.Close())

	signal := readTypingSignal(t, receiver, "stop")
	assert.Equal(t, float64(10), signal["user_id"])
}

func TestWSTypingRequiresSubscription(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, 10)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "typing_start", "conversation_id": 1}))

	frame := readFrameOfType(t, conn, "error")
	assert.Contains(t, frame["message"], "not subscribed")
}

func TestWSUserStreamCarriesConversationUpdates(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, 10)
	time.Sleep(50 * time.Millisecond)

	f.feed.PublishConversation(realtime.KindUpdate, &domain.Conversation{
		ID: 1, Participant1ID: 10, Participant2ID: 20,
	})

	frame := readFrameOfType(t, conn, "conversation")
	assert.Equal(t, "update", frame["kind"])
	conv, ok := frame["conversation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), conv["id"])
}
