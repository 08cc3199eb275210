package realtime

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rentline/internal/domain"
	"rentline/internal/security"
)

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// convStreams bundles the feed handles of one subscribed conversation.
type convStreams struct {
	rows   *Subscription
	typing *BroadcastSub
}

func (s *convStreams) close() {
	s.rows.Unsubscribe()
	s.typing.Unsubscribe()
}

// MakeHandler returns an HTTP handler for the /ws endpoint.
// Authenticates via bearer token (Authorization header or
// Sec-WebSocket-Protocol), then dispatches client events:
//   - subscribe      -> attach to a conversation's row stream + typing channel
//   - unsubscribe    -> detach, so no state bleeds into the next thread
//   - typing_start   -> broadcast a typing signal to current subscribers
//   - typing_stop    -> broadcast the end of the burst
//
// Feed events go out as typed JSON frames. Subscribing is participant-checked
// against the store; the channel itself carries no access control.
//
// typingIdle is the server-side failsafe for typing indicators: when a client
// starts a burst and then vanishes without a typing_stop, the server
// broadcasts the stop itself after this much silence, so the other side never
// shows a stuck "typing..." from a dead connection.
func MakeHandler(
	feed *Feed,
	tokens *security.TokenService,
	conversations domain.ConversationRepository,
	allowedOrigins []string,
	typingIdle time.Duration,
) http.HandlerFunc {
	if typingIdle <= 0 {
		typingIdle = 3 * time.Second
	}
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			if authErr, ok := err.(wsAuthError); ok {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		claims, err := tokens.Parse(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		userID, err := tokens.UserID(claims)
		if err != nil {
			http.Error(w, "invalid token subject", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx := r.Context()
		done := make(chan struct{})
		out := make(chan any, subscriptionBuffer)

		// single writer goroutine; gorilla connections are not safe for
		// concurrent writes
		go func() {
			for {
				select {
				case v := <-out:
					if err := conn.WriteJSON(v); err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		send := func(v any) {
			select {
			case out <- v:
			case <-done:
			}
		}

		// conversation-list updates for this user, independent of which
		// thread is open
		userSub := feed.SubscribeUser(userID)
		go func() {
			for ev := range userSub.C() {
				send(map[string]any{
					"type":         "conversation",
					"kind":         ev.Kind,
					"conversation": ev.Conversation,
				})
			}
		}()

		broadcastStop := func(convID int64) {
			feed.Broadcast(TypingChannel(convID), EventTyping, domain.TypingSignal{
				ConversationID: convID,
				UserID:         userID,
				Kind:           domain.TypingStop,
			})
		}

		// failsafe timers, one per conversation with an open typing burst;
		// AfterFunc fires on its own goroutine, hence the mutex
		var timersMu sync.Mutex
		typingTimers := make(map[int64]*time.Timer)

		armFailsafe := func(convID int64) {
			timersMu.Lock()
			defer timersMu.Unlock()
			if tmr, ok := typingTimers[convID]; ok {
				tmr.Reset(typingIdle)
				return
			}
			typingTimers[convID] = time.AfterFunc(typingIdle, func() {
				timersMu.Lock()
				delete(typingTimers, convID)
				timersMu.Unlock()
				broadcastStop(convID)
			})
		}

		// cancelFailsafe reports whether a burst was still open, so callers
		// know a closing typing_stop is owed
		cancelFailsafe := func(convID int64) bool {
			timersMu.Lock()
			defer timersMu.Unlock()
			tmr, ok := typingTimers[convID]
			if ok {
				tmr.Stop()
				delete(typingTimers, convID)
			}
			return ok
		}

		streams := make(map[int64]*convStreams)
		defer func() {
			timersMu.Lock()
			open := make([]int64, 0, len(typingTimers))
			for convID, tmr := range typingTimers {
				tmr.Stop()
				open = append(open, convID)
			}
			typingTimers = make(map[int64]*time.Timer)
			timersMu.Unlock()
			for _, convID := range open {
				broadcastStop(convID)
			}

			close(done)
			userSub.Unsubscribe()
			for _, s := range streams {
				s.close()
			}
		}()

		for {
			var payload map[string]any
			if err := conn.ReadJSON(&payload); err != nil {
				break
			}
			msgType, _ := payload["type"].(string)
			convIDf, _ := payload["conversation_id"].(float64)
			convID := int64(convIDf)

			switch msgType {

			case "subscribe":
				if convID == 0 {
					sendError(send, "subscribe requires conversation_id")
					continue
				}
				if _, ok := streams[convID]; ok {
					continue
				}
				conv, err := conversations.GetByID(ctx, convID)
				if err != nil || conv == nil || !conv.HasParticipant(userID) {
					sendError(send, "not allowed for this conversation")
					continue
				}
				s := &convStreams{
					rows:   feed.Subscribe(convID),
					typing: feed.SubscribeBroadcast(TypingChannel(convID)),
				}
				streams[convID] = s
				go func(s *convStreams) {
					for ev := range s.rows.C() {
						if ev.Table != TableMessages {
							continue // conversation updates travel on the user stream
						}
						send(map[string]any{
							"type":            "message",
							"kind":            ev.Kind,
							"conversation_id": ev.ConversationID,
							"message":         ev.Message,
						})
					}
				}(s)
				go func(s *convStreams, convID int64) {
					for ev := range s.typing.C() {
						send(map[string]any{
							"type":            "typing",
							"conversation_id": convID,
							"signal":          ev.Payload,
						})
					}
				}(s, convID)

			case "unsubscribe":
				if s, ok := streams[convID]; ok {
					s.close()
					delete(streams, convID)
				}
				if cancelFailsafe(convID) {
					broadcastStop(convID)
				}

			case "typing_start":
				if _, ok := streams[convID]; !ok {
					sendError(send, "not subscribed to this conversation")
					continue
				}
				feed.Broadcast(TypingChannel(convID), EventTyping, domain.TypingSignal{
					ConversationID: convID,
					UserID:         userID,
					Kind:           domain.TypingStart,
				})
				armFailsafe(convID)

			case "typing_stop":
				if _, ok := streams[convID]; !ok {
					sendError(send, "not subscribed to this conversation")
					continue
				}
				cancelFailsafe(convID)
				broadcastStop(convID)

			default:
				log.Printf("ws: unknown event type %q from user %d", msgType, userID)
			}
		}
	}
}

func sendError(send func(any), msg string) {
	send(map[string]any{
		"type":    "error",
		"message": msg,
	})
}
