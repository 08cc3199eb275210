package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"rentline/internal/domain"
)

// TypeMessageReceived is the asynq task type consumed by the notification
// worker (push/SMS/email dispatch lives outside this repo).
const TypeMessageReceived = "notify:message_received"

// MessageReceivedPayload is the task payload for TypeMessageReceived.
type MessageReceivedPayload struct {
	MessageID      int64     `json:"message_id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	ReceiverID     int64     `json:"receiver_id"`
	Preview        string    `json:"preview"`
	SentAt         time.Time `json:"sent_at"`
}

// AsynqNotifier enqueues notification tasks on a Redis-backed asynq queue.
type AsynqNotifier struct {
	client *asynq.Client
}

// NewAsynqNotifier connects to the Redis instance behind redisURL.
func NewAsynqNotifier(redisURL string) (*AsynqNotifier, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return &AsynqNotifier{client: asynq.NewClient(opt)}, nil
}

var _ Notifier = (*AsynqNotifier)(nil)

func (n *AsynqNotifier) MessageReceived(ctx context.Context, m *domain.Message) error {
	payload, err := json.Marshal(MessageReceivedPayload{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Preview:        domain.PreviewText(m.Content, m.AttachmentName),
		SentAt:         m.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("asynq: marshal payload: %w", err)
	}

	task := asynq.NewTask(TypeMessageReceived, payload)
	info, err := n.client.EnqueueContext(ctx, task,
		asynq.Queue("notifications"),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("asynq: enqueue: %w", err)
	}
	log.Printf("notify: enqueued %s id=%s message=%d", TypeMessageReceived, info.ID, m.ID)
	return nil
}

func (n *AsynqNotifier) Close() error {
	return n.client.Close()
}
