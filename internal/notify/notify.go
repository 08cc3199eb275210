package notify

import (
	"context"

	"rentline/internal/domain"
)

// Notifier hands finished message writes to the external push/SMS/email
// dispatch pipeline. Delivery is best-effort; failures must never fail the
// send path.
type Notifier interface {
	MessageReceived(ctx context.Context, m *domain.Message) error
}

// Nop discards notifications; used when no queue backend is configured.
type Nop struct{}

func (Nop) MessageReceived(ctx context.Context, m *domain.Message) error { return nil }
