// internal/events/events.go
package events

import (
	"context"
	"time"
)

// Event types published after a ledger change commits.
const (
	EscrowCreated  = "escrow.created"
	EscrowFunded   = "escrow.funded"
	EscrowReleased = "escrow.released"
	EscrowRefunded = "escrow.refunded"
	EscrowDisputed = "escrow.disputed"
	EscrowExpired  = "escrow.expired"
	WalletTransfer = "wallet.transfer"
	WalletTopUp    = "wallet.topup"
	WalletWithdraw = "wallet.withdrawal"
)

// Event is a fact about a committed ledger change. Type doubles as the routing key.
type Event struct {
	Type        string         `json:"type"`
	AggregateID string         `json:"aggregateId"`
	UserIDs     []string       `json:"userIds"`
	Data        map[string]any `json:"data,omitempty"`
	OccurredAt  time.Time      `json:"occurredAt"`
}

// New builds an event stamped with the current time.
func New(eventType, aggregateID string, userIDs []string, data map[string]any) Event {
	return Event{
		Type:        eventType,
		AggregateID: aggregateID,
		UserIDs:     userIDs,
		Data:        data,
		OccurredAt:  time.Now().UTC(),
	}
}

// Publisher delivers events to interested consumers (notifications, analytics).
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher drops every event. It is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }
