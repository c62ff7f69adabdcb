package webhooks

import (
	"time"

	"github.com/google/uuid"
)

// Event types dispatched by the node.
const (
	EventRecordConfirmed = "record.confirmed"
	EventLedgerDeployed  = "ledger.deployed"
	EventLedgerDegraded  = "ledger.degraded"
)

// KnownEvents lists every event type a subscription may ask for.
var KnownEvents = []string{EventRecordConfirmed, EventLedgerDeployed, EventLedgerDegraded}

// WebhookSubscription is an actor's subscription to node events.
type WebhookSubscription struct {
	ID        uuid.UUID `json:"id"`
	Owner     string    `json:"owner"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Ledger    string    `json:"ledger,omitempty"` // empty = every ledger
	Secret    string    `json:"-"`                // never returned in listings
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// WebhookEvent is dispatched to matching subscriptions.
type WebhookEvent struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}

// WebhookDelivery records the outcome of a single delivery attempt.
type WebhookDelivery struct {
	ID             uuid.UUID `json:"id"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	EventType      string    `json:"event_type"`
	StatusCode     int       `json:"status_code"`
	Attempt        int       `json:"attempt"`
	Success        bool      `json:"success"`
	ErrorMessage   string    `json:"error_message"`
	DeliveredAt    time.Time `json:"delivered_at"`
}

// CreateSubscriptionRequest is the payload for creating a webhook subscription.
type CreateSubscriptionRequest struct {
	URL    string   `json:"url"    binding:"required,url"`
	Events []string `json:"events" binding:"required"`
	Ledger string   `json:"ledger"`
}
