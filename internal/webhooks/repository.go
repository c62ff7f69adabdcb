package webhooks

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a webhook subscription is not found.
var ErrNotFound = errors.New("webhook subscription not found")

// maxDeliveries bounds the in-memory delivery log.
const maxDeliveries = 1000

// Repository holds webhook subscriptions and recent deliveries in memory.
type Repository struct {
	mu         sync.RWMutex
	subs       map[uuid.UUID]*WebhookSubscription
	deliveries []*WebhookDelivery
}

// NewRepository creates an empty Repository.
func NewRepository() *Repository {
	return &Repository{subs: make(map[uuid.UUID]*WebhookSubscription)}
}

// Create stores a new webhook subscription.
func (r *Repository) Create(_ context.Context, sub *WebhookSubscription) error {
	sub.ID = uuid.New()
	sub.CreatedAt = time.Now().UTC()
	sub.Active = true

	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

// GetByID retrieves a subscription by ID.
func (r *Repository) GetByID(_ context.Context, id uuid.UUID) (*WebhookSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

// Delete removes a subscription.
func (r *Repository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return ErrNotFound
	}
	delete(r.subs, id)
	return nil
}

// ListByOwner returns all subscriptions created by owner, oldest first.
func (r *Repository) ListByOwner(_ context.Context, owner string) ([]*WebhookSubscription, error) {
	return r.filter(func(s *WebhookSubscription) bool { return s.Owner == owner }), nil
}

// ListByEvent returns active subscriptions for eventType that cover ledger.
func (r *Repository) ListByEvent(_ context.Context, eventType, ledger string) ([]*WebhookSubscription, error) {
	return r.filter(func(s *WebhookSubscription) bool {
		return s.Active &&
			slices.Contains(s.Events, eventType) &&
			(s.Ledger == "" || s.Ledger == ledger)
	}), nil
}

func (r *Repository) filter(keep func(*WebhookSubscription) bool) []*WebhookSubscription {
	r.mu.RLock()
	var out []*WebhookSubscription
	for _, s := range r.subs {
		if keep(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// RecordDelivery appends a delivery attempt, dropping the oldest beyond maxDeliveries.
func (r *Repository) RecordDelivery(_ context.Context, d *WebhookDelivery) error {
	d.ID = uuid.New()
	d.DeliveredAt = time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, d)
	if n := len(r.deliveries); n > maxDeliveries {
		r.deliveries = slices.Clone(r.deliveries[n-maxDeliveries:])
	}
	return nil
}

// Deliveries returns the recorded attempts for a subscription, oldest first.
func (r *Repository) Deliveries(_ context.Context, subID uuid.UUID) []*WebhookDelivery {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*WebhookDelivery
	for _, d := range r.deliveries {
		if d.SubscriptionID == subID {
			out = append(out, d)
		}
	}
	return out
}
