// Package webhooks notifies subscribers over HTTP when ledgers change: a
// record confirms, a ledger is deployed, or an audit flags a ledger as
// degraded. Deliveries are signed with a per-subscription HMAC secret.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/waveledger/internal/ledger"
	"go.uber.org/zap"
)

// SignatureHeader carries the HMAC-SHA256 signature of the delivery body.
const SignatureHeader = "X-Wave-Signature"

// Errors returned by Subscribe and Unsubscribe.
var (
	ErrUnknownEvent = errors.New("unknown event type")
	ErrNoEvents     = errors.New("at least one event type is required")
	ErrForbidden    = errors.New("not authorized to modify this subscription")
)

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Service manages webhook subscriptions and event dispatching.
type Service struct {
	repo       *Repository
	httpClient *http.Client
	delays     []time.Duration // wait before each attempt; len = max attempts
	onMetrics  MetricsRecorder
	logger     *zap.Logger
}

// NewService creates a new webhook Service.
func NewService(repo *Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:       repo,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// Retry with exponential backoff: 1s, 5s.
		delays: []time.Duration{0, 1 * time.Second, 5 * time.Second},
		logger: logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (s *Service) SetMetricsRecorder(fn MetricsRecorder) {
	s.onMetrics = fn
}

// SetRetryDelays replaces the per-attempt delays. The first entry is the
// delay before the first attempt, usually zero.
func (s *Service) SetRetryDelays(delays ...time.Duration) {
	if len(delays) > 0 {
		s.delays = delays
	}
}

// Subscribe creates a new webhook subscription with a generated HMAC secret.
func (s *Service) Subscribe(ctx context.Context, owner string, req *CreateSubscriptionRequest) (*WebhookSubscription, error) {
	if len(req.Events) == 0 {
		return nil, ErrNoEvents
	}
	for _, e := range req.Events {
		if !slices.Contains(KnownEvents, e) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, e)
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	sub := &WebhookSubscription{
		Owner:  owner,
		URL:    req.URL,
		Events: req.Events,
		Ledger: req.Ledger,
		Secret: secret,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return sub, nil
}

// Unsubscribe deletes a subscription, checking ownership.
func (s *Service) Unsubscribe(ctx context.Context, owner string, subID uuid.UUID) error {
	sub, err := s.repo.GetByID(ctx, subID)
	if err != nil {
		return err
	}
	if sub.Owner != owner {
		return ErrForbidden
	}
	return s.repo.Delete(ctx, subID)
}

// ListByOwner returns all subscriptions for an actor.
func (s *Service) ListByOwner(ctx context.Context, owner string) ([]*WebhookSubscription, error) {
	return s.repo.ListByOwner(ctx, owner)
}

// Dispatch fans out an event to all matching subscriptions. payload["ledger"]
// selects ledger-scoped subscriptions.
func (s *Service) Dispatch(ctx context.Context, eventType string, payload map[string]string) {
	subs, err := s.repo.ListByEvent(ctx, eventType, payload["ledger"])
	if err != nil {
		s.logger.Error("webhook: list subscribers", zap.Error(err))
		return
	}

	event := WebhookEvent{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	for _, sub := range subs {
		go s.deliver(ctx, sub, event)
	}
}

// Watch dispatches a record.confirmed event for every record received on
// records until the channel closes.
func (s *Service) Watch(ctx context.Context, address string, records <-chan ledger.Record) {
	for rec := range records {
		s.Dispatch(ctx, EventRecordConfirmed, map[string]string{
			"ledger":    address,
			"seq":       strconv.FormatUint(rec.Seq, 10),
			"author":    rec.Author,
			"message":   rec.Message,
			"timestamp": strconv.FormatUint(rec.Timestamp, 10),
			"hash":      rec.Hash,
		})
	}
}

// deliver sends the event to a single subscription with retries.
func (s *Service) deliver(ctx context.Context, sub *WebhookSubscription, event WebhookEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}

	signature := signPayload(body, sub.Secret)

	for i, delay := range s.delays {
		attempt := i + 1
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}

		success, statusCode, errMsg := s.doDelivery(ctx, sub.URL, body, signature)

		delivery := &WebhookDelivery{
			SubscriptionID: sub.ID,
			EventType:      event.Type,
			StatusCode:     statusCode,
			Attempt:        attempt,
			Success:        success,
			ErrorMessage:   errMsg,
		}
		if recordErr := s.repo.RecordDelivery(ctx, delivery); recordErr != nil {
			s.logger.Warn("webhook: record delivery", zap.Error(recordErr))
		}

		if s.onMetrics != nil {
			s.onMetrics(success)
		}

		if success {
			return
		}

		s.logger.Warn("webhook: delivery failed",
			zap.String("url", sub.URL),
			zap.Int("attempt", attempt),
			zap.String("error", errMsg),
		)
	}
}

// doDelivery performs a single HTTP POST delivery.
func (s *Service) doDelivery(ctx context.Context, url string, body []byte, signature string) (bool, int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, 0, err.Error()
	}
	defer resp.Body.Close()
	io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	errMsg := ""
	if !success {
		errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return success, resp.StatusCode, errMsg
}

// VerifySignature reports whether signature matches body under secret.
func VerifySignature(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(signPayload(body, secret)), []byte(signature))
}

// signPayload computes an HMAC-SHA256 signature.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// generateSecret creates a random 32-byte hex-encoded secret.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
