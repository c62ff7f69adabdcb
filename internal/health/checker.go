// Package health periodically audits deployed ledgers by walking their hash
// chains, flagging a ledger as degraded once it fails verification
// FailThreshold times in a row.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/jmerrifield20/waveledger/internal/deploy"
	"github.com/jmerrifield20/waveledger/internal/webhooks"
	"go.uber.org/zap"
)

// Status values reported by Checker.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Config holds integrity check configuration.
type Config struct {
	CheckInterval time.Duration
	FailThreshold int
}

// DeploymentLister returns the ledgers to audit. *deploy.Local satisfies it.
type DeploymentLister interface {
	List() []*deploy.Deployment
}

// WebhookDispatchFunc is an optional callback for dispatching degraded events.
type WebhookDispatchFunc func(ctx context.Context, eventType string, payload map[string]string)

// MetricsRecordFunc is an optional callback for recording check results.
type MetricsRecordFunc func(success bool)

// Checker runs periodic ledger integrity checks.
type Checker struct {
	lister     DeploymentLister
	cfg        Config
	onMetrics  MetricsRecordFunc
	onWebhook  WebhookDispatchFunc
	logger     *zap.Logger
	mu         sync.Mutex
	failCounts map[string]int
}

// New creates a new Checker.
func New(lister DeploymentLister, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.FailThreshold <= 0 {
		cfg.FailThreshold = 3
	}
	return &Checker{
		lister:     lister,
		cfg:        cfg,
		logger:     logger,
		failCounts: make(map[string]int),
	}
}

// SetWebhookDispatch configures the webhook dispatch callback.
func (h *Checker) SetWebhookDispatch(fn WebhookDispatchFunc) {
	h.onWebhook = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start runs the check loop until ctx is done.
func (h *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, h.cfg.CheckInterval)
			h.CheckAll(checkCtx)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll verifies every deployed ledger with bounded concurrency.
func (h *Checker) CheckAll(ctx context.Context) {
	deployments := h.lister.List()

	live := make(map[string]struct{}, len(deployments))
	sem := make(chan struct{}, 10)
	var wg sync.WaitGroup

	for _, d := range deployments {
		live[d.Address] = struct{}{}
		wg.Add(1)
		go func(d *deploy.Deployment) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			err := d.Ledger.Verify(ctx)
			success := err == nil
			if h.onMetrics != nil {
				h.onMetrics(success)
			}

			h.mu.Lock()
			prevCount := h.failCounts[d.Address]
			if success {
				h.failCounts[d.Address] = 0
			} else {
				h.failCounts[d.Address]++
			}
			count := h.failCounts[d.Address]
			h.mu.Unlock()

			switch {
			case success && prevCount >= h.cfg.FailThreshold:
				h.logger.Info("health: recovered", zap.String("address", d.Address))
			case !success && count == h.cfg.FailThreshold:
				// Exactly at threshold, so the transition is logged once.
				h.logger.Warn("health: degraded",
					zap.String("address", d.Address),
					zap.Int("fail_count", count),
					zap.Error(err),
				)
				if h.onWebhook != nil {
					h.onWebhook(ctx, webhooks.EventLedgerDegraded, map[string]string{
						"ledger": d.Address,
						"error":  err.Error(),
					})
				}
			}
		}(d)
	}
	wg.Wait()

	// Forget ledgers torn down by a reset.
	h.mu.Lock()
	for addr := range h.failCounts {
		if _, ok := live[addr]; !ok {
			delete(h.failCounts, addr)
		}
	}
	h.mu.Unlock()
}

// Status returns the audited status of the ledger at address.
func (h *Checker) Status(address string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failCounts[address] >= h.cfg.FailThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}
