package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmerrifield20/waveledger/internal/deploy"
	"github.com/jmerrifield20/waveledger/internal/ledger"
	"github.com/jmerrifield20/waveledger/internal/webhooks"
	"go.uber.org/zap"
)

// ── Stubs ────────────────────────────────────────────────────────────────

// brokenLedger is a real service whose chain check can be forced to fail.
type brokenLedger struct {
	*ledger.Service
	broken atomic.Bool
}

func (b *brokenLedger) Verify(ctx context.Context) error {
	if b.broken.Load() {
		return errors.New("hash mismatch at seq 0")
	}
	return b.Service.Verify(ctx)
}

type stubLister struct {
	deployments []*deploy.Deployment
}

func (s *stubLister) List() []*deploy.Deployment { return s.deployments }

func newBroken(broken bool) *brokenLedger {
	b := &brokenLedger{Service: ledger.New(ledger.Config{}, zap.NewNop())}
	b.broken.Store(broken)
	return b
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestCheckAll_healthyLedger(t *testing.T) {
	svc := ledger.New(ledger.Config{}, zap.NewNop())
	if _, err := svc.Submit(context.Background(), "0xa", "hello"); err != nil {
		t.Fatal(err)
	}
	svc.Seal()

	lister := &stubLister{deployments: []*deploy.Deployment{{Address: "0x1", Ledger: svc}}}
	checker := New(lister, Config{}, zap.NewNop())

	var ok, failed int
	checker.SetMetricsRecord(func(success bool) {
		if success {
			ok++
		} else {
			failed++
		}
	})
	checker.CheckAll(context.Background())

	if ok != 1 || failed != 0 {
		t.Errorf("metrics: ok=%d failed=%d", ok, failed)
	}
	if got := checker.Status("0x1"); got != StatusHealthy {
		t.Errorf("status = %q, want healthy", got)
	}
}

func TestCheckAll_degradesAfterThreshold(t *testing.T) {
	l := newBroken(true)
	lister := &stubLister{deployments: []*deploy.Deployment{{Address: "0x1", Ledger: l}}}
	checker := New(lister, Config{FailThreshold: 3}, zap.NewNop())

	for i := 0; i < 2; i++ {
		checker.CheckAll(context.Background())
	}
	if got := checker.Status("0x1"); got != StatusHealthy {
		t.Fatalf("after 2 failures status = %q, want healthy", got)
	}

	checker.CheckAll(context.Background())
	if got := checker.Status("0x1"); got != StatusDegraded {
		t.Fatalf("after 3 failures status = %q, want degraded", got)
	}

	l.broken.Store(false)
	checker.CheckAll(context.Background())
	if got := checker.Status("0x1"); got != StatusHealthy {
		t.Errorf("after recovery status = %q, want healthy", got)
	}
}

func TestCheckAll_forgetsRemovedLedgers(t *testing.T) {
	lister := &stubLister{deployments: []*deploy.Deployment{{Address: "0x1", Ledger: newBroken(true)}}}
	checker := New(lister, Config{FailThreshold: 1}, zap.NewNop())

	checker.CheckAll(context.Background())
	if checker.Status("0x1") != StatusDegraded {
		t.Fatal("expected degraded")
	}

	lister.deployments = nil
	checker.CheckAll(context.Background())
	if checker.Status("0x1") != StatusHealthy {
		t.Error("expected removed ledger to be forgotten")
	}
}

func TestNew_defaults(t *testing.T) {
	checker := New(&stubLister{}, Config{}, zap.NewNop())
	if checker.cfg.CheckInterval == 0 || checker.cfg.FailThreshold != 3 {
		t.Errorf("unexpected defaults %+v", checker.cfg)
	}
}

func TestNew_negativeValuesUseDefaults(t *testing.T) {
	checker := New(&stubLister{}, Config{CheckInterval: -time.Second, FailThreshold: -1}, zap.NewNop())
	if checker.cfg.CheckInterval != time.Minute || checker.cfg.FailThreshold != 3 {
		t.Errorf("unexpected config %+v", checker.cfg)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Start(runCtx) // returns at once; must not panic creating the ticker
}

func TestCheckAll_dispatchesDegradedOnce(t *testing.T) {
	lister := &stubLister{deployments: []*deploy.Deployment{{Address: "0x1", Ledger: newBroken(true)}}}
	checker := New(lister, Config{FailThreshold: 2}, zap.NewNop())

	var events []map[string]string
	checker.SetWebhookDispatch(func(_ context.Context, eventType string, payload map[string]string) {
		if eventType != webhooks.EventLedgerDegraded {
			t.Errorf("event type = %q", eventType)
		}
		events = append(events, payload)
	})

	for i := 0; i < 4; i++ {
		checker.CheckAll(context.Background())
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 degraded event, got %d", len(events))
	}
	if events[0]["ledger"] != "0x1" {
		t.Errorf("unexpected payload %v", events[0])
	}
}
