package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmerrifield20/waveledger/internal/ledger"
)

func TestSubscribe_receivesConfirmedInOrder(t *testing.T) {
	svc := newService(ledger.Config{})
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	_, _ = svc.Submit(ctx, "0xaaa", "before subscribe")
	svc.Seal()

	events := svc.Subscribe(subCtx)
	_, _ = svc.Submit(ctx, "0xaaa", "one")
	_, _ = svc.Submit(ctx, "0xbbb", "two")
	svc.Seal()

	for _, want := range []uint64{1, 2} {
		select {
		case r := <-events:
			if r.Seq != want {
				t.Errorf("event seq: got %d, want %d", r.Seq, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("no event for seq %d", want)
		}
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected channel to be closed after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestStart_blockInterval(t *testing.T) {
	svc := newService(ledger.Config{
		BlockInterval:       10 * time.Millisecond,
		ConfirmationTimeout: 5 * time.Second,
	})
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	svc.Start(runCtx)
	svc.Start(runCtx) // no-op

	h, err := svc.Submit(ctx, "0xaaa", "sealed on the next tick")
	if err != nil {
		t.Fatal(err)
	}
	r, err := svc.AwaitConfirmation(ctx, h)
	if err != nil {
		t.Fatal(err)
	}
	if r.Timestamp != 1 {
		t.Errorf("timestamp: got %d, want 1", r.Timestamp)
	}
}

func TestStart_negativeBlockIntervalSealsOnSubmit(t *testing.T) {
	svc := newService(ledger.Config{
		BlockInterval:       -time.Second,
		ConfirmationTimeout: time.Second,
	})
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	svc.Start(runCtx)

	h, err := svc.Submit(ctx, "0xaaa", "no interval")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AwaitConfirmation(ctx, h); err != nil {
		t.Fatalf("AwaitConfirmation: %v", err)
	}
}

func TestSubscribe_slowSubscriberDropped(t *testing.T) {
	svc := newService(ledger.Config{})
	subCtx, cancel := context.WithCancel(ctx)
	events := svc.Subscribe(subCtx)
	if n := svc.Subscribers(); n != 1 {
		t.Fatalf("Subscribers: got %d, want 1", n)
	}

	for i := 0; i < 100; i++ {
		if _, err := svc.Submit(ctx, "0xaaa", "backlog"); err != nil {
			t.Fatal(err)
		}
	}
	svc.Seal()

	if n := svc.Subscribers(); n != 0 {
		t.Errorf("Subscribers after overflow: got %d, want 0", n)
	}
	received := 0
	for range events {
		received++
	}
	if received != 64 {
		t.Errorf("buffered before drop: got %d, want 64", received)
	}

	// Cancelling after the drop must not close the channel twice.
	cancel()
	time.Sleep(10 * time.Millisecond)
	if n := svc.Subscribers(); n != 0 {
		t.Errorf("Subscribers after cancel: got %d", n)
	}
}

func TestSeal_nothingPending(t *testing.T) {
	svc := newService(ledger.Config{})
	if n := svc.Seal(); n != 0 {
		t.Errorf("Seal() on empty ledger: got %d", n)
	}
}

func TestClock(t *testing.T) {
	var c ledger.Clock
	if c.Current() != 0 {
		t.Errorf("zero clock: got %d", c.Current())
	}
	if c.Next() != 1 || c.Next() != 2 {
		t.Error("clock not strictly increasing from 1")
	}
	if c.Current() != 2 {
		t.Errorf("Current(): got %d, want 2", c.Current())
	}
}
