// Package ledger implements an append-only, multi-actor event log with
// confirmation-gated visibility.
//
// Any actor may Submit a message. The submission is accepted immediately as a
// pending record with the next sequence number, but it only becomes visible to
// TotalCount and Records once it has been confirmed. Confirmation is strictly
// FIFO by sequence number, regardless of which actor submitted, so the
// confirmed records always form a prefix of the log.
//
// Confirmed records are hash-chained from GenesisHash, making any tampering
// detectable via Verify.
package ledger

import (
	"context"
	"iter"
)

// Ledger is the client-facing contract of a deployed ledger. Service
// implements it in-process; pkg/client implements it over HTTP.
type Ledger interface {
	// Submit accepts message from actor as a new pending record.
	// It never waits for confirmation.
	Submit(ctx context.Context, actor, message string) (*PendingHandle, error)

	// AwaitConfirmation blocks until the record behind h is confirmed.
	AwaitConfirmation(ctx context.Context, h *PendingHandle) (*Record, error)

	// TotalCount returns the number of confirmed records.
	TotalCount(ctx context.Context) (int, error)

	// Records returns the confirmed records in sequence order.
	Records(ctx context.Context) (iter.Seq[Record], error)

	// Verify walks the confirmed chain and checks hash consistency.
	Verify(ctx context.Context) error

	// Root returns the hash of the most recently confirmed record.
	Root(ctx context.Context) (string, error)
}
