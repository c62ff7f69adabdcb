package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// GenesisHash is the PrevHash of the first confirmed record.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Record is a single entry in the ledger.
type Record struct {
	Seq         uint64    `json:"seq"`
	Author      string    `json:"author"`
	Message     string    `json:"message"`
	Confirmed   bool      `json:"confirmed"`
	Timestamp   uint64    `json:"timestamp"` // logical clock value assigned at confirmation
	TxHash      string    `json:"tx_hash"`
	SubmittedAt time.Time `json:"submitted_at"`
	ConfirmedAt time.Time `json:"confirmed_at,omitempty"`
	PrevHash    string    `json:"prev_hash,omitempty"`
	Hash        string    `json:"hash,omitempty"`
}

// PendingHandle identifies an in-flight submission.
type PendingHandle struct {
	Seq         uint64    `json:"seq"`
	TxHash      string    `json:"tx_hash"`
	Author      string    `json:"author"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// pendingRecord pairs a record with the channel closed when it confirms.
type pendingRecord struct {
	rec  Record
	done chan struct{}
}

// txHash identifies a submission before it is confirmed.
func txHash(seq uint64, author, message string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s", seq, author, message)
	return hex.EncodeToString(h.Sum(nil))
}

// hashRecord computes the chain hash of a confirmed record.
func hashRecord(r *Record) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%s|%s|%s|%s",
		r.Seq, r.Timestamp, r.Author, r.Message, r.TxHash, r.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}
