package ledger

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// DefaultMaxMessageLength is the message limit used when Config leaves it unset.
const DefaultMaxMessageLength = 280

// Config holds the tunables of a Service.
type Config struct {
	MaxMessageLength    int           // in runes; 0 = DefaultMaxMessageLength
	ConfirmationTimeout time.Duration // bound for AwaitConfirmation; 0 = wait indefinitely
	BlockInterval       time.Duration // <= 0 = seal as soon as a record is submitted
}

// MetricsRecorder receives submission and confirmation outcomes.
type MetricsRecorder interface {
	RecordSubmit(accepted bool)
	RecordConfirm(latency time.Duration, pending int)
}

// Service is an in-memory, thread-safe Ledger.
type Service struct {
	cfg     Config
	clock   Clock
	metrics MetricsRecorder // nil = no metrics
	logger  *zap.Logger

	mu        sync.Mutex
	log       []*pendingRecord // index == Seq
	confirmed int              // log[:confirmed] is the visible prefix
	subs      map[chan Record]chan struct{} // subscriber -> closed on removal

	kick    chan struct{}
	started atomic.Bool
}

// New creates an empty Service. Call Start to begin confirming submissions,
// or drive confirmation manually with Seal.
func New(cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultMaxMessageLength
	}
	if cfg.BlockInterval < 0 {
		cfg.BlockInterval = 0
	}
	return &Service{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[chan Record]chan struct{}),
		kick:   make(chan struct{}, 1),
	}
}

// SetMetricsRecorder configures the metrics callback.
func (s *Service) SetMetricsRecorder(m MetricsRecorder) {
	s.metrics = m
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// Submit implements Ledger. A rejected submission does not consume a sequence number.
func (s *Service) Submit(_ context.Context, actor, message string) (*PendingHandle, error) {
	actor = strings.TrimSpace(actor)
	if err := s.validate(actor, message); err != nil {
		if s.metrics != nil {
			s.metrics.RecordSubmit(false)
		}
		return nil, err
	}

	s.mu.Lock()
	seq := uint64(len(s.log))
	p := &pendingRecord{
		rec: Record{
			Seq:         seq,
			Author:      actor,
			Message:     message,
			TxHash:      txHash(seq, actor, message),
			SubmittedAt: time.Now().UTC(),
		},
		done: make(chan struct{}),
	}
	s.log = append(s.log, p)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordSubmit(true)
	}
	s.logger.Debug("record submitted",
		zap.Uint64("seq", seq),
		zap.String("author", actor),
		zap.String("tx_hash", p.rec.TxHash),
	)

	select {
	case s.kick <- struct{}{}:
	default:
	}

	return &PendingHandle{
		Seq:         seq,
		TxHash:      p.rec.TxHash,
		Author:      actor,
		SubmittedAt: p.rec.SubmittedAt,
	}, nil
}

func (s *Service) validate(actor, message string) error {
	if actor == "" {
		return &ValidationError{Field: "actor", Reason: "must not be empty"}
	}
	if strings.TrimSpace(message) == "" {
		return &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if n := utf8.RuneCountInString(message); n > s.cfg.MaxMessageLength {
		return &ValidationError{
			Field:  "message",
			Reason: fmt.Sprintf("length %d exceeds limit of %d", n, s.cfg.MaxMessageLength),
		}
	}
	return nil
}

// AwaitConfirmation implements Ledger. Abandoning the wait via ctx does not
// affect the record, which still confirms in order.
func (s *Service) AwaitConfirmation(ctx context.Context, h *PendingHandle) (*Record, error) {
	p, err := s.lookup(h)
	if err != nil {
		return nil, err
	}

	select {
	case <-p.done:
		return s.confirmedCopy(p), nil
	default:
	}

	var timeout <-chan time.Time
	if s.cfg.ConfirmationTimeout > 0 {
		t := time.NewTimer(s.cfg.ConfirmationTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-p.done:
		return s.confirmedCopy(p), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		s.logger.Warn("confirmation timed out",
			zap.Uint64("seq", h.Seq),
			zap.Duration("timeout", s.cfg.ConfirmationTimeout),
		)
		return nil, fmt.Errorf("%w: record %d not confirmed within %s",
			ErrConfirmationTimeout, h.Seq, s.cfg.ConfirmationTimeout)
	}
}

func (s *Service) lookup(h *PendingHandle) (*pendingRecord, error) {
	if h == nil {
		return nil, ErrUnknownHandle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.Seq >= uint64(len(s.log)) {
		return nil, fmt.Errorf("%w: seq %d", ErrUnknownHandle, h.Seq)
	}
	p := s.log[h.Seq]
	if h.TxHash != "" && h.TxHash != p.rec.TxHash {
		return nil, fmt.Errorf("%w: seq %d tx hash mismatch", ErrUnknownHandle, h.Seq)
	}
	return p, nil
}

func (s *Service) confirmedCopy(p *pendingRecord) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := p.rec
	return &rec
}

// TotalCount implements Ledger.
func (s *Service) TotalCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed, nil
}

// Pending returns the number of submitted records not yet confirmed.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.log) - s.confirmed
}

// Records implements Ledger. The returned sequence is a snapshot of the
// records confirmed at call time; ranging over it again yields the same
// records even if more have been confirmed since.
func (s *Service) Records(_ context.Context) (iter.Seq[Record], error) {
	snap := s.snapshot()
	return func(yield func(Record) bool) {
		for _, p := range snap {
			if !yield(p.rec) {
				return
			}
		}
	}, nil
}

// snapshot returns the confirmed prefix. Confirmed records are never
// mutated again, so callers may read them without holding mu.
func (s *Service) snapshot() []*pendingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log[:s.confirmed:s.confirmed]
}

// CountBy returns the number of confirmed records authored by actor.
func (s *Service) CountBy(_ context.Context, actor string) (int, error) {
	actor = strings.TrimSpace(actor)
	n := 0
	for _, p := range s.snapshot() {
		if p.rec.Author == actor {
			n++
		}
	}
	return n, nil
}

// Verify implements Ledger.
func (s *Service) Verify(_ context.Context) error {
	prevHash := GenesisHash
	var prevTS uint64
	for i, p := range s.snapshot() {
		r := &p.rec
		if r.Seq != uint64(i) {
			return fmt.Errorf("record at position %d has seq %d", i, r.Seq)
		}
		if !r.Confirmed {
			return fmt.Errorf("record %d is visible but not confirmed", r.Seq)
		}
		if r.Timestamp <= prevTS {
			return fmt.Errorf("record %d timestamp %d not after %d", r.Seq, r.Timestamp, prevTS)
		}
		if r.PrevHash != prevHash {
			return fmt.Errorf("hash chain broken at seq %d", r.Seq)
		}
		if r.Hash != hashRecord(r) {
			return fmt.Errorf("record %d has invalid hash", r.Seq)
		}
		prevHash = r.Hash
		prevTS = r.Timestamp
	}
	return nil
}

// Root implements Ledger. It returns GenesisHash while nothing is confirmed.
func (s *Service) Root(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.confirmed == 0 {
		return GenesisHash, nil
	}
	return s.log[s.confirmed-1].rec.Hash, nil
}
