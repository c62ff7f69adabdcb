package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// subscriberBuffer is the per-subscriber backlog before it is dropped.
const subscriberBuffer = 64

// Seal confirms every pending record in submission order and returns how many
// were confirmed. Each record gets the next logical timestamp and is chained
// to its predecessor.
func (s *Service) Seal() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for s.confirmed < len(s.log) {
		p := s.log[s.confirmed]
		prevHash := GenesisHash
		if s.confirmed > 0 {
			prevHash = s.log[s.confirmed-1].rec.Hash
		}

		p.rec.Confirmed = true
		p.rec.Timestamp = s.clock.Next()
		p.rec.ConfirmedAt = time.Now().UTC()
		p.rec.PrevHash = prevHash
		p.rec.Hash = hashRecord(&p.rec)
		s.confirmed++
		close(p.done)

		if s.metrics != nil {
			s.metrics.RecordConfirm(p.rec.ConfirmedAt.Sub(p.rec.SubmittedAt), len(s.log)-s.confirmed)
		}
		s.logger.Debug("record confirmed",
			zap.Uint64("seq", p.rec.Seq),
			zap.Uint64("timestamp", p.rec.Timestamp),
			zap.String("hash", p.rec.Hash),
		)
		s.publish(p.rec)
		n++
	}
	return n
}

// Start runs the background sealer until ctx is done. With a zero
// BlockInterval every submission is sealed as soon as it lands; otherwise
// pending records are sealed once per interval. Calling Start more than once
// has no effect.
func (s *Service) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	interval := s.cfg.BlockInterval
	go func() {
		var tick <-chan time.Time
		if interval > 0 {
			t := time.NewTicker(interval)
			defer t.Stop()
			tick = t.C
		}
		s.logger.Debug("sealer started", zap.Duration("block_interval", interval))
		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("sealer stopped")
				return
			case <-s.kick:
				if interval <= 0 {
					s.Seal()
				}
			case <-tick:
				s.Seal()
			}
		}
	}()
}

// Subscribe returns a channel that receives every record confirmed after the
// call, in sequence order. The channel is closed when ctx is done, or early if
// the subscriber falls more than a full buffer behind.
func (s *Service) Subscribe(ctx context.Context) <-chan Record {
	ch := make(chan Record, subscriberBuffer)
	removed := make(chan struct{})
	s.mu.Lock()
	s.subs[ch] = removed
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.unsubscribe(ch)
		case <-removed:
		}
	}()
	return ch
}

// unsubscribe closes ch if it is still registered.
func (s *Service) unsubscribe(ch chan Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(ch)
}

// dropLocked must be called with mu held.
func (s *Service) dropLocked(ch chan Record) {
	removed, ok := s.subs[ch]
	if !ok {
		return
	}
	delete(s.subs, ch)
	close(ch)
	close(removed)
}

// Subscribers returns the number of live subscriptions.
func (s *Service) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// publish must be called with mu held.
func (s *Service) publish(rec Record) {
	for ch := range s.subs {
		select {
		case ch <- rec:
		default:
			s.dropLocked(ch)
			s.logger.Warn("dropping slow subscriber", zap.Uint64("seq", rec.Seq))
		}
	}
}
