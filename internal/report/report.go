// Package report renders harness events for humans and logs.
package report

import (
	"github.com/jmerrifield20/waveledger/internal/harness"
	"go.uber.org/zap"
)

// Multi fans every event out to each reporter in order.
func Multi(reporters ...harness.Reporter) harness.Reporter {
	return harness.ReporterFunc(func(e harness.Event) {
		for _, r := range reporters {
			r.Report(e)
		}
	})
}

// ZapReporter logs each event as a structured line.
type ZapReporter struct {
	logger *zap.Logger
}

// NewZapReporter creates a ZapReporter.
func NewZapReporter(logger *zap.Logger) *ZapReporter {
	return &ZapReporter{logger: logger}
}

// Report implements harness.Reporter.
func (r *ZapReporter) Report(e harness.Event) {
	fields := []zap.Field{zap.String("step", string(e.Step))}
	if e.Address != "" {
		fields = append(fields, zap.String("address", e.Address))
	}
	if e.Actor != "" {
		fields = append(fields, zap.String("actor", e.Actor))
	}
	switch e.Step {
	case harness.StepProvision, harness.StepCount, harness.StepRecords:
		fields = append(fields, zap.Int("count", e.Count))
	}
	if e.Handle != nil {
		fields = append(fields,
			zap.Uint64("seq", e.Handle.Seq),
			zap.String("tx_hash", e.Handle.TxHash),
		)
	}
	if e.Record != nil {
		fields = append(fields,
			zap.Uint64("seq", e.Record.Seq),
			zap.Uint64("timestamp", e.Record.Timestamp),
			zap.String("hash", e.Record.Hash),
		)
	}
	r.logger.Info("harness step", fields...)
}
