package report_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jmerrifield20/waveledger/internal/harness"
	"github.com/jmerrifield20/waveledger/internal/ledger"
	"github.com/jmerrifield20/waveledger/internal/report"
	"github.com/pterm/pterm"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestConsoleReporter(t *testing.T) {
	pterm.DisableColor()
	var buf bytes.Buffer
	r := report.NewConsoleReporter(&buf)

	r.Report(harness.Event{Step: harness.StepDeploy, Address: "0xledger", Actor: "0xaaa"})
	r.Report(harness.Event{Step: harness.StepCount, Count: 0})
	r.Report(harness.Event{Step: harness.StepRecords, Records: []ledger.Record{
		{Seq: 0, Author: "0xaaa", Message: "A message!", Timestamp: 1, Hash: "abcdef0123456789"},
		{Seq: 1, Author: "0xbbb", Message: "Another message!", Timestamp: 2, Hash: "fedcba9876543210"},
	}})

	out := buf.String()
	for _, want := range []string{"0xledger", "total records: 0", "A message!", "Another message!", "abcdef012345"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "abcdef0123456789") {
		t.Error("hash should be shortened in the table")
	}
}

func TestZapReporter(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := report.NewZapReporter(zap.New(core))

	r.Report(harness.Event{
		Step:   harness.StepAwaitFirst,
		Actor:  "0xaaa",
		Record: &ledger.Record{Seq: 3, Timestamp: 4, Hash: "h"},
	})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["step"] != string(harness.StepAwaitFirst) {
		t.Errorf("step field: %v", fields["step"])
	}
	if fields["seq"] != uint64(3) {
		t.Errorf("seq field: %v (%T)", fields["seq"], fields["seq"])
	}
}

func TestMulti(t *testing.T) {
	var got []harness.Step
	a := harness.ReporterFunc(func(e harness.Event) { got = append(got, e.Step) })
	b := harness.ReporterFunc(func(e harness.Event) { got = append(got, e.Step+"!") })

	report.Multi(a, b).Report(harness.Event{Step: harness.StepCount})
	if len(got) != 2 || got[0] != harness.StepCount || got[1] != harness.StepCount+"!" {
		t.Errorf("Multi order: %v", got)
	}
}
