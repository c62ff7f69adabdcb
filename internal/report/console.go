package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jmerrifield20/waveledger/internal/harness"
	"github.com/jmerrifield20/waveledger/internal/ledger"
	"github.com/pterm/pterm"
)

// ConsoleReporter prints events for a person watching the run.
type ConsoleReporter struct {
	w io.Writer
}

// NewConsoleReporter creates a ConsoleReporter writing to w.
func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{w: w}
}

// Report implements harness.Reporter.
func (r *ConsoleReporter) Report(e harness.Event) {
	switch e.Step {
	case harness.StepProvision:
		r.print(pterm.Info.Sprintfln("provisioned %d actors", e.Count))
	case harness.StepDeploy:
		r.print(pterm.Success.Sprintfln("ledger deployed to: %s (by %s)", pterm.LightCyan(e.Address), e.Actor))
	case harness.StepCount:
		r.print(pterm.Info.Sprintfln("total records: %d", e.Count))
	case harness.StepSubmitFirst, harness.StepSubmitSecond:
		r.print(pterm.Info.Sprintfln("submitted #%d from %s (tx %s)", e.Handle.Seq, e.Actor, short(e.Handle.TxHash)))
	case harness.StepAwaitFirst, harness.StepAwaitSecond:
		r.print(pterm.Success.Sprintfln("confirmed #%d at t=%d", e.Record.Seq, e.Record.Timestamp))
	case harness.StepRecords:
		r.print(RecordTable(e.Records))
	}
}

func (r *ConsoleReporter) print(s string) {
	fmt.Fprint(r.w, s)
}

// RecordTable renders records as a table.
func RecordTable(records []ledger.Record) string {
	data := pterm.TableData{{"Seq", "Author", "Message", "Timestamp", "Hash"}}
	for _, rec := range records {
		data = append(data, []string{
			strconv.FormatUint(rec.Seq, 10),
			rec.Author,
			rec.Message,
			strconv.FormatUint(rec.Timestamp, 10),
			short(rec.Hash),
		})
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return pterm.Error.Sprintfln("render records: %v", err)
	}
	return out + "\n"
}

func short(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}
