package harness

import (
	"fmt"

	"github.com/jmerrifield20/waveledger/internal/ledger"
)

// Step names a stage of the script.
type Step string

// Script steps, in execution order.
const (
	StepProvision    Step = "provision"
	StepDeploy       Step = "deploy"
	StepCount        Step = "count"
	StepSubmitFirst  Step = "submit_first"
	StepAwaitFirst   Step = "await_first"
	StepSubmitSecond Step = "submit_second"
	StepAwaitSecond  Step = "await_second"
	StepRecords      Step = "records"
)

// Event is the outcome of one step. Only the fields relevant to Step are set.
type Event struct {
	Step    Step
	Address string // ledger address, from deploy onwards
	Actor   string // submitting actor, or the deployer
	Count   int
	Handle  *ledger.PendingHandle
	Record  *ledger.Record
	Records []ledger.Record
}

// StepError wraps the error that aborted a run.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
