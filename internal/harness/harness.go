// Package harness drives a freshly deployed ledger through a fixed script:
//
//  1. provision actors and deploy a ledger
//  2. read the total count
//  3. submit the first message as the default actor and await confirmation
//  4. submit the second message as the secondary actor and await confirmation
//  5. read every confirmed record
//
// Every step result is handed to a Reporter. The first failing step aborts
// the run; nothing is retried.
package harness

import (
	"context"
	"fmt"
	"slices"

	"github.com/jmerrifield20/waveledger/internal/deploy"
	"github.com/jmerrifield20/waveledger/internal/ledger"
	"github.com/jmerrifield20/waveledger/internal/network"
	"go.uber.org/zap"
)

// Default messages submitted by the script.
const (
	DefaultFirstMessage  = "A message!"
	DefaultSecondMessage = "Another message!"
)

// Network supplies actor identities.
// *network.Network and *client.Client satisfy this interface.
type Network interface {
	ProvisionActors(ctx context.Context) ([]network.Actor, error)
}

// Deployer produces a fresh ledger.
// *deploy.Local and *client.Client satisfy this interface.
type Deployer interface {
	Deploy(ctx context.Context) (*deploy.Deployment, error)
}

// Reporter receives the result of every step.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to a Reporter.
type ReporterFunc func(Event)

// Report calls f(e).
func (f ReporterFunc) Report(e Event) { f(e) }

// Config holds the script's inputs.
type Config struct {
	FirstMessage  string
	SecondMessage string
}

// Result collects everything the script observed.
type Result struct {
	Deployment   *deploy.Deployment
	Actors       []network.Actor
	InitialCount int
	First        *ledger.Record
	Second       *ledger.Record
	Records      []ledger.Record
}

// Harness runs the script against a network and deployer.
type Harness struct {
	net      Network
	deployer Deployer
	reporter Reporter
	cfg      Config
	logger   *zap.Logger
}

// New creates a Harness. reporter may be nil.
func New(net Network, deployer Deployer, reporter Reporter, cfg Config, logger *zap.Logger) *Harness {
	if cfg.FirstMessage == "" {
		cfg.FirstMessage = DefaultFirstMessage
	}
	if cfg.SecondMessage == "" {
		cfg.SecondMessage = DefaultSecondMessage
	}
	if reporter == nil {
		reporter = ReporterFunc(func(Event) {})
	}
	return &Harness{
		net:      net,
		deployer: deployer,
		reporter: reporter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes the script. On failure the returned error is a *StepError
// naming the step that failed.
func (h *Harness) Run(ctx context.Context) (*Result, error) {
	res := &Result{}

	actors, err := h.net.ProvisionActors(ctx)
	if err != nil {
		return nil, h.fail(StepProvision, err)
	}
	if len(actors) < 2 {
		return nil, h.fail(StepProvision, fmt.Errorf("need at least 2 actors, network provided %d", len(actors)))
	}
	res.Actors = actors
	h.report(Event{Step: StepProvision, Count: len(actors)})

	dep, err := h.deployer.Deploy(ctx)
	if err != nil {
		return nil, h.fail(StepDeploy, err)
	}
	res.Deployment = dep
	h.report(Event{Step: StepDeploy, Address: dep.Address, Actor: dep.DeployedBy})
	l := dep.Ledger

	n, err := l.TotalCount(ctx)
	if err != nil {
		return nil, h.fail(StepCount, err)
	}
	res.InitialCount = n
	h.report(Event{Step: StepCount, Address: dep.Address, Count: n})

	res.First, err = h.submitAndAwait(ctx, l, StepSubmitFirst, StepAwaitFirst, actors[0].Address, h.cfg.FirstMessage)
	if err != nil {
		return nil, err
	}
	res.Second, err = h.submitAndAwait(ctx, l, StepSubmitSecond, StepAwaitSecond, actors[1].Address, h.cfg.SecondMessage)
	if err != nil {
		return nil, err
	}

	seq, err := l.Records(ctx)
	if err != nil {
		return nil, h.fail(StepRecords, err)
	}
	res.Records = slices.Collect(seq)
	h.report(Event{Step: StepRecords, Address: dep.Address, Count: len(res.Records), Records: res.Records})

	return res, nil
}

func (h *Harness) submitAndAwait(ctx context.Context, l ledger.Ledger, submit, await Step, actor, message string) (*ledger.Record, error) {
	handle, err := l.Submit(ctx, actor, message)
	if err != nil {
		return nil, h.fail(submit, err)
	}
	h.report(Event{Step: submit, Actor: actor, Handle: handle})

	rec, err := l.AwaitConfirmation(ctx, handle)
	if err != nil {
		return nil, h.fail(await, err)
	}
	h.report(Event{Step: await, Actor: actor, Record: rec})
	return rec, nil
}

func (h *Harness) report(e Event) {
	h.logger.Debug("step complete", zap.String("step", string(e.Step)))
	h.reporter.Report(e)
}

func (h *Harness) fail(step Step, err error) error {
	h.logger.Error("step failed", zap.String("step", string(step)), zap.Error(err))
	return &StepError{Step: step, Err: err}
}
