package harness_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/waveledger/internal/deploy"
	"github.com/jmerrifield20/waveledger/internal/harness"
	"github.com/jmerrifield20/waveledger/internal/ledger"
	"github.com/jmerrifield20/waveledger/internal/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var ctx = context.Background()

type recorder struct {
	events []harness.Event
}

func (r *recorder) Report(e harness.Event) { r.events = append(r.events, e) }

func (r *recorder) steps() []harness.Step {
	out := make([]harness.Step, len(r.events))
	for i, e := range r.events {
		out[i] = e.Step
	}
	return out
}

func localEnv(t *testing.T, cfg ledger.Config) (*network.Network, *deploy.Local) {
	t.Helper()
	net, err := network.New(network.Config{Accounts: 3, Seed: "harness"}, zap.NewNop())
	require.NoError(t, err)
	d := deploy.NewLocal(net, cfg, zap.NewNop())
	t.Cleanup(func() { d.Close() })
	return net, d
}

// stubDeployer hands out a prepared ledger, or fails.
type stubDeployer struct {
	ledger ledger.Ledger
	err    error
}

func (s *stubDeployer) Deploy(context.Context) (*deploy.Deployment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &deploy.Deployment{ID: uuid.New(), Address: "0xstub", Ledger: s.ledger}, nil
}

type stubNetwork struct {
	actors []network.Actor
}

func (s *stubNetwork) ProvisionActors(context.Context) ([]network.Actor, error) {
	return s.actors, nil
}

func TestRun_Scenario(t *testing.T) {
	net, d := localEnv(t, ledger.Config{ConfirmationTimeout: 5 * time.Second})
	rep := &recorder{}

	res, err := harness.New(net, d, rep, harness.Config{}, zap.NewNop()).Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, res)

	actors, _ := net.ProvisionActors(ctx)
	assert.Equal(t, 0, res.InitialCount)
	require.Len(t, res.Records, 2)

	assert.Equal(t, uint64(0), res.Records[0].Seq)
	assert.Equal(t, actors[0].Address, res.Records[0].Author)
	assert.Equal(t, "A message!", res.Records[0].Message)
	assert.Equal(t, uint64(1), res.Records[1].Seq)
	assert.Equal(t, actors[1].Address, res.Records[1].Author)
	assert.Equal(t, "Another message!", res.Records[1].Message)

	assert.True(t, res.First.Confirmed)
	assert.Less(t, res.First.Timestamp, res.Second.Timestamp)

	n, err := res.Deployment.Ledger.TotalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, []harness.Step{
		harness.StepProvision,
		harness.StepDeploy,
		harness.StepCount,
		harness.StepSubmitFirst,
		harness.StepAwaitFirst,
		harness.StepSubmitSecond,
		harness.StepAwaitSecond,
		harness.StepRecords,
	}, rep.steps())
	assert.Equal(t, res.Deployment.Address, rep.events[1].Address)
	assert.Len(t, rep.events[len(rep.events)-1].Records, 2)
}

func TestRun_CustomMessages(t *testing.T) {
	net, d := localEnv(t, ledger.Config{ConfirmationTimeout: 5 * time.Second})

	res, err := harness.New(net, d, nil, harness.Config{
		FirstMessage:  "hello",
		SecondMessage: "world",
	}, zap.NewNop()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Records[0].Message)
	assert.Equal(t, "world", res.Records[1].Message)
}

func TestRun_DeploymentFailureAborts(t *testing.T) {
	net, _ := localEnv(t, ledger.Config{})
	rep := &recorder{}
	dep := &stubDeployer{err: deploy.ErrDeploymentFailure}

	res, err := harness.New(net, dep, rep, harness.Config{}, zap.NewNop()).Run(ctx)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, deploy.ErrDeploymentFailure)

	var stepErr *harness.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, harness.StepDeploy, stepErr.Step)
	assert.Equal(t, []harness.Step{harness.StepProvision}, rep.steps())
}

func TestRun_TooFewActors(t *testing.T) {
	net := &stubNetwork{actors: []network.Actor{{Address: "0xonly"}}}

	_, err := harness.New(net, &stubDeployer{}, nil, harness.Config{}, zap.NewNop()).Run(ctx)
	var stepErr *harness.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, harness.StepProvision, stepErr.Step)
}

func TestRun_ValidationErrorAborts(t *testing.T) {
	net, d := localEnv(t, ledger.Config{MaxMessageLength: 5})
	rep := &recorder{}

	_, err := harness.New(net, d, rep, harness.Config{}, zap.NewNop()).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrValidation)

	var stepErr *harness.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, harness.StepSubmitFirst, stepErr.Step)
	assert.NotContains(t, rep.steps(), harness.StepAwaitFirst)
}

func TestRun_ConfirmationTimeoutAborts(t *testing.T) {
	net, _ := localEnv(t, ledger.Config{})
	// Never started, so nothing is ever sealed.
	svc := ledger.New(ledger.Config{ConfirmationTimeout: 20 * time.Millisecond}, zap.NewNop())
	rep := &recorder{}

	_, err := harness.New(net, &stubDeployer{ledger: svc}, rep, harness.Config{}, zap.NewNop()).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrConfirmationTimeout)

	var stepErr *harness.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, harness.StepAwaitFirst, stepErr.Step)
	assert.NotContains(t, rep.steps(), harness.StepSubmitSecond)
}
