// Package deploy instantiates fresh ledger services on a local network.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/waveledger/internal/ledger"
	"github.com/jmerrifield20/waveledger/internal/network"
	"go.uber.org/zap"
)

// Sentinel errors for the deploy package.
var (
	ErrDeploymentFailure = errors.New("deployment failed")
	ErrNotFound          = errors.New("deployment not found")
)

// Deployment describes a deployed ledger.
type Deployment struct {
	ID         uuid.UUID     `json:"id"`
	Address    string        `json:"address"`
	DeployedBy string        `json:"deployed_by"`
	DeployedAt time.Time     `json:"deployed_at"`
	Ledger     ledger.Ledger `json:"-"`
}

type deployed struct {
	order   uint64
	info    *Deployment
	svc     *ledger.Service
	metrics ledger.MetricsRecorder
	cancel  context.CancelFunc
}

// MetricsFactory returns the metrics recorder for the ledger deployed at
// address.
type MetricsFactory func(address string) ledger.MetricsRecorder

// forgetter is implemented by recorders that hold per-ledger series which
// must be released when the ledger is torn down.
type forgetter interface {
	Forget()
}

// DeployHook runs after a ledger is deployed and its sealer started. ctx is
// the deployment's lifetime: it ends on Reset or Close.
type DeployHook func(ctx context.Context, d *Deployment, svc *ledger.Service)

// Local deploys in-process ledger services. Each deployment runs its own
// sealer until Reset or Close.
type Local struct {
	net     *network.Network
	cfg     ledger.Config
	metrics MetricsFactory // nil = no metrics
	hooks   []DeployHook
	logger  *zap.Logger

	mu          sync.RWMutex
	deployments map[string]*deployed
	next        uint64
}

// NewLocal creates a Local deployer. Every ledger it deploys uses cfg.
func NewLocal(net *network.Network, cfg ledger.Config, logger *zap.Logger) *Local {
	return &Local{
		net:         net,
		cfg:         cfg,
		logger:      logger,
		deployments: make(map[string]*deployed),
	}
}

// SetMetricsFactory configures how new deployments obtain their metrics
// recorder. Each ledger gets its own recorder keyed by its address.
func (l *Local) SetMetricsFactory(f MetricsFactory) {
	l.metrics = f
}

// OnDeploy registers a hook run after every successful deployment. Register
// hooks before the first deployment.
func (l *Local) OnDeploy(h DeployHook) {
	l.hooks = append(l.hooks, h)
}

// Deploy deploys a fresh ledger as the network's default (first) actor.
func (l *Local) Deploy(ctx context.Context) (*Deployment, error) {
	actors, err := l.net.ProvisionActors(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: provision actors: %v", ErrDeploymentFailure, err)
	}
	if len(actors) == 0 {
		return nil, fmt.Errorf("%w: network has no actors", ErrDeploymentFailure)
	}
	return l.DeployAs(ctx, actors[0].Address)
}

// DeployAs deploys a fresh ledger on behalf of deployer. The ledger address
// is derived from the deployer address and its nonce.
func (l *Local) DeployAs(ctx context.Context, deployer string) (*Deployment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeploymentFailure, err)
	}
	nonce, err := l.net.NextNonce(deployer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeploymentFailure, err)
	}

	address := network.ContractAddress(deployer, nonce)
	svc := ledger.New(l.cfg, l.logger)
	var recorder ledger.MetricsRecorder
	if l.metrics != nil {
		recorder = l.metrics(address)
		svc.SetMetricsRecorder(recorder)
	}
	info := &Deployment{
		ID:         uuid.New(),
		Address:    address,
		DeployedBy: deployer,
		DeployedAt: time.Now().UTC(),
		Ledger:     svc,
	}

	// Sealers outlive the deploying request.
	runCtx, cancel := context.WithCancel(context.Background())

	l.mu.Lock()
	if _, exists := l.deployments[info.Address]; exists {
		l.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%w: address %s already in use", ErrDeploymentFailure, info.Address)
	}
	l.deployments[info.Address] = &deployed{order: l.next, info: info, svc: svc, metrics: recorder, cancel: cancel}
	l.next++
	l.mu.Unlock()

	svc.Start(runCtx)
	for _, h := range l.hooks {
		h(runCtx, info, svc)
	}

	l.logger.Info("ledger deployed",
		zap.String("address", info.Address),
		zap.String("deployed_by", deployer),
		zap.Uint64("nonce", nonce),
	)
	return info, nil
}

// Lookup returns the deployment at address.
func (l *Local) Lookup(address string) (*Deployment, error) {
	d, err := l.get(address)
	if err != nil {
		return nil, err
	}
	return d.info, nil
}

// Service returns the ledger service deployed at address.
func (l *Local) Service(address string) (*ledger.Service, error) {
	d, err := l.get(address)
	if err != nil {
		return nil, err
	}
	return d.svc, nil
}

func (l *Local) get(address string) (*deployed, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.deployments[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	return d, nil
}

// List returns all live deployments in the order they were deployed.
func (l *Local) List() []*Deployment {
	l.mu.RLock()
	all := make([]*deployed, 0, len(l.deployments))
	for _, d := range l.deployments {
		all = append(all, d)
	}
	l.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].order < all[j].order })

	out := make([]*Deployment, len(all))
	for i, d := range all {
		out[i] = d.info
	}
	return out
}

// Len returns the number of live deployments.
func (l *Local) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.deployments)
}

// Reset tears down every deployment and resets the network, returning the
// environment to a fresh state.
func (l *Local) Reset() error {
	n := l.Close()
	if err := l.net.Reset(); err != nil {
		return fmt.Errorf("reset network: %w", err)
	}
	l.logger.Info("environment reset", zap.Int("deployments_removed", n))
	return nil
}

// Close stops every deployment's sealer and forgets them. It returns how
// many deployments were removed.
func (l *Local) Close() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.deployments)
	for addr, d := range l.deployments {
		d.cancel()
		if f, ok := d.metrics.(forgetter); ok {
			f.Forget()
		}
		delete(l.deployments, addr)
	}
	return n
}
