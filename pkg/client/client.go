package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Sentinel errors for responses that have no node-side counterpart.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrNoToken      = errors.New("no token for actor; call ProvisionActors first")
)

const defaultPollTimeout = 5 * time.Second

// NetworkInfo is returned by GET /api/v1/network.
type NetworkInfo struct {
	NetworkID   string `json:"network_id"`
	Actors      int    `json:"actors"`
	Deployments int    `json:"deployments"`
}

// Client is the waveledger SDK entry point.
type Client struct {
	base           string
	httpClient     *http.Client
	pollTimeout    time.Duration
	confirmTimeout time.Duration // 0 = bounded by ctx only

	// actor state, guarded by mu
	mu     sync.RWMutex
	actors []Actor
	tokens map[string]string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client. Its Timeout must exceed the poll
// timeout or long-polls will be cut short.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithPollTimeout sets how long a single confirmation long-poll may last.
func WithPollTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("poll timeout must be positive, got %s", d)
		}
		c.pollTimeout = d
		return nil
	}
}

// WithConfirmationTimeout bounds AwaitConfirmation across polls. When it
// elapses the call fails with ErrConfirmationTimeout.
func WithConfirmationTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.confirmTimeout = d
		return nil
	}
}

// WithActorToken registers a pre-obtained bearer token for an actor, for
// callers that submit without provisioning.
func WithActorToken(address, token string) Option {
	return func(c *Client) error {
		c.tokens[address] = token
		return nil
	}
}

// New creates a Client for the node at base, e.g. "http://localhost:8545".
func New(base string, opts ...Option) (*Client, error) {
	c := &Client{
		base:        strings.TrimRight(base, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		pollTimeout: defaultPollTimeout,
		tokens:      make(map[string]string),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Network returns the node's network summary.
func (c *Client) Network(ctx context.Context) (*NetworkInfo, error) {
	var info NetworkInfo
	if err := c.getJSON(ctx, "/api/v1/network", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ProvisionActors fetches the node's actors and remembers their tokens for
// later submissions and deployments. It satisfies harness.Network.
func (c *Client) ProvisionActors(ctx context.Context) ([]Actor, error) {
	var resp struct {
		Actors []struct {
			Address   string `json:"address"`
			PublicKey []byte `json:"public_key"`
			Token     string `json:"token"`
		} `json:"actors"`
	}
	if err := c.getJSON(ctx, "/api/v1/network/actors", &resp); err != nil {
		return nil, fmt.Errorf("provision actors: %w", err)
	}

	actors := make([]Actor, 0, len(resp.Actors))
	c.mu.Lock()
	for _, a := range resp.Actors {
		actors = append(actors, Actor{Address: a.Address, PublicKey: a.PublicKey})
		c.tokens[a.Address] = a.Token
	}
	c.actors = actors
	c.mu.Unlock()
	return actors, nil
}

// Reset asks the node to tear down every deployment and provision a new
// generation of actors. The request is authorized as the first provisioned
// actor, provisioning first if needed. Cached tokens are discarded.
func (c *Client) Reset(ctx context.Context) error {
	actor, err := c.defaultActor(ctx)
	if err != nil {
		return fmt.Errorf("reset network: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/network/reset", nil)
	if err != nil {
		return err
	}
	if err := c.authorize(req, actor); err != nil {
		return fmt.Errorf("reset network: %w", err)
	}
	if _, err := c.do(req); err != nil {
		return fmt.Errorf("reset network: %w", err)
	}

	c.mu.Lock()
	c.actors = nil
	c.tokens = make(map[string]string)
	c.mu.Unlock()
	return nil
}

// Deploy deploys a fresh ledger as the first provisioned actor. It satisfies
// harness.Deployer; the returned Deployment's Ledger talks to the node.
func (c *Client) Deploy(ctx context.Context) (*Deployment, error) {
	deployer, err := c.defaultActor(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeploymentFailure, err)
	}
	return c.DeployAs(ctx, deployer)
}

// defaultActor returns the first provisioned actor, provisioning if the
// client has none yet.
func (c *Client) defaultActor(ctx context.Context) (string, error) {
	c.mu.RLock()
	if len(c.actors) > 0 {
		addr := c.actors[0].Address
		c.mu.RUnlock()
		return addr, nil
	}
	c.mu.RUnlock()

	actors, err := c.ProvisionActors(ctx)
	if err != nil {
		return "", err
	}
	if len(actors) == 0 {
		return "", errors.New("node has no actors")
	}
	return actors[0].Address, nil
}

// DeployAs deploys a fresh ledger on behalf of deployer.
func (c *Client) DeployAs(ctx context.Context, deployer string) (*Deployment, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/deployments", nil)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(req, deployer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeploymentFailure, err)
	}

	status, body, err := c.doStatusBody(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeploymentFailure, err)
	}
	if status != http.StatusCreated {
		return nil, fmt.Errorf("%w: %v", ErrDeploymentFailure, statusError(status, body))
	}

	var dep Deployment
	if err := json.Unmarshal(body, &dep); err != nil {
		return nil, fmt.Errorf("%w: decode deployment: %v", ErrDeploymentFailure, err)
	}
	dep.Ledger = c.Ledger(dep.Address)
	return &dep, nil
}

// Deployments lists the node's live deployments in deploy order.
func (c *Client) Deployments(ctx context.Context) ([]*Deployment, error) {
	var resp struct {
		Deployments []*Deployment `json:"deployments"`
	}
	if err := c.getJSON(ctx, "/api/v1/deployments", &resp); err != nil {
		return nil, err
	}
	for _, d := range resp.Deployments {
		d.Ledger = c.Ledger(d.Address)
	}
	return resp.Deployments, nil
}

// Ledger returns a handle for the ledger deployed at address. No request is
// made until a method is called.
func (c *Client) Ledger(address string) *Ledger {
	return &Ledger{c: c, address: address}
}

func (c *Client) authorize(req *http.Request, actor string) error {
	c.mu.RLock()
	token, ok := c.tokens[actor]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoToken, actor)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do executes an HTTP request and maps non-2xx responses to errors.
func (c *Client) do(req *http.Request) ([]byte, error) {
	status, body, err := c.doStatusBody(req)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, statusError(status, body)
	}
	return body, nil
}

// doStatusBody is a lower-level HTTP call that returns (statusCode, body, error)
// without failing on 4xx responses. The caller interprets the status code.
func (c *Client) doStatusBody(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field"`
}

// statusError converts a node error response into the matching sentinel.
func statusError(status int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	msg := eb.Error
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	switch status {
	case http.StatusBadRequest:
		if eb.Field != "" {
			return &ValidationError{
				Field:  eb.Field,
				Reason: strings.TrimPrefix(msg, "invalid "+eb.Field+": "),
			}
		}
		return fmt.Errorf("bad request: %s", msg)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, msg)
	case http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", ErrConfirmationTimeout, msg)
	default:
		return fmt.Errorf("server error %d: %s", status, msg)
	}
}
