// Package network provides the ephemeral local network the ledger is deployed
// to: a fixed set of funded-style actor identities, per-actor nonces for
// deployments, and bearer tokens that let an actor authenticate to a node.
//
// With a seed, actor keys are derived deterministically, so every Reset hands
// out the same addresses, much like a development chain's mnemonic.
package network

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
)

// Defaults applied by New when Config leaves a field unset.
const (
	DefaultAccounts = 10
	DefaultTokenTTL = time.Hour
)

// ErrUnknownActor is returned when an address does not belong to the network.
var ErrUnknownActor = errors.New("unknown actor")

// Config controls actor provisioning.
type Config struct {
	Accounts int           // number of actors; 0 = DefaultAccounts
	Seed     string        // derives actor keys deterministically; empty = random keys
	TokenTTL time.Duration // lifetime of actor tokens; 0 = DefaultTokenTTL
}

// Actor is an identity permitted to submit records.
type Actor struct {
	Address   string            `json:"address"`
	PublicKey ed25519.PublicKey `json:"public_key"`
}

// Network is an in-process, resettable set of actors.
type Network struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.RWMutex
	id     uuid.UUID
	actors []Actor
	keys   map[string]ed25519.PrivateKey
	nonces map[string]uint64
	tokens *TokenIssuer
}

// New creates a Network and provisions its actors.
func New(cfg Config, logger *zap.Logger) (*Network, error) {
	if cfg.Accounts <= 0 {
		cfg.Accounts = DefaultAccounts
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	n := &Network{cfg: cfg, logger: logger}
	if err := n.Reset(); err != nil {
		return nil, err
	}
	return n, nil
}

// Reset discards all nonces and tokens and provisions a fresh generation of
// actors under a new network ID.
func (n *Network) Reset() error {
	actors := make([]Actor, 0, n.cfg.Accounts)
	keys := make(map[string]ed25519.PrivateKey, n.cfg.Accounts)
	for i := 0; i < n.cfg.Accounts; i++ {
		key, err := n.deriveKey(i)
		if err != nil {
			return fmt.Errorf("derive actor key %d: %w", i, err)
		}
		pub := key.Public().(ed25519.PublicKey)
		addr := AddressOf(pub)
		actors = append(actors, Actor{Address: addr, PublicKey: pub})
		keys[addr] = key
	}

	_, signer, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate token key: %w", err)
	}
	id := uuid.New()

	n.mu.Lock()
	n.id = id
	n.actors = actors
	n.keys = keys
	n.nonces = make(map[string]uint64, len(actors))
	n.tokens = NewTokenIssuer(signer, "waveledger/"+id.String(), n.cfg.TokenTTL)
	n.mu.Unlock()

	n.logger.Info("network provisioned",
		zap.String("network_id", id.String()),
		zap.Int("actors", len(actors)),
		zap.Bool("deterministic", n.cfg.Seed != ""),
	)
	return nil
}

func (n *Network) deriveKey(i int) (ed25519.PrivateKey, error) {
	if n.cfg.Seed == "" {
		_, key, err := ed25519.GenerateKey(rand.Reader)
		return key, err
	}
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(n.cfg.Seed))
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], uint32(i))
	h.Write(idx[:])
	return ed25519.NewKeyFromSeed(h.Sum(nil)), nil
}

// ID returns the current network generation's identifier.
func (n *Network) ID() uuid.UUID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.id
}

// ProvisionActors returns the network's actors in a stable order. The first
// actor is the default actor used for deployments.
func (n *Network) ProvisionActors(_ context.Context) ([]Actor, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Actor, len(n.actors))
	copy(out, n.actors)
	return out, nil
}

// Has reports whether address belongs to the current generation of actors.
func (n *Network) Has(address string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.keys[address]
	return ok
}

// Sign signs msg with the actor's private key.
func (n *Network) Sign(address string, msg []byte) ([]byte, error) {
	n.mu.RLock()
	key, ok := n.keys[address]
	n.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActor, address)
	}
	return ed25519.Sign(key, msg), nil
}

// NextNonce returns the actor's current nonce and increments it.
func (n *Network) NextNonce(address string) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.keys[address]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownActor, address)
	}
	nonce := n.nonces[address]
	n.nonces[address] = nonce + 1
	return nonce, nil
}

// IssueToken returns a bearer token identifying the actor at address.
func (n *Network) IssueToken(address string) (string, error) {
	n.mu.RLock()
	_, ok := n.keys[address]
	tokens := n.tokens
	n.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownActor, address)
	}
	return tokens.Issue(address)
}

// VerifyToken validates a bearer token and returns the actor address it was
// issued to. Tokens from before the last Reset are rejected.
func (n *Network) VerifyToken(token string) (string, error) {
	n.mu.RLock()
	tokens := n.tokens
	n.mu.RUnlock()

	claims, err := tokens.Verify(token)
	if err != nil {
		return "", err
	}
	if !n.Has(claims.Subject) {
		return "", fmt.Errorf("%w: %s", ErrUnknownActor, claims.Subject)
	}
	return claims.Subject, nil
}

// AddressOf derives an actor address from its public key: the last 20 bytes
// of the Keccak-256 digest, hex-encoded with a 0x prefix.
func AddressOf(pub ed25519.PublicKey) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub)
	return "0x" + hex.EncodeToString(h.Sum(nil)[12:])
}

// ContractAddress derives the address of something deployed by deployer at
// the given nonce.
func ContractAddress(deployer string, nonce uint64) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(deployer))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	h.Write(buf[:])
	return "0x" + hex.EncodeToString(h.Sum(nil)[12:])
}
