package client

import (
	"github.com/jmerrifield20/waveledger/internal/deploy"
	"github.com/jmerrifield20/waveledger/internal/ledger"
	"github.com/jmerrifield20/waveledger/internal/network"
)

// Types shared with the node. They are aliases, so values returned by the
// client can be handed to code written against the node's own packages.
type (
	// Record is a ledger entry as returned by the node.
	Record = ledger.Record
	// PendingHandle identifies a submitted, not yet confirmed record.
	PendingHandle = ledger.PendingHandle
	// ValidationError reports a rejected submission. It matches ErrValidation.
	ValidationError = ledger.ValidationError
	// LedgerAPI is the operation set every ledger handle provides.
	LedgerAPI = ledger.Ledger
	// Deployment describes a deployed ledger.
	Deployment = deploy.Deployment
	// Actor is a provisioned account.
	Actor = network.Actor
)

// Errors returned by the client that mirror the node's own. Check them with
// errors.Is.
var (
	ErrValidation          = ledger.ErrValidation
	ErrConfirmationTimeout = ledger.ErrConfirmationTimeout
	ErrUnknownHandle       = ledger.ErrUnknownHandle
	ErrDeploymentFailure   = deploy.ErrDeploymentFailure
	ErrNotFound            = deploy.ErrNotFound
)
