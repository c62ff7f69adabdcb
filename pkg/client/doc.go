// Package client is the waveledger Go SDK for talking to a running node.
//
// A Client provisions actors, deploys ledgers and returns a per-ledger handle
// that satisfies LedgerAPI, so the same harness drives an in-process ledger
// and a remote one:
//
//	c, err := client.New("http://localhost:8545")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	actors, _ := c.ProvisionActors(ctx)
//	dep, _ := c.Deploy(ctx)
//	h, _ := dep.Ledger.Submit(ctx, actors[0].Address, "A message!")
//	rec, _ := dep.Ledger.AwaitConfirmation(ctx, h)
//
// Submissions are authenticated with the bearer token the node hands out
// alongside each actor, so ProvisionActors must run before Submit. Reset is
// authenticated the same way. The record, handle and deployment types are
// re-exported here (Record, PendingHandle, Deployment, Actor), as are the
// sentinels the node's errors map back to: ErrValidation,
// ErrConfirmationTimeout, ErrUnknownHandle, ErrDeploymentFailure and
// ErrNotFound. Check them with errors.Is.
//
// AwaitConfirmation long-polls the node. Each poll lasts at most the poll
// timeout (WithPollTimeout); the overall wait is bounded by ctx and, when set,
// WithConfirmationTimeout.
package client
