package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

var _ LedgerAPI = (*Ledger)(nil)

// Ledger is a remote LedgerAPI backed by a node's REST API.
type Ledger struct {
	c       *Client
	address string
}

// Address returns the deployed ledger's address.
func (l *Ledger) Address() string { return l.address }

func (l *Ledger) path(suffix string) string {
	return "/api/v1/ledgers/" + url.PathEscape(l.address) + suffix
}

// Submit posts message as actor. The actor's token must be known to the
// client (see ProvisionActors). A blank actor is rejected locally with a
// ValidationError.
func (l *Ledger) Submit(ctx context.Context, actor, message string) (*PendingHandle, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, &ValidationError{Field: "actor", Reason: "must not be empty"}
	}
	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := l.c.newRequest(ctx, http.MethodPost, l.path("/records"), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if err := l.c.authorize(req, actor); err != nil {
		return nil, err
	}

	body, err := l.c.do(req)
	if err != nil {
		return nil, err
	}
	var h PendingHandle
	if err := json.Unmarshal(body, &h); err != nil {
		return nil, fmt.Errorf("decode handle: %w", err)
	}
	return &h, nil
}

// AwaitConfirmation long-polls the node until the record is confirmed.
func (l *Ledger) AwaitConfirmation(ctx context.Context, h *PendingHandle) (*Record, error) {
	if h == nil {
		return nil, ErrUnknownHandle
	}
	if l.c.confirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.c.confirmTimeout)
		defer cancel()
	}

	q := url.Values{}
	q.Set("timeout", l.c.pollTimeout.String())
	if h.TxHash != "" {
		q.Set("tx_hash", h.TxHash)
	}
	path := l.path("/records/"+strconv.FormatUint(h.Seq, 10)+"/confirmation") + "?" + q.Encode()

	for {
		req, err := l.c.newRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		status, body, err := l.c.doStatusBody(req)
		if err != nil {
			return nil, l.waitErr(ctx, h, err)
		}

		switch status {
		case http.StatusOK:
			var rec Record
			if err := json.Unmarshal(body, &rec); err != nil {
				return nil, fmt.Errorf("decode record: %w", err)
			}
			return &rec, nil
		case http.StatusAccepted:
			// Still pending; poll again.
		case http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, errorMessage(body))
		default:
			return nil, statusError(status, body)
		}
	}
}

// waitErr reports a transport failure during a long-poll, turning our own
// confirmation deadline into ErrConfirmationTimeout.
func (l *Ledger) waitErr(ctx context.Context, h *PendingHandle, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) && l.c.confirmTimeout > 0 {
			return fmt.Errorf("%w: record %d not confirmed within %s",
				ErrConfirmationTimeout, h.Seq, l.c.confirmTimeout)
		}
		return ctxErr
	}
	return err
}

// Overview is the node's summary of a ledger.
type Overview struct {
	Address string `json:"address"`
	Count   int    `json:"count"`
	Pending int    `json:"pending"`
	Root    string `json:"root"`
}

// Overview fetches the ledger's count, backlog and chain tip.
func (l *Ledger) Overview(ctx context.Context) (*Overview, error) {
	var o Overview
	if err := l.c.getJSON(ctx, l.path(""), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// TotalCount returns the number of confirmed records.
func (l *Ledger) TotalCount(ctx context.Context) (int, error) {
	o, err := l.Overview(ctx)
	if err != nil {
		return 0, err
	}
	return o.Count, nil
}

// Root returns the hash of the latest confirmed record.
func (l *Ledger) Root(ctx context.Context) (string, error) {
	o, err := l.Overview(ctx)
	if err != nil {
		return "", err
	}
	return o.Root, nil
}

// Records fetches the confirmed records once; the returned sequence replays
// that snapshot.
func (l *Ledger) Records(ctx context.Context) (iter.Seq[Record], error) {
	records, err := l.list(ctx, "")
	if err != nil {
		return nil, err
	}
	return slices.Values(records), nil
}

// RecordsBy returns the confirmed records authored by actor.
func (l *Ledger) RecordsBy(ctx context.Context, actor string) ([]Record, error) {
	return l.list(ctx, actor)
}

func (l *Ledger) list(ctx context.Context, author string) ([]Record, error) {
	path := l.path("/records")
	if author != "" {
		path += "?author=" + url.QueryEscape(author)
	}
	var resp struct {
		Records []Record `json:"records"`
	}
	if err := l.c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// Verify asks the node to walk the hash chain.
func (l *Ledger) Verify(ctx context.Context) error {
	var resp struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
	}
	if err := l.c.getJSON(ctx, l.path("/verify"), &resp); err != nil {
		return err
	}
	if !resp.Valid {
		return fmt.Errorf("ledger %s failed verification: %s", l.address, resp.Error)
	}
	return nil
}

func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error != "" {
		return eb.Error
	}
	return string(body)
}
