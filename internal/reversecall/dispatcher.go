// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package reversecall implements the Reverse-Call Dispatcher (spec
// §4.6): server-originated calls into the connected client
// (AskUserQuestion, RequestPermission, SessionCommand, ThemeChanged),
// correlated by callId with a default timeout and a per-session hard
// cap on concurrently pending calls.
package reversecall

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/wingedpig/sessiongate/internal/gwerrors"
)

// Method is one of the fixed set of reverse-call routes the gateway may
// issue toward a connected client.
type Method string

const (
	MethodAskUserQuestion  Method = "AskUserQuestion"
	MethodRequestPermission Method = "RequestPermission"
	MethodSessionCommand   Method = "SessionCommand"
	MethodThemeChanged     Method = "ThemeChanged"
)

// DefaultTimeout is the reverse-call response deadline absent an
// explicit override (spec §4.6).
const DefaultTimeout = 35 * time.Second

// DefaultMaxPending is the per-session hard cap on concurrently
// outstanding reverse calls (spec §9).
const DefaultMaxPending = 10000

// Call is one outstanding reverse call awaiting a client response.
type Call struct {
	ID        string
	Method    Method
	Payload   json.RawMessage
	CreatedAt time.Time
	Deadline  time.Time

	resultCh chan result
}

type result struct {
	payload json.RawMessage
	err     error
}

// Sender transmits an issued call to the connected client. The
// Dispatcher calls it synchronously from within Issue, before waiting
// for a response.
type Sender func(Call) error

// Dispatcher correlates one session's outstanding reverse calls by id.
type Dispatcher struct {
	mu      sync.Mutex
	pending map[string]*Call
	timers  map[string]*time.Timer

	defaultTimeout time.Duration
	maxPending     int
	limiter        *rate.Limiter
}

// New constructs a Dispatcher for a single session. A zero
// defaultTimeout/maxPending falls back to the spec defaults.
func New(defaultTimeout time.Duration, maxPending int, issueRatePerSecond float64, issueRateBurst int) *Dispatcher {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	if issueRatePerSecond <= 0 {
		issueRatePerSecond = 50
	}
	if issueRateBurst <= 0 {
		issueRateBurst = 100
	}
	return &Dispatcher{
		pending:        make(map[string]*Call),
		timers:         make(map[string]*time.Timer),
		defaultTimeout: defaultTimeout,
		maxPending:     maxPending,
		limiter:        rate.NewLimiter(rate.Limit(issueRatePerSecond), issueRateBurst),
	}
}

// Issue sends a reverse call via send and blocks until the client
// resolves it, the deadline passes, ctx is cancelled, or the dispatcher
// is shut down (session closed). It enforces the per-session pending
// cap with a KindOverloaded error (spec §9) before ever calling send.
func (d *Dispatcher) Issue(ctx context.Context, method Method, payload json.RawMessage, timeout time.Duration, send Sender) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindCancelled, "reverse call issuance cancelled", err)
	}

	d.mu.Lock()
	if len(d.pending) >= d.maxPending {
		d.mu.Unlock()
		return nil, gwerrors.New(gwerrors.KindOverloaded, "too many pending reverse calls for this session")
	}

	id := uuid.NewString()
	now := time.Now()
	call := &Call{
		ID:        id,
		Method:    method,
		Payload:   payload,
		CreatedAt: now,
		Deadline:  now.Add(timeout),
		resultCh:  make(chan result, 1),
	}
	d.pending[id] = call
	timer := time.AfterFunc(timeout, func() { d.timeout(id) })
	d.timers[id] = timer
	d.mu.Unlock()

	if err := send(*call); err != nil {
		d.remove(id)
		return nil, gwerrors.Wrap(gwerrors.KindTransportDisconnected, "failed to deliver reverse call", err)
	}

	select {
	case res := <-call.resultCh:
		return res.payload, res.err
	case <-ctx.Done():
		d.remove(id)
		return nil, gwerrors.Wrap(gwerrors.KindCancelled, "reverse call cancelled", ctx.Err())
	}
}

// Resolve delivers a client response to the pending call with the given
// id. It returns an error if no such call is outstanding (e.g. it
// already timed out or the session closed).
func (d *Dispatcher) Resolve(id string, payload json.RawMessage, callErr error) error {
	d.mu.Lock()
	call, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
		if t, ok := d.timers[id]; ok {
			t.Stop()
			delete(d.timers, id)
		}
	}
	d.mu.Unlock()

	if !ok {
		return gwerrors.New(gwerrors.KindUnknownRoute, "no pending reverse call with id "+id)
	}
	call.resultCh <- result{payload: payload, err: callErr}
	return nil
}

// Pending returns the number of currently outstanding reverse calls.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// CloseAll cancels every outstanding call with the given error, e.g.
// when the owning session closes.
func (d *Dispatcher) CloseAll(err error) {
	d.mu.Lock()
	calls := make([]*Call, 0, len(d.pending))
	for id, call := range d.pending {
		calls = append(calls, call)
		delete(d.pending, id)
		if t, ok := d.timers[id]; ok {
			t.Stop()
			delete(d.timers, id)
		}
	}
	d.mu.Unlock()

	for _, call := range calls {
		call.resultCh <- result{err: err}
	}
}

func (d *Dispatcher) timeout(id string) {
	d.mu.Lock()
	call, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
		delete(d.timers, id)
	}
	d.mu.Unlock()

	if !ok {
		return
	}
	call.resultCh <- result{err: gwerrors.New(gwerrors.KindReverseCallTimeout, "reverse call timed out")}
}

func (d *Dispatcher) remove(id string) {
	d.mu.Lock()
	delete(d.pending, id)
	if t, ok := d.timers[id]; ok {
		t.Stop()
		delete(d.timers, id)
	}
	d.mu.Unlock()
}
