// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/wingedpig/sessiongate/internal/gwerrors"
)

// Kind classifies a route's concurrency shape (spec §4.5).
type Kind int

const (
	// KindRR is request/response: one reply frame per request frame.
	KindRR Kind = iota
	// KindRS is request/stream: zero or more reply frames, terminated
	// when the handler's stream closes.
	KindRS
	// KindFF is fire-and-forget: no reply frame is ever sent.
	KindFF
)

func (k Kind) String() string {
	switch k {
	case KindRR:
		return "RR"
	case KindRS:
		return "RS"
	case KindFF:
		return "FF"
	default:
		return "unknown"
	}
}

// Route names (spec §4.3 for the agent.* family, §4.6 for client.call).
const (
	RouteConnect              = "agent.connect"
	RouteQuery                = "agent.query"
	RouteQueryWithContent     = "agent.queryWithContent"
	RouteInterrupt            = "agent.interrupt"
	RouteRunInBackground      = "agent.runInBackground"
	RouteSetModel             = "agent.setModel"
	RouteSetPermissionMode    = "agent.setPermissionMode"
	RouteSetMaxThinkingTokens = "agent.setMaxThinkingTokens"
	RouteDisconnect           = "agent.disconnect"
	RouteGetHistory           = "agent.getHistory"
	RouteLoadHistory          = "agent.loadHistory"
	RouteGetHistoryMetadata   = "agent.getHistoryMetadata"
	RouteGetHistorySessions   = "agent.getHistorySessions"
	RouteTruncateHistory      = "agent.truncateHistory"

	// RouteClientCall carries reverse calls in both directions: the
	// server sends it outbound to issue AskUserQuestion/RequestPermission/
	// SessionCommand/ThemeChanged, and the client sends it back inbound
	// to resolve one by callId (spec §4.6). The server never registers
	// an agent.* handler on itself for this route.
	RouteClientCall = "client.call"
)

// routeTable is the router's static route → handlerKind table (spec
// §4.5). A route missing from this table is always UnknownRoute,
// independent of whether a handler happens to be registered.
var routeTable = map[string]Kind{
	RouteConnect:              KindRR,
	RouteQuery:                KindRS,
	RouteQueryWithContent:     KindRS,
	RouteInterrupt:            KindRR,
	RouteRunInBackground:      KindRR,
	RouteSetModel:             KindRR,
	RouteSetPermissionMode:    KindRR,
	RouteSetMaxThinkingTokens: KindRR,
	RouteDisconnect:           KindRR,
	RouteGetHistory:           KindRR,
	RouteLoadHistory:          KindRR,
	RouteGetHistoryMetadata:   KindRR,
	RouteGetHistorySessions:   KindRR,
	RouteTruncateHistory:      KindRR,
	RouteClientCall:           KindFF,
}

// KindOf reports the registered kind for route, and whether it is known
// at all.
func KindOf(route string) (Kind, bool) {
	k, ok := routeTable[route]
	return k, ok
}

// StreamItem is one element of an RS handler's reply stream. A non-nil
// Err is delivered as an error reply in place of a payload; it does not
// end the stream, which lasts until the handler closes the channel.
type StreamItem struct {
	Payload json.RawMessage
	Err     error
}

// RRHandler answers a request/response route synchronously.
type RRHandler func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// RSHandler answers a request/stream route with a channel of reply
// items. The handler owns the channel and must close it once the stream
// is exhausted.
type RSHandler func(ctx context.Context, payload json.RawMessage) (<-chan StreamItem, error)

// FFHandler answers a fire-and-forget route. Any error is logged by the
// caller; it is never placed on the wire since no reply frame exists.
type FFHandler func(ctx context.Context, callID string, payload json.RawMessage) error

// Router dispatches decoded Frames to the handler registered for their
// route, enforcing that the handler's registration kind matches the
// route table (spec §4.5: "Request/stream semantics are a property of
// the route, not the frame").
type Router struct {
	mu sync.RWMutex
	rr map[string]RRHandler
	rs map[string]RSHandler
	ff map[string]FFHandler
}

// NewRouter constructs an empty Router. Handlers are registered via
// HandleRR/HandleRS/HandleFF before Dispatch is called.
func NewRouter() *Router {
	return &Router{
		rr: make(map[string]RRHandler),
		rs: make(map[string]RSHandler),
		ff: make(map[string]FFHandler),
	}
}

// HandleRR registers h for route. It panics if route is not a KindRR
// route in the static table — this is a wiring bug caught at startup,
// not a runtime condition.
func (r *Router) HandleRR(route string, h RRHandler) {
	r.mustBeKind(route, KindRR)
	r.mu.Lock()
	r.rr[route] = h
	r.mu.Unlock()
}

// HandleRS registers h for route. See HandleRR for the panic condition.
func (r *Router) HandleRS(route string, h RSHandler) {
	r.mustBeKind(route, KindRS)
	r.mu.Lock()
	r.rs[route] = h
	r.mu.Unlock()
}

// HandleFF registers h for route. See HandleRR for the panic condition.
func (r *Router) HandleFF(route string, h FFHandler) {
	r.mustBeKind(route, KindFF)
	r.mu.Lock()
	r.ff[route] = h
	r.mu.Unlock()
}

func (r *Router) mustBeKind(route string, want Kind) {
	got, ok := routeTable[route]
	if !ok || got != want {
		panic("rpc: route " + route + " is not a " + want.String() + " route")
	}
}

// Result is the outcome of dispatching one inbound Frame.
type Result struct {
	Kind    Kind
	Payload json.RawMessage    // set for KindRR
	Stream  <-chan StreamItem  // set for KindRS
}

// Dispatch routes f to its registered handler. For KindFF routes it
// returns a zero Result once the handler completes — the caller sends no
// reply frame either way. Unknown routes and routes with no registered
// handler both surface as KindUnknownRoute (spec §4.5: "Unknown routes
// return a typed UnknownRoute error in-band").
func (r *Router) Dispatch(ctx context.Context, f Frame) (Result, error) {
	kind, ok := routeTable[f.Route]
	if !ok {
		return Result{}, gwerrors.New(gwerrors.KindUnknownRoute, "unknown route: "+f.Route)
	}

	switch kind {
	case KindRR:
		r.mu.RLock()
		h, ok := r.rr[f.Route]
		r.mu.RUnlock()
		if !ok {
			return Result{}, gwerrors.New(gwerrors.KindUnknownRoute, "no handler registered for "+f.Route)
		}
		payload, err := h(ctx, json.RawMessage(f.Payload))
		return Result{Kind: KindRR, Payload: payload}, err

	case KindRS:
		r.mu.RLock()
		h, ok := r.rs[f.Route]
		r.mu.RUnlock()
		if !ok {
			return Result{}, gwerrors.New(gwerrors.KindUnknownRoute, "no handler registered for "+f.Route)
		}
		stream, err := h(ctx, json.RawMessage(f.Payload))
		if err != nil {
			return Result{}, err
		}
		return Result{Kind: KindRS, Stream: stream}, nil

	case KindFF:
		r.mu.RLock()
		h, ok := r.ff[f.Route]
		r.mu.RUnlock()
		if !ok {
			return Result{}, gwerrors.New(gwerrors.KindUnknownRoute, "no handler registered for "+f.Route)
		}
		err := h(ctx, f.CallID, json.RawMessage(f.Payload))
		return Result{Kind: KindFF}, err

	default:
		return Result{}, gwerrors.New(gwerrors.KindInternal, "unreachable route kind")
	}
}
