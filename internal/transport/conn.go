// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package transport implements the gateway's WebSocket transport (spec
// §6): one persistent duplex connection per client carrying length-
// prefixed rpc.Frame messages, keep-alive ping/pong, and dispatch into
// the rpc.Router.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wingedpig/sessiongate/internal/rpc"
)

// Conn wraps one upgraded WebSocket connection: a write-mutex-guarded
// frame writer, and the set of gateway sessions this connection has
// bound (so a dropped connection can be forwarded to the Session Store
// as a disconnect for each of them).
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu       sync.Mutex
	sessions map[string]struct{}
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws, sessions: make(map[string]struct{})}
}

// WriteFrame encodes f and writes it as one binary WebSocket message,
// guarded by this connection's write mutex (concurrent RR/RS/FF
// goroutines on the same connection all funnel through here).
func (c *Conn) WriteFrame(f rpc.Frame) error {
	b, err := rpc.Encode(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.BinaryMessage, b)
}

// Bind records that sessionID was created over this connection.
func (c *Conn) Bind(sessionID string) {
	c.mu.Lock()
	c.sessions[sessionID] = struct{}{}
	c.mu.Unlock()
}

// Unbind removes sessionID, e.g. once the client has explicitly
// disconnected it.
func (c *Conn) Unbind(sessionID string) {
	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()
}

// BoundSessions returns every session still bound to this connection.
func (c *Conn) BoundSessions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		out = append(out, id)
	}
	return out
}

type connCtxKey struct{}

// withConn returns a context carrying conn, so route handlers (wired in
// the gateway package) can bind/unbind sessions and build a
// reversecall.Sender closure over the connection that issued the
// request, without the rpc.Router itself knowing about WebSockets.
func withConn(ctx context.Context, conn *Conn) context.Context {
	return context.WithValue(ctx, connCtxKey{}, conn)
}

// FromContext retrieves the Conn bound to ctx by the transport's
// dispatch loop.
func FromContext(ctx context.Context) (*Conn, bool) {
	c, ok := ctx.Value(connCtxKey{}).(*Conn)
	return c, ok
}
