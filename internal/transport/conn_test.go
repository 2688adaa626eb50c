// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(t *testing.T) (*Conn, func()) {
	t.Helper()
	upgraded := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		upgraded <- ws
	}))

	ws := dial(t, ts.URL)
	serverWS := <-upgraded

	conn := newConn(serverWS)
	return conn, func() {
		ws.Close()
		serverWS.Close()
		ts.Close()
	}
}

func TestConn_BindUnbindBoundSessions(t *testing.T) {
	conn, cleanup := newTestConn(t)
	defer cleanup()

	assert.Empty(t, conn.BoundSessions())

	conn.Bind("sess-a")
	conn.Bind("sess-b")
	assert.ElementsMatch(t, []string{"sess-a", "sess-b"}, conn.BoundSessions())

	conn.Unbind("sess-a")
	assert.Equal(t, []string{"sess-b"}, conn.BoundSessions())
}

func TestConn_UnbindUnknownSessionIsNoop(t *testing.T) {
	conn, cleanup := newTestConn(t)
	defer cleanup()

	conn.Unbind("never-bound")
	assert.Empty(t, conn.BoundSessions())
}

func TestWithConnAndFromContext(t *testing.T) {
	conn, cleanup := newTestConn(t)
	defer cleanup()

	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := withConn(context.Background(), conn)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, conn, got)
}
