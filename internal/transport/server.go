// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wingedpig/sessiongate/internal/rpc"
)

// wireError is the payload shape for a frame carrying an error reply
// (spec §7): a stable code plus a human-readable message.
type wireError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server serves the gateway's RPC surface over WebSocket connections: one
// Upgrade call runs a connection's full read/dispatch/write loop for its
// lifetime (spec §6).
type Server struct {
	router            *rpc.Router
	keepAliveInterval time.Duration
	keepAliveTimeout  time.Duration
	onDisconnect      func(sessionID string)
	log               zerolog.Logger
}

// NewServer constructs a Server dispatching through router. onDisconnect
// is called once per session still bound to a connection when that
// connection is lost, forwarding the loss to the Session Store (spec
// §9: a dropped transport does not implicitly interrupt a turn, but it
// does tear down the session the way an explicit disconnect would).
func NewServer(router *rpc.Router, keepAliveInterval, keepAliveTimeout time.Duration, onDisconnect func(sessionID string), log zerolog.Logger) *Server {
	return &Server{
		router:            router,
		keepAliveInterval: keepAliveInterval,
		keepAliveTimeout:  keepAliveTimeout,
		onDisconnect:      onDisconnect,
		log:               log.With().Str("component", "transport").Logger(),
	}
}

// Upgrade upgrades r to a WebSocket and serves it until the client
// disconnects or a fatal read error occurs.
func (s *Server) Upgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	conn := newConn(ws)

	ws.SetReadDeadline(time.Now().Add(s.keepAliveTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(s.keepAliveTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.keepAliveInterval)
	defer pingTicker.Stop()
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-pingTicker.C:
				conn.writeMu.Lock()
				ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
				err := ws.WriteMessage(websocket.PingMessage, nil)
				conn.writeMu.Unlock()
				if err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		f, err := rpc.Decode(data)
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}
		go s.dispatch(conn, f)
	}

	for _, sessionID := range conn.BoundSessions() {
		if s.onDisconnect != nil {
			s.onDisconnect(sessionID)
		}
	}
}

func (s *Server) dispatch(conn *Conn, f rpc.Frame) {
	ctx := withConn(context.Background(), conn)

	res, err := s.router.Dispatch(ctx, f)
	if err != nil {
		if res.Kind == rpc.KindFF {
			s.log.Warn().Err(err).Str("route", f.Route).Msg("fire-and-forget handler failed")
			return
		}
		s.writeError(conn, f, err)
		return
	}

	switch res.Kind {
	case rpc.KindRR:
		s.writeReply(conn, f, res.Payload, nil)
	case rpc.KindRS:
		for item := range res.Stream {
			if item.Err != nil {
				s.writeError(conn, f, item.Err)
				continue
			}
			s.writeReply(conn, f, item.Payload, nil)
		}
	case rpc.KindFF:
		// no reply frame by design
	}
}

func (s *Server) writeReply(conn *Conn, req rpc.Frame, payload []byte, _ error) {
	if err := conn.WriteFrame(rpc.Frame{Route: req.Route, CallID: req.CallID, Payload: payload}); err != nil {
		s.log.Debug().Err(err).Str("route", req.Route).Msg("failed to write reply frame")
	}
}

func (s *Server) writeError(conn *Conn, req rpc.Frame, err error) {
	var we wireError
	we.Error.Code, we.Error.Message = errorParts(err)
	payload, merr := json.Marshal(we)
	if merr != nil {
		s.log.Error().Err(merr).Msg("failed to marshal wire error")
		return
	}
	if werr := conn.WriteFrame(rpc.Frame{Route: req.Route, CallID: req.CallID, Payload: payload}); werr != nil {
		s.log.Debug().Err(werr).Str("route", req.Route).Msg("failed to write error frame")
	}
}
