// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/wingedpig/sessiongate/internal/gwerrors"
)

// Store is the process-wide Session Store (spec §3): a registry of every
// live session, keyed by gateway-assigned id.
//
// Locking discipline (spec §5): never hold Store.mu while performing
// blocking I/O on a Session — acquire Store.mu only to look up or
// register a *Session pointer, then release it before touching the
// Session's own state.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore constructs an empty Session Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create allocates a fresh, provisionally-tagged session and registers
// it in the store.
func (st *Store) Create(cfg Config) *Session {
	id := uuid.New().String()
	s := New(id, cfg)

	st.mu.Lock()
	st.sessions[id] = s
	st.mu.Unlock()

	return s
}

// Get looks up a session by id.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Remove unregisters a session from the store. It is the orchestrator's
// responsibility to have already called Session.Close (drain-before-
// remove, spec §3) before calling Remove.
func (st *Store) Remove(id string) error {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()

	if !ok {
		return gwerrors.New(gwerrors.KindNotConnected, "unknown session: "+id)
	}
	if !s.Closed() {
		return gwerrors.New(gwerrors.KindWrongState, "session removed before being drained/closed: "+id)
	}

	st.mu.Lock()
	if st.sessions[id] == s {
		delete(st.sessions, id)
	}
	st.mu.Unlock()
	return nil
}

// List returns every currently registered session. Order is unspecified.
func (st *Store) List() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of registered sessions.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
