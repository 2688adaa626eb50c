// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session implements the Session Store and per-session data
// model (spec §3): state machine, subscriber fan-out with back-pressure,
// and the gateway's closed-session-data invariants.
package session

import (
	"sync"
	"time"

	"github.com/wingedpig/sessiongate/internal/gwerrors"
	"github.com/wingedpig/sessiongate/internal/process"
	"github.com/wingedpig/sessiongate/internal/stream"
)

// State is the session's lifecycle state machine (spec §3).
type State int

const (
	StateConnecting State = iota
	StateIdle
	StateStreaming
	StateInterrupting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateInterrupting:
		return "interrupting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Capabilities is the flag set the CLI advertises (or that the gateway
// assumes until the CLI's system.init event is observed).
type Capabilities struct {
	SupportedPermissionModes []string
	SupportsRunInBackground  bool
	SupportsThinkingTokens   bool
	SlashCommands            []string
	Skills                   []string
}

// Config is the per-session, client-adjustable configuration (spec §4.3:
// setModel, setPermissionMode, setMaxThinkingTokens).
type Config struct {
	Model             string
	PermissionMode    string
	MaxThinkingTokens int
	WorkDir           string
}

// subscriberBuffer bounds how far a slow subscriber may lag before the
// session treats it as disconnected (spec §5 back-pressure: a slow
// subscriber closes the session and terminates the child rather than
// silently dropping data).
const subscriberBuffer = 256

// Session holds one gateway session's full state.
type Session struct {
	mu sync.Mutex

	id           string // gateway-assigned id, stable for the session's life
	cliSessionID string // set once the CLI reports its own session_id
	cliSIDSet    bool

	state State
	proc  *process.Process

	capabilities Capabilities
	config       Config

	subscribers map[chan stream.Event]struct{}
	turnCounter int

	createdAt time.Time
	closed    bool

	// onBackPressure is invoked (outside the session lock) by every
	// Publish that finds a subscriber unable to keep up, so the
	// orchestrator can terminate the child and tear the session down.
	onBackPressure func(*Session)
}

// New constructs a fresh session in StateConnecting.
func New(id string, cfg Config) *Session {
	return &Session{
		id:          id,
		state:       StateConnecting,
		config:      cfg,
		subscribers: make(map[chan stream.Event]struct{}),
		createdAt:   time.Now(),
	}
}

// ID returns the gateway-assigned session id.
func (s *Session) ID() string { return s.id }

// OnBackPressure registers the callback fired when a subscriber's buffer
// overflows. Must be set before the session starts streaming.
func (s *Session) OnBackPressure(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onBackPressure = fn
}

// CLISessionID returns the CLI-reported session id, and whether it has
// been set yet.
func (s *Session) CLISessionID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cliSessionID, s.cliSIDSet
}

// SetCLISessionID records the CLI's session id. It may only be set once
// per session (spec §3 invariant); subsequent calls with a different
// value are rejected.
func (s *Session) SetCLISessionID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cliSIDSet {
		if s.cliSessionID != id {
			return gwerrors.New(gwerrors.KindInternal, "cli session id already set to a different value")
		}
		return nil
	}
	s.cliSessionID = id
	s.cliSIDSet = true
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState transitions the session's state machine. Callers (the
// Session Orchestrator) are responsible for only requesting valid
// transitions; SetState itself does not reject any transition except
// into-or-out-of StateClosed, which only Close may perform.
func (s *Session) SetState(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return gwerrors.New(gwerrors.KindSessionClosed, "session is closed")
	}
	if next == StateClosed {
		return gwerrors.New(gwerrors.KindInternal, "use Close to transition to StateClosed")
	}
	s.state = next
	return nil
}

// AttachProcess records the session's single live child (spec §3
// invariant: at most one live child per session). Attaching while
// another process is already live is rejected.
func (s *Session) AttachProcess(p *process.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return gwerrors.New(gwerrors.KindSessionClosed, "session is closed")
	}
	if s.proc != nil && s.proc.State() != process.StateExited {
		return gwerrors.New(gwerrors.KindWrongState, "a child process is already live for this session")
	}
	s.proc = p
	return nil
}

// Process returns the currently attached child, or nil.
func (s *Session) Process() *process.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

// DetachProcess clears the session's child process reference once it
// has exited.
func (s *Session) DetachProcess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proc = nil
}

// NextTurn increments and returns the session's turn counter.
func (s *Session) NextTurn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnCounter++
	return s.turnCounter
}

// Capabilities returns the session's advertised capability set.
func (s *Session) Capabilities() Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capabilities
}

// SetCapabilities replaces the capability set, e.g. once a system.init
// event has been observed.
func (s *Session) SetCapabilities(c Capabilities) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capabilities = c
}

// Config returns a copy of the session's current client-adjustable
// configuration.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// UpdateConfig applies fn to the session's configuration under lock.
func (s *Session) UpdateConfig(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.config)
}

// Subscribe registers a new event subscriber and returns its channel.
// The channel stays open until Unsubscribe or Close.
func (s *Session) Subscribe() chan stream.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan stream.Event, subscriberBuffer)
	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a subscriber channel. Safe to call more
// than once for the same channel.
func (s *Session) Unsubscribe(ch chan stream.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// Publish fans an event out to every subscriber without blocking. Spec
// §5 forbids silent data loss under back-pressure: if a subscriber's
// buffer is full, the event is not delivered to that subscriber and
// Publish fires onBackPressure, so the orchestrator can terminate the
// child and close the session.
func (s *Session) Publish(ev stream.Event) {
	s.mu.Lock()
	var overloaded bool
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			overloaded = true
		}
	}
	cb := s.onBackPressure
	s.mu.Unlock()

	if overloaded && cb != nil {
		cb(s)
	}
}

// Close transitions the session into StateClosed, draining (closing)
// every subscriber channel before the session is considered removable
// from the Session Store (spec §3's drain-before-remove invariant).
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = StateClosed
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = make(map[chan stream.Event]struct{})
	s.mu.Unlock()
}

// Closed reports whether Close has already run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
