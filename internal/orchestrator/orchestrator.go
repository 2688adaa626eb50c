// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator implements the Session Orchestrator (spec §4.3):
// the top-level glue that translates the gateway's RPC surface (connect,
// query, interrupt, setModel, setPermissionMode, getHistory, ...) into
// Process Supervisor, Stream Parser, History Resolver, and Reverse-Call
// Dispatcher actions, and publishes decoded events to session
// subscribers.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wingedpig/sessiongate/internal/config"
	"github.com/wingedpig/sessiongate/internal/gwerrors"
	"github.com/wingedpig/sessiongate/internal/history"
	"github.com/wingedpig/sessiongate/internal/process"
	"github.com/wingedpig/sessiongate/internal/reversecall"
	"github.com/wingedpig/sessiongate/internal/session"
	"github.com/wingedpig/sessiongate/internal/stream"
)

// advisoryPermissionModes is the static, advisory permission-mode set
// assumed until a session's real system:init event reports its
// authoritative supportedPermissionModes (spec §9 / SPEC_FULL.md §C.1).
var advisoryPermissionModes = []string{"default", "acceptEdits", "bypassPermissions", "plan"}

// ConnectOptions is the input to Connect (spec §4.3 `connect`).
type ConnectOptions struct {
	ProjectPath       string
	ResumeSessionID   string
	Model             string
	PermissionMode    string
	MaxThinkingTokens int
	// Sender delivers reverse calls issued for this session to its
	// connected client. The transport supplies this when the client
	// attaches; it may be updated later via SetSender (reconnect).
	Sender reversecall.Sender
}

// ConnectResult is the output of Connect.
type ConnectResult struct {
	GatewaySessionID string
	CLISessionID     string // empty until the CLI's system:init event binds it
	Capabilities     session.Capabilities
	Model            string
	WorkDir          string
}

// sessionRuntime is the orchestrator-private state that rides alongside
// a *session.Session: its reverse-call dispatcher, parser, in-memory
// turn log, and the project/resume bookkeeping needed to build the next
// child invocation's arguments.
type sessionRuntime struct {
	sess       *session.Session
	dispatcher *reversecall.Dispatcher

	projectPath     string
	resumeRequested bool

	mu        sync.Mutex
	sender    reversecall.Sender
	turnLog   []stream.Event
	activeSub chan stream.Event
}

// Orchestrator owns every live session and is the sole caller of the
// Process Supervisor, Stream Parser, and Reverse-Call Dispatcher.
type Orchestrator struct {
	store   *session.Store
	history *history.Resolver
	cli     config.CLIConfig
	rc      config.ReverseCallConfig
	durs    config.Durations
	log     zerolog.Logger

	mu       sync.RWMutex
	runtimes map[string]*sessionRuntime
}

// New constructs an Orchestrator backed by store and hist, using cfg for
// CLI spawn and reverse-call defaults.
func New(store *session.Store, hist *history.Resolver, cfg config.Config, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		history:  hist,
		cli:      cfg.CLI,
		rc:       cfg.ReverseCall,
		durs:     cfg.Resolve(),
		log:      log.With().Str("component", "orchestrator").Logger(),
		runtimes: make(map[string]*sessionRuntime),
	}
}

// Connect creates a new session (spec §4.3 `connect`). It does not spawn
// a child; the first Query does, so a connected-but-idle session holds
// no process.
func (o *Orchestrator) Connect(ctx context.Context, opts ConnectOptions) (*ConnectResult, error) {
	if opts.ProjectPath == "" {
		return nil, gwerrors.New(gwerrors.KindBadOptions, "projectPath is required")
	}

	cfg := session.Config{
		Model:             opts.Model,
		PermissionMode:    opts.PermissionMode,
		MaxThinkingTokens: opts.MaxThinkingTokens,
		WorkDir:           opts.ProjectPath,
	}
	sess := o.store.Create(cfg)
	_ = sess.SetState(session.StateIdle)
	sess.OnBackPressure(func(s *session.Session) {
		go func() { _ = o.Disconnect(context.Background(), s.ID()) }()
	})

	caps := session.Capabilities{
		SupportedPermissionModes: advisoryPermissionModes,
		SupportsRunInBackground:  true,
		SupportsThinkingTokens:   true,
	}
	sess.SetCapabilities(caps)

	rt := &sessionRuntime{
		sess:        sess,
		dispatcher:  reversecall.New(o.durs.ReverseCallDefaultTimeout, o.rc.MaxPendingPerSession, o.rc.IssueRatePerSecond, o.rc.IssueRateBurst),
		projectPath: opts.ProjectPath,
		sender:      opts.Sender,
	}

	if opts.ResumeSessionID != "" {
		if err := sess.SetCLISessionID(opts.ResumeSessionID); err != nil {
			return nil, err
		}
		rt.resumeRequested = true
	}

	o.mu.Lock()
	o.runtimes[sess.ID()] = rt
	o.mu.Unlock()

	cliID, _ := sess.CLISessionID()
	return &ConnectResult{
		GatewaySessionID: sess.ID(),
		CLISessionID:     cliID,
		Capabilities:     caps,
		Model:            opts.Model,
		WorkDir:          opts.ProjectPath,
	}, nil
}

// SetSender updates the reverse-call delivery function for a session,
// e.g. when a client reconnects to an already-connected session.
func (o *Orchestrator) SetSender(sessionID string, send reversecall.Sender) error {
	rt, err := o.runtime(sessionID)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	rt.sender = send
	rt.mu.Unlock()
	return nil
}

func (o *Orchestrator) runtime(sessionID string) (*sessionRuntime, error) {
	o.mu.RLock()
	rt, ok := o.runtimes[sessionID]
	o.mu.RUnlock()
	if !ok {
		return nil, gwerrors.New(gwerrors.KindNotConnected, "unknown session: "+sessionID)
	}
	return rt, nil
}

// buildArgs assembles the CLI invocation for one turn: non-interactive,
// verbose NDJSON output, optionally resuming a prior CLI session (spec
// §6; --continue is never used per SPEC_FULL.md §C.2).
func buildArgs(cfg session.Config, resumeCLISessionID string) []string {
	args := []string{"--print", "--output-format", "stream-json", "--verbose"}
	if resumeCLISessionID != "" {
		args = append(args, "--resume", resumeCLISessionID)
	}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if cfg.PermissionMode != "" {
		args = append(args, "--permission-mode", cfg.PermissionMode)
	}
	if cfg.MaxThinkingTokens > 0 {
		args = append(args, "--max-thinking-tokens", strconv.Itoa(cfg.MaxThinkingTokens))
	}
	return args
}

// Query requires state=Idle, spawns a fresh child for this turn, and
// returns a channel of decoded Events (spec §4.3 `query`). The channel
// is closed once the CLI's terminal Result record has been delivered and
// the child's stdout has reached EOF.
func (o *Orchestrator) Query(ctx context.Context, sessionID, message string) (<-chan stream.Event, error) {
	return o.startTurn(ctx, sessionID, []byte(message))
}

// QueryWithContent is Query's typed-content-block variant (spec §4.3
// `queryWithContent`): the blocks are marshaled into the same stdin
// payload the CLI expects for a user turn.
func (o *Orchestrator) QueryWithContent(ctx context.Context, sessionID string, blocks []stream.ContentBlock) (<-chan stream.Event, error) {
	payload, err := json.Marshal(struct {
		Type    string                `json:"type"`
		Content []stream.ContentBlock `json:"content"`
	}{Type: "user", Content: blocks})
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindBadPayload, "encode content blocks", err)
	}
	return o.startTurn(ctx, sessionID, payload)
}

func (o *Orchestrator) startTurn(ctx context.Context, sessionID string, stdin []byte) (<-chan stream.Event, error) {
	rt, err := o.runtime(sessionID)
	if err != nil {
		return nil, err
	}
	sess := rt.sess

	if err := sess.SetState(session.StateStreaming); err != nil {
		return nil, err
	}

	cliSessionID, _ := sess.CLISessionID()
	args := buildArgs(sess.Config(), cliSessionID)

	p, err := process.Spawn(ctx, process.Options{
		Path:        o.cli.Path,
		Args:        args,
		WorkDir:     sess.Config().WorkDir,
		ExtraEnv:    o.cli.ExtraEnv,
		Stdin:       stdin,
		GracePeriod: o.durs.CLIGracePeriod,
		OnStderrLine: func(line string) {
			if ev, ok := stream.ClassifyStderrLine(line); ok {
				o.handleEvent(ctx, rt, ev)
			}
		},
	})
	if err != nil {
		_ = sess.SetState(session.StateIdle)
		return nil, err
	}
	if err := sess.AttachProcess(p); err != nil {
		_ = sess.SetState(session.StateIdle)
		return nil, err
	}

	sub := sess.Subscribe()
	rt.mu.Lock()
	rt.activeSub = sub
	rt.mu.Unlock()

	sess.NextTurn()

	go o.runTurn(ctx, rt, p, sub)

	return sub, nil
}

// runTurn drives one child's lifetime: parses its stdout into events,
// publishes each to the session's subscribers, reacts to system:init
// (binding the CLI session id and capabilities) and control_request
// (issuing a reverse call), then resolves the session's state once the
// child has fully exited.
func (o *Orchestrator) runTurn(ctx context.Context, rt *sessionRuntime, p *process.Process, sub chan stream.Event) {
	sess := rt.sess
	parser := stream.New(o.log)

	err := parser.Run(p.Stdout(), func(ev stream.Event) {
		o.handleEvent(ctx, rt, ev)
	})
	if err != nil {
		o.log.Warn().Err(err).Str("session", sess.ID()).Msg("stream parser returned an error")
	}

	<-p.Done()
	sess.DetachProcess()

	if p.ExitCode() != 0 && sess.State() != session.StateClosed {
		crashErr := gwerrors.Crashed(p.ExitCode(), p.StderrTail())
		rt.appendTurnLog(stream.Event{
			Kind:       stream.KindUnknown,
			IsError:    true,
			Errors:     []string{crashErr.Error()},
			ReceivedAt: time.Now(),
		})
	}

	if sess.State() != session.StateClosed {
		_ = sess.SetState(session.StateIdle)
	}
	sess.Unsubscribe(sub)
}

func (o *Orchestrator) handleEvent(ctx context.Context, rt *sessionRuntime, ev stream.Event) {
	sess := rt.sess

	switch ev.Kind {
	case stream.KindSystemInit:
		if ev.SessionID != "" {
			_ = sess.SetCLISessionID(ev.SessionID)
		}
		sess.SetCapabilities(session.Capabilities{
			SupportedPermissionModes: advisoryPermissionModes,
			SupportsRunInBackground:  true,
			SupportsThinkingTokens:   true,
			SlashCommands:            ev.SlashCommands,
			Skills:                   ev.Skills,
		})
	case stream.KindControlRequest:
		go o.handleControlRequest(ctx, rt, ev)
	}

	rt.appendTurnLog(ev)
	sess.Publish(ev)
}

// handleControlRequest turns a CLI control_request into a reverse call
// toward the connected client. The CLI child for this turn has already
// had its stdin closed (spec §4.1's post-spawn invariant), so the
// decision is not written back into that child. The client's answer is
// only awaited and then discarded: it is not applied to the session's
// config or permission mode, so later turns are unaffected by it.
func (o *Orchestrator) handleControlRequest(ctx context.Context, rt *sessionRuntime, ev stream.Event) {
	rt.mu.Lock()
	send := rt.sender
	rt.mu.Unlock()
	if send == nil {
		o.log.Warn().Str("session", rt.sess.ID()).Msg("control_request with no reverse-call sender registered")
		return
	}

	method := classifyControlMethod(ev.Request)
	_, err := rt.dispatcher.Issue(ctx, method, ev.Request, 0, send)
	if err != nil {
		o.log.Debug().Err(err).Str("session", rt.sess.ID()).Str("method", string(method)).Msg("reverse call did not complete")
	}
}

type controlRequestParams struct {
	Subtype string `json:"subtype"`
}

func classifyControlMethod(raw json.RawMessage) reversecall.Method {
	var p controlRequestParams
	if json.Unmarshal(raw, &p) == nil {
		switch p.Subtype {
		case "user_question":
			return reversecall.MethodAskUserQuestion
		case "can_use_tool":
			return reversecall.MethodRequestPermission
		}
	}
	return reversecall.MethodRequestPermission
}

// ResolveReverseCall delivers a client's response to a pending reverse
// call (transport-layer entry point for `client.call` response frames).
func (o *Orchestrator) ResolveReverseCall(sessionID, callID string, payload json.RawMessage, callErr error) error {
	rt, err := o.runtime(sessionID)
	if err != nil {
		return err
	}
	return rt.dispatcher.Resolve(callID, payload, callErr)
}

func (rt *sessionRuntime) appendTurnLog(ev stream.Event) {
	rt.mu.Lock()
	rt.turnLog = append(rt.turnLog, ev)
	rt.mu.Unlock()
}

// Interrupt requires state=Streaming and gracefully terminates the
// current child (spec §4.3 `interrupt`); idempotent while already
// Interrupting (spec §8). The stream itself is not closed here — it
// keeps delivering events until the child's stdout reaches EOF.
func (o *Orchestrator) Interrupt(ctx context.Context, sessionID string) (string, error) {
	rt, err := o.runtime(sessionID)
	if err != nil {
		return "", err
	}
	sess := rt.sess

	switch sess.State() {
	case session.StateInterrupting:
		return "interrupting", nil
	case session.StateStreaming:
	default:
		return "", gwerrors.New(gwerrors.KindWrongState, "interrupt requires an active stream")
	}

	if err := sess.SetState(session.StateInterrupting); err != nil {
		return "", err
	}

	if p := sess.Process(); p != nil {
		go func() { _ = p.Terminate(ctx) }()
	}
	return "interrupting", nil
}

// RunInBackground detaches the current turn's subscriber: the child
// keeps running to completion, but the calling client's stream ends
// immediately (spec §4.3 `runInBackground`). A closed channel with no
// terminal Result event is this package's "Detached" completion signal.
func (o *Orchestrator) RunInBackground(sessionID string) error {
	rt, err := o.runtime(sessionID)
	if err != nil {
		return err
	}
	if !rt.sess.Capabilities().SupportsRunInBackground {
		return gwerrors.New(gwerrors.KindUnsupportedCapability, "session does not support runInBackground")
	}

	rt.mu.Lock()
	sub := rt.activeSub
	rt.activeSub = nil
	rt.mu.Unlock()

	if sub != nil {
		rt.sess.Unsubscribe(sub)
	}
	return nil
}

// SetModel applies a new model selection, effective on the next turn
// (spec §4.3 `setModel`).
func (o *Orchestrator) SetModel(sessionID, model string) error {
	rt, err := o.runtime(sessionID)
	if err != nil {
		return err
	}
	if model == "" {
		return gwerrors.New(gwerrors.KindBadOptions, "model must not be empty")
	}
	rt.sess.UpdateConfig(func(c *session.Config) { c.Model = model })
	return nil
}

// SetPermissionMode validates mode against the session's authoritative
// supportedPermissionModes and applies it on the next turn (spec §4.3
// `setPermissionMode`).
func (o *Orchestrator) SetPermissionMode(sessionID, mode string) error {
	rt, err := o.runtime(sessionID)
	if err != nil {
		return err
	}
	caps := rt.sess.Capabilities()
	if len(caps.SupportedPermissionModes) > 0 && !contains(caps.SupportedPermissionModes, mode) {
		return gwerrors.New(gwerrors.KindUnsupportedCapability, fmt.Sprintf("permission mode %q is not supported by this session", mode))
	}
	rt.sess.UpdateConfig(func(c *session.Config) { c.PermissionMode = mode })
	return nil
}

// SetMaxThinkingTokens sets (or, with n<=0, clears) a thinking-token cap
// applied on the next turn (spec §4.3 `setMaxThinkingTokens`).
func (o *Orchestrator) SetMaxThinkingTokens(sessionID string, n int) error {
	rt, err := o.runtime(sessionID)
	if err != nil {
		return err
	}
	if !rt.sess.Capabilities().SupportsThinkingTokens && n > 0 {
		return gwerrors.New(gwerrors.KindUnsupportedCapability, "session does not support thinking tokens")
	}
	if n < 0 {
		n = 0
	}
	rt.sess.UpdateConfig(func(c *session.Config) { c.MaxThinkingTokens = n })
	return nil
}

// Disconnect transitions the session to Closed, terminates any live
// child, fails every pending reverse call, drains subscribers, and
// removes the session from the store. Idempotent (spec §4.3
// `disconnect`, spec §8).
func (o *Orchestrator) Disconnect(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	rt, ok := o.runtimes[sessionID]
	if ok {
		delete(o.runtimes, sessionID)
	}
	o.mu.Unlock()
	if !ok {
		return nil
	}
	sess := rt.sess

	if p := sess.Process(); p != nil {
		_ = p.Terminate(ctx)
	}
	rt.dispatcher.CloseAll(gwerrors.New(gwerrors.KindSessionClosed, "session disconnected"))
	sess.Close()

	if err := o.store.Remove(sess.ID()); err != nil && !gwerrors.Is(err, gwerrors.KindNotConnected) {
		return err
	}
	return nil
}

// GetHistory returns every event recorded so far in the session's
// in-memory turn log (spec §4.3 `getHistory`, distinct from the on-disk
// `loadHistory`).
func (o *Orchestrator) GetHistory(sessionID string) ([]stream.Event, error) {
	rt, err := o.runtime(sessionID)
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]stream.Event, len(rt.turnLog))
	copy(out, rt.turnLog)
	return out, nil
}

// LoadHistory pages the on-disk, cross-file-linked history for a project
// (spec §4.3 `loadHistory`, spec §4.4). total is the merged record count
// across every linked file, re-derived on every call.
func (o *Orchestrator) LoadHistory(projectPath string, offset, limit int) (page []history.Record, nextCursor int, hasMore bool, total int, err error) {
	return o.history.GetHistory(projectPath, offset, limit)
}

// GetHistoryMetadata reports the on-disk history's size for a project
// (spec §4.3 `getHistoryMetadata`).
func (o *Orchestrator) GetHistoryMetadata(projectPath string) (history.Metadata, error) {
	return o.history.GetHistoryMetadata(projectPath)
}

// GetHistorySessions lists discovered on-disk sessions for a project
// (spec §4.3 `getHistorySessions`).
func (o *Orchestrator) GetHistorySessions(projectPath string) ([]history.SessionSummary, error) {
	return o.history.GetHistorySessions(projectPath)
}

// TruncateHistory rewrites a project's on-disk session file to drop
// messageUUID and every record from it onward (spec §4.3
// `truncateHistory`), returning the file's remaining line count.
func (o *Orchestrator) TruncateHistory(projectPath, sessionID, messageUUID string) (int, error) {
	return o.history.TruncateHistory(projectPath, sessionID, messageUUID)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
