// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/sessiongate/internal/config"
	"github.com/wingedpig/sessiongate/internal/gwerrors"
	"github.com/wingedpig/sessiongate/internal/history"
	"github.com/wingedpig/sessiongate/internal/session"
	"github.com/wingedpig/sessiongate/internal/stream"
)

// fakeCLI writes an executable shell script that drains stdin and prints
// body to stdout, standing in for the real CLI child process.
func fakeCLI(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-cli.sh")
	script := "#!/bin/sh\ncat >/dev/null\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func newTestOrchestrator(t *testing.T, cliPath string) *Orchestrator {
	t.Helper()
	store := session.NewStore()
	resolver := history.NewResolver(history.NewCache(0, false, zerolog.Nop()), zerolog.Nop())
	cfg := config.Config{
		CLI: config.CLIConfig{Path: cliPath, GracePeriod: "150ms"},
		ReverseCall: config.ReverseCallConfig{
			DefaultTimeout:       "2s",
			MaxPendingPerSession: 10,
			IssueRatePerSecond:   50,
			IssueRateBurst:       100,
		},
	}
	return New(store, resolver, cfg, zerolog.Nop())
}

func drain(ch <-chan stream.Event, timeout time.Duration) []stream.Event {
	var events []stream.Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			return events
		}
	}
}

func TestConnectThenQuerySingleTurn(t *testing.T) {
	cli := fakeCLI(t, `
echo '{"type":"system","subtype":"init","session_id":"abc-123","slash_commands":["/help"],"skills":["read"]}'
echo '{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"hi"}]}}'
echo '{"type":"result","subtype":"ok","result":"done"}'
`)
	o := newTestOrchestrator(t, cli)

	res, err := o.Connect(context.Background(), ConnectOptions{ProjectPath: "/tmp/proj"})
	require.NoError(t, err)
	require.Equal(t, "", res.CLISessionID)

	ch, err := o.Query(context.Background(), res.GatewaySessionID, "hello")
	require.NoError(t, err)

	events := drain(ch, 2*time.Second)
	require.Len(t, events, 3)
	assert.Equal(t, stream.KindSystemInit, events[0].Kind)
	assert.Equal(t, stream.KindAssistantText, events[1].Kind)
	assert.Equal(t, "hi", events[1].Text)
	assert.Equal(t, stream.KindResultSuccess, events[2].Kind)

	hist, err := o.GetHistory(res.GatewaySessionID)
	require.NoError(t, err)
	assert.Len(t, hist, 3)

	sess, ok := o.store.Get(res.GatewaySessionID)
	require.True(t, ok)
	assert.Eventually(t, func() bool { return sess.State() == session.StateIdle }, time.Second, 10*time.Millisecond)
	cliID, set := sess.CLISessionID()
	assert.True(t, set)
	assert.Equal(t, "abc-123", cliID)
}

func TestStderrInterruptLineSurfacesAsInBandStatus(t *testing.T) {
	cli := fakeCLI(t, `
echo '{"type":"system","subtype":"init","session_id":"abc-123"}'
echo '[Request interrupted by user]' 1>&2
sleep 0.1
echo '{"type":"result","subtype":"interrupted"}'
`)
	o := newTestOrchestrator(t, cli)

	res, err := o.Connect(context.Background(), ConnectOptions{ProjectPath: "/tmp/proj"})
	require.NoError(t, err)

	ch, err := o.Query(context.Background(), res.GatewaySessionID, "hello")
	require.NoError(t, err)

	events := drain(ch, 2*time.Second)
	var gotStatus bool
	for _, ev := range events {
		if ev.Kind == stream.KindSystemStatus && strings.Contains(ev.Status, "interrupted by user") {
			gotStatus = true
		}
	}
	assert.True(t, gotStatus, "expected an in-band status event derived from the stderr interrupt notice")
}

func TestQueryRejectsWhenNotIdle(t *testing.T) {
	cli := fakeCLI(t, "sleep 2")
	o := newTestOrchestrator(t, cli)

	res, err := o.Connect(context.Background(), ConnectOptions{ProjectPath: "/tmp/proj"})
	require.NoError(t, err)

	_, err = o.Query(context.Background(), res.GatewaySessionID, "first")
	require.NoError(t, err)

	_, err = o.Query(context.Background(), res.GatewaySessionID, "second")
	assert.True(t, gwerrors.Is(err, gwerrors.KindWrongState))

	require.NoError(t, o.Disconnect(context.Background(), res.GatewaySessionID))
}

func TestInterruptRequiresStreaming(t *testing.T) {
	cli := fakeCLI(t, "true")
	o := newTestOrchestrator(t, cli)

	res, err := o.Connect(context.Background(), ConnectOptions{ProjectPath: "/tmp/proj"})
	require.NoError(t, err)

	_, err = o.Interrupt(context.Background(), res.GatewaySessionID)
	assert.True(t, gwerrors.Is(err, gwerrors.KindWrongState))
}

func TestInterruptIdempotentWhileInterrupting(t *testing.T) {
	cli := fakeCLI(t, "trap '' TERM; sleep 5")
	o := newTestOrchestrator(t, cli)

	res, err := o.Connect(context.Background(), ConnectOptions{ProjectPath: "/tmp/proj"})
	require.NoError(t, err)

	_, err = o.Query(context.Background(), res.GatewaySessionID, "go")
	require.NoError(t, err)

	status, err := o.Interrupt(context.Background(), res.GatewaySessionID)
	require.NoError(t, err)
	assert.Equal(t, "interrupting", status)

	status, err = o.Interrupt(context.Background(), res.GatewaySessionID)
	require.NoError(t, err)
	assert.Equal(t, "interrupting", status)

	require.NoError(t, o.Disconnect(context.Background(), res.GatewaySessionID))
}

func TestRunInBackgroundDetachesSubscriberButLeavesChildRunning(t *testing.T) {
	cli := fakeCLI(t, "sleep 1")
	o := newTestOrchestrator(t, cli)

	res, err := o.Connect(context.Background(), ConnectOptions{ProjectPath: "/tmp/proj"})
	require.NoError(t, err)

	ch, err := o.Query(context.Background(), res.GatewaySessionID, "go")
	require.NoError(t, err)

	require.NoError(t, o.RunInBackground(res.GatewaySessionID))

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "subscriber channel should be closed on detach")
	case <-time.After(time.Second):
		t.Fatal("expected channel to close promptly on RunInBackground")
	}

	require.NoError(t, o.Disconnect(context.Background(), res.GatewaySessionID))
}

func TestDisconnectIsIdempotent(t *testing.T) {
	cli := fakeCLI(t, "true")
	o := newTestOrchestrator(t, cli)

	res, err := o.Connect(context.Background(), ConnectOptions{ProjectPath: "/tmp/proj"})
	require.NoError(t, err)

	require.NoError(t, o.Disconnect(context.Background(), res.GatewaySessionID))
	require.NoError(t, o.Disconnect(context.Background(), res.GatewaySessionID))
}

func TestSetModelRejectsEmpty(t *testing.T) {
	o := newTestOrchestrator(t, fakeCLI(t, "true"))
	res, err := o.Connect(context.Background(), ConnectOptions{ProjectPath: "/tmp/proj"})
	require.NoError(t, err)

	err = o.SetModel(res.GatewaySessionID, "")
	assert.True(t, gwerrors.Is(err, gwerrors.KindBadOptions))

	require.NoError(t, o.SetModel(res.GatewaySessionID, "opus"))
}

func TestSetPermissionModeRejectsUnsupported(t *testing.T) {
	o := newTestOrchestrator(t, fakeCLI(t, "true"))
	res, err := o.Connect(context.Background(), ConnectOptions{ProjectPath: "/tmp/proj"})
	require.NoError(t, err)

	err = o.SetPermissionMode(res.GatewaySessionID, "not-a-real-mode")
	assert.True(t, gwerrors.Is(err, gwerrors.KindUnsupportedCapability))

	require.NoError(t, o.SetPermissionMode(res.GatewaySessionID, "acceptEdits"))
}

func TestHistoryDelegatesToResolver(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	projectPath := "/work/myapp"

	dir, err := history.ProjectDir(projectPath)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "s1.jsonl"),
		[]byte(`{"type":"user","sessionId":"s1","uuid":"a","timestamp":"2026-01-01T00:00:00Z"}`+"\n"), 0644))

	o := newTestOrchestrator(t, fakeCLI(t, "true"))

	page, next, more, total, err := o.LoadHistory(projectPath, 0, 10)
	require.NoError(t, err)
	assert.Len(t, page, 1)
	assert.Equal(t, 1, next)
	assert.False(t, more)
	assert.Equal(t, 1, total)

	meta, err := o.GetHistoryMetadata(projectPath)
	require.NoError(t, err)
	assert.Equal(t, 1, meta.RecordCount)

	sessions, err := o.GetHistorySessions(projectPath)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].SessionID)

	remaining, err := o.TruncateHistory(projectPath, "s1", "a")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}
