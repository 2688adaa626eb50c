// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bufio"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAllLines(t *testing.T, r io.Reader) []string {
	t.Helper()
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

func TestSpawn_StdinClosedAfterWrite(t *testing.T) {
	p, err := Spawn(context.Background(), Options{
		Path:  "sh",
		Args:  []string{"-c", "cat"},
		Stdin: []byte("hello\n"),
	})
	require.NoError(t, err)

	lines := readAllLines(t, p.Stdout())
	require.Len(t, lines, 1)
	assert.Equal(t, "hello", lines[0])

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit after stdin closed")
	}
	assert.Equal(t, StateExited, p.State())
}

func TestSpawn_NoStdinClosesImmediately(t *testing.T) {
	p, err := Spawn(context.Background(), Options{
		Path: "cat",
	})
	require.NoError(t, err)

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("process with no stdin payload should exit once stdin is closed")
	}
	assert.Equal(t, 0, p.ExitCode())
}

func TestSpawn_CliNotFound(t *testing.T) {
	_, err := Spawn(context.Background(), Options{Path: "definitely-not-a-real-binary-xyz"})
	assert.Error(t, err)
}

func TestTerminate_Graceful(t *testing.T) {
	p, err := Spawn(context.Background(), Options{
		Path:        "sh",
		Args:        []string{"-c", "trap 'exit 0' TERM; sleep 60"},
		GracePeriod: 2 * time.Second,
	})
	require.NoError(t, err)

	go io.Copy(io.Discard, p.Stdout())
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	require.NoError(t, p.Terminate(context.Background()))
	elapsed := time.Since(start)

	assert.Equal(t, StateExited, p.State())
	assert.Less(t, elapsed, 2*time.Second, "should exit promptly once the child handles SIGTERM")
}

func TestTerminate_EscalatesToForceful(t *testing.T) {
	p, err := Spawn(context.Background(), Options{
		Path:        "sh",
		Args:        []string{"-c", "trap '' TERM; sleep 60"},
		GracePeriod: 150 * time.Millisecond,
	})
	require.NoError(t, err)

	go io.Copy(io.Discard, p.Stdout())
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	require.NoError(t, p.Terminate(context.Background()))
	elapsed := time.Since(start)

	assert.Equal(t, StateExited, p.State())
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
}

func TestOnStderrLine_InvokedPerLineAndStderrTailAccumulates(t *testing.T) {
	var mu sync.Mutex
	var lines []string

	p, err := Spawn(context.Background(), Options{
		Path: "sh",
		Args: []string{"-c", "echo one 1>&2; echo two 1>&2"},
		OnStderrLine: func(line string) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	go io.Copy(io.Discard, p.Stdout())

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one", "two"}, lines)
	assert.Contains(t, p.StderrTail(), "one")
	assert.Contains(t, p.StderrTail(), "two")
}

func TestOnExit_CrashClassification(t *testing.T) {
	done := make(chan struct{})
	var gotCode int
	var gotCrashed bool

	p, err := Spawn(context.Background(), Options{
		Path: "sh",
		Args: []string{"-c", "exit 7"},
	})
	require.NoError(t, err)
	p.OnExit(func(code int, crashed bool) {
		gotCode, gotCrashed = code, crashed
		close(done)
	})
	go io.Copy(io.Discard, p.Stdout())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onExit callback never fired")
	}
	assert.Equal(t, 7, gotCode)
	assert.True(t, gotCrashed)
}

func TestOnExit_NotCrashedWhenTerminated(t *testing.T) {
	done := make(chan struct{})
	var gotCrashed bool

	p, err := Spawn(context.Background(), Options{
		Path:        "sh",
		Args:        []string{"-c", "trap '' TERM; sleep 60"},
		GracePeriod: 150 * time.Millisecond,
	})
	require.NoError(t, err)
	p.OnExit(func(code int, crashed bool) {
		gotCrashed = crashed
		close(done)
	})
	go io.Copy(io.Discard, p.Stdout())
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, p.Terminate(context.Background()))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onExit callback never fired")
	}
	assert.False(t, gotCrashed)
}
