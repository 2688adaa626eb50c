// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wingedpig/sessiongate/internal/gwerrors"
	"github.com/wingedpig/sessiongate/internal/process"
	"github.com/wingedpig/sessiongate/internal/stream"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewSessionStartsConnecting(t *testing.T) {
	s := New("s1", Config{Model: "claude-opus"})
	assert.Equal(t, StateConnecting, s.State())
	assert.Equal(t, "s1", s.ID())
}

func TestSetCLISessionIDOnce(t *testing.T) {
	s := New("s1", Config{})
	require.NoError(t, s.SetCLISessionID("cli-1"))
	id, ok := s.CLISessionID()
	assert.True(t, ok)
	assert.Equal(t, "cli-1", id)

	// Setting the same value again is idempotent.
	require.NoError(t, s.SetCLISessionID("cli-1"))

	// Setting a different value is rejected.
	err := s.SetCLISessionID("cli-2")
	assert.Error(t, err)
	assert.Equal(t, gwerrors.KindInternal, gwerrors.KindOf(err))
}

func TestSetStateRejectsAfterClose(t *testing.T) {
	s := New("s1", Config{})
	s.Close()
	err := s.SetState(StateIdle)
	assert.True(t, gwerrors.Is(err, gwerrors.KindSessionClosed))
}

func TestSetStateRejectsDirectCloseTransition(t *testing.T) {
	s := New("s1", Config{})
	err := s.SetState(StateClosed)
	assert.Error(t, err)
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	s := New("s1", Config{})
	ch := s.Subscribe()

	s.Publish(stream.Event{Kind: stream.KindResultSuccess})

	ev := <-ch
	assert.Equal(t, stream.KindResultSuccess, ev.Kind)

	s.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after Unsubscribe")
}

func TestPublishTriggersBackPressureWithoutBlocking(t *testing.T) {
	s := New("s1", Config{})
	triggered := make(chan struct{}, 1)
	s.OnBackPressure(func(*Session) {
		select {
		case triggered <- struct{}{}:
		default:
		}
	})

	ch := s.Subscribe()
	// Fill the subscriber's buffer without draining it.
	for i := 0; i < subscriberBuffer+1; i++ {
		s.Publish(stream.Event{Kind: stream.KindAssistantText})
	}

	select {
	case <-triggered:
	default:
		t.Fatal("expected back-pressure callback to fire once subscriber buffer overflowed")
	}

	// Drain so the goroutine-less channel doesn't block test cleanup.
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func TestCloseDrainsSubscribersBeforeRemoval(t *testing.T) {
	s := New("s1", Config{})
	ch := s.Subscribe()

	s.Close()

	_, ok := <-ch
	assert.False(t, ok)
	assert.True(t, s.Closed())
	assert.Equal(t, StateClosed, s.State())
}

func TestAttachProcessRejectsSecondLiveChild(t *testing.T) {
	s := New("s1", Config{})

	p1, err := process.Spawn(context.Background(), process.Options{
		Path: "sh",
		Args: []string{"-c", "sleep 60"},
	})
	require.NoError(t, err)
	defer p1.Terminate(context.Background())

	require.NoError(t, s.AttachProcess(p1))

	p2, err := process.Spawn(context.Background(), process.Options{
		Path: "sh",
		Args: []string{"-c", "sleep 60"},
	})
	require.NoError(t, err)
	defer p2.Terminate(context.Background())

	err = s.AttachProcess(p2)
	assert.True(t, gwerrors.Is(err, gwerrors.KindWrongState))
}

func TestNextTurnIncrements(t *testing.T) {
	s := New("s1", Config{})
	assert.Equal(t, 1, s.NextTurn())
	assert.Equal(t, 2, s.NextTurn())
	assert.Equal(t, 3, s.NextTurn())
}
