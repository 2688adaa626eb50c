// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/sessiongate/internal/gwerrors"
)

func TestStoreCreateGetRemove(t *testing.T) {
	st := NewStore()
	s := st.Create(Config{Model: "claude-opus"})
	require.NotEmpty(t, s.ID())

	got, ok := st.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)

	assert.Equal(t, 1, st.Count())

	s.Close()
	require.NoError(t, st.Remove(s.ID()))
	assert.Equal(t, 0, st.Count())

	_, ok = st.Get(s.ID())
	assert.False(t, ok)
}

func TestStoreRemoveRejectsUnclosedSession(t *testing.T) {
	st := NewStore()
	s := st.Create(Config{})

	err := st.Remove(s.ID())
	assert.True(t, gwerrors.Is(err, gwerrors.KindWrongState))
	assert.Equal(t, 1, st.Count())
}

func TestStoreRemoveUnknownSession(t *testing.T) {
	st := NewStore()
	err := st.Remove("does-not-exist")
	assert.True(t, gwerrors.Is(err, gwerrors.KindNotConnected))
}

func TestStoreListReturnsAllSessions(t *testing.T) {
	st := NewStore()
	st.Create(Config{})
	st.Create(Config{})
	assert.Len(t, st.List(), 2)
}
