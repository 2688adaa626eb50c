// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/sessiongate/internal/gwerrors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{Route: RouteQuery, CallID: "call-1", Payload: []byte(`{"message":"hi"}`)}

	b, err := Encode(f)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestEncodeDecodeEmptyCallIDAndPayload(t *testing.T) {
	f := Frame{Route: RouteDisconnect}

	b, err := Encode(f)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestEncodeRejectsOversizedRoute(t *testing.T) {
	_, err := Encode(Frame{Route: strings.Repeat("x", 256)})
	assert.True(t, gwerrors.Is(err, gwerrors.KindBadPayload))
}

func TestEncodeRejectsOversizedCallID(t *testing.T) {
	_, err := Encode(Frame{Route: RouteQuery, CallID: strings.Repeat("x", 256)})
	assert.True(t, gwerrors.Is(err, gwerrors.KindBadPayload))
}

func TestDecodeRejectsTruncatedFrame(t *testing.T) {
	_, err := Decode([]byte{5, 'a', 'g'})
	assert.True(t, gwerrors.Is(err, gwerrors.KindBadPayload))
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	f := Frame{Route: RouteQuery, Payload: []byte("0123456789")}
	b, err := Encode(f)
	require.NoError(t, err)

	_, err = Decode(b[:len(b)-3])
	assert.True(t, gwerrors.Is(err, gwerrors.KindBadPayload))
}

func TestDecodeRejectsEmptyInput(t *testing.T) {
	_, err := Decode(nil)
	assert.True(t, gwerrors.Is(err, gwerrors.KindBadPayload))
}
