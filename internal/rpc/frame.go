// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package rpc implements the Frame Codec & RPC Router (spec §4.5): a
// transport-agnostic wire frame (route + optional callId + payload) and a
// static route table that classifies each route as request/response,
// request/stream, or fire-and-forget.
package rpc

import (
	"encoding/binary"

	"github.com/wingedpig/sessiongate/internal/gwerrors"
)

// maxNameLen bounds the route and callId strings to what a single byte
// length prefix can carry (spec §4.5: "length-prefixed UTF-8 string
// (≤ 255 bytes)").
const maxNameLen = 255

// Frame is the wire-level unit exchanged over the transport's duplex byte
// stream. Payload is opaque to the codec; its shape is defined per route.
type Frame struct {
	Route   string
	CallID  string // empty for routes that don't correlate a response
	Payload []byte
}

// Encode serializes f as: 1-byte route length + route bytes, 1-byte
// callId length + callId bytes, 4-byte big-endian payload length +
// payload bytes.
func Encode(f Frame) ([]byte, error) {
	if len(f.Route) > maxNameLen {
		return nil, gwerrors.New(gwerrors.KindBadPayload, "route exceeds 255 bytes")
	}
	if len(f.CallID) > maxNameLen {
		return nil, gwerrors.New(gwerrors.KindBadPayload, "callId exceeds 255 bytes")
	}

	buf := make([]byte, 0, 1+len(f.Route)+1+len(f.CallID)+4+len(f.Payload))
	buf = append(buf, byte(len(f.Route)))
	buf = append(buf, f.Route...)
	buf = append(buf, byte(len(f.CallID)))
	buf = append(buf, f.CallID...)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f.Payload)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, f.Payload...)
	return buf, nil
}

// Decode parses a frame previously produced by Encode. It copies the
// payload out of b so the caller may reuse or discard the input buffer.
func Decode(b []byte) (Frame, error) {
	route, b, err := readPrefixed(b)
	if err != nil {
		return Frame{}, err
	}
	callID, b, err := readPrefixed(b)
	if err != nil {
		return Frame{}, err
	}
	if len(b) < 4 {
		return Frame{}, gwerrors.New(gwerrors.KindBadPayload, "frame truncated before payload length")
	}
	plen := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if uint64(len(b)) < uint64(plen) {
		return Frame{}, gwerrors.New(gwerrors.KindBadPayload, "frame truncated payload")
	}
	payload := make([]byte, plen)
	copy(payload, b[:plen])

	return Frame{Route: route, CallID: callID, Payload: payload}, nil
}

func readPrefixed(b []byte) (string, []byte, error) {
	if len(b) < 1 {
		return "", nil, gwerrors.New(gwerrors.KindBadPayload, "frame truncated before length prefix")
	}
	n := int(b[0])
	b = b[1:]
	if len(b) < n {
		return "", nil, gwerrors.New(gwerrors.KindBadPayload, "frame truncated prefixed field")
	}
	return string(b[:n]), b[n:], nil
}
