// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package gwerrors defines the gateway's closed error taxonomy.
//
// Every error the gateway surfaces to an RPC caller is one of the Kinds
// below. Internal bugs are logged with full context and reduced to
// KindInternal on the wire — no stack trace ever leaves the process in a
// non-debug build.
package gwerrors

import (
	"errors"
	"fmt"
)

// Kind is a stable, closed error classification (spec §7).
type Kind string

const (
	KindCliNotFound             Kind = "CliNotFound"
	KindCliSpawnFailed          Kind = "CliSpawnFailed"
	KindCliCrashed              Kind = "CliCrashed"
	KindBadOptions              Kind = "BadOptions"
	KindUnsupportedCapability   Kind = "UnsupportedCapability"
	KindUnknownRoute            Kind = "UnknownRoute"
	KindBadPayload              Kind = "BadPayload"
	KindNotConnected            Kind = "NotConnected"
	KindWrongState              Kind = "WrongState"
	KindDuplicateSession        Kind = "DuplicateSession"
	KindReverseCallTimeout      Kind = "ReverseCallTimeout"
	KindSessionClosed           Kind = "SessionClosed"
	KindHistoryFileNotFound     Kind = "HistoryFileNotFound"
	KindHistoryUUIDNotFound     Kind = "HistoryUuidNotFound"
	KindHistoryCompactedDuring  Kind = "HistoryCompactedDuringRead"
	KindTransportDisconnected   Kind = "TransportDisconnected"
	KindCancelled               Kind = "Cancelled"
	KindOverloaded              Kind = "Overloaded"
	KindInternal                Kind = "Internal"
)

// Error is the gateway's wire-facing error type.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// ExitCode, ExitCode stderr tail etc. for CliCrashed only.
	ExitCode   int
	StderrTail string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Code returns the stable short code placed on the wire.
func (e *Error) Code() string { return string(e.Kind) }

// New constructs an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error wrapping cause, following the teacher's
// fmt.Errorf("...: %w", err) convention but preserving the Kind for
// wire serialization instead of losing it in a flattened string.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Crashed builds a CliCrashed error carrying the exit code and a
// bounded tail of captured stderr for diagnostics.
func Crashed(exitCode int, stderrTail string) *Error {
	const maxTail = 4096
	if len(stderrTail) > maxTail {
		stderrTail = stderrTail[len(stderrTail)-maxTail:]
	}
	return &Error{
		Kind:       KindCliCrashed,
		Message:    fmt.Sprintf("cli exited with code %d", exitCode),
		ExitCode:   exitCode,
		StderrTail: stderrTail,
	}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error, otherwise returns KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is a gateway error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
