// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package stream parses the NDJSON stream emitted on the CLI child's
// stdout into typed, subscriber-ready events (spec §4.2).
package stream

import (
	"encoding/json"
	"time"
)

// Kind classifies a parsed Event for RPC streaming and history storage.
type Kind string

const (
	KindSystemInit    Kind = "system.init"
	KindSystemStatus  Kind = "system.status"
	KindAssistantText Kind = "assistant.text"
	KindAssistantTool Kind = "assistant.tool_use"
	KindUserToolResult Kind = "user.tool_result"
	KindResultSuccess Kind = "result.success"
	KindResultError   Kind = "result.error"
	KindControlRequest Kind = "control_request"
	KindStreamDelta   Kind = "stream_delta"
	KindUnknown       Kind = "unknown"
)

// ContentBlock mirrors a single content block of an assistant/user
// message (text, tool_use, or tool_result).
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// PermissionDenial mirrors a denied tool_use reported in a result event.
type PermissionDenial struct {
	ToolName  string          `json:"tool_name"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
}

// rawLine is the wire shape of one NDJSON line from the CLI. Field names
// follow `claude --output-format stream-json --verbose`.
type rawLine struct {
	Type              string             `json:"type"`
	Subtype           string             `json:"subtype,omitempty"`
	UUID              string             `json:"uuid,omitempty"`
	SessionID         string             `json:"session_id,omitempty"`
	Message           json.RawMessage    `json:"message,omitempty"`
	Result            string             `json:"result,omitempty"`
	IsError           bool               `json:"is_error,omitempty"`
	Errors            []string           `json:"errors,omitempty"`
	PermissionDenials []PermissionDenial `json:"permission_denials,omitempty"`
	SlashCommands     []string           `json:"slash_commands,omitempty"`
	Skills            []string           `json:"skills,omitempty"`
	Status            string             `json:"status,omitempty"`
	RequestID         string             `json:"request_id,omitempty"`
	Request           json.RawMessage    `json:"request,omitempty"`
	Event             json.RawMessage    `json:"event,omitempty"`
}

// rawMessage is the `message` field of an assistant/user rawLine.
type rawMessage struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Event is one classified, subscriber-ready unit of the gateway's output
// stream. A single NDJSON line may fan out into several Events (one per
// tool_use content block, per spec §4.2's splitting rule).
type Event struct {
	// ID uniquely identifies this event within a turn. For a line
	// carrying N tool_use blocks, block i gets ID "<lineID>_tool_<i>".
	ID        string
	Kind      Kind
	SessionID string
	Role      string
	Text      string
	ToolUse   *ContentBlock
	Result    string
	IsError   bool
	Errors    []string
	PermissionDenials []PermissionDenial
	SlashCommands     []string
	Skills            []string
	Status    string
	RequestID string
	Request   json.RawMessage
	Raw       json.RawMessage
	ReceivedAt time.Time
}
