// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"time"

	"github.com/wingedpig/sessiongate/internal/history"
	"github.com/wingedpig/sessiongate/internal/session"
	"github.com/wingedpig/sessiongate/internal/stream"
)

// The wire* types are the JSON payload shapes carried inside rpc.Frame
// payloads for each route (spec §4.3). They exist because the domain
// types (session.Capabilities, stream.Event, history.Record, ...) are
// shaped for in-process use, not for a stable wire contract.

type wireConnectRequest struct {
	ProjectPath       string `json:"projectPath"`
	ResumeSessionID   string `json:"resumeSessionId,omitempty"`
	Model             string `json:"model,omitempty"`
	PermissionMode    string `json:"permissionMode,omitempty"`
	MaxThinkingTokens int    `json:"maxThinkingTokens,omitempty"`
}

type wireCapabilities struct {
	SupportedPermissionModes []string `json:"supportedPermissionModes"`
	SupportsRunInBackground  bool     `json:"supportsRunInBackground"`
	SupportsThinkingTokens   bool     `json:"supportsThinkingTokens"`
	SlashCommands            []string `json:"slashCommands,omitempty"`
	Skills                   []string `json:"skills,omitempty"`
}

func toWireCapabilities(c session.Capabilities) wireCapabilities {
	return wireCapabilities{
		SupportedPermissionModes: c.SupportedPermissionModes,
		SupportsRunInBackground:  c.SupportsRunInBackground,
		SupportsThinkingTokens:   c.SupportsThinkingTokens,
		SlashCommands:            c.SlashCommands,
		Skills:                   c.Skills,
	}
}

type wireConnectResponse struct {
	SessionID    string           `json:"sessionId,omitempty"`
	Capabilities wireCapabilities `json:"capabilities"`
	Model        string           `json:"model"`
	CWD          string           `json:"cwd"`
}

type wireQueryRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type wireQueryWithContentRequest struct {
	SessionID string                `json:"sessionId"`
	Blocks    []stream.ContentBlock `json:"blocks"`
}

type wireSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type wireEvent struct {
	ID                string                    `json:"id"`
	Kind              stream.Kind               `json:"kind"`
	SessionID         string                    `json:"sessionId,omitempty"`
	Role              string                    `json:"role,omitempty"`
	Text              string                    `json:"text,omitempty"`
	ToolUse           *stream.ContentBlock      `json:"toolUse,omitempty"`
	Result            string                    `json:"result,omitempty"`
	IsError           bool                      `json:"isError,omitempty"`
	Errors            []string                  `json:"errors,omitempty"`
	PermissionDenials []stream.PermissionDenial `json:"permissionDenials,omitempty"`
	SlashCommands     []string                  `json:"slashCommands,omitempty"`
	Skills            []string                  `json:"skills,omitempty"`
	Status            string                    `json:"status,omitempty"`
	RequestID         string                    `json:"requestId,omitempty"`
	ReceivedAt        time.Time                 `json:"receivedAt"`
}

func toWireEvent(ev stream.Event) wireEvent {
	return wireEvent{
		ID:                ev.ID,
		Kind:              ev.Kind,
		SessionID:         ev.SessionID,
		Role:              ev.Role,
		Text:              ev.Text,
		ToolUse:           ev.ToolUse,
		Result:            ev.Result,
		IsError:           ev.IsError,
		Errors:            ev.Errors,
		PermissionDenials: ev.PermissionDenials,
		SlashCommands:     ev.SlashCommands,
		Skills:            ev.Skills,
		Status:            ev.Status,
		RequestID:         ev.RequestID,
		ReceivedAt:        ev.ReceivedAt,
	}
}

type wireInterruptResponse struct {
	Status string `json:"status"`
}

type wireSetModelRequest struct {
	SessionID string `json:"sessionId"`
	Model     string `json:"model"`
}

type wireSetPermissionModeRequest struct {
	SessionID string `json:"sessionId"`
	Mode      string `json:"mode"`
}

type wireSetMaxThinkingTokensRequest struct {
	SessionID         string `json:"sessionId"`
	MaxThinkingTokens int    `json:"maxThinkingTokens"`
}

type wireGetHistoryResponse struct {
	Events []wireEvent `json:"events"`
}

type wireLoadHistoryRequest struct {
	ProjectPath string `json:"projectPath"`
	Offset      int    `json:"offset"`
	Limit       int    `json:"limit"`
}

type wireRecord struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	UUID      string `json:"uuid"`
	CWD       string `json:"cwd,omitempty"`
	Timestamp string `json:"timestamp"`
}

func toWireRecord(r history.Record) wireRecord {
	return wireRecord{Type: r.Type, SessionID: r.SessionID, UUID: r.UUID, CWD: r.CWD, Timestamp: r.Timestamp}
}

type wireLoadHistoryResponse struct {
	Records []wireRecord `json:"records"`
	// Count is the number of records in this page; AvailableCount is the
	// merged total across every linked file, re-derived on each call so a
	// compaction mid-paging is detected rather than served stale (spec
	// §8 boundary: offset >= totalLines returns {count:0,
	// availableCount:totalLines}).
	Count          int  `json:"count"`
	AvailableCount int  `json:"availableCount"`
	NextCursor     int  `json:"nextCursor"`
	HasMore        bool `json:"hasMore"`
}

type wireGetHistoryMetadataRequest struct {
	ProjectPath string `json:"projectPath"`
}

type wireGetHistoryMetadataResponse struct {
	TotalLines     int       `json:"totalLines"`
	SessionCount   int       `json:"sessionCount"`
	ProjectPath    string    `json:"projectPath"`
	LatestActivity time.Time `json:"latestActivity"`
}

type wireGetHistorySessionsRequest struct {
	ProjectPath string `json:"projectPath"`
	MaxResults  int    `json:"maxResults"`
	Offset      int    `json:"offset"`
}

type wireSessionSummary struct {
	SessionID string    `json:"sessionId"`
	ModTime   time.Time `json:"modTime"`
	Size      int64     `json:"size"`
}

type wireGetHistorySessionsResponse struct {
	Sessions []wireSessionSummary `json:"sessions"`
}

type wireTruncateHistoryRequest struct {
	SessionID   string `json:"sessionId"`
	MessageUUID string `json:"messageUuid"`
	ProjectPath string `json:"projectPath"`
}

type wireTruncateHistoryResponse struct {
	Success        bool `json:"success"`
	RemainingLines int  `json:"remainingLines"`
}

// wireReverseCall is the outbound client.call payload shape (spec
// §4.5/§4.6): a reverse call issued to the client, identified by CallID
// on the enclosing Frame.
type wireReverseCall struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

// wireReverseCallResolution is the inbound client.call payload shape: the
// client's answer to a reverse call, also identified by the enclosing
// Frame's CallID.
type wireReverseCallResolution struct {
	SessionID string `json:"sessionId"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}
