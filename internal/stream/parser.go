// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StderrInterruptMarker is the substring the CLI writes to stderr when a
// query is interrupted; such lines are reclassified as an in-band status
// event rather than treated as crash noise (spec §4.2).
const StderrInterruptMarker = "interrupted by user"

// ClassifyStderrLine reports whether a stderr line should be surfaced as
// an in-band KindSystemStatus event instead of being folded into the
// crash tail.
func ClassifyStderrLine(line string) (Event, bool) {
	if !strings.Contains(line, StderrInterruptMarker) {
		return Event{}, false
	}
	return Event{
		Kind:       KindSystemStatus,
		Status:     line,
		ReceivedAt: time.Now(),
	}, true
}

// maxLineSize bounds a single NDJSON line at 16MiB (spec §4.2): a tool
// result embedding a large file read can legitimately be this big.
const maxLineSize = 16 * 1024 * 1024

// Parser turns a CLI child's stdout into a sequence of Events.
type Parser struct {
	log zerolog.Logger
}

// New constructs a Parser that logs unparseable lines under the given
// component logger.
func New(log zerolog.Logger) *Parser {
	return &Parser{log: log.With().Str("component", "stream").Logger()}
}

// Run scans r line by line until EOF or a read error, invoking emit for
// every Event produced. It takes no context; it stops only when r does.
// Run returns nil on a clean EOF.
func (p *Parser) Run(r io.Reader, emit func(Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scrubANSI(scanner.Bytes())
		if len(trimSpace(line)) == 0 {
			continue
		}
		for _, ev := range p.classify(line) {
			emit(ev)
		}
	}
	return scanner.Err()
}

func trimSpace(b []byte) []byte {
	i, j := 0, len(b)
	for i < j && isSpace(b[i]) {
		i++
	}
	for j > i && isSpace(b[j-1]) {
		j--
	}
	return b[i:j]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// classify turns one raw NDJSON line into one or more Events. A line
// carrying an assistant message with multiple tool_use blocks splits
// into one synthetic Event per block, each given a derived id so the
// Reverse-Call Dispatcher and History Resolver can address it
// individually (spec §4.2).
func (p *Parser) classify(line []byte) []Event {
	now := time.Now()

	var raw rawLine
	if err := json.Unmarshal(line, &raw); err != nil {
		p.log.Warn().Err(err).Bytes("line", truncateForLog(line)).Msg("unparseable stream line")
		return []Event{{
			ID:         uuid.NewString(),
			Kind:       KindUnknown,
			Raw:        json.RawMessage(line),
			ReceivedAt: now,
		}}
	}

	// lineID is the stable prefix for this line's (possibly split) event
	// ids: the record's own uuid when the CLI supplied one, so re-parsing
	// the same record always derives the same tool-call ids (spec §4.2).
	lineID := raw.UUID
	if lineID == "" {
		lineID = uuid.NewString()
	}

	base := Event{
		ID:                lineID,
		SessionID:         raw.SessionID,
		Result:            raw.Result,
		IsError:           raw.IsError,
		Errors:            raw.Errors,
		PermissionDenials: raw.PermissionDenials,
		SlashCommands:     raw.SlashCommands,
		Skills:            raw.Skills,
		Status:            raw.Status,
		RequestID:         raw.RequestID,
		Request:           raw.Request,
		Raw:               json.RawMessage(line),
		ReceivedAt:         now,
	}

	switch raw.Type {
	case "system":
		if raw.Subtype == "init" {
			base.Kind = KindSystemInit
		} else {
			base.Kind = KindSystemStatus
		}
		return []Event{base}

	case "control_request":
		base.Kind = KindControlRequest
		return []Event{base}

	case "result":
		if raw.IsError {
			base.Kind = KindResultError
		} else {
			base.Kind = KindResultSuccess
		}
		return []Event{base}

	case "stream_event":
		base.Kind = KindStreamDelta
		return []Event{base}

	case "assistant", "user":
		return p.splitMessage(raw, lineID, now)

	case "":
		// No discriminator: fall back to message.role heuristically.
		if raw.Message != nil {
			var m rawMessage
			if err := json.Unmarshal(raw.Message, &m); err == nil && m.Role != "" {
				synthetic := raw
				synthetic.Type = m.Role
				return p.splitMessage(synthetic, lineID, now)
			}
		}
		base.Kind = KindUnknown
		return []Event{base}

	default:
		base.Kind = KindUnknown
		return []Event{base}
	}
}

// splitMessage expands an assistant/user message's content blocks into
// one Event per block: each text block becomes a KindAssistantText event
// carrying the line's id, each tool_use block becomes its own
// KindAssistantTool event with a derived id, and tool_result blocks
// become KindUserToolResult events with a derived id. Other block types
// become KindUnknown events carrying the line's id.
func (p *Parser) splitMessage(raw rawLine, lineID string, now time.Time) []Event {
	role := raw.Type
	if raw.Message == nil {
		return []Event{{ID: lineID, Kind: KindUnknown, Role: role, Raw: json.RawMessage(raw.Result), ReceivedAt: now}}
	}

	var msg rawMessage
	if err := json.Unmarshal(raw.Message, &msg); err != nil {
		return []Event{{ID: lineID, Kind: KindUnknown, Role: role, ReceivedAt: now}}
	}

	if len(msg.Content) == 0 {
		return []Event{{ID: lineID, Kind: KindUnknown, Role: role, SessionID: raw.SessionID, ReceivedAt: now}}
	}

	var events []Event
	toolIndex := 0
	for _, block := range msg.Content {
		block := block
		switch block.Type {
		case "tool_use":
			events = append(events, Event{
				ID:        fmt.Sprintf("%s_tool_%d", lineID, toolIndex),
				Kind:      KindAssistantTool,
				Role:      role,
				SessionID: raw.SessionID,
				ToolUse:   &block,
				ReceivedAt: now,
			})
			toolIndex++
		case "tool_result":
			events = append(events, Event{
				ID:        fmt.Sprintf("%s_tool_%d", lineID, toolIndex),
				Kind:      KindUserToolResult,
				Role:      role,
				SessionID: raw.SessionID,
				ToolUse:   &block,
				ReceivedAt: now,
			})
			toolIndex++
		case "text":
			events = append(events, Event{
				ID:        lineID,
				Kind:      KindAssistantText,
				Role:      role,
				SessionID: raw.SessionID,
				Text:      block.Text,
				ReceivedAt: now,
			})
		default:
			events = append(events, Event{
				ID:        lineID,
				Kind:      KindUnknown,
				Role:      role,
				SessionID: raw.SessionID,
				ToolUse:   &block,
				ReceivedAt: now,
			})
		}
	}
	return events
}

func truncateForLog(b []byte) []byte {
	const max = 512
	if len(b) > max {
		return b[:max]
	}
	return b
}
