// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"

	"github.com/wingedpig/sessiongate/internal/gwerrors"
	"github.com/wingedpig/sessiongate/internal/metrics"
	"github.com/wingedpig/sessiongate/internal/orchestrator"
	"github.com/wingedpig/sessiongate/internal/reversecall"
	"github.com/wingedpig/sessiongate/internal/rpc"
	"github.com/wingedpig/sessiongate/internal/stream"
	"github.com/wingedpig/sessiongate/internal/transport"
)

// registerRoutes wires every spec §4.3 RPC method onto router, backed by
// orch. This is the only place that knows both the wire (JSON payload)
// shapes and the transport's per-connection Conn, so the orchestrator
// and rpc.Router stay ignorant of each other.
func (g *Gateway) registerRoutes(router *rpc.Router) {
	router.HandleRR(rpc.RouteConnect, g.handleConnect)
	router.HandleRS(rpc.RouteQuery, g.handleQuery)
	router.HandleRS(rpc.RouteQueryWithContent, g.handleQueryWithContent)
	router.HandleRR(rpc.RouteInterrupt, g.handleInterrupt)
	router.HandleRR(rpc.RouteRunInBackground, g.handleRunInBackground)
	router.HandleRR(rpc.RouteSetModel, g.handleSetModel)
	router.HandleRR(rpc.RouteSetPermissionMode, g.handleSetPermissionMode)
	router.HandleRR(rpc.RouteSetMaxThinkingTokens, g.handleSetMaxThinkingTokens)
	router.HandleRR(rpc.RouteDisconnect, g.handleDisconnect)
	router.HandleRR(rpc.RouteGetHistory, g.handleGetHistory)
	router.HandleRR(rpc.RouteLoadHistory, g.handleLoadHistory)
	router.HandleRR(rpc.RouteGetHistoryMetadata, g.handleGetHistoryMetadata)
	router.HandleRR(rpc.RouteGetHistorySessions, g.handleGetHistorySessions)
	router.HandleRR(rpc.RouteTruncateHistory, g.handleTruncateHistory)
	router.HandleFF(rpc.RouteClientCall, g.handleClientCall)
}

func (g *Gateway) handleConnect(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req wireConnectRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindBadPayload, "decode connect request", err)
	}

	conn, ok := transport.FromContext(ctx)
	if !ok {
		return nil, gwerrors.New(gwerrors.KindInternal, "connect dispatched without a transport connection")
	}

	res, err := g.orch.Connect(ctx, orchestrator.ConnectOptions{
		ProjectPath:       req.ProjectPath,
		ResumeSessionID:   req.ResumeSessionID,
		Model:             req.Model,
		PermissionMode:    req.PermissionMode,
		MaxThinkingTokens: req.MaxThinkingTokens,
		Sender:            g.reverseCallSender(conn),
	})
	if err != nil {
		metrics.SessionClosed("connect_failed")
		return nil, err
	}

	conn.Bind(res.GatewaySessionID)
	metrics.SessionConnected()

	out := wireConnectResponse{
		SessionID:    res.GatewaySessionID,
		Capabilities: toWireCapabilities(res.Capabilities),
		Model:        res.Model,
		CWD:          res.WorkDir,
	}
	return json.Marshal(out)
}

// reverseCallSender builds the reversecall.Sender used for every reverse
// call issued on behalf of sessionID: it marshals the call as a
// client.call frame and writes it to the connection that owns the
// session, bypassing rpc.Router entirely (Router only dispatches inbound
// frames).
func (g *Gateway) reverseCallSender(conn *transport.Conn) reversecall.Sender {
	return func(call reversecall.Call) error {
		payload, err := json.Marshal(wireReverseCall{Method: string(call.Method), Params: call.Payload})
		if err != nil {
			return gwerrors.Wrap(gwerrors.KindInternal, "marshal reverse call", err)
		}
		return conn.WriteFrame(rpc.Frame{Route: rpc.RouteClientCall, CallID: call.ID, Payload: payload})
	}
}

func (g *Gateway) handleQuery(ctx context.Context, payload json.RawMessage) (<-chan rpc.StreamItem, error) {
	var req wireQueryRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindBadPayload, "decode query request", err)
	}
	events, err := g.orch.Query(ctx, req.SessionID, req.Message)
	if err != nil {
		return nil, err
	}
	return streamEvents(events), nil
}

func (g *Gateway) handleQueryWithContent(ctx context.Context, payload json.RawMessage) (<-chan rpc.StreamItem, error) {
	var req wireQueryWithContentRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindBadPayload, "decode queryWithContent request", err)
	}
	events, err := g.orch.QueryWithContent(ctx, req.SessionID, req.Blocks)
	if err != nil {
		return nil, err
	}
	return streamEvents(events), nil
}

func streamEvents(events <-chan stream.Event) <-chan rpc.StreamItem {
	out := make(chan rpc.StreamItem)
	go func() {
		defer close(out)
		for ev := range events {
			metrics.Event(string(ev.Kind))
			payload, err := json.Marshal(toWireEvent(ev))
			if err != nil {
				out <- rpc.StreamItem{Err: gwerrors.Wrap(gwerrors.KindInternal, "marshal event", err)}
				continue
			}
			out <- rpc.StreamItem{Payload: payload}
		}
	}()
	return out
}

func (g *Gateway) handleInterrupt(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req wireSessionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindBadPayload, "decode interrupt request", err)
	}
	status, err := g.orch.Interrupt(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireInterruptResponse{Status: status})
}

func (g *Gateway) handleRunInBackground(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req wireSessionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindBadPayload, "decode runInBackground request", err)
	}
	if err := g.orch.RunInBackground(req.SessionID); err != nil {
		return nil, err
	}
	return json.Marshal(struct{}{})
}

func (g *Gateway) handleSetModel(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req wireSetModelRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindBadPayload, "decode setModel request", err)
	}
	if err := g.orch.SetModel(req.SessionID, req.Model); err != nil {
		return nil, err
	}
	return json.Marshal(struct{}{})
}

func (g *Gateway) handleSetPermissionMode(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req wireSetPermissionModeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindBadPayload, "decode setPermissionMode request", err)
	}
	if err := g.orch.SetPermissionMode(req.SessionID, req.Mode); err != nil {
		return nil, err
	}
	return json.Marshal(struct{}{})
}

func (g *Gateway) handleSetMaxThinkingTokens(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req wireSetMaxThinkingTokensRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindBadPayload, "decode setMaxThinkingTokens request", err)
	}
	if err := g.orch.SetMaxThinkingTokens(req.SessionID, req.MaxThinkingTokens); err != nil {
		return nil, err
	}
	return json.Marshal(struct{}{})
}

func (g *Gateway) handleDisconnect(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req wireSessionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindBadPayload, "decode disconnect request", err)
	}
	if err := g.orch.Disconnect(ctx, req.SessionID); err != nil {
		return nil, err
	}
	if conn, ok := transport.FromContext(ctx); ok {
		conn.Unbind(req.SessionID)
	}
	metrics.SessionClosed("disconnect")
	return json.Marshal(struct{}{})
}

func (g *Gateway) handleGetHistory(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req wireSessionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindBadPayload, "decode getHistory request", err)
	}
	events, err := g.orch.GetHistory(req.SessionID)
	if err != nil {
		return nil, err
	}
	out := make([]wireEvent, len(events))
	for i, ev := range events {
		out[i] = toWireEvent(ev)
	}
	return json.Marshal(wireGetHistoryResponse{Events: out})
}

func (g *Gateway) handleLoadHistory(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req wireLoadHistoryRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindBadPayload, "decode loadHistory request", err)
	}
	records, nextCursor, hasMore, total, err := g.orch.LoadHistory(req.ProjectPath, req.Offset, req.Limit)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.HistoryRead("loadHistory", outcome)
	if err != nil {
		return nil, err
	}
	wireRecords := make([]wireRecord, len(records))
	for i, r := range records {
		wireRecords[i] = toWireRecord(r)
	}
	return json.Marshal(wireLoadHistoryResponse{
		Records:        wireRecords,
		NextCursor:     nextCursor,
		HasMore:        hasMore,
		Count:          len(wireRecords),
		AvailableCount: total,
	})
}

func (g *Gateway) handleGetHistoryMetadata(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req wireGetHistoryMetadataRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindBadPayload, "decode getHistoryMetadata request", err)
	}
	meta, err := g.orch.GetHistoryMetadata(req.ProjectPath)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.HistoryRead("getHistoryMetadata", outcome)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireGetHistoryMetadataResponse{
		TotalLines:     meta.RecordCount,
		SessionCount:   meta.SessionCount,
		ProjectPath:    req.ProjectPath,
		LatestActivity: meta.LatestActivity,
	})
}

func (g *Gateway) handleGetHistorySessions(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req wireGetHistorySessionsRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindBadPayload, "decode getHistorySessions request", err)
	}
	sessions, err := g.orch.GetHistorySessions(req.ProjectPath)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.HistoryRead("getHistorySessions", outcome)
	if err != nil {
		return nil, err
	}

	start := req.Offset
	if start < 0 || start > len(sessions) {
		start = len(sessions)
	}
	end := len(sessions)
	if req.MaxResults > 0 && start+req.MaxResults < end {
		end = start + req.MaxResults
	}

	out := make([]wireSessionSummary, 0, end-start)
	for _, s := range sessions[start:end] {
		out = append(out, wireSessionSummary{SessionID: s.SessionID, ModTime: s.ModTime, Size: s.Size})
	}
	return json.Marshal(wireGetHistorySessionsResponse{Sessions: out})
}

func (g *Gateway) handleTruncateHistory(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req wireTruncateHistoryRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindBadPayload, "decode truncateHistory request", err)
	}
	remaining, err := g.orch.TruncateHistory(req.ProjectPath, req.SessionID, req.MessageUUID)
	if err != nil {
		metrics.HistoryRead("truncateHistory", "error")
		return nil, err
	}
	metrics.HistoryRead("truncateHistory", "ok")

	return json.Marshal(wireTruncateHistoryResponse{Success: true, RemainingLines: remaining})
}

// handleClientCall is the inbound half of the client.call route: the
// client resolving a reverse call the gateway previously issued (spec
// §4.5/§4.6). The reply never carries a frame of its own, so this is a
// fire-and-forget handler; the result reaches the waiting Issue call via
// Orchestrator.ResolveReverseCall.
func (g *Gateway) handleClientCall(ctx context.Context, callID string, payload json.RawMessage) error {
	var res wireReverseCallResolution
	if err := json.Unmarshal(payload, &res); err != nil {
		return gwerrors.Wrap(gwerrors.KindBadPayload, "decode client.call resolution", err)
	}

	var resultPayload json.RawMessage
	var callErr error
	if res.Error != "" {
		callErr = gwerrors.New(gwerrors.KindInternal, res.Error)
	} else {
		b, err := json.Marshal(res.Result)
		if err != nil {
			return gwerrors.Wrap(gwerrors.KindBadPayload, "re-marshal client.call result", err)
		}
		resultPayload = b
	}

	return g.orch.ResolveReverseCall(res.SessionID, callID, resultPayload, callErr)
}
