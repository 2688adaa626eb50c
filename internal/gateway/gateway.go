// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package gateway wires the gateway's components together: the Session
// Store, History Resolver, Session Orchestrator, RPC Router, and
// WebSocket Transport, plus the HTTP server fronting them (spec §6).
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wingedpig/sessiongate/internal/config"
	"github.com/wingedpig/sessiongate/internal/history"
	"github.com/wingedpig/sessiongate/internal/orchestrator"
	"github.com/wingedpig/sessiongate/internal/rpc"
	"github.com/wingedpig/sessiongate/internal/session"
	"github.com/wingedpig/sessiongate/internal/transport"
)

// Gateway owns every long-lived component and the HTTP server that
// fronts them.
type Gateway struct {
	cfg  config.Config
	durs config.Durations
	log  zerolog.Logger

	store    *session.Store
	histCache *history.Cache
	hist     *history.Resolver
	orch     *orchestrator.Orchestrator
	router   *rpc.Router
	trans    *transport.Server

	httpServer *http.Server

	stopOnce sync.Once
	done     chan struct{}
}

// New constructs a Gateway from cfg. It does not start listening;
// call Run for that.
func New(cfg config.Config, log zerolog.Logger) *Gateway {
	durs := cfg.Resolve()

	store := session.NewStore()
	histCache := history.NewCache(durs.HistoryCacheTTL, cfg.History.Watch, log)
	hist := history.NewResolver(histCache, log)
	orch := orchestrator.New(store, hist, cfg, log)
	router := rpc.NewRouter()

	g := &Gateway{
		cfg:       cfg,
		durs:      durs,
		log:       log.With().Str("component", "gateway").Logger(),
		store:     store,
		histCache: histCache,
		hist:      hist,
		orch:      orch,
		router:    router,
		done:      make(chan struct{}),
	}

	g.registerRoutes(router)
	g.trans = transport.NewServer(router, durs.KeepAliveInterval, durs.KeepAliveTimeout, g.onDisconnect, log)

	mx := mux.NewRouter()
	mx.HandleFunc("/ws", g.trans.Upgrade)
	mx.Handle("/metrics", promhttp.Handler())

	g.httpServer = &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: mx,
	}

	return g
}

// onDisconnect is invoked by the transport once per session still bound
// to a connection that was lost (spec §9: a dropped transport tears the
// session down like an explicit disconnect).
func (g *Gateway) onDisconnect(sessionID string) {
	if err := g.orch.Disconnect(context.Background(), sessionID); err != nil {
		g.log.Debug().Err(err).Str("sessionId", sessionID).Msg("disconnect on transport loss")
	}
}

// Run starts the HTTP/WebSocket listener and blocks until ctx is
// cancelled, a SIGINT/SIGTERM arrives, or Shutdown/Stop is called, then
// performs an ordered graceful shutdown. The listener and the signal
// watcher run under one errgroup so either one's exit unblocks Run.
func (g *Gateway) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		g.log.Info().Str("addr", g.cfg.Server.Listen).Msg("listening")
		if err := g.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			g.log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
		case <-egCtx.Done():
		case <-g.done:
		}
		return g.httpServer.Shutdown(context.Background())
	})

	err := eg.Wait()
	if shutdownErr := g.Shutdown(context.Background()); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

// Shutdown tears every component down in dependency order: stop
// accepting new connections first, then close every live session
// (terminating its child process), then release the history cache's
// filesystem watches.
func (g *Gateway) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var firstErr error
	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		firstErr = fmt.Errorf("shut down http server: %w", err)
	}

	for _, sess := range g.store.List() {
		if err := g.orch.Disconnect(shutdownCtx, sess.ID()); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("disconnect session %s: %w", sess.ID(), err)
		}
	}

	g.histCache.Close()

	g.stopOnce.Do(func() { close(g.done) })
	return firstErr
}

// Stop requests Run to begin shutting down, for callers that don't hold
// the context Run was started with.
func (g *Gateway) Stop() {
	g.stopOnce.Do(func() { close(g.done) })
}
