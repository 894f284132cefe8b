package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/dexarb/internal/arbitrage"
	"github.com/alanyoungcy/dexarb/internal/executor"
	"github.com/alanyoungcy/dexarb/internal/scheduler"
	"github.com/alanyoungcy/dexarb/internal/server"
	"github.com/alanyoungcy/dexarb/internal/server/handler"
	"github.com/alanyoungcy/dexarb/internal/server/ws"
)

const shutdownTimeout = 5 * time.Second

// TradeMode starts the trading loop immediately and serves the control API
// when enabled.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")
	return a.run(ctx, deps, a.cfg.Trading.DryRun, true, a.cfg.Server.Enabled)
}

// MonitorMode runs detection only: every leg is logged instead of submitted.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode, trades will not be submitted")
	return a.run(ctx, deps, true, true, a.cfg.Server.Enabled)
}

// ServerMode serves the control API and waits for an operator to start the
// loop unless trading.auto_start is set.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	return a.run(ctx, deps, a.cfg.Trading.DryRun, a.cfg.Trading.AutoStart, true)
}

func (a *App) run(ctx context.Context, deps *Dependencies, dryRun, autoStart, serve bool) error {
	g, ctx := errgroup.WithContext(ctx)

	ctrl := a.buildController(deps, dryRun)
	g.Go(func() error {
		return ctrl.Run(ctx, autoStart)
	})

	if serve {
		a.startHTTPServer(ctx, g, deps, ctrl)
	}

	return g.Wait()
}

// buildController assembles detector, executor and scheduler around the
// wired dependencies.
func (a *App) buildController(deps *Dependencies, dryRun bool) *scheduler.Controller {
	execCfg := executor.Config{
		Broadcaster: deps.Broadcaster,
		Policy:      a.cfg.RetryPolicy(),
		DryRun:      dryRun,
		Logger:      a.logger,
	}
	detCfg := arbitrage.DetectorConfig{
		First:  deps.Jupiter,
		Second: deps.GMGN,
		Events: deps.Events,
		Logger: a.logger,
	}
	schedCfg := scheduler.Config{
		Pairs:    a.cfg.TradingPairs(),
		Venues:   deps.Venues,
		Settings: deps.Settings,
		Locks:    deps.LockManager,
		LockTTL:  a.cfg.Executor.LockTTL.Duration,
		Events:   deps.Events,
		Interval: a.cfg.Trading.Interval.Duration,
		Logger:   a.logger,
	}
	if deps.Wallet != nil {
		execCfg.Signer = deps.Wallet
	}
	if deps.Metrics != nil {
		execCfg.Metrics = deps.Metrics
		detCfg.Metrics = deps.Metrics
		schedCfg.Metrics = deps.Metrics
	}
	// Validate has already rejected unknown policies.
	schedCfg.LegPolicy, _ = executor.ParseLegPolicy(a.cfg.Executor.LegPolicy)
	schedCfg.Detector = arbitrage.NewDetector(detCfg)
	schedCfg.Executor = executor.New(execCfg)

	ctrl := scheduler.NewController(scheduler.New(schedCfg), deps.Events, a.logger)
	if deps.Metrics != nil {
		ctrl.SetRecorder(deps.Metrics)
	}
	return ctrl
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, ctrl *scheduler.Controller) {
	hub := ws.NewHub(deps.Bus, deps.Channel, func() any { return ctrl.Status() }, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(deps.Pingers, a.logger),
		Control:  handler.NewControlHandler(ctrl, a.cfg.Mode, a.logger),
		Settings: handler.NewSettingsHandler(deps.Settings, a.logger),
		Logs:     handler.NewLogsHandler(deps.Events, a.logger),
		Hub:      hub,
	}
	if deps.Metrics != nil {
		handlers.Metrics = deps.Metrics.Handler()
	}

	srvCfg := server.Config{
		Addr:            fmt.Sprintf(":%d", a.cfg.Server.Port),
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}
	if deps.RateLimiter != nil {
		srvCfg.Limiter = deps.RateLimiter
	}
	if srvCfg.APIKey == "" {
		a.logger.WarnContext(ctx, "server.api_key is empty, control API is unauthenticated")
	}
	srv := server.NewServer(srvCfg, handlers, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
