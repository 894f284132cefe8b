// Package scheduler drives the detect-and-trade cycle over the configured
// trading pairs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/executor"
	"github.com/alanyoungcy/dexarb/internal/venue"
)

// DefaultInterval is the pause between two passes over all pairs.
const DefaultInterval = 5 * time.Second

const (
	defaultLockTTL   = time.Minute
	recentTradesSize = 50
)

// Detector decides whether a pair is worth trading.
type Detector interface {
	Detect(ctx context.Context, pair domain.TradingPair, cfg domain.TradeConfig) (domain.ArbitrageDecision, error)
}

// TradeExecutor runs the two legs of a decision.
type TradeExecutor interface {
	ExecuteRoundTrip(ctx context.Context, d domain.ArbitrageDecision, buy, sell venue.Venue, cfg domain.TradeConfig, policy executor.LegPolicy) (executor.RoundTrip, error)
}

// VenueLookup resolves venue names found in decisions.
type VenueLookup interface {
	Get(name string) (venue.Venue, error)
	Names() []string
}

// SettingsSource hands out consistent TradeConfig snapshots.
type SettingsSource interface {
	Snapshot() domain.TradeConfig
}

// EventEmitter receives operator-visible events.
type EventEmitter interface {
	Emit(ctx context.Context, ev domain.Event)
}

// Recorder receives scheduler measurements.
type Recorder interface {
	CycleCompleted(d time.Duration)
	PairError(pair string)
}

// Config configures a Scheduler. Locks, Events and Metrics are optional.
type Config struct {
	Pairs     []domain.TradingPair
	Detector  Detector
	Executor  TradeExecutor
	Venues    VenueLookup
	Settings  SettingsSource
	Locks     domain.LockManager
	LockTTL   time.Duration
	Events    EventEmitter
	Metrics   Recorder
	Interval  time.Duration
	LegPolicy executor.LegPolicy
	Wait      executor.WaitFunc
	Logger    *slog.Logger
}

// Scheduler runs passes over every pair until stopped. Each pair is
// processed inside its own failure boundary.
type Scheduler struct {
	pairs     []domain.TradingPair
	detector  Detector
	executor  TradeExecutor
	venues    VenueLookup
	settings  SettingsSource
	locks     domain.LockManager
	lockTTL   time.Duration
	events    EventEmitter
	metrics   Recorder
	interval  time.Duration
	legPolicy executor.LegPolicy
	wait      executor.WaitFunc
	logger    *slog.Logger

	mu        sync.RWMutex
	passes    int64
	lastPass  time.Time
	decisions map[string]domain.ArbitrageDecision
	trades    []executor.RoundTrip
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	wait := cfg.Wait
	if wait == nil {
		wait = executor.SleepContext
	}
	policy := cfg.LegPolicy
	if policy == "" {
		policy = executor.LegPolicyBestEffort
	}
	return &Scheduler{
		pairs:     cfg.Pairs,
		detector:  cfg.Detector,
		executor:  cfg.Executor,
		venues:    cfg.Venues,
		settings:  cfg.Settings,
		locks:     cfg.Locks,
		lockTTL:   ttl,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		interval:  interval,
		legPolicy: policy,
		wait:      wait,
		logger:    cfg.Logger.With(slog.String("component", "scheduler")),
		decisions: make(map[string]domain.ArbitrageDecision),
	}
}

// Pairs returns the pairs the scheduler cycles over.
func (s *Scheduler) Pairs() []domain.TradingPair {
	out := make([]domain.TradingPair, len(s.pairs))
	copy(out, s.pairs)
	return out
}

// Run executes passes until ctx is done or stop is closed. Work already in
// progress for a pair finishes under ctx; no new pair is started after stop
// is closed.
func (s *Scheduler) Run(ctx context.Context, stop <-chan struct{}) error {
	s.logger.InfoContext(ctx, "scheduler started",
		slog.Int("pairs", len(s.pairs)),
		slog.Duration("interval", s.interval),
	)
	defer s.logger.Info("scheduler stopped")

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	for {
		if stopped(ctx, stop) {
			return ctx.Err()
		}
		s.RunCycle(ctx, stop)
		if stopped(ctx, stop) {
			return ctx.Err()
		}
		if err := s.wait(waitCtx, s.interval); err != nil {
			return ctx.Err()
		}
	}
}

// RunCycle makes one pass over all pairs. A failing pair is logged and the
// pass continues with the next one.
func (s *Scheduler) RunCycle(ctx context.Context, stop <-chan struct{}) {
	start := time.Now()
	s.emit(ctx, domain.Event{Type: domain.EventCycleStarted, Message: "cycle started"})

	for _, pair := range s.pairs {
		if stopped(ctx, stop) {
			s.logger.InfoContext(ctx, "stop requested, ending pass early")
			break
		}
		if err := s.processPair(ctx, pair); err != nil {
			s.logger.ErrorContext(ctx, "pair processing failed",
				slog.String("pair", pair.String()),
				slog.String("error", err.Error()),
			)
			if s.metrics != nil {
				s.metrics.PairError(pair.String())
			}
			s.emit(ctx, domain.Event{
				Type:    domain.EventPairError,
				Pair:    pair.String(),
				Message: fmt.Sprintf("error processing %s: %v", pair, err),
				Detail:  map[string]any{"error": err.Error()},
			})
		}
	}

	elapsed := time.Since(start)
	s.mu.Lock()
	s.passes++
	s.lastPass = time.Now().UTC()
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.CycleCompleted(elapsed)
	}
}

func (s *Scheduler) processPair(ctx context.Context, pair domain.TradingPair) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "panic while processing pair",
				slog.String("pair", pair.String()),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("scheduler: panic: %v", r)
		}
	}()

	cfg := s.settings.Snapshot()
	d, err := s.detector.Detect(ctx, pair, cfg)
	if err != nil {
		return fmt.Errorf("scheduler: detect: %w", err)
	}
	s.recordDecision(pair, d)

	if !d.Actionable() {
		s.logger.DebugContext(ctx, "no arbitrage opportunity",
			slog.String("pair", pair.String()),
			slog.String("reason", d.Reason),
		)
		s.emit(ctx, domain.Event{
			Type:    domain.EventNoTrade,
			Pair:    pair.String(),
			Message: fmt.Sprintf("no arbitrage opportunity for %s (%s)", pair, d.Reason),
			Detail:  map[string]any{"reason": d.Reason, "profit_ratio": d.ProfitRatio},
		})
		return nil
	}

	s.logger.InfoContext(ctx, "arbitrage detected",
		slog.String("pair", pair.String()),
		slog.String("direction", string(d.Direction)),
		slog.Float64("profit_ratio", d.ProfitRatio),
	)
	s.emit(ctx, domain.Event{
		Type: domain.EventArbDetected,
		Pair: pair.String(),
		Message: fmt.Sprintf("%s: buy on %s at %.6f, sell on %s at %.6f, profit %.4f%%",
			pair, d.BuyVenue, d.BuyPrice, d.SellVenue, d.SellPrice, d.ProfitRatio*100),
		Detail: map[string]any{
			"direction":    string(d.Direction),
			"buy_price":    d.BuyPrice,
			"sell_price":   d.SellPrice,
			"profit_ratio": d.ProfitRatio,
		},
	})

	buy, err := s.venues.Get(d.BuyVenue)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	sell, err := s.venues.Get(d.SellVenue)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "pair:"+pair.Key(), s.lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.WarnContext(ctx, "pair locked by another instance, skipping",
				slog.String("pair", pair.String()),
			)
			return nil
		}
		if err != nil {
			return fmt.Errorf("scheduler: lock: %w", err)
		}
		defer unlock()
	}

	rt, err := s.executor.ExecuteRoundTrip(ctx, d, buy, sell, cfg, s.legPolicy)
	if err != nil {
		return fmt.Errorf("scheduler: execute: %w", err)
	}
	s.recordRoundTrip(rt)
	for _, res := range rt.Legs {
		s.emit(ctx, tradeEvent(res))
	}
	return nil
}

func tradeEvent(res domain.TradeResult) domain.Event {
	ev := domain.Event{
		Pair: res.Pair,
		Detail: map[string]any{
			"trade_id": res.ID,
			"venue":    res.Venue,
			"leg":      res.Leg,
			"attempts": res.Attempts,
			"polls":    res.Polls,
			"tx":       res.TxHandle,
			"dry_run":  res.DryRun,
		},
	}
	switch res.Status {
	case domain.TradeConfirmed:
		ev.Type = domain.EventTradeConfirmed
		ev.Message = fmt.Sprintf("leg %d on %s confirmed: %s", res.Leg, res.Venue, res.TxHandle)
	case domain.TradePending:
		ev.Type = domain.EventTradePending
		ev.Message = fmt.Sprintf("leg %d on %s pending: %s", res.Leg, res.Venue, res.TxHandle)
	default:
		ev.Type = domain.EventTradeFailed
		ev.Message = fmt.Sprintf("leg %d on %s failed: %s", res.Leg, res.Venue, res.Error)
		ev.Detail["error"] = res.Error
	}
	return ev
}

func (s *Scheduler) recordDecision(pair domain.TradingPair, d domain.ArbitrageDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[pair.String()] = d
}

func (s *Scheduler) recordRoundTrip(rt executor.RoundTrip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, rt)
	if n := len(s.trades); n > recentTradesSize {
		s.trades = append([]executor.RoundTrip(nil), s.trades[n-recentTradesSize:]...)
	}
}

func (s *Scheduler) emit(ctx context.Context, ev domain.Event) {
	if s.events != nil {
		s.events.Emit(ctx, ev)
	}
}

// Execution describes how actionable decisions are carried out.
type Execution struct {
	DryRun         bool     `json:"dry_run"`
	LegPolicy      string   `json:"leg_policy"`
	Venues         []string `json:"venues"`
	MaxAttempts    int      `json:"max_attempts,omitempty"`
	AttemptBackoff string   `json:"attempt_backoff,omitempty"`
	MaxPolls       int      `json:"max_polls,omitempty"`
	PollInterval   string   `json:"poll_interval,omitempty"`
}

type describedExecutor interface {
	DryRun() bool
	Policy() executor.RetryPolicy
}

// Execution reports the executor mode and the registered venues.
func (s *Scheduler) Execution() Execution {
	ex := Execution{
		LegPolicy: string(s.legPolicy),
		Venues:    s.venues.Names(),
	}
	if d, ok := s.executor.(describedExecutor); ok {
		p := d.Policy()
		ex.DryRun = d.DryRun()
		ex.MaxAttempts = p.MaxAttempts
		ex.AttemptBackoff = p.AttemptBackoff.String()
		ex.MaxPolls = p.MaxPolls
		ex.PollInterval = p.PollInterval.String()
	}
	return ex
}

// Snapshot is the observable state of a scheduler.
type Snapshot struct {
	Passes       int64                               `json:"passes"`
	LastPassAt   time.Time                           `json:"last_pass_at,omitempty"`
	Decisions    map[string]domain.ArbitrageDecision `json:"decisions"`
	RecentTrades []executor.RoundTrip                `json:"recent_trades"`
}

// Snapshot copies the scheduler state.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Passes:       s.passes,
		LastPassAt:   s.lastPass,
		Decisions:    make(map[string]domain.ArbitrageDecision, len(s.decisions)),
		RecentTrades: make([]executor.RoundTrip, len(s.trades)),
	}
	for k, v := range s.decisions {
		snap.Decisions[k] = v
	}
	copy(snap.RecentTrades, s.trades)
	return snap
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}
