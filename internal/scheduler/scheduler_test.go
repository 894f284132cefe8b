package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/executor"
	"github.com/alanyoungcy/dexarb/internal/service"
	"github.com/alanyoungcy/dexarb/internal/venue"
)

var (
	solPair = domain.TradingPair{Name: "SOL/USDC", Base: "SOL", Quote: "USDC"}
	rayPair = domain.TradingPair{Name: "RAY/USDC", Base: "RAY", Quote: "USDC"}
)

type stubVenue struct{ name string }

func (v stubVenue) Name() string { return v.name }
func (v stubVenue) Quote(context.Context, domain.QuoteRequest) (domain.Quote, error) {
	return domain.Quote{Venue: v.name}, nil
}

type scriptedDetector struct {
	mu        sync.Mutex
	calls     []string
	errs      map[string]error
	panics    map[string]bool
	decisions map[string]domain.ArbitrageDecision
	onDetect  func(pair domain.TradingPair)
}

func (d *scriptedDetector) Detect(_ context.Context, pair domain.TradingPair, _ domain.TradeConfig) (domain.ArbitrageDecision, error) {
	d.mu.Lock()
	d.calls = append(d.calls, pair.String())
	d.mu.Unlock()
	if d.onDetect != nil {
		d.onDetect(pair)
	}
	if d.panics[pair.String()] {
		panic("boom")
	}
	if err := d.errs[pair.String()]; err != nil {
		return domain.ArbitrageDecision{}, err
	}
	if dec, ok := d.decisions[pair.String()]; ok {
		return dec, nil
	}
	return domain.NoTrade(pair, "equal prices"), nil
}

func (d *scriptedDetector) called() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

type recordingExecutor struct {
	mu    sync.Mutex
	trips []string
	cfgs  []domain.TradeConfig
}

func (e *recordingExecutor) ExecuteRoundTrip(_ context.Context, d domain.ArbitrageDecision, buy, sell venue.Venue, cfg domain.TradeConfig, _ executor.LegPolicy) (executor.RoundTrip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trips = append(e.trips, buy.Name()+">"+sell.Name())
	e.cfgs = append(e.cfgs, cfg)
	return executor.RoundTrip{
		ID:       "rt-1",
		Decision: d,
		Legs: []domain.TradeResult{
			{Venue: buy.Name(), Pair: d.Pair.String(), Leg: 1, Status: domain.TradeConfirmed, TxHandle: "sig"},
			{Venue: sell.Name(), Pair: d.Pair.String(), Leg: 2, Status: domain.TradePending, TxHandle: "hash"},
		},
	}, nil
}

type fixedSettings domain.TradeConfig

func (f fixedSettings) Snapshot() domain.TradeConfig { return domain.TradeConfig(f) }

type eventSink struct {
	mu  sync.Mutex
	evs []domain.Event
}

func (s *eventSink) Emit(_ context.Context, ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evs = append(s.evs, ev)
}

func (s *eventSink) count(t domain.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.evs {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type heldLocks struct{ held map[string]bool }

func (l heldLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	return func() {}, nil
}

func actionable(pair domain.TradingPair) domain.ArbitrageDecision {
	return domain.ArbitrageDecision{
		Pair:        pair,
		Direction:   domain.NewDirection(domain.VenueJupiter, domain.VenueGMGN),
		BuyVenue:    domain.VenueJupiter,
		SellVenue:   domain.VenueGMGN,
		BuyPrice:    100,
		SellPrice:   110,
		ProfitRatio: 0.09,
	}
}

type harness struct {
	det    *scriptedDetector
	exec   *recordingExecutor
	events *eventSink
	cfg    Config
}

func newHarness() *harness {
	h := &harness{
		det:    &scriptedDetector{errs: map[string]error{}, panics: map[string]bool{}, decisions: map[string]domain.ArbitrageDecision{}},
		exec:   &recordingExecutor{},
		events: &eventSink{},
	}
	h.cfg = Config{
		Pairs:    []domain.TradingPair{solPair, rayPair},
		Detector: h.det,
		Executor: h.exec,
		Venues:   venue.NewRegistry(stubVenue{domain.VenueJupiter}, stubVenue{domain.VenueGMGN}),
		Settings: fixedSettings{MinProfitRatio: 0.005, TradeAmount: 0.1},
		Events:   h.events,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return h
}

func TestRunCycle_FailingPairDoesNotStopNext(t *testing.T) {
	h := newHarness()
	h.det.errs[solPair.String()] = domain.ErrComputation
	h.det.decisions[rayPair.String()] = actionable(rayPair)
	s := New(h.cfg)

	s.RunCycle(context.Background(), nil)

	assert.Equal(t, []string{"SOL/USDC", "RAY/USDC"}, h.det.called())
	assert.Equal(t, []string{"jupiter>gmgn"}, h.exec.trips)
	assert.Equal(t, 1, h.events.count(domain.EventPairError))
	assert.Equal(t, 1, h.events.count(domain.EventTradeConfirmed))
	assert.Equal(t, 1, h.events.count(domain.EventTradePending))
	assert.EqualValues(t, 1, s.Snapshot().Passes)
}

func TestRunCycle_PanicIsContained(t *testing.T) {
	h := newHarness()
	h.det.panics[solPair.String()] = true
	s := New(h.cfg)

	assert.NotPanics(t, func() { s.RunCycle(context.Background(), nil) })
	assert.Equal(t, []string{"SOL/USDC", "RAY/USDC"}, h.det.called())
	assert.Equal(t, 1, h.events.count(domain.EventPairError))
	assert.Equal(t, 1, h.events.count(domain.EventNoTrade))
}

func TestRunCycle_StopObservedBetweenPairs(t *testing.T) {
	h := newHarness()
	stop := make(chan struct{})
	h.det.onDetect = func(domain.TradingPair) { close(stop) }
	h.det.decisions[solPair.String()] = actionable(solPair)
	s := New(h.cfg)

	s.RunCycle(context.Background(), stop)

	assert.Equal(t, []string{"SOL/USDC"}, h.det.called())
	assert.Equal(t, []string{"jupiter>gmgn"}, h.exec.trips, "work in progress completes")
}

func TestRunCycle_HeldLockSkipsPair(t *testing.T) {
	h := newHarness()
	h.det.decisions[solPair.String()] = actionable(solPair)
	h.det.decisions[rayPair.String()] = actionable(rayPair)
	h.cfg.Locks = heldLocks{held: map[string]bool{"pair:sol/usdc": true}}
	s := New(h.cfg)

	s.RunCycle(context.Background(), nil)

	assert.Len(t, h.exec.trips, 1)
	assert.Zero(t, h.events.count(domain.EventPairError))
}

func TestRunCycle_UnknownVenueIsPairError(t *testing.T) {
	h := newHarness()
	d := actionable(solPair)
	d.SellVenue = "orca"
	h.det.decisions[solPair.String()] = d
	s := New(h.cfg)

	s.RunCycle(context.Background(), nil)

	assert.Empty(t, h.exec.trips)
	assert.Equal(t, 1, h.events.count(domain.EventPairError))
}

func TestRun_WaitsIntervalAndStops(t *testing.T) {
	h := newHarness()
	stop := make(chan struct{})
	var waits []time.Duration
	h.cfg.Wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) == 2 {
			close(stop)
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}
	s := New(h.cfg)

	err := s.Run(context.Background(), stop)

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{DefaultInterval, DefaultInterval}, waits)
	assert.EqualValues(t, 2, s.Snapshot().Passes)
	assert.Len(t, h.det.called(), 4)
}

func TestController_StartStopStatus(t *testing.T) {
	h := newHarness()
	h.cfg.Wait = func(ctx context.Context, _ time.Duration) error {
		<-ctx.Done()
		return ctx.Err()
	}
	c := NewController(New(h.cfg), h.events, h.cfg.Logger)

	assert.ErrorIs(t, c.Start(), errNotAttached)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(ctx, false) }()

	require.Eventually(t, func() bool { return c.Start() == nil }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, c.Start(), domain.ErrAlreadyRunning)

	st := c.Status()
	assert.True(t, st.Running)
	assert.Equal(t, []string{"SOL/USDC", "RAY/USDC"}, st.Pairs)
	assert.Equal(t, []string{domain.VenueGMGN, domain.VenueJupiter}, st.Execution.Venues)
	assert.Equal(t, string(executor.LegPolicyBestEffort), st.Execution.LegPolicy)

	require.NoError(t, c.Stop())
	assert.ErrorIs(t, c.Stop(), domain.ErrNotRunning)
	assert.False(t, c.Status().Running)
	assert.Equal(t, 1, h.events.count(domain.EventBotStarted))
	assert.Equal(t, 1, h.events.count(domain.EventBotStopped))

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("controller did not return")
	}
}

type runningFlag struct {
	mu   sync.Mutex
	last bool
}

func (r *runningFlag) SetRunning(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = v
}

func (r *runningFlag) get() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func TestController_RestartWhileStoppingKeepsRunningFlag(t *testing.T) {
	h := newHarness()
	release := make(chan struct{})
	entered := make(chan struct{}, 4)
	h.det.onDetect = func(domain.TradingPair) {
		entered <- struct{}{}
		<-release
	}
	h.cfg.Pairs = []domain.TradingPair{solPair}
	h.cfg.Wait = func(ctx context.Context, _ time.Duration) error {
		<-ctx.Done()
		return ctx.Err()
	}
	flag := &runningFlag{}
	c := NewController(New(h.cfg), nil, h.cfg.Logger)
	c.SetRecorder(flag)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(ctx, false) }()
	require.Eventually(t, func() bool { return c.Start() == nil }, time.Second, 5*time.Millisecond)
	<-entered

	stopDone := make(chan error, 1)
	go func() { stopDone <- c.Stop() }()
	// The first run is still inside Detect when the second Start lands.
	require.Eventually(t, func() bool { return c.Start() == nil }, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, <-stopDone)

	assert.True(t, flag.get())
	assert.True(t, c.Status().Running)

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("controller did not return")
	}
}

func TestExecution_ReportsExecutorMode(t *testing.T) {
	h := newHarness()
	h.cfg.Executor = executor.New(executor.Config{
		DryRun: true,
		Policy: executor.RetryPolicy{MaxAttempts: 4, AttemptBackoff: time.Second, MaxPolls: 6, PollInterval: 500 * time.Millisecond},
		Logger: h.cfg.Logger,
	})
	h.cfg.LegPolicy = executor.LegPolicyAllOrNone

	ex := New(h.cfg).Execution()

	assert.True(t, ex.DryRun)
	assert.Equal(t, string(executor.LegPolicyAllOrNone), ex.LegPolicy)
	assert.Equal(t, 4, ex.MaxAttempts)
	assert.Equal(t, "1s", ex.AttemptBackoff)
	assert.Equal(t, 6, ex.MaxPolls)
	assert.Equal(t, "500ms", ex.PollInterval)
}

type stalledNotifier struct{ release chan struct{} }

func (n stalledNotifier) Notify(ctx context.Context, _ domain.Event) error {
	select {
	case <-n.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestRunCycle_SlowNotifierDoesNotDelayTrade(t *testing.T) {
	h := newHarness()
	h.det.decisions[solPair.String()] = actionable(solPair)
	release := make(chan struct{})
	events := service.NewEventService(service.EventConfig{
		Notifier:    stalledNotifier{release: release},
		SinkTimeout: time.Minute,
		Logger:      h.cfg.Logger,
	})
	defer events.Close()
	defer close(release)
	h.cfg.Events = events
	s := New(h.cfg)

	start := time.Now()
	s.RunCycle(context.Background(), nil)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, []string{"jupiter>gmgn"}, h.exec.trips)
}
