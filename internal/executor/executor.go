package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/venue"
	"github.com/alanyoungcy/dexarb/internal/wallet"
)

// States of a leg as it moves through execution. They appear in logs under
// the "state" key.
const (
	StateAttempting        = "attempting"
	StateRouteFetched      = "route_fetched"
	StateRouteFailed       = "route_failed"
	StateSubmitted         = "submitted"
	StateSubmitFailed      = "submit_failed"
	StatePolling           = "polling"
	StateConfirmed         = "confirmed"
	StatePending           = "pending"
	StateAttemptsExhausted = "attempts_exhausted"
	StateFailed            = "failed"
)

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// SleepContext is the production WaitFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryPolicy bounds the asynchronous submit path. AttemptBackoff is waited
// between top-level attempts, PollInterval between status polls.
type RetryPolicy struct {
	MaxAttempts    int
	AttemptBackoff time.Duration
	MaxPolls       int
	PollInterval   time.Duration
}

// DefaultRetryPolicy returns 3 attempts 2s apart, each polling up to 10
// times at 1s intervals.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		AttemptBackoff: 2 * time.Second,
		MaxPolls:       10,
		PollInterval:   time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.MaxPolls <= 0 {
		p.MaxPolls = def.MaxPolls
	}
	if p.AttemptBackoff < 0 {
		p.AttemptBackoff = 0
	}
	if p.PollInterval < 0 {
		p.PollInterval = 0
	}
	return p
}

// Recorder receives executor measurements.
type Recorder interface {
	TradeResult(venue, status string)
	RecordAttempts(venue string, n int)
}

// Config configures an Executor. Broadcaster is required for synchronous
// venues only. Wait defaults to SleepContext.
type Config struct {
	Signer      venue.Signer
	Broadcaster venue.Broadcaster
	Policy      RetryPolicy
	DryRun      bool
	Wait        WaitFunc
	Metrics     Recorder
	Logger      *slog.Logger
}

// Executor submits single swap legs to a venue and reports the outcome.
type Executor struct {
	signer      venue.Signer
	broadcaster venue.Broadcaster
	policy      RetryPolicy
	dryRun      bool
	wait        WaitFunc
	metrics     Recorder
	logger      *slog.Logger
}

// New creates an Executor.
func New(cfg Config) *Executor {
	wait := cfg.Wait
	if wait == nil {
		wait = SleepContext
	}
	return &Executor{
		signer:      cfg.Signer,
		broadcaster: cfg.Broadcaster,
		policy:      cfg.Policy.normalized(),
		dryRun:      cfg.DryRun,
		wait:        wait,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.With(slog.String("component", "executor")),
	}
}

// Policy returns the retry policy in effect.
func (e *Executor) Policy() RetryPolicy { return e.policy }

// DryRun reports whether legs are only logged.
func (e *Executor) DryRun() bool { return e.dryRun }

// ExecuteTrade runs one leg against v. It never returns an error: every
// failure is folded into a Failed result, and a transaction accepted but not
// seen confirmed is Pending.
func (e *Executor) ExecuteTrade(ctx context.Context, v venue.Venue, leg domain.Leg) domain.TradeResult {
	res := domain.TradeResult{
		ID:        uuid.New().String(),
		Venue:     v.Name(),
		Pair:      leg.Pair.String(),
		Leg:       leg.Index,
		StartedAt: time.Now().UTC(),
	}
	log := e.logger.With(
		slog.String("trade_id", res.ID),
		slog.String("venue", res.Venue),
		slog.String("pair", res.Pair),
		slog.Int("leg", leg.Index),
	)

	switch {
	case e.dryRun:
		log.InfoContext(ctx, "dry run, leg not submitted",
			slog.String("input", leg.InputMint),
			slog.String("output", leg.OutputMint),
			slog.Uint64("amount", leg.Amount),
		)
		res.DryRun = true
		res.Status = domain.TradePending
	case e.signer == nil:
		e.fail(&res, errors.New("executor: no signer configured"))
		log.ErrorContext(ctx, "leg failed", slog.String("error", res.Err.Error()))
	default:
		switch tv := v.(type) {
		case venue.AsyncVenue:
			e.executeAsync(ctx, tv, leg, &res, log)
		case venue.SyncVenue:
			e.executeSync(ctx, tv, leg, &res, log)
		default:
			e.fail(&res, fmt.Errorf("executor: venue %q cannot settle trades", v.Name()))
		}
	}

	res.FinishedAt = time.Now().UTC()
	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	if e.metrics != nil {
		e.metrics.TradeResult(res.Venue, string(res.Status))
		if res.Attempts > 0 {
			e.metrics.RecordAttempts(res.Venue, res.Attempts)
		}
	}
	return res
}

func (e *Executor) executeSync(ctx context.Context, v venue.SyncVenue, leg domain.Leg, res *domain.TradeResult, log *slog.Logger) {
	res.Attempts = 1
	log.DebugContext(ctx, "leg state", slog.String("state", StateAttempting))

	if e.broadcaster == nil {
		e.fail(res, errors.New("executor: no broadcaster configured"))
		log.ErrorContext(ctx, "leg failed", slog.String("error", res.Err.Error()))
		return
	}

	q, err := v.Quote(ctx, quoteRequest(leg))
	if err != nil {
		e.fail(res, err)
		log.ErrorContext(ctx, "quote failed", slog.String("error", err.Error()))
		return
	}
	tx, err := v.BuildSwap(ctx, q)
	if err != nil {
		e.fail(res, err)
		log.ErrorContext(ctx, "swap build failed",
			slog.String("state", StateRouteFailed),
			slog.String("error", err.Error()),
		)
		return
	}
	signed, err := e.signer.SignTransaction(tx)
	if err != nil {
		e.fail(res, err)
		log.ErrorContext(ctx, "signing failed", slog.String("error", err.Error()))
		return
	}
	if id, err := wallet.Signature(signed); err == nil {
		// The id is known before broadcast; a timed out send may still land.
		log = log.With(slog.String("expected_signature", id.String()))
	}
	sig, err := e.broadcaster.SendTransaction(ctx, signed)
	if err != nil {
		e.fail(res, fmt.Errorf("%w: %v", domain.ErrSubmitFailure, err))
		log.ErrorContext(ctx, "broadcast failed",
			slog.String("state", StateSubmitFailed),
			slog.String("error", err.Error()),
		)
		return
	}

	res.TxHandle = sig
	res.Status = domain.TradeConfirmed
	log.InfoContext(ctx, "leg broadcast",
		slog.String("state", StateConfirmed),
		slog.String("signature", sig),
	)
}

func (e *Executor) executeAsync(ctx context.Context, v venue.AsyncVenue, leg domain.Leg, res *domain.TradeResult, log *slog.Logger) {
	req := quoteRequest(leg)
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := e.wait(ctx, e.policy.AttemptBackoff); err != nil {
				e.fail(res, fmt.Errorf("executor: %w", err))
				log.WarnContext(ctx, "leg abandoned", slog.String("error", err.Error()))
				return
			}
		}
		res.Attempts = attempt
		alog := log.With(slog.Int("attempt", attempt))
		alog.DebugContext(ctx, "leg state", slog.String("state", StateAttempting))

		route, err := v.Route(ctx, req)
		if err != nil {
			lastErr = err
			alog.WarnContext(ctx, "route failed",
				slog.String("state", StateRouteFailed),
				slog.String("error", err.Error()),
			)
			continue
		}
		alog.DebugContext(ctx, "leg state",
			slog.String("state", StateRouteFetched),
			slog.Uint64("out_amount", route.OutAmount),
		)

		signed, err := e.signer.SignTransaction(route.Tx)
		if err != nil {
			lastErr = err
			alog.WarnContext(ctx, "signing failed",
				slog.String("state", StateSubmitFailed),
				slog.String("error", err.Error()),
			)
			continue
		}
		handle, err := v.Submit(ctx, signed)
		if err != nil {
			lastErr = err
			alog.WarnContext(ctx, "submit failed",
				slog.String("state", StateSubmitFailed),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.TxHandle = handle
		alog.InfoContext(ctx, "leg submitted",
			slog.String("state", StateSubmitted),
			slog.String("hash", handle),
		)

		if e.poll(ctx, v, handle, route.LastValidHeight, res, alog) {
			res.Status = domain.TradeConfirmed
			alog.InfoContext(ctx, "leg confirmed",
				slog.String("state", StateConfirmed),
				slog.Int("polls", res.Polls),
			)
			return
		}
		res.Status = domain.TradePending
		alog.WarnContext(ctx, "leg not confirmed within poll budget",
			slog.String("state", StatePending),
			slog.Int("polls", res.Polls),
		)
		return
	}

	if lastErr == nil {
		e.fail(res, domain.ErrAttemptsExhausted)
	} else {
		e.fail(res, fmt.Errorf("%w: %w", domain.ErrAttemptsExhausted, lastErr))
	}
	log.ErrorContext(ctx, "leg failed",
		slog.String("state", StateAttemptsExhausted),
		slog.Int("attempts", res.Attempts),
		slog.String("error", res.Err.Error()),
	)
}

// poll checks the transaction status up to MaxPolls times, waiting
// PollInterval between checks. A status lookup error counts as a poll that
// did not confirm.
func (e *Executor) poll(ctx context.Context, v venue.AsyncVenue, handle string, lastValidHeight uint64, res *domain.TradeResult, log *slog.Logger) bool {
	for k := 1; k <= e.policy.MaxPolls; k++ {
		if k > 1 {
			if err := e.wait(ctx, e.policy.PollInterval); err != nil {
				return false
			}
		}
		res.Polls = k
		ok, err := v.Confirmed(ctx, handle, lastValidHeight)
		if err != nil {
			log.DebugContext(ctx, "status lookup failed",
				slog.String("state", StatePolling),
				slog.Int("poll", k),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

func (e *Executor) fail(res *domain.TradeResult, err error) {
	res.Status = domain.TradeFailed
	res.Err = err
}

func quoteRequest(leg domain.Leg) domain.QuoteRequest {
	return domain.QuoteRequest{
		InputMint:   leg.InputMint,
		OutputMint:  leg.OutputMint,
		Amount:      leg.Amount,
		SlippageBps: leg.SlippageBps,
	}
}
