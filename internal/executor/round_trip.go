package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/venue"
)

// LegPolicy decides whether the second leg runs after the first failed.
type LegPolicy string

const (
	// LegPolicyBestEffort always runs both legs.
	LegPolicyBestEffort LegPolicy = "best_effort"
	// LegPolicyAllOrNone skips the second leg when the first failed.
	LegPolicyAllOrNone LegPolicy = "all_or_none"
)

// ParseLegPolicy accepts the config spelling of a policy. Empty means best
// effort.
func ParseLegPolicy(s string) (LegPolicy, error) {
	switch LegPolicy(s) {
	case "", LegPolicyBestEffort:
		return LegPolicyBestEffort, nil
	case LegPolicyAllOrNone:
		return LegPolicyAllOrNone, nil
	}
	return "", fmt.Errorf("executor: unknown leg policy %q", s)
}

// RoundTrip is the record of one executed arbitrage decision.
type RoundTrip struct {
	ID         string                   `json:"id"`
	Decision   domain.ArbitrageDecision `json:"decision"`
	Legs       []domain.TradeResult     `json:"legs"`
	Skipped    bool                     `json:"skipped,omitempty"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
}

// Succeeded reports whether every leg was accepted by its venue.
func (rt RoundTrip) Succeeded() bool {
	if len(rt.Legs) < 2 {
		return false
	}
	for _, l := range rt.Legs {
		if !l.Succeeded() {
			return false
		}
	}
	return true
}

// ExecuteRoundTrip runs the two legs of d in order: leg 1 swaps base for
// quote on buy, then leg 2 swaps quote for base on sell. Leg 1 reaches a
// terminal status before leg 2 starts. The error is non-nil only when the
// trade amount cannot be scaled; leg failures are reported in the result.
func (e *Executor) ExecuteRoundTrip(ctx context.Context, d domain.ArbitrageDecision, buy, sell venue.Venue, cfg domain.TradeConfig, policy LegPolicy) (RoundTrip, error) {
	rt := RoundTrip{
		ID:        uuid.New().String(),
		Decision:  d,
		Legs:      make([]domain.TradeResult, 0, 2),
		StartedAt: time.Now().UTC(),
	}
	amount, err := domain.ScaleAmount(cfg.TradeAmount)
	if err != nil {
		return rt, fmt.Errorf("%w: %v", domain.ErrComputation, err)
	}
	pair := d.Pair
	legs := []struct {
		v   venue.Venue
		leg domain.Leg
	}{
		{buy, domain.Leg{Pair: pair, Index: 1, InputMint: pair.Base, OutputMint: pair.Quote, Amount: amount, SlippageBps: cfg.SlippageBps()}},
		{sell, domain.Leg{Pair: pair, Index: 2, InputMint: pair.Quote, OutputMint: pair.Base, Amount: amount, SlippageBps: cfg.SlippageBps()}},
	}

	for _, l := range legs {
		res := e.ExecuteTrade(ctx, l.v, l.leg)
		rt.Legs = append(rt.Legs, res)
		if policy == LegPolicyAllOrNone && !res.Succeeded() {
			rt.Skipped = true
			e.logger.WarnContext(ctx, "all_or_none: leg failed, skipping the rest",
				slog.String("round_trip", rt.ID),
				slog.String("pair", pair.String()),
				slog.Int("leg", l.leg.Index),
			)
			break
		}
	}
	rt.FinishedAt = time.Now().UTC()
	return rt, nil
}
