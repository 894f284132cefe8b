package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/venue"
)

// EventEmitter receives informational events raised while detecting.
type EventEmitter interface {
	Emit(ctx context.Context, ev domain.Event)
}

// Recorder receives detector measurements.
type Recorder interface {
	QuoteFailed(venue string)
	Decision(direction string)
}

// Detector quotes the same pair on two venues and decides which way, if any,
// to trade.
type Detector struct {
	first   venue.Venue
	second  venue.Venue
	volumes *VolumeTracker
	events  EventEmitter
	metrics Recorder
	logger  *slog.Logger
}

// DetectorConfig configures the detector. Events and Metrics are optional.
type DetectorConfig struct {
	First   venue.Venue
	Second  venue.Venue
	Volumes *VolumeTracker
	Events  EventEmitter
	Metrics Recorder
	Logger  *slog.Logger
}

// NewDetector creates a detector over two venues.
func NewDetector(cfg DetectorConfig) *Detector {
	vols := cfg.Volumes
	if vols == nil {
		vols = NewVolumeTracker()
	}
	return &Detector{
		first:   cfg.First,
		second:  cfg.Second,
		volumes: vols,
		events:  cfg.Events,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With(slog.String("component", "arb_detector")),
	}
}

// Detect fetches both quotes concurrently for the same scaled amount and
// returns a directional decision only when the net profit ratio strictly
// exceeds cfg.MinProfitRatio. An unavailable quote yields a None decision
// and no error; a profit computation failure is returned as an error.
func (d *Detector) Detect(ctx context.Context, pair domain.TradingPair, cfg domain.TradeConfig) (domain.ArbitrageDecision, error) {
	amount, err := domain.ScaleAmount(cfg.TradeAmount)
	if err != nil {
		return domain.NoTrade(pair, "invalid amount"), fmt.Errorf("%w: %v", domain.ErrComputation, err)
	}
	req := domain.QuoteRequest{
		InputMint:   pair.Base,
		OutputMint:  pair.Quote,
		Amount:      amount,
		SlippageBps: cfg.SlippageBps(),
	}

	var qa, qb domain.Quote
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := d.first.Quote(gctx, req)
		if err != nil {
			return &quoteError{venue: d.first.Name(), err: err}
		}
		qa = q
		return nil
	})
	g.Go(func() error {
		q, err := d.second.Quote(gctx, req)
		if err != nil {
			return &quoteError{venue: d.second.Name(), err: err}
		}
		qb = q
		return nil
	})
	if err := g.Wait(); err != nil {
		venueName := "unknown"
		var qe *quoteError
		if errors.As(err, &qe) {
			venueName = qe.venue
		}
		if d.metrics != nil {
			d.metrics.QuoteFailed(venueName)
			d.metrics.Decision(string(domain.DirectionNone))
		}
		d.logger.WarnContext(ctx, "quote unavailable",
			slog.String("pair", pair.String()),
			slog.String("venue", venueName),
			slog.String("error", err.Error()),
		)
		d.emit(ctx, domain.Event{
			Type:    domain.EventQuoteFailed,
			Pair:    pair.String(),
			Message: fmt.Sprintf("%s quote unavailable", venueName),
			Detail:  map[string]any{"venue": venueName, "error": err.Error()},
		})
		return domain.NoTrade(pair, "quote unavailable"), nil
	}

	d.trackVolume(ctx, pair, cfg, qa)
	d.trackVolume(ctx, pair, cfg, qb)

	decision := d.decide(pair, qa, qb)
	if decision.Reason == "" {
		ratio, err := ComputeProfitRatio(decision.BuyPrice, decision.SellPrice, cfg.TradeAmount, cfg.FeePerTx)
		if err != nil {
			return domain.NoTrade(pair, "computation error"), err
		}
		decision.ProfitRatio = ratio
		if ratio <= cfg.MinProfitRatio {
			decision.Direction = domain.DirectionNone
			decision.Reason = "below min profit"
		}
	}

	if d.metrics != nil {
		d.metrics.Decision(string(decision.Direction))
	}
	d.logger.DebugContext(ctx, "decision",
		slog.String("pair", pair.String()),
		slog.String("direction", string(decision.Direction)),
		slog.Float64(qa.Venue+"_price", qa.Price()),
		slog.Float64(qb.Venue+"_price", qb.Price()),
		slog.Float64("profit_ratio", decision.ProfitRatio),
	)
	return decision, nil
}

// decide orders the venues by price. Equal prices produce a None decision
// with a reason; otherwise the direction is filled and Reason is empty.
func (d *Detector) decide(pair domain.TradingPair, qa, qb domain.Quote) domain.ArbitrageDecision {
	pa, pb := qa.Price(), qb.Price()
	if pa == pb {
		return domain.NoTrade(pair, "equal prices")
	}

	buy, sell := qa, qb
	if pb < pa {
		buy, sell = qb, qa
	}
	return domain.ArbitrageDecision{
		Pair:      pair,
		Direction: domain.NewDirection(buy.Venue, sell.Venue),
		BuyVenue:  buy.Venue,
		SellVenue: sell.Venue,
		BuyPrice:  buy.Price(),
		SellPrice: sell.Price(),
		DecidedAt: time.Now().UTC(),
	}
}

func (d *Detector) trackVolume(ctx context.Context, pair domain.TradingPair, cfg domain.TradeConfig, q domain.Quote) {
	if q.Volume24h == nil {
		return
	}
	spike, ok := d.volumes.Observe(pair.Key()+":"+q.Venue, *q.Volume24h, cfg.VolumeSpikeThreshold)
	if !ok {
		return
	}
	d.logger.InfoContext(ctx, "volume spike",
		slog.String("pair", pair.String()),
		slog.String("venue", q.Venue),
		slog.Float64("previous", spike.Previous),
		slog.Float64("current", spike.Current),
		slog.Float64("ratio", spike.Ratio),
	)
	d.emit(ctx, domain.Event{
		Type:    domain.EventVolumeSpike,
		Pair:    pair.String(),
		Message: fmt.Sprintf("%s 24h volume x%.2f on %s", pair, spike.Ratio, q.Venue),
		Detail: map[string]any{
			"venue":    q.Venue,
			"previous": spike.Previous,
			"current":  spike.Current,
			"ratio":    spike.Ratio,
		},
	})
}

func (d *Detector) emit(ctx context.Context, ev domain.Event) {
	if d.events != nil {
		d.events.Emit(ctx, ev)
	}
}

type quoteError struct {
	venue string
	err   error
}

func (e *quoteError) Error() string { return e.venue + ": " + e.err.Error() }
func (e *quoteError) Unwrap() error { return e.err }
