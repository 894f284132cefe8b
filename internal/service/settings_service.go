// Package service holds the process-scoped state shared by the scheduler and
// the control API.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// Emitter receives operator-visible events.
type Emitter interface {
	Emit(ctx context.Context, ev domain.Event)
}

// SettingsUpdate is a partial TradeConfig change. Nil fields keep their
// current value.
type SettingsUpdate struct {
	MinProfitRatio       *float64 `json:"min_profit"`
	TradeAmount          *float64 `json:"amount"`
	SlippagePct          *float64 `json:"slippage"`
	FeePerTx             *float64 `json:"fee_per_tx"`
	VolumeSpikeThreshold *float64 `json:"volume_spike_threshold"`
}

// Apply returns base with the non-nil fields of u applied.
func (u SettingsUpdate) Apply(base domain.TradeConfig) domain.TradeConfig {
	if u.MinProfitRatio != nil {
		base.MinProfitRatio = *u.MinProfitRatio
	}
	if u.TradeAmount != nil {
		base.TradeAmount = *u.TradeAmount
	}
	if u.SlippagePct != nil {
		base.SlippagePct = *u.SlippagePct
	}
	if u.FeePerTx != nil {
		base.FeePerTx = *u.FeePerTx
	}
	if u.VolumeSpikeThreshold != nil {
		base.VolumeSpikeThreshold = *u.VolumeSpikeThreshold
	}
	return base
}

// SettingsService owns the live TradeConfig. Updates swap the whole value so
// a reader never sees fields from two different versions.
type SettingsService struct {
	cur    atomic.Pointer[domain.TradeConfig]
	events Emitter
	logger *slog.Logger
}

// NewSettingsService validates initial and stores it. events is optional.
func NewSettingsService(initial domain.TradeConfig, events Emitter, logger *slog.Logger) (*SettingsService, error) {
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("service: initial settings: %w", err)
	}
	s := &SettingsService{
		events: events,
		logger: logger.With(slog.String("component", "settings")),
	}
	s.cur.Store(&initial)
	return s, nil
}

// Snapshot returns the current settings.
func (s *SettingsService) Snapshot() domain.TradeConfig {
	return *s.cur.Load()
}

// Update applies u on top of the current settings. Invalid results are
// rejected with an error wrapping domain.ErrInvalidSettings and leave the
// settings unchanged.
func (s *SettingsService) Update(ctx context.Context, u SettingsUpdate) (domain.TradeConfig, error) {
	for {
		old := s.cur.Load()
		next := u.Apply(*old)
		if err := next.Validate(); err != nil {
			return *old, err
		}
		if s.cur.CompareAndSwap(old, &next) {
			s.announce(ctx, *old, next)
			return next, nil
		}
	}
}

func (s *SettingsService) announce(ctx context.Context, old, next domain.TradeConfig) {
	s.logger.InfoContext(ctx, "settings updated",
		slog.Float64("min_profit", next.MinProfitRatio),
		slog.Float64("amount", next.TradeAmount),
		slog.Float64("slippage", next.SlippagePct),
		slog.Float64("fee_per_tx", next.FeePerTx),
		slog.Float64("volume_spike_threshold", next.VolumeSpikeThreshold),
	)
	if s.events == nil {
		return
	}
	s.events.Emit(ctx, domain.Event{
		Type: domain.EventSettings,
		Message: fmt.Sprintf("settings updated: min_profit=%g amount=%g slippage=%g fee_per_tx=%g volume_spike_threshold=%g",
			next.MinProfitRatio, next.TradeAmount, next.SlippagePct, next.FeePerTx, next.VolumeSpikeThreshold),
		Detail: map[string]any{"old": old, "new": next},
	})
}
