package domain

import (
	"context"
	"time"
)

// EventType classifies entries in the append-only event log.
type EventType string

const (
	EventCycleStarted   EventType = "cycle_started"
	EventNoTrade        EventType = "no_trade"
	EventArbDetected    EventType = "arb_detected"
	EventTradeConfirmed EventType = "trade_confirmed"
	EventTradePending   EventType = "trade_pending"
	EventTradeFailed    EventType = "trade_failed"
	EventQuoteFailed    EventType = "quote_failed"
	EventVolumeSpike    EventType = "volume_spike"
	EventPairError      EventType = "pair_error"
	EventBotStarted     EventType = "bot_started"
	EventBotStopped     EventType = "bot_stopped"
	EventSettings       EventType = "settings_updated"
)

// Event is one human-readable log line plus structured detail.
type Event struct {
	ID      string         `json:"id"`
	Type    EventType      `json:"type"`
	Pair    string         `json:"pair,omitempty"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail,omitempty"`
	At      time.Time      `json:"at"`
}

// EventLog is an append-only sink for operator-visible events. Recent returns
// newest first.
type EventLog interface {
	Append(ctx context.Context, ev Event) error
	Recent(ctx context.Context, limit int) ([]Event, error)
}
