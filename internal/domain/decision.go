package domain

import "time"

// Direction names which venue is bought on and which is sold on.
type Direction string

// DirectionNone means no trade this cycle.
const DirectionNone Direction = "none"

// NewDirection builds the "<buy>_to_<sell>" direction label.
func NewDirection(buyVenue, sellVenue string) Direction {
	return Direction(buyVenue + "_to_" + sellVenue)
}

// ArbitrageDecision is the detector output for one pair in one cycle.
type ArbitrageDecision struct {
	Pair        TradingPair `json:"pair"`
	Direction   Direction   `json:"direction"`
	BuyVenue    string      `json:"buy_venue,omitempty"`
	SellVenue   string      `json:"sell_venue,omitempty"`
	BuyPrice    float64     `json:"buy_price,omitempty"`
	SellPrice   float64     `json:"sell_price,omitempty"`
	ProfitRatio float64     `json:"profit_ratio"`
	Reason      string      `json:"reason,omitempty"`
	DecidedAt   time.Time   `json:"decided_at"`
}

// Actionable reports whether the decision asks for a trade.
func (d ArbitrageDecision) Actionable() bool {
	return d.Direction != "" && d.Direction != DirectionNone
}

// NoTrade returns a None decision carrying the reason it was not traded.
func NoTrade(pair TradingPair, reason string) ArbitrageDecision {
	return ArbitrageDecision{
		Pair:      pair,
		Direction: DirectionNone,
		Reason:    reason,
		DecidedAt: time.Now().UTC(),
	}
}
