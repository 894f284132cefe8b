package domain

import (
	"fmt"
	"time"
)

// TradeConfig holds the operator-tunable trading parameters. It is replaced
// as a whole value; readers always work from one consistent snapshot.
type TradeConfig struct {
	MinProfitRatio       float64 `json:"min_profit"`
	TradeAmount          float64 `json:"amount"`
	SlippagePct          float64 `json:"slippage"`
	FeePerTx             float64 `json:"fee_per_tx"`
	VolumeSpikeThreshold float64 `json:"volume_spike_threshold"`
}

// SlippageBps converts the percentage slippage into basis points.
func (c TradeConfig) SlippageBps() int {
	return int(c.SlippagePct*100 + 0.5)
}

// Validate rejects settings the bot cannot trade with.
func (c TradeConfig) Validate() error {
	switch {
	case c.MinProfitRatio < 0:
		return fmt.Errorf("%w: min_profit must be >= 0", ErrInvalidSettings)
	case c.TradeAmount <= 0:
		return fmt.Errorf("%w: amount must be > 0", ErrInvalidSettings)
	case c.SlippagePct < 0 || c.SlippagePct > 100:
		return fmt.Errorf("%w: slippage must be within 0-100", ErrInvalidSettings)
	case c.FeePerTx < 0:
		return fmt.Errorf("%w: fee_per_tx must be >= 0", ErrInvalidSettings)
	case c.VolumeSpikeThreshold < 0:
		return fmt.Errorf("%w: volume_spike_threshold must be >= 0", ErrInvalidSettings)
	}
	return nil
}

// Leg is one swap of an arbitrage: Amount base units of InputMint into
// OutputMint on a single venue.
type Leg struct {
	Pair        TradingPair
	Index       int
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
}

// TradeStatus is the terminal outcome of a leg.
type TradeStatus string

const (
	TradeConfirmed TradeStatus = "confirmed"
	TradePending   TradeStatus = "pending"
	TradeFailed    TradeStatus = "failed"
)

// TradeResult reports what happened to one leg. A pending result means the
// transaction was accepted but not seen confirmed within the polling window.
type TradeResult struct {
	ID         string      `json:"id"`
	Venue      string      `json:"venue"`
	Pair       string      `json:"pair"`
	Leg        int         `json:"leg"`
	Status     TradeStatus `json:"status"`
	TxHandle   string      `json:"tx_handle,omitempty"`
	Attempts   int         `json:"attempts"`
	Polls      int         `json:"polls"`
	DryRun     bool        `json:"dry_run,omitempty"`
	Err        error       `json:"-"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Succeeded reports whether the venue accepted the transaction. Pending
// counts as accepted.
func (r TradeResult) Succeeded() bool {
	return r.Status == TradeConfirmed || r.Status == TradePending
}
