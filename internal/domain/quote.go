package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LamportDecimals is the fixed scaling applied to every amount sent to or
// received from a venue. Both venues are always asked for the same scaled
// integer so their out amounts are directly comparable.
const LamportDecimals = 9

var lamportScale = decimal.New(1, LamportDecimals)

// ScaleAmount converts a human amount (e.g. 0.1) into the integer base units
// used on the wire. Fractions below one base unit are truncated.
func ScaleAmount(amount float64) (uint64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("domain: scale amount %v: must be positive", amount)
	}
	scaled := decimal.NewFromFloat(amount).Mul(lamportScale).Truncate(0)
	if !scaled.IsPositive() {
		return 0, fmt.Errorf("domain: scale amount %v: below one base unit", amount)
	}
	if scaled.GreaterThan(decimal.NewFromUint64(^uint64(0))) {
		return 0, fmt.Errorf("domain: scale amount %v: overflows uint64", amount)
	}
	return scaled.BigInt().Uint64(), nil
}

// UnscaleAmount is the inverse of ScaleAmount.
func UnscaleAmount(units uint64) float64 {
	f, _ := decimal.NewFromUint64(units).Div(lamportScale).Float64()
	return f
}

// QuoteRequest asks a venue how much OutputMint it would return for Amount
// base units of InputMint.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
}

// Quote is a venue's answer to a QuoteRequest. Raw carries the venue payload
// untouched so it can be handed back to the same venue when building a swap.
type Quote struct {
	Venue     string          `json:"venue"`
	InAmount  uint64          `json:"in_amount"`
	OutAmount uint64          `json:"out_amount"`
	Raw       json.RawMessage `json:"-"`
	Volume24h *float64        `json:"volume_24h,omitempty"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Price is OutAmount expressed in whole units under the same scaling that was
// applied to the request amount.
func (q Quote) Price() float64 {
	return UnscaleAmount(q.OutAmount)
}
