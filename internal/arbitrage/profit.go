// Package arbitrage decides, for one trading pair at a time, whether the
// two venues disagree on price by enough to pay for a round trip.
package arbitrage

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// LegsPerArbitrage is the number of transactions charged FeePerTx in one
// round trip (buy leg plus sell leg).
const LegsPerArbitrage = 2

// ComputeProfitRatio returns the net profit of buying amount at buyPrice and
// selling it at sellPrice, after LegsPerArbitrage fees, relative to the
// buy cost. A zero or non-finite buy cost is a computation error.
func ComputeProfitRatio(buyPrice, sellPrice, amount, feePerTx float64) (float64, error) {
	cost := amount * buyPrice
	if cost == 0 || !finite(cost) {
		return 0, fmt.Errorf("%w: buy cost is %v (amount=%v price=%v)", domain.ErrComputation, cost, amount, buyPrice)
	}
	revenue := amount * sellPrice
	ratio := (revenue - cost - LegsPerArbitrage*feePerTx) / cost
	if !finite(ratio) {
		return 0, fmt.Errorf("%w: profit ratio is %v", domain.ErrComputation, ratio)
	}
	return ratio, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
