package gmgn

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// envelope is the common response wrapper. Older router deployments signal
// success with a boolean, newer ones with code == 0.
type envelope struct {
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) ok() bool {
	if e.Success != nil {
		return *e.Success
	}
	return e.Code == 0
}

// RouteParams are the query parameters of GET /tx/get_swap_route.
type RouteParams struct {
	TokenIn     string
	TokenOut    string
	InAmount    uint64
	FromAddress string
	// SlippagePct is a percentage, e.g. 0.5.
	SlippagePct float64
}

// Route is a swap route with its unsigned transaction.
type Route struct {
	OutAmount decimal.Decimal `json:"out_amount"`
	Quote     *struct {
		OutAmount decimal.Decimal `json:"outAmount"`
	} `json:"quote,omitempty"`
	RawTx RawTx `json:"raw_tx"`
}

// RawTx holds the base64 serialized swap transaction.
type RawTx struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// OutAmountUnits returns the route output in integer base units.
func (r Route) OutAmountUnits() (uint64, error) {
	amt := r.OutAmount
	if amt.IsZero() && r.Quote != nil {
		amt = r.Quote.OutAmount
	}
	if !amt.IsPositive() {
		return 0, fmt.Errorf("gmgn: route has no out amount")
	}
	if !amt.Equal(amt.Truncate(0)) {
		return 0, fmt.Errorf("gmgn: out amount %s is not an integer", amt)
	}
	n := amt.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("gmgn: out amount %s overflows uint64", amt)
	}
	return n.Uint64(), nil
}

// SubmitResult is the data of POST /tx/submit_signed_transaction.
type SubmitResult struct {
	Hash string `json:"hash"`
}

// TxStatus is the data of GET /tx/get_transaction_status.
type TxStatus struct {
	Status  string `json:"status"`
	Success bool   `json:"success"`
	Expired bool   `json:"expired"`
}

// Confirmed reports whether the transaction has landed.
func (s TxStatus) Confirmed() bool {
	return s.Status == "confirmed" || s.Success
}

// TokenInfo is the subset of GET /tokens/{mint} the bot reads.
type TokenInfo struct {
	Address   string          `json:"address"`
	Symbol    string          `json:"symbol"`
	Volume24h decimal.Decimal `json:"volume_24h"`
}

// APIError is returned for non-2xx responses and for envelopes that report
// failure.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 && e.StatusCode != 200 {
		return fmt.Sprintf("gmgn: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gmgn: code %d: %s", e.Code, e.Message)
}
