package jupiter

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// QuoteParams are the query parameters of GET /quote.
type QuoteParams struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
}

// QuoteResponse is the subset of the /quote payload the bot reads. Raw keeps
// the complete body because /swap expects it back verbatim.
type QuoteResponse struct {
	InputMint            string `json:"inputMint"`
	InAmount             string `json:"inAmount"`
	OutputMint           string `json:"outputMint"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	SlippageBps          int    `json:"slippageBps"`
	PriceImpactPct       string `json:"priceImpactPct"`

	Raw json.RawMessage `json:"-"`
}

// OutAmountUnits parses OutAmount as integer base units.
func (q QuoteResponse) OutAmountUnits() (uint64, error) {
	if q.OutAmount == "" {
		return 0, fmt.Errorf("jupiter: quote has no outAmount")
	}
	n, err := strconv.ParseUint(q.OutAmount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("jupiter: parse outAmount %q: %w", q.OutAmount, err)
	}
	return n, nil
}

// SwapRequest is the body of POST /swap.
type SwapRequest struct {
	QuoteResponse    json.RawMessage `json:"quoteResponse"`
	UserPublicKey    string          `json:"userPublicKey"`
	WrapAndUnwrapSol bool            `json:"wrapAndUnwrapSol"`
}

// SwapResponse carries the unsigned serialized transaction.
type SwapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// errorResponse is the error body Jupiter returns on 4xx/5xx.
type errorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("jupiter: HTTP %d: %s (%s)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("jupiter: HTTP %d: %s", e.StatusCode, e.Message)
}
