package jupiter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Quote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "MINT_IN", q.Get("inputMint"))
		assert.Equal(t, "MINT_OUT", q.Get("outputMint"))
		assert.Equal(t, "100000000", q.Get("amount"))
		assert.Equal(t, "50", q.Get("slippageBps"))
		w.Write([]byte(`{"inputMint":"MINT_IN","inAmount":"100000000","outputMint":"MINT_OUT","outAmount":"17250000","routePlan":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := c.Quote(context.Background(), QuoteParams{
		InputMint: "MINT_IN", OutputMint: "MINT_OUT", Amount: 100_000_000, SlippageBps: 50,
	})
	require.NoError(t, err)

	out, err := resp.OutAmountUnits()
	require.NoError(t, err)
	assert.Equal(t, uint64(17_250_000), out)
	assert.Contains(t, string(resp.Raw), "routePlan")
}

func TestClient_QuoteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Could not find any route","errorCode":"COULD_NOT_FIND_ANY_ROUTE"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Quote(context.Background(), QuoteParams{InputMint: "a", OutputMint: "b", Amount: 1})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "COULD_NOT_FIND_ANY_ROUTE", apiErr.Code)
}

func TestClient_Swap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/swap", r.URL.Path)

		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "WALLET", req["userPublicKey"])
		assert.Equal(t, true, req["wrapAndUnwrapSol"])
		assert.NotNil(t, req["quoteResponse"])

		w.Write([]byte(`{"swapTransaction":"AQID","lastValidBlockHeight":42}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).Swap(context.Background(), SwapRequest{
		QuoteResponse:    json.RawMessage(`{"outAmount":"1"}`),
		UserPublicKey:    "WALLET",
		WrapAndUnwrapSol: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "AQID", resp.SwapTransaction)
	assert.Equal(t, uint64(42), resp.LastValidBlockHeight)
}

func TestClient_SwapMissingTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Swap(context.Background(), SwapRequest{UserPublicKey: "W"})
	assert.Error(t, err)
}

func TestQuoteResponse_OutAmountUnits(t *testing.T) {
	_, err := QuoteResponse{}.OutAmountUnits()
	assert.Error(t, err)
	_, err = QuoteResponse{OutAmount: "1.5"}.OutAmountUnits()
	assert.Error(t, err)
}
