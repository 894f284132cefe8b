package venue

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/platform/gmgn"
	"github.com/alanyoungcy/dexarb/internal/platform/jupiter"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecodeTx(t *testing.T) {
	raw := []byte{0x01, 0xfe, 0x10, 0x99, 0x42}

	got, err := DecodeTx(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = DecodeTx("01fe109942")
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = DecodeTx("0x01fe109942")
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	// "abcd" is valid hex and valid base64; venues send base64.
	got, err = DecodeTx(base64.StdEncoding.EncodeToString([]byte{0x69, 0xb7, 0x1d}))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x69, 0xb7, 0x1d}, got)

	_, err = DecodeTx("")
	assert.Error(t, err)
	_, err = DecodeTx("0x")
	assert.Error(t, err)
	_, err = DecodeTx("!!not-a-tx!!")
	assert.Error(t, err)
}

func TestJupiter_QuoteAndBuild(t *testing.T) {
	tx := []byte{1, 2, 3}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quote":
			w.Write([]byte(`{"inAmount":"100000000","outAmount":"110000000"}`))
		case "/swap":
			w.Write([]byte(`{"swapTransaction":"` + base64.StdEncoding.EncodeToString(tx) + `"}`))
		}
	}))
	defer srv.Close()

	v := NewJupiter(jupiter.NewClient(srv.URL), "WALLET")
	q, err := v.Quote(context.Background(), domain.QuoteRequest{InputMint: "A", OutputMint: "B", Amount: 100_000_000, SlippageBps: 50})
	require.NoError(t, err)
	assert.Equal(t, domain.VenueJupiter, q.Venue)
	assert.InDelta(t, 0.11, q.Price(), 1e-12)
	assert.Nil(t, q.Volume24h)

	built, err := v.BuildSwap(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, tx, built)
}

func TestJupiter_ErrorsAreClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	v := NewJupiter(jupiter.NewClient(srv.URL), "WALLET")
	_, err := v.Quote(context.Background(), domain.QuoteRequest{InputMint: "A", OutputMint: "B", Amount: 1})
	assert.True(t, errors.Is(err, domain.ErrQuoteUnavailable))

	_, err = v.BuildSwap(context.Background(), domain.Quote{Raw: []byte(`{}`)})
	assert.True(t, errors.Is(err, domain.ErrRouteFailure))

	_, err = v.BuildSwap(context.Background(), domain.Quote{})
	assert.True(t, errors.Is(err, domain.ErrRouteFailure))
}

func TestGMGN_QuoteWithVolume(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tx/get_swap_route":
			assert.Equal(t, "WALLET", r.URL.Query().Get("from_address"))
			assert.Equal(t, "0.5", r.URL.Query().Get("slippage"))
			w.Write([]byte(`{"success":true,"data":{"out_amount":"100000000","raw_tx":{"swapTransaction":"AQID"}}}`))
		case "/tokens/A":
			w.Write([]byte(`{"code":0,"data":{"volume_24h":"5000"}}`))
		}
	}))
	defer srv.Close()

	v := NewGMGN(gmgn.NewClient(srv.URL), "WALLET", discardLogger())
	q, err := v.Quote(context.Background(), domain.QuoteRequest{InputMint: "A", OutputMint: "B", Amount: 100_000_000, SlippageBps: 50})
	require.NoError(t, err)
	assert.InDelta(t, 0.1, q.Price(), 1e-12)
	require.NotNil(t, q.Volume24h)
	assert.InDelta(t, 5000, *q.Volume24h, 1e-9)
}

func TestGMGN_VolumeFailureKeepsQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tx/get_swap_route" {
			w.Write([]byte(`{"success":true,"data":{"out_amount":"7","raw_tx":{"swapTransaction":"AQID"}}}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	v := NewGMGN(gmgn.NewClient(srv.URL), "WALLET", discardLogger())
	q, err := v.Quote(context.Background(), domain.QuoteRequest{InputMint: "A", OutputMint: "B", Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), q.OutAmount)
	assert.Nil(t, q.Volume24h)
}

func TestGMGN_RouteSubmitConfirm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tx/get_swap_route":
			w.Write([]byte(`{"success":true,"data":{"out_amount":"9","raw_tx":{"swapTransaction":"AQID","lastValidBlockHeight":77}}}`))
		case "/tx/submit_signed_transaction":
			w.Write([]byte(`{"success":true,"data":{"hash":"H1"}}`))
		case "/tx/get_transaction_status":
			assert.Equal(t, "77", r.URL.Query().Get("last_valid_height"))
			w.Write([]byte(`{"success":true,"data":{"status":"processing"}}`))
		}
	}))
	defer srv.Close()

	v := NewGMGN(gmgn.NewClient(srv.URL), "WALLET", discardLogger())
	route, err := v.Route(context.Background(), domain.QuoteRequest{InputMint: "A", OutputMint: "B", Amount: 1})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, route.Tx)

	hash, err := v.Submit(context.Background(), route.Tx)
	require.NoError(t, err)
	assert.Equal(t, "H1", hash)

	ok, err := v.Confirmed(context.Background(), hash, route.LastValidHeight)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGMGN_SubmitFailureIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"msg":"blockhash not found"}`))
	}))
	defer srv.Close()

	v := NewGMGN(gmgn.NewClient(srv.URL), "WALLET", discardLogger())
	_, err := v.Submit(context.Background(), []byte{1})
	assert.ErrorIs(t, err, domain.ErrSubmitFailure)

	_, err = v.Route(context.Background(), domain.QuoteRequest{InputMint: "A", OutputMint: "B", Amount: 1})
	assert.ErrorIs(t, err, domain.ErrRouteFailure)
}

func TestGMGN_RouteWithoutOutAmountFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"raw_tx":{"swapTransaction":"AQID","lastValidBlockHeight":77}}}`))
	}))
	defer srv.Close()

	v := NewGMGN(gmgn.NewClient(srv.URL), "WALLET", discardLogger())
	_, err := v.Route(context.Background(), domain.QuoteRequest{InputMint: "A", OutputMint: "B", Amount: 1})
	assert.ErrorIs(t, err, domain.ErrRouteFailure)
}

func TestRegistry(t *testing.T) {
	j := NewJupiter(jupiter.NewClient("http://unused"), "WALLET")
	g := NewGMGN(gmgn.NewClient("http://unused"), "WALLET", discardLogger())
	r := NewRegistry(j, g)

	assert.Equal(t, []string{domain.VenueGMGN, domain.VenueJupiter}, r.Names())

	v, err := r.Get(domain.VenueGMGN)
	require.NoError(t, err)
	_, async := v.(AsyncVenue)
	assert.True(t, async)

	v, err = r.Get(domain.VenueJupiter)
	require.NoError(t, err)
	_, sync := v.(SyncVenue)
	assert.True(t, sync)

	_, err = r.Get("raydium")
	assert.Error(t, err)
}
