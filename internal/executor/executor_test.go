package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexarb/internal/domain"
	solanarpc "github.com/alanyoungcy/dexarb/internal/platform/solana"
	"github.com/alanyoungcy/dexarb/internal/venue"
	"github.com/alanyoungcy/dexarb/internal/wallet"
)

var testPair = domain.TradingPair{Name: "SOL/USDC", Base: "BASE", Quote: "QUOTE"}

type fakeSigner struct {
	err   error
	calls int
}

func (s *fakeSigner) SignTransaction(tx []byte) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]byte("signed:"), tx...), nil
}

func (s *fakeSigner) PublicKey() string { return "owner" }

type fakeBroadcaster struct {
	err  error
	sent [][]byte
}

func (b *fakeBroadcaster) SendTransaction(_ context.Context, tx []byte) (string, error) {
	b.sent = append(b.sent, tx)
	if b.err != nil {
		return "", b.err
	}
	return "sig-1", nil
}

type fakeAsync struct {
	name       string
	routeErr   error
	submitErrs []error
	confirmOn  int // poll number that confirms; 0 never

	routes  int
	submits [][]byte
	polls   int
}

func (f *fakeAsync) Name() string { return f.name }

func (f *fakeAsync) Quote(_ context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	return domain.Quote{Venue: f.name, InAmount: req.Amount, OutAmount: req.Amount}, nil
}

func (f *fakeAsync) Route(_ context.Context, _ domain.QuoteRequest) (venue.Route, error) {
	f.routes++
	if f.routeErr != nil {
		return venue.Route{}, f.routeErr
	}
	return venue.Route{Tx: []byte("tx"), OutAmount: 1, LastValidHeight: 99}, nil
}

func (f *fakeAsync) Submit(_ context.Context, signed []byte) (string, error) {
	f.submits = append(f.submits, signed)
	if n := len(f.submits); n <= len(f.submitErrs) && f.submitErrs[n-1] != nil {
		return "", f.submitErrs[n-1]
	}
	return "hash-1", nil
}

func (f *fakeAsync) Confirmed(_ context.Context, _ string, _ uint64) (bool, error) {
	f.polls++
	return f.confirmOn > 0 && f.polls >= f.confirmOn, nil
}

type fakeSync struct {
	name     string
	quoteErr error
	buildErr error
	tx       []byte
	quotes   []domain.QuoteRequest
}

func (f *fakeSync) Name() string { return f.name }

func (f *fakeSync) Quote(_ context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	f.quotes = append(f.quotes, req)
	if f.quoteErr != nil {
		return domain.Quote{}, f.quoteErr
	}
	return domain.Quote{Venue: f.name, InAmount: req.Amount, OutAmount: req.Amount, Raw: []byte(`{}`)}, nil
}

func (f *fakeSync) BuildSwap(_ context.Context, _ domain.Quote) ([]byte, error) {
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	if f.tx != nil {
		return f.tx, nil
	}
	return []byte("tx"), nil
}

type recordingWait struct {
	waits []time.Duration
}

func (w *recordingWait) wait(_ context.Context, d time.Duration) error {
	w.waits = append(w.waits, d)
	return nil
}

func newTestExecutor(signer venue.Signer, b venue.Broadcaster, w *recordingWait, dryRun bool) *Executor {
	return New(Config{
		Signer:      signer,
		Broadcaster: b,
		Policy:      DefaultRetryPolicy(),
		DryRun:      dryRun,
		Wait:        w.wait,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func testLeg() domain.Leg {
	return domain.Leg{Pair: testPair, Index: 1, InputMint: "BASE", OutputMint: "QUOTE", Amount: 1_000_000_000, SlippageBps: 50}
}

func TestAsync_RouteAlwaysFailsExhaustsThreeAttempts(t *testing.T) {
	v := &fakeAsync{name: "gmgn", routeErr: domain.ErrRouteFailure}
	w := &recordingWait{}
	e := newTestExecutor(&fakeSigner{}, nil, w, false)

	res := e.ExecuteTrade(context.Background(), v, testLeg())

	assert.Equal(t, domain.TradeFailed, res.Status)
	assert.Equal(t, 3, v.routes)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, w.waits)
	assert.ErrorIs(t, res.Err, domain.ErrAttemptsExhausted)
	assert.ErrorIs(t, res.Err, domain.ErrRouteFailure)
	assert.NotEmpty(t, res.Error)
	assert.Empty(t, v.submits)
}

func TestAsync_NeverConfirmedIsPending(t *testing.T) {
	v := &fakeAsync{name: "gmgn"}
	w := &recordingWait{}
	e := newTestExecutor(&fakeSigner{}, nil, w, false)

	res := e.ExecuteTrade(context.Background(), v, testLeg())

	assert.Equal(t, domain.TradePending, res.Status)
	assert.True(t, res.Succeeded())
	assert.Equal(t, 10, v.polls)
	assert.Equal(t, 10, res.Polls)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "hash-1", res.TxHandle)
	require.Len(t, w.waits, 9)
	for _, d := range w.waits {
		assert.Equal(t, time.Second, d)
	}
	assert.NoError(t, res.Err)
}

func TestAsync_ConfirmedOnThirdPoll(t *testing.T) {
	v := &fakeAsync{name: "gmgn", confirmOn: 3}
	w := &recordingWait{}
	signer := &fakeSigner{}
	e := newTestExecutor(signer, nil, w, false)

	res := e.ExecuteTrade(context.Background(), v, testLeg())

	assert.Equal(t, domain.TradeConfirmed, res.Status)
	assert.Equal(t, 3, res.Polls)
	assert.Len(t, w.waits, 2)
	require.Len(t, v.submits, 1)
	assert.Equal(t, []byte("signed:tx"), v.submits[0])
	assert.Equal(t, 1, signer.calls)
}

func TestAsync_SubmitFailureRetries(t *testing.T) {
	v := &fakeAsync{name: "gmgn", confirmOn: 1, submitErrs: []error{domain.ErrSubmitFailure}}
	w := &recordingWait{}
	e := newTestExecutor(&fakeSigner{}, nil, w, false)

	res := e.ExecuteTrade(context.Background(), v, testLeg())

	assert.Equal(t, domain.TradeConfirmed, res.Status)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 2, v.routes)
	assert.Equal(t, []time.Duration{2 * time.Second}, w.waits)
}

func TestAsync_CancelledDuringBackoff(t *testing.T) {
	v := &fakeAsync{name: "gmgn", routeErr: domain.ErrRouteFailure}
	e := New(Config{
		Signer: &fakeSigner{},
		Wait:   func(context.Context, time.Duration) error { return context.Canceled },
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	res := e.ExecuteTrade(context.Background(), v, testLeg())

	assert.Equal(t, domain.TradeFailed, res.Status)
	assert.Equal(t, 1, v.routes)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestNoSigner_FailsWithoutTouchingVenue(t *testing.T) {
	v := &fakeAsync{name: "gmgn"}
	e := New(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	res := e.ExecuteTrade(context.Background(), v, testLeg())

	assert.Equal(t, domain.TradeFailed, res.Status)
	assert.Zero(t, v.routes)
	assert.ErrorContains(t, res.Err, "no signer")
}

func TestSync_Broadcasts(t *testing.T) {
	v := &fakeSync{name: "jupiter"}
	b := &fakeBroadcaster{}
	w := &recordingWait{}
	e := newTestExecutor(&fakeSigner{}, b, w, false)

	res := e.ExecuteTrade(context.Background(), v, testLeg())

	assert.Equal(t, domain.TradeConfirmed, res.Status)
	assert.Equal(t, "sig-1", res.TxHandle)
	require.Len(t, b.sent, 1)
	assert.Equal(t, []byte("signed:tx"), b.sent[0])
	require.Len(t, v.quotes, 1)
	assert.Equal(t, uint64(1_000_000_000), v.quotes[0].Amount)
	assert.Empty(t, w.waits)
}

func TestSync_FailuresAreNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		venue   *fakeSync
		signer  *fakeSigner
		bcast   *fakeBroadcaster
		wantErr error
	}{
		{"quote", &fakeSync{name: "jupiter", quoteErr: domain.ErrQuoteUnavailable}, &fakeSigner{}, &fakeBroadcaster{}, domain.ErrQuoteUnavailable},
		{"build", &fakeSync{name: "jupiter", buildErr: domain.ErrRouteFailure}, &fakeSigner{}, &fakeBroadcaster{}, domain.ErrRouteFailure},
		{"sign", &fakeSync{name: "jupiter"}, &fakeSigner{err: domain.ErrSigningFailed}, &fakeBroadcaster{}, domain.ErrSigningFailed},
		{"broadcast", &fakeSync{name: "jupiter"}, &fakeSigner{}, &fakeBroadcaster{err: errors.New("rpc down")}, domain.ErrSubmitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExecutor(tt.signer, tt.bcast, &recordingWait{}, false)
			res := e.ExecuteTrade(context.Background(), tt.venue, testLeg())
			assert.Equal(t, domain.TradeFailed, res.Status)
			assert.Equal(t, 1, res.Attempts)
			assert.ErrorIs(t, res.Err, tt.wantErr)
			assert.LessOrEqual(t, len(tt.venue.quotes), 1)
		})
	}
}

func unsignedTx(t *testing.T, payer solana.PublicKey) []byte {
	t.Helper()
	tx := &solana.Transaction{
		Signatures: make([]solana.Signature, 1),
		Message: solana.Message{
			Header:      solana.MessageHeader{NumRequiredSignatures: 1, NumReadonlyUnsignedAccounts: 1},
			AccountKeys: solana.PublicKeySlice{payer, solana.SystemProgramID},
		},
	}
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func TestSync_BroadcastSentOnceThroughRPC(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	kp, err := wallet.NewKeypairFromSeed(make([]byte, 32))
	require.NoError(t, err)
	owner, err := solana.PublicKeyFromBase58(kp.PublicKey())
	require.NoError(t, err)

	rpcClient := solanarpc.NewRPCClient(srv.URL,
		solanarpc.WithMaxRetries(3),
		solanarpc.WithRetryDelay(time.Millisecond),
	)
	v := &fakeSync{name: "jupiter", tx: unsignedTx(t, owner)}
	e := newTestExecutor(kp, rpcClient, &recordingWait{}, false)

	res := e.ExecuteTrade(context.Background(), v, testLeg())

	assert.Equal(t, domain.TradeFailed, res.Status)
	assert.ErrorIs(t, res.Err, domain.ErrSubmitFailure)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDryRun_DoesNotTouchVenue(t *testing.T) {
	v := &fakeAsync{name: "gmgn"}
	e := newTestExecutor(&fakeSigner{}, nil, &recordingWait{}, true)

	res := e.ExecuteTrade(context.Background(), v, testLeg())

	assert.Equal(t, domain.TradePending, res.Status)
	assert.True(t, res.DryRun)
	assert.Empty(t, res.TxHandle)
	assert.Zero(t, v.routes)
}

func TestRoundTrip_LegsAreSequentialAndMirrored(t *testing.T) {
	buy := &fakeSync{name: "jupiter"}
	sell := &fakeAsync{name: "gmgn", confirmOn: 1}
	e := newTestExecutor(&fakeSigner{}, &fakeBroadcaster{}, &recordingWait{}, false)
	d := domain.ArbitrageDecision{Pair: testPair, Direction: domain.NewDirection("jupiter", "gmgn"), BuyVenue: "jupiter", SellVenue: "gmgn"}
	cfg := domain.TradeConfig{TradeAmount: 0.1, SlippagePct: 0.5}

	rt, err := e.ExecuteRoundTrip(context.Background(), d, buy, sell, cfg, LegPolicyBestEffort)
	require.NoError(t, err)

	require.Len(t, rt.Legs, 2)
	assert.Equal(t, 1, rt.Legs[0].Leg)
	assert.Equal(t, "jupiter", rt.Legs[0].Venue)
	assert.Equal(t, 2, rt.Legs[1].Leg)
	assert.Equal(t, "gmgn", rt.Legs[1].Venue)
	assert.False(t, rt.Legs[1].StartedAt.Before(rt.Legs[0].FinishedAt))
	require.Len(t, buy.quotes, 1)
	assert.Equal(t, "BASE", buy.quotes[0].InputMint)
	assert.Equal(t, uint64(100_000_000), buy.quotes[0].Amount)
	assert.Equal(t, 50, buy.quotes[0].SlippageBps)
	assert.True(t, rt.Succeeded())
}

func TestRoundTrip_LegPolicy(t *testing.T) {
	d := domain.ArbitrageDecision{Pair: testPair, Direction: domain.NewDirection("jupiter", "gmgn")}
	cfg := domain.TradeConfig{TradeAmount: 1}

	t.Run("best effort runs leg two after a failure", func(t *testing.T) {
		buy := &fakeSync{name: "jupiter", quoteErr: domain.ErrQuoteUnavailable}
		sell := &fakeAsync{name: "gmgn", confirmOn: 1}
		e := newTestExecutor(&fakeSigner{}, &fakeBroadcaster{}, &recordingWait{}, false)

		rt, err := e.ExecuteRoundTrip(context.Background(), d, buy, sell, cfg, LegPolicyBestEffort)
		require.NoError(t, err)
		require.Len(t, rt.Legs, 2)
		assert.Equal(t, domain.TradeFailed, rt.Legs[0].Status)
		assert.Equal(t, domain.TradeConfirmed, rt.Legs[1].Status)
		assert.False(t, rt.Succeeded())
	})

	t.Run("all or none stops after a failure", func(t *testing.T) {
		buy := &fakeSync{name: "jupiter", quoteErr: domain.ErrQuoteUnavailable}
		sell := &fakeAsync{name: "gmgn", confirmOn: 1}
		e := newTestExecutor(&fakeSigner{}, &fakeBroadcaster{}, &recordingWait{}, false)

		rt, err := e.ExecuteRoundTrip(context.Background(), d, buy, sell, cfg, LegPolicyAllOrNone)
		require.NoError(t, err)
		assert.Len(t, rt.Legs, 1)
		assert.True(t, rt.Skipped)
		assert.Zero(t, sell.routes)
	})
}

func TestParseLegPolicy(t *testing.T) {
	p, err := ParseLegPolicy("")
	require.NoError(t, err)
	assert.Equal(t, LegPolicyBestEffort, p)

	p, err = ParseLegPolicy("all_or_none")
	require.NoError(t, err)
	assert.Equal(t, LegPolicyAllOrNone, p)

	_, err = ParseLegPolicy("yolo")
	assert.Error(t, err)
}
