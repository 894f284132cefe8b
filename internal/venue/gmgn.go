package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/platform/gmgn"
)

// GMGN is the asynchronous venue backed by the GMGN router.
type GMGN struct {
	client *gmgn.Client
	owner  string
	logger *slog.Logger
}

// NewGMGN creates the GMGN venue. owner is the wallet address routes are
// requested for.
func NewGMGN(client *gmgn.Client, owner string, logger *slog.Logger) *GMGN {
	return &GMGN{
		client: client,
		owner:  owner,
		logger: logger.With(slog.String("component", "venue_gmgn")),
	}
}

// Name implements Venue.
func (g *GMGN) Name() string { return domain.VenueGMGN }

// Quote implements Venue. The 24h volume of the input token is attached when
// available; a failed volume lookup leaves it nil.
func (g *GMGN) Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	route, err := g.client.GetSwapRoute(ctx, g.routeParams(req))
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%w: %v", domain.ErrQuoteUnavailable, err)
	}
	out, err := route.OutAmountUnits()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%w: %v", domain.ErrQuoteUnavailable, err)
	}
	raw, _ := json.Marshal(route)

	q := domain.Quote{
		Venue:     domain.VenueGMGN,
		InAmount:  req.Amount,
		OutAmount: out,
		Raw:       raw,
		FetchedAt: time.Now().UTC(),
	}

	info, err := g.client.GetToken(ctx, req.InputMint)
	if err != nil {
		g.logger.DebugContext(ctx, "volume lookup failed",
			slog.String("mint", req.InputMint),
			slog.String("error", err.Error()),
		)
		return q, nil
	}
	vol, _ := info.Volume24h.Float64()
	q.Volume24h = &vol
	return q, nil
}

// Route implements AsyncVenue.
func (g *GMGN) Route(ctx context.Context, req domain.QuoteRequest) (Route, error) {
	route, err := g.client.GetSwapRoute(ctx, g.routeParams(req))
	if err != nil {
		return Route{}, fmt.Errorf("%w: %v", domain.ErrRouteFailure, err)
	}
	tx, err := DecodeTx(route.RawTx.SwapTransaction)
	if err != nil {
		return Route{}, fmt.Errorf("%w: gmgn: %v", domain.ErrRouteFailure, err)
	}
	out, err := route.OutAmountUnits()
	if err != nil {
		return Route{}, fmt.Errorf("%w: %v", domain.ErrRouteFailure, err)
	}
	return Route{
		Tx:              tx,
		OutAmount:       out,
		LastValidHeight: route.RawTx.LastValidBlockHeight,
	}, nil
}

// Submit implements AsyncVenue.
func (g *GMGN) Submit(ctx context.Context, signedTx []byte) (string, error) {
	hash, err := g.client.SubmitSignedTransaction(ctx, EncodeTx(signedTx))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSubmitFailure, err)
	}
	return hash, nil
}

// Confirmed implements AsyncVenue.
func (g *GMGN) Confirmed(ctx context.Context, handle string, lastValidHeight uint64) (bool, error) {
	st, err := g.client.GetTransactionStatus(ctx, handle, lastValidHeight)
	if err != nil {
		return false, err
	}
	return st.Confirmed(), nil
}

func (g *GMGN) routeParams(req domain.QuoteRequest) gmgn.RouteParams {
	return gmgn.RouteParams{
		TokenIn:     req.InputMint,
		TokenOut:    req.OutputMint,
		InAmount:    req.Amount,
		FromAddress: g.owner,
		SlippagePct: float64(req.SlippageBps) / 100,
	}
}

var _ AsyncVenue = (*GMGN)(nil)
