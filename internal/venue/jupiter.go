package venue

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/platform/jupiter"
)

// Jupiter is the synchronous venue backed by the Jupiter aggregator.
type Jupiter struct {
	client *jupiter.Client
	owner  string
}

// NewJupiter creates the Jupiter venue. owner is the wallet address swaps
// are built for.
func NewJupiter(client *jupiter.Client, owner string) *Jupiter {
	return &Jupiter{client: client, owner: owner}
}

// Name implements Venue.
func (j *Jupiter) Name() string { return domain.VenueJupiter }

// Quote implements Venue.
func (j *Jupiter) Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	resp, err := j.client.Quote(ctx, jupiter.QuoteParams{
		InputMint:   req.InputMint,
		OutputMint:  req.OutputMint,
		Amount:      req.Amount,
		SlippageBps: req.SlippageBps,
	})
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%w: %v", domain.ErrQuoteUnavailable, err)
	}
	out, err := resp.OutAmountUnits()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%w: %v", domain.ErrQuoteUnavailable, err)
	}
	return domain.Quote{
		Venue:     domain.VenueJupiter,
		InAmount:  req.Amount,
		OutAmount: out,
		Raw:       resp.Raw,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// BuildSwap implements SyncVenue.
func (j *Jupiter) BuildSwap(ctx context.Context, q domain.Quote) ([]byte, error) {
	if len(q.Raw) == 0 {
		return nil, fmt.Errorf("%w: jupiter: quote carries no route payload", domain.ErrRouteFailure)
	}
	resp, err := j.client.Swap(ctx, jupiter.SwapRequest{
		QuoteResponse:    q.Raw,
		UserPublicKey:    j.owner,
		WrapAndUnwrapSol: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRouteFailure, err)
	}
	tx, err := DecodeTx(resp.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("%w: jupiter: %v", domain.ErrRouteFailure, err)
	}
	return tx, nil
}

var _ SyncVenue = (*Jupiter)(nil)
