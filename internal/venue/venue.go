// Package venue adapts the exchange clients to a single quoting capability
// with two settlement variants: synchronous (build, sign, broadcast) and
// asynchronous (route, sign, submit, poll).
package venue

import (
	"context"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// Venue quotes swaps.
type Venue interface {
	Name() string
	Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error)
}

// SyncVenue returns an unsigned transaction for a quote. The caller signs
// and broadcasts it; acceptance by the RPC node settles the leg.
type SyncVenue interface {
	Venue
	BuildSwap(ctx context.Context, q domain.Quote) ([]byte, error)
}

// Route is an unsigned transaction handed out by an asynchronous venue.
type Route struct {
	Tx              []byte
	OutAmount       uint64
	LastValidHeight uint64
}

// AsyncVenue accepts signed transactions and reports their status later.
type AsyncVenue interface {
	Venue
	Route(ctx context.Context, req domain.QuoteRequest) (Route, error)
	Submit(ctx context.Context, signedTx []byte) (string, error)
	Confirmed(ctx context.Context, handle string, lastValidHeight uint64) (bool, error)
}

// Signer signs serialized transactions with the trading wallet.
type Signer interface {
	SignTransaction(tx []byte) ([]byte, error)
	PublicKey() string
}

// Broadcaster sends signed transactions to the network.
type Broadcaster interface {
	SendTransaction(ctx context.Context, signedTx []byte) (string, error)
}
