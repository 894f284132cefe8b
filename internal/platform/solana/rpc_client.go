// Package solana broadcasts signed transactions and reads wallet balances
// through a Solana RPC node.
package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// DefaultEndpoint is the public mainnet RPC.
const DefaultEndpoint = "https://api.mainnet-beta.solana.com"

const (
	DefaultTimeout    = 30 * time.Second
	DefaultRetryDelay = 500 * time.Millisecond
	DefaultMaxDelay   = 5 * time.Second
)

// RPCClient talks to a Solana RPC node.
type RPCClient struct {
	rpc           *rpc.Client
	timeout       time.Duration
	maxRetries    int
	retryDelay    time.Duration
	maxDelay      time.Duration
	skipPreflight bool
	commitment    rpc.CommitmentType
}

// ClientOption configures RPCClient.
type ClientOption func(*RPCClient)

// WithTimeout bounds every RPC call.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *RPCClient) {
		c.timeout = d
	}
}

// WithMaxRetries sets how many times a failed read is retried. Broadcasts
// are never retried here.
func WithMaxRetries(n int) ClientOption {
	return func(c *RPCClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *RPCClient) {
		c.retryDelay = d
	}
}

// WithSkipPreflight disables node-side simulation before broadcast.
func WithSkipPreflight(skip bool) ClientOption {
	return func(c *RPCClient) {
		c.skipPreflight = skip
	}
}

// WithCommitment sets the commitment level used for preflight and reads.
func WithCommitment(level string) ClientOption {
	return func(c *RPCClient) {
		c.commitment = rpc.CommitmentType(level)
	}
}

// NewRPCClient creates a client for the given endpoint. An empty endpoint
// selects DefaultEndpoint.
func NewRPCClient(endpoint string, opts ...ClientOption) *RPCClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &RPCClient{
		rpc:        rpc.New(endpoint),
		timeout:    DefaultTimeout,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
		commitment: rpc.CommitmentConfirmed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendTransaction broadcasts a signed serialized transaction once and
// returns its base58 signature.
func (c *RPCClient) SendTransaction(ctx context.Context, signedTx []byte) (string, error) {
	tx, err := solanago.TransactionFromDecoder(bin.NewBinDecoder(signedTx))
	if err != nil {
		return "", fmt.Errorf("solana: decode transaction: %w", err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       c.skipPreflight,
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return "", fmt.Errorf("solana: send transaction: %w", err)
	}
	return sig.String(), nil
}

// GetBalance returns the lamport balance of an account. Transport failures
// are retried with exponential backoff; node errors are returned at once.
func (c *RPCClient) GetBalance(ctx context.Context, address string) (uint64, error) {
	account, err := solanago.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("solana: get balance %s: %w", address, err)
	}

	delay := c.retryDelay
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, c.maxDelay)
		}

		callCtx, cancel := c.withTimeout(ctx)
		res, err := c.rpc.GetBalance(callCtx, account, c.commitment)
		cancel()
		if err == nil {
			return res.Value, nil
		}
		lastErr = err
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) {
			break
		}
	}
	return 0, fmt.Errorf("solana: get balance %s: %w", address, lastErr)
}

func (c *RPCClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
