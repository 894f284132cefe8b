// Package gmgn is a REST client for the GMGN Solana swap router.
package gmgn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the public Solana router endpoint.
const DefaultBaseURL = "https://gmgn.ai/defi/router/v1/sol"

const maxBodyBytes = 4 << 20

// Client is the REST client for the GMGN router.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a GMGN client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetSwapRoute fetches a route and its unsigned transaction.
func (c *Client) GetSwapRoute(ctx context.Context, p RouteParams) (Route, error) {
	params := url.Values{}
	params.Set("token_in_address", p.TokenIn)
	params.Set("token_out_address", p.TokenOut)
	params.Set("in_amount", strconv.FormatUint(p.InAmount, 10))
	params.Set("from_address", p.FromAddress)
	params.Set("slippage", strconv.FormatFloat(p.SlippagePct, 'f', -1, 64))

	var route Route
	if err := c.call(ctx, http.MethodGet, "/tx/get_swap_route?"+params.Encode(), nil, &route); err != nil {
		return Route{}, fmt.Errorf("gmgn: get swap route: %w", err)
	}
	return route, nil
}

// SubmitSignedTransaction submits a base64 signed transaction and returns
// its hash.
func (c *Client) SubmitSignedTransaction(ctx context.Context, signedTxB64 string) (string, error) {
	body := map[string]string{"signed_tx": signedTxB64}

	var res SubmitResult
	if err := c.call(ctx, http.MethodPost, "/tx/submit_signed_transaction", body, &res); err != nil {
		return "", fmt.Errorf("gmgn: submit transaction: %w", err)
	}
	if res.Hash == "" {
		return "", fmt.Errorf("gmgn: submit transaction: empty hash")
	}
	return res.Hash, nil
}

// GetTransactionStatus returns the landing status of a submitted hash.
func (c *Client) GetTransactionStatus(ctx context.Context, hash string, lastValidHeight uint64) (TxStatus, error) {
	params := url.Values{}
	params.Set("hash", hash)
	if lastValidHeight > 0 {
		params.Set("last_valid_height", strconv.FormatUint(lastValidHeight, 10))
	}

	var st TxStatus
	if err := c.call(ctx, http.MethodGet, "/tx/get_transaction_status?"+params.Encode(), nil, &st); err != nil {
		return TxStatus{}, fmt.Errorf("gmgn: transaction status %s: %w", hash, err)
	}
	return st, nil
}

// GetToken returns token metadata including 24h volume.
func (c *Client) GetToken(ctx context.Context, mint string) (TokenInfo, error) {
	var info TokenInfo
	if err := c.call(ctx, http.MethodGet, "/tokens/"+url.PathEscape(mint), nil, &info); err != nil {
		return TokenInfo{}, fmt.Errorf("gmgn: get token %s: %w", mint, err)
	}
	return info, nil
}

// call performs the request, unwraps the envelope and decodes data into out.
func (c *Client) call(ctx context.Context, method, path string, reqBody, out any) error {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(respBody, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Msg
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode envelope: %w", decodeErr)
	}
	if !env.ok() {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Msg}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("response has no data")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
