// Package jupiter is a REST client for the Jupiter swap aggregator v6 API.
package jupiter

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

// DefaultBaseURL is the public v6 endpoint.
const DefaultBaseURL = "https://quote-api.jup.ag/v6"

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 4 << 20

// Client is the REST client for the Jupiter API.
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

// NewClient creates a Jupiter client. An empty baseURL selects DefaultBaseURL.
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

// Quote fetches the best route for swapping p.Amount of p.InputMint.
func (c *Client) Quote(ctx context.Context, p QuoteParams) (QuoteResponse, error) {
	params := url.Values{}
	params.Set("inputMint", p.InputMint)
	params.Set("outputMint", p.OutputMint)
	params.Set("amount", strconv.FormatUint(p.Amount, 10))
	params.Set("slippageBps", strconv.Itoa(p.SlippageBps))

	body, err := c.do(ctx, http.MethodGet, "/quote?"+params.Encode(), nil)
	if err != nil {
		return QuoteResponse{}, fmt.Errorf("jupiter: quote: %w", err)
	}

	var resp QuoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return QuoteResponse{}, fmt.Errorf("jupiter: decode quote: %w", err)
	}
	resp.Raw = json.RawMessage(body)
	return resp, nil
}

// Swap asks Jupiter to build the swap transaction for a previously fetched
// quote.
func (c *Client) Swap(ctx context.Context, req SwapRequest) (SwapResponse, error) {
	body, err := c.do(ctx, http.MethodPost, "/swap", req)
	if err != nil {
		return SwapResponse{}, fmt.Errorf("jupiter: swap: %w", err)
	}

	var resp SwapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return SwapResponse{}, fmt.Errorf("jupiter: decode swap: %w", err)
	}
	if resp.SwapTransaction == "" {
		return SwapResponse{}, fmt.Errorf("jupiter: swap response has no swapTransaction")
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		_ = json.Unmarshal(respBody, &apiErr)
		msg := apiErr.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg, Code: apiErr.ErrorCode}
	}
	return respBody, nil
}
