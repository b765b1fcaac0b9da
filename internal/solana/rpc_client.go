package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"onchain-analytics/internal/domain"
)

// DefaultTimeout bounds a single HTTP round trip.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response is kept for diagnostics.
const maxErrorBody = 4096

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0.
// It performs exactly one round trip per call; retries belong to the caller.
type HTTPClient struct {
	endpoint  string
	client    *http.Client
	requestID atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new Solana RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request. Params is a positional
// array for standard methods and an object for DAS methods.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Retryable reports whether the node may answer differently later.
// Request errors (-32600..-32602) are permanent; server errors are not.
func (e *RPCError) Retryable() bool {
	switch {
	case e.Code >= -32602 && e.Code <= -32600:
		return false
	case e.Code == -32603:
		return true
	case e.Code <= -32000 && e.Code >= -32099:
		return true
	default:
		return false
	}
}

// call performs one JSON-RPC round trip.
func (c *HTTPClient) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	if c.endpoint == "" {
		return fmt.Errorf("%w: solana rpc endpoint not set", domain.ErrConfiguration)
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", domain.ErrConfiguration, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: http request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s: %w", method, &domain.StatusError{Code: resp.StatusCode, Body: string(respBody)})
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%s: %w: %v", method, domain.ErrMalformedPayload, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %w", method, rpcResp.Error)
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("%s: %w: %v", method, domain.ErrMalformedPayload, err)
		}
	}
	return nil
}

// GetSignaturesForAddress retrieves signatures for an address with pagination.
func (c *HTTPClient) GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error) {
	config := map[string]interface{}{"commitment": "finalized"}
	if opts != nil {
		if opts.Before != "" {
			config["before"] = opts.Before
		}
		if opts.Until != "" {
			config["until"] = opts.Until
		}
		if opts.Limit > 0 {
			config["limit"] = opts.Limit
		}
	}

	var result []getSignaturesResult
	if err := c.call(ctx, "getSignaturesForAddress", []interface{}{address, config}, &result); err != nil {
		return nil, err
	}

	sigs := make([]SignatureInfo, len(result))
	for i, r := range result {
		sigs[i] = SignatureInfo{
			Signature: r.Signature,
			Slot:      r.Slot,
			BlockTime: r.BlockTime,
			Err:       r.Err,
		}
	}
	return sigs, nil
}

// getSignaturesResult is the raw RPC response item for getSignaturesForAddress.
type getSignaturesResult struct {
	Signature string      `json:"signature"`
	Slot      int64       `json:"slot"`
	BlockTime *int64      `json:"blockTime"`
	Err       interface{} `json:"err"`
}

// GetBlockTime retrieves the estimated production time of a block.
func (c *HTTPClient) GetBlockTime(ctx context.Context, slot int64) (*int64, error) {
	var result *int64
	if err := c.call(ctx, "getBlockTime", []interface{}{slot}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetTokenSupply retrieves the total supply of a mint.
func (c *HTTPClient) GetTokenSupply(ctx context.Context, mint string) (*TokenAmount, error) {
	var result getTokenSupplyResult
	if err := c.call(ctx, "getTokenSupply", []interface{}{mint}, &result); err != nil {
		return nil, err
	}
	if result.Value == nil || result.Value.Amount == "" {
		return nil, fmt.Errorf("getTokenSupply %s: %w: empty value", mint, domain.ErrMalformedPayload)
	}
	return &TokenAmount{Amount: result.Value.Amount, Decimals: result.Value.Decimals}, nil
}

type getTokenSupplyResult struct {
	Value *struct {
		Amount   string `json:"amount"`
		Decimals int    `json:"decimals"`
	} `json:"value"`
}

// GetTokenAccounts retrieves one page (1-based) of the DAS getTokenAccounts
// listing for a mint. Providers without DAS support answer with an RPC error.
func (c *HTTPClient) GetTokenAccounts(ctx context.Context, mint string, page, limit int) (*TokenAccountsPage, error) {
	params := map[string]interface{}{
		"mint":  mint,
		"page":  page,
		"limit": limit,
	}

	var result getTokenAccountsResult
	if err := c.call(ctx, "getTokenAccounts", params, &result); err != nil {
		return nil, err
	}

	out := &TokenAccountsPage{
		Page:     page,
		Limit:    limit,
		Total:    result.Total,
		Accounts: make([]TokenAccount, len(result.TokenAccounts)),
	}
	for i, a := range result.TokenAccounts {
		out.Accounts[i] = TokenAccount{
			Address: a.Address,
			Mint:    a.Mint,
			Owner:   a.Owner,
			Amount:  a.Amount,
		}
	}
	return out, nil
}

type getTokenAccountsResult struct {
	Total         int                   `json:"total"`
	Limit         int                   `json:"limit"`
	Page          int                   `json:"page"`
	TokenAccounts []getTokenAccountItem `json:"token_accounts"`
}

type getTokenAccountItem struct {
	Address string `json:"address"`
	Mint    string `json:"mint"`
	Owner   string `json:"owner"`
	Amount  uint64 `json:"amount"`
}
