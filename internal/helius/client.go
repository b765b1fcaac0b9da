// Package helius reads parsed transaction history from the Helius enhanced transactions API.
package helius

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"onchain-analytics/internal/domain"
)

const (
	// DefaultBaseURL is the public Helius API host.
	DefaultBaseURL = "https://api.helius.xyz"
	// MaxPageSize is the maximum number of transactions per API call.
	MaxPageSize = 100

	maxErrorBody = 4096
)

// Client communicates with the Helius Enhanced Transactions API.
// It performs one request per call; pagination and retries belong to the caller.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Helius API client.
func NewClient(apiKey, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// PageQuery selects one page of an address's history, newest first.
type PageQuery struct {
	Before string // signature cursor; empty for the newest page
	Limit  int    // page size, capped at MaxPageSize
	Type   string // optional transaction type filter, e.g. "SWAP"
}

// Transactions retrieves a single page of enhanced transactions involving address.
func (c *Client) Transactions(ctx context.Context, address string, q PageQuery) ([]EnhancedTransaction, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: helius api key not set", domain.ErrConfiguration)
	}

	limit := q.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	params := url.Values{}
	params.Set("api-key", c.apiKey)
	params.Set("limit", strconv.Itoa(limit))
	if q.Before != "" {
		params.Set("before", q.Before)
	}
	if q.Type != "" {
		params.Set("type", q.Type)
	}
	endpoint := fmt.Sprintf("%s/v0/addresses/%s/transactions?%s", c.baseURL, url.PathEscape(address), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", domain.ErrConfiguration, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", redactKey(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("helius transactions: %w", &domain.StatusError{Code: resp.StatusCode, Body: string(body)})
	}

	var txns []EnhancedTransaction
	if err := json.NewDecoder(resp.Body).Decode(&txns); err != nil {
		return nil, fmt.Errorf("decoding response: %w: %v", domain.ErrMalformedPayload, err)
	}
	return txns, nil
}

// NextCursor returns the cursor following a page, or "" when the page was the last one.
func NextCursor(page []EnhancedTransaction, limit int) string {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	if len(page) < limit {
		return ""
	}
	return page[len(page)-1].Signature
}

// redactKey strips the query string, which carries the API key, from transport errors.
func redactKey(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	u, perr := url.Parse(uerr.URL)
	if perr != nil {
		return uerr.Err
	}
	u.RawQuery = ""
	return &url.Error{Op: uerr.Op, URL: u.String(), Err: uerr.Err}
}
