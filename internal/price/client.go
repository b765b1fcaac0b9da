// Package price quotes token prices in SOL from DexScreener pair data.
package price

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

// DefaultBaseURL is the public DexScreener API host.
const DefaultBaseURL = "https://api.dexscreener.com"

// ErrNoPrice is returned when no pair quotes the token in the requested asset.
var ErrNoPrice = errors.New("no priced pair")

type noPriceError struct {
	mint string
}

func (e *noPriceError) Error() string        { return fmt.Sprintf("%s: %v", e.mint, ErrNoPrice) }
func (e *noPriceError) Is(target error) bool { return target == ErrNoPrice }
func (e *noPriceError) Retryable() bool      { return false }

// Client fetches prices denominated in a quote mint (wrapped SOL by default).
type Client struct {
	baseURL    string
	vsMint     string
	httpClient *http.Client
}

// NewClient creates a price client. An empty vsMint quotes in wrapped SOL.
func NewClient(baseURL, vsMint string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if vsMint == "" {
		vsMint = domain.WrappedSOLMint
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, vsMint: vsMint, httpClient: httpClient}
}

type pairsResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	ChainID     string `json:"chainId"`
	PriceNative string `json:"priceNative"`
	BaseToken   struct {
		Address string `json:"address"`
	} `json:"baseToken"`
	QuoteToken struct {
		Address string `json:"address"`
	} `json:"quoteToken"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

// Price returns the price of one whole token of mint in the quote asset,
// taken from the most liquid pair quoting mint against it.
func (c *Client) Price(ctx context.Context, mint string) (float64, error) {
	if domain.IsNativeMint(mint) && domain.IsNativeMint(c.vsMint) {
		return 1, nil
	}

	endpoint := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, url.PathEscape(mint))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: creating request: %v", domain.ErrConfiguration, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("price %s: %w", mint, &domain.StatusError{Code: resp.StatusCode, Body: string(body)})
	}

	var result pairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decoding response: %w: %v", domain.ErrMalformedPayload, err)
	}

	best, bestLiq := 0.0, -1.0
	for _, p := range result.Pairs {
		if p.ChainID != "solana" || p.BaseToken.Address != mint || p.QuoteToken.Address != c.vsMint {
			continue
		}
		price, err := strconv.ParseFloat(p.PriceNative, 64)
		if err != nil || price <= 0 {
			continue
		}
		if p.Liquidity.USD > bestLiq {
			best, bestLiq = price, p.Liquidity.USD
		}
	}
	if best <= 0 {
		return 0, &noPriceError{mint: mint}
	}
	return best, nil
}
