package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calebhwang/predictd/internal/domain"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// requestTimeout bounds each upstream call so a slow oracle cannot stall the
// resolution loop.
const requestTimeout = 3 * time.Second

// CoinGecko queries the CoinGecko simple price API.
type CoinGecko struct {
	baseURL string
	client  *http.Client
}

// NewCoinGecko creates the oracle. baseURL may be empty to use the public
// API; tests point it at a local server.
func NewCoinGecko(baseURL string) *CoinGecko {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &CoinGecko{
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// Price returns the USD spot price for a CoinGecko asset id.
func (cg *CoinGecko) Price(ctx context.Context, assetID string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd",
		cg.baseURL, url.QueryEscape(assetID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("oracle: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cg.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("oracle: %w: %v", domain.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("oracle: %w: status %d", domain.ErrOracleUnavailable, resp.StatusCode)
	}

	var body map[string]map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("oracle: decode response: %w", err)
	}
	quote, ok := body[assetID]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("oracle: no usd quote for %s: %w", assetID, domain.ErrOracleUnavailable)
	}
	price, err := decimal.NewFromString(quote.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("oracle: parse price %q: %w", quote, err)
	}
	return price, nil
}

var _ Oracle = (*CoinGecko)(nil)
