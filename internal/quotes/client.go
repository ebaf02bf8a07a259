// Package quotes integrates the external market-data provider and runs the
// scheduled price refresh over the asset catalog.
package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paperleague/league-engine/internal/model"
)

// interRequestDelay spaces serialized quote fetches so a full catalog sweep
// stays under the provider's 60-requests-per-minute quota.
const interRequestDelay = 1100 * time.Millisecond

// Client fetches quotes from the provider's REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	delay   time.Duration
}

// NewClient creates a provider client. baseURL has no trailing slash, e.g.
// "https://finnhub.io/api/v1".
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		delay:   interRequestDelay,
	}
}

// providerQuote is the provider's wire format.
type providerQuote struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// GetQuote fetches one ticker. It returns (nil, nil) when the provider does
// not recognize the symbol, which it signals with an all-zero quote.
func (c *Client) GetQuote(ctx context.Context, ticker string) (*model.Quote, error) {
	u := fmt.Sprintf("%s/quote?symbol=%s&token=%s",
		c.baseURL, url.QueryEscape(ticker), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quotes: fetch %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quotes: fetch %s: status %d", ticker, resp.StatusCode)
	}

	var pq providerQuote
	if err := json.NewDecoder(resp.Body).Decode(&pq); err != nil {
		return nil, fmt.Errorf("quotes: decode %s: %w", ticker, err)
	}

	// An unrecognized symbol comes back as zeros rather than an error status.
	if pq.Current == 0 && pq.PreviousClose == 0 {
		return nil, nil
	}

	return &model.Quote{
		Ticker:        ticker,
		CurrentPrice:  decimal.NewFromFloat(pq.Current),
		PreviousClose: decimal.NewFromFloat(pq.PreviousClose),
		Change:        decimal.NewFromFloat(pq.Change),
		ChangePercent: decimal.NewFromFloat(pq.ChangePercent),
		Timestamp:     time.Unix(pq.Timestamp, 0).UTC(),
	}, nil
}

// GetMultipleQuotes fetches tickers one at a time with a fixed delay between
// requests. Failed or unknown tickers are skipped, not fatal; the sweep
// returns whatever it got. Honors ctx cancellation between fetches.
func (c *Client) GetMultipleQuotes(ctx context.Context, tickers []string) (map[string]*model.Quote, error) {
	out := make(map[string]*model.Quote, len(tickers))
	for i, t := range tickers {
		if i > 0 {
			select {
			case <-time.After(c.delay):
			case <-ctx.Done():
				return out, ctx.Err()
			}
		}
		q, err := c.GetQuote(ctx, t)
		if err != nil {
			slog.Warn("quote fetch failed, skipping", "ticker", t, "err", err)
			continue
		}
		if q == nil {
			slog.Warn("provider does not recognize ticker, skipping", "ticker", t)
			continue
		}
		out[t] = q
	}
	return out, nil
}
