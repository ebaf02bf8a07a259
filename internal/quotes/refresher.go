package quotes

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paperleague/league-engine/internal/httpapi"
	"github.com/paperleague/league-engine/internal/metrics"
	"github.com/paperleague/league-engine/internal/model"
	"github.com/paperleague/league-engine/internal/store"
	"github.com/paperleague/league-engine/internal/valuation"
	"github.com/paperleague/league-engine/internal/ws"
)

// staleAfter is how old the newest stock update may be before a non-forced
// refresh actually runs.
const staleAfter = time.Hour

// RefreshResult summarizes one catalog sweep.
type RefreshResult struct {
	Skipped   bool      `json:"skipped"`
	Attempted int       `json:"attempted"`
	Updated   int       `json:"updated"`
	Revalued  int       `json:"revalued"`
	RanAt     time.Time `json:"ran_at"`
}

// Refresher pulls fresh prices into the asset catalog and triggers a full
// revaluation sweep afterwards.
type Refresher struct {
	store  store.Store
	engine *valuation.Engine
	client *Client
	hub    *ws.Hub // optional
}

// NewRefresher creates a refresher.
func NewRefresher(st store.Store, engine *valuation.Engine, client *Client, hub *ws.Hub) *Refresher {
	return &Refresher{store: st, engine: engine, client: client, hub: hub}
}

// RefreshAll sweeps every active stock ticker. Unless force is set, the
// sweep is skipped when the newest stock update is under an hour old; the
// staleness check is one cheap query, not a provider call.
func (r *Refresher) RefreshAll(ctx context.Context, force bool) (*RefreshResult, error) {
	now := time.Now().UTC()

	if !force {
		latest, err := r.store.LatestAssetUpdate(ctx, model.AssetClassStock)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if !latest.IsZero() && now.Sub(latest) < staleAfter {
			metrics.PriceRefreshTotal.WithLabelValues("skipped_fresh").Inc()
			slog.Info("price refresh skipped, catalog is fresh",
				"latest_update", latest, "age", now.Sub(latest).Round(time.Second))
			return &RefreshResult{Skipped: true, RanAt: now}, nil
		}
	}

	assets, err := r.store.ListAssets(ctx, store.AssetFilter{
		Classes:    []string{model.AssetClassStock},
		ActiveOnly: true,
	})
	if err != nil {
		return nil, err
	}

	tickers := make([]string, 0, len(assets))
	byTicker := make(map[string]model.Asset, len(assets))
	for _, a := range assets {
		tickers = append(tickers, a.Ticker)
		byTicker[a.Ticker] = a
	}

	result := &RefreshResult{Attempted: len(tickers), RanAt: now}

	quotesByTicker, err := r.client.GetMultipleQuotes(ctx, tickers)
	if err != nil {
		// Context cancellation mid-sweep: apply what we have, report the rest.
		slog.Warn("quote sweep interrupted", "err", err,
			"got", len(quotesByTicker), "wanted", len(tickers))
	}

	for ticker, q := range quotesByTicker {
		a := byTicker[ticker]
		// The outgoing current price becomes the previous close, so the day
		// change is always relative to the last observed price.
		if err := r.store.UpdateAssetPrice(ctx, a.ID, q.CurrentPrice, a.CurrentPrice, now); err != nil {
			slog.Error("price update failed", "ticker", ticker, "err", err)
			continue
		}
		result.Updated++
	}
	metrics.PriceRefreshTotal.WithLabelValues("ran").Inc()
	metrics.AssetsUpdated.Add(float64(result.Updated))

	// Every portfolio gets revalued against the new prices, even when only
	// some tickers updated.
	revalued, err := r.engine.RecalculateAll(ctx)
	if err != nil {
		slog.Error("post-refresh revaluation failed", "err", err)
	}
	result.Revalued = revalued
	metrics.ValuationRuns.Inc()

	slog.Info("price refresh complete",
		"attempted", result.Attempted, "updated", result.Updated, "revalued", revalued)

	if r.hub != nil {
		r.hub.Broadcast(ws.Event{Type: ws.EventPricesRefreshed, Updated: result.Updated})
	}
	return result, nil
}

// RefreshOne updates a single ticker immediately, with no staleness check.
func (r *Refresher) RefreshOne(ctx context.Context, ticker string) (*model.Asset, error) {
	asset, err := r.store.GetAssetByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}

	q, err := r.client.GetQuote(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, store.ErrNotFound
	}

	now := time.Now().UTC()
	if err := r.store.UpdateAssetPrice(ctx, asset.ID, q.CurrentPrice, asset.CurrentPrice, now); err != nil {
		return nil, err
	}
	metrics.AssetsUpdated.Inc()

	asset.PreviousClose = asset.CurrentPrice
	asset.CurrentPrice = q.CurrentPrice
	asset.UpdatedAt = now
	return asset, nil
}

// --- HTTP handlers ---

// HandleRefreshAll handles POST /api/v1/assets/refresh?force=true.
func (r *Refresher) HandleRefreshAll(w http.ResponseWriter, req *http.Request) {
	force := req.URL.Query().Get("force") == "true"

	result, err := r.RefreshAll(req.Context(), force)
	if err != nil {
		slog.Error("price refresh failed", "err", err)
		httpapi.WriteError(w, "refresh failed", http.StatusInternalServerError)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, result)
}

// HandleRefreshOne handles POST /api/v1/assets/{ticker}/refresh.
func (r *Refresher) HandleRefreshOne(w http.ResponseWriter, req *http.Request) {
	ticker := chi.URLParam(req, "ticker")

	asset, err := r.RefreshOne(req.Context(), ticker)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpapi.WriteError(w, "unknown ticker", http.StatusNotFound)
			return
		}
		slog.Error("single refresh failed", "ticker", ticker, "err", err)
		httpapi.WriteError(w, "refresh failed", http.StatusInternalServerError)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, asset)
}
