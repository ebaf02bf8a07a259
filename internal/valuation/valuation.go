// Package valuation recomputes holding metrics and portfolio totals from
// authoritative asset prices. It runs after every trade (for the affected
// portfolio), after every price-refresh sweep (for all portfolios), and
// on demand.
//
// All monetary values use shopspring/decimal — never float64 for money.
package valuation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/paperleague/league-engine/internal/model"
	"github.com/paperleague/league-engine/internal/store"
)

var hundred = decimal.NewFromInt(100)

// HoldingMetrics are the derived fields persisted on a holding.
type HoldingMetrics struct {
	TotalValue      decimal.Decimal
	GainLoss        decimal.Decimal
	GainLossPercent decimal.Decimal
}

// ComputeHolding derives a holding's value and gain/loss at the given price.
//
//	totalValue      = shares × price
//	gainLoss        = totalValue − shares × averageCost
//	gainLossPercent = gainLoss / (shares × averageCost) × 100
//
// The percentage is zero when the cost basis is zero.
func ComputeHolding(shares, averageCost, price decimal.Decimal) HoldingMetrics {
	totalValue := shares.Mul(price)
	costBasis := shares.Mul(averageCost)
	gainLoss := totalValue.Sub(costBasis)

	gainLossPercent := decimal.Zero
	if !costBasis.IsZero() {
		gainLossPercent = gainLoss.Div(costBasis).Mul(hundred)
	}

	return HoldingMetrics{
		TotalValue:      totalValue,
		GainLoss:        gainLoss,
		GainLossPercent: gainLossPercent,
	}
}

// Engine recalculates portfolio values against current asset prices.
// Recalculation is idempotent: with unchanged prices a second pass produces
// identical output.
type Engine struct {
	store store.Store
}

// NewEngine creates a valuation engine backed by the given store.
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// RecalculatePortfolio recomputes every holding's snapshot and the
// portfolio's total value, persists both, and returns the new total.
//
// A holding whose asset cannot be loaded is frozen: its stored values are
// left untouched and its last-known total still counts toward the portfolio
// total.
func (e *Engine) RecalculatePortfolio(ctx context.Context, portfolioID string) (decimal.Decimal, error) {
	p, err := e.store.GetPortfolioByID(ctx, portfolioID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("valuation: load portfolio %s: %w", portfolioID, err)
	}

	holdings, err := e.store.ListHoldings(ctx, p.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("valuation: list holdings for %s: %w", p.ID, err)
	}

	holdingsValue := decimal.Zero
	for _, h := range holdings {
		asset, err := e.store.GetAsset(ctx, h.AssetID)
		if err != nil {
			// No fresh price: freeze at last-known values.
			slog.Warn("valuation: asset price unavailable, holding frozen",
				"portfolio", p.ID, "asset", h.AssetID)
			holdingsValue = holdingsValue.Add(h.TotalValue)
			continue
		}

		m := ComputeHolding(h.Shares, h.AverageCost, asset.CurrentPrice)
		if err := e.store.UpdateHoldingMetrics(ctx, h.ID,
			asset.CurrentPrice, m.TotalValue, m.GainLoss, m.GainLossPercent); err != nil {
			return decimal.Zero, fmt.Errorf("valuation: update holding %s: %w", h.ID, err)
		}
		holdingsValue = holdingsValue.Add(m.TotalValue)
	}

	total := p.CashBalance.Add(holdingsValue).Add(p.Allocations())
	if err := e.store.UpdatePortfolioTotalValue(ctx, p.ID, total); err != nil {
		return decimal.Zero, fmt.Errorf("valuation: update portfolio %s: %w", p.ID, err)
	}
	return total, nil
}

// RecalculateUser recalculates every portfolio owned by one participant.
func (e *Engine) RecalculateUser(ctx context.Context, userID string) (int, error) {
	portfolios, err := e.store.ListPortfoliosByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("valuation: list portfolios for user %s: %w", userID, err)
	}
	return e.recalculate(ctx, portfolios)
}

// RecalculateAll sweeps every portfolio in the system. Used after bulk price
// refreshes, when any holding might reference an updated asset.
func (e *Engine) RecalculateAll(ctx context.Context) (int, error) {
	portfolios, err := e.store.ListPortfolios(ctx)
	if err != nil {
		return 0, fmt.Errorf("valuation: list portfolios: %w", err)
	}
	return e.recalculate(ctx, portfolios)
}

func (e *Engine) recalculate(ctx context.Context, portfolios []model.Portfolio) (int, error) {
	for i, p := range portfolios {
		if _, err := e.RecalculatePortfolio(ctx, p.ID); err != nil {
			return i, err
		}
	}
	slog.Info("portfolios recalculated", "count", len(portfolios))
	return len(portfolios), nil
}
