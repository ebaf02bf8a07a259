// Package trade provides the HTTP handlers and business logic for buying and
// selling assets, side allocations, lineup management, and portfolio reads.
//
// Every buy and sell runs inside a single store transaction with the
// portfolio row locked, so concurrent trades against one portfolio serialize
// instead of double-spending cash or overselling shares.
package trade

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paperleague/league-engine/internal/config"
	"github.com/paperleague/league-engine/internal/gate"
	"github.com/paperleague/league-engine/internal/httpapi"
	"github.com/paperleague/league-engine/internal/metrics"
	"github.com/paperleague/league-engine/internal/model"
	"github.com/paperleague/league-engine/internal/store"
	"github.com/paperleague/league-engine/internal/valuation"
	"github.com/paperleague/league-engine/internal/ws"
)

var (
	// ErrInsufficientFunds is returned when a buy exceeds the cash balance.
	ErrInsufficientFunds = errors.New("trade: insufficient funds")

	// ErrInsufficientShares is returned when a sell exceeds the held shares.
	ErrInsufficientShares = errors.New("trade: insufficient shares")

	// ErrInsufficientAllocation is returned when a withdrawal exceeds the
	// side-allocation balance.
	ErrInsufficientAllocation = errors.New("trade: insufficient allocation")
)

// Service handles trading operations.
type Service struct {
	store  store.Store
	engine *valuation.Engine
	hub    *ws.Hub // optional, nil disables broadcasts
}

// NewService creates a new trade service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(st store.Store, engine *valuation.Engine, hub *ws.Hub) *Service {
	return &Service{store: st, engine: engine, hub: hub}
}

// --- Request/Response types ---

// TradeRequest is the JSON body for POST buy/sell.
type TradeRequest struct {
	AssetID string          `json:"asset_id"`
	Shares  decimal.Decimal `json:"shares"` // must be positive
}

// TradeResponse is returned from buy and sell.
type TradeResponse struct {
	Transaction     model.Transaction `json:"transaction"`
	NewCashBalance  decimal.Decimal   `json:"new_cash_balance"`
	RemainingShares decimal.Decimal   `json:"remaining_shares"`
	AverageCost     decimal.Decimal   `json:"average_cost"`
	PortfolioValue  decimal.Decimal   `json:"portfolio_value"`
}

// AllocateRequest moves funds between cash and a side allocation. A positive
// amount allocates from cash; a negative amount returns funds to cash.
type AllocateRequest struct {
	Type   string          `json:"type"` // savings, bonds, index_funds
	Amount decimal.Decimal `json:"amount"`
}

// LineupRequest splits holdings between active and bench slots.
type LineupRequest struct {
	ActiveSlotIDs []string `json:"active_slot_ids"`
	BenchSlotIDs  []string `json:"bench_slot_ids"`
}

// PortfolioView is the portfolio read model including holdings and recent
// ledger entries.
type PortfolioView struct {
	model.Portfolio
	Holdings          []model.Holding     `json:"holdings"`
	Transactions      []model.Transaction `json:"transactions"`
	TotalHoldingValue decimal.Decimal     `json:"total_holding_value"`
}

// --- Handlers ---

// Buy handles POST /api/v1/leagues/{groupID}/buy.
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	s.executeTrade(w, r, model.TxBuy)
}

// Sell handles POST /api/v1/leagues/{groupID}/sell.
func (s *Service) Sell(w http.ResponseWriter, r *http.Request) {
	s.executeTrade(w, r, model.TxSell)
}

func (s *Service) executeTrade(w http.ResponseWriter, r *http.Request, txType string) {
	groupID := chi.URLParam(r, "groupID")
	userID := httpapi.UserID(r.Context())

	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AssetID == "" {
		httpapi.WriteError(w, "asset_id is required", http.StatusBadRequest)
		return
	}
	if !req.Shares.IsPositive() {
		httpapi.WriteError(w, "shares must be positive", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		s.writeTradeError(w, err)
		return
	}
	settings, err := config.Parse(group.SettingsRaw)
	if err != nil {
		httpapi.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var (
		resp     TradeResponse
		preTotal decimal.Decimal
	)
	err = s.store.InTx(ctx, func(tx store.Store) error {
		asset, err := tx.GetAsset(ctx, req.AssetID)
		if err != nil {
			return err
		}
		if !asset.IsActive {
			return store.ErrNotFound
		}

		if err := gate.CheckPolicy(&settings, asset); err != nil {
			return err
		}

		// Lock the user row so the lesson check cannot race a completion
		// committing in another transaction.
		user, err := tx.GetUserForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if err := gate.CheckLessons(user, asset); err != nil {
			return err
		}

		portfolio, err := tx.GetPortfolioForUpdate(ctx, groupID, userID)
		if err != nil {
			return err
		}
		preTotal = portfolio.TotalValue

		if txType == model.TxBuy {
			resp, err = buy(ctx, tx, portfolio, asset, req.Shares)
		} else {
			resp, err = sell(ctx, tx, portfolio, asset, req.Shares)
		}
		return err
	})
	if err != nil {
		s.writeTradeError(w, err)
		return
	}

	// Revalue the affected portfolio against the trade's price snapshot.
	// If revaluation fails the response carries the last known total rather
	// than a misleading zero.
	if total, err := s.engine.RecalculatePortfolio(ctx, resp.Transaction.PortfolioID); err == nil {
		resp.PortfolioValue = total
	} else {
		resp.PortfolioValue = preTotal
		slog.Error("post-trade revaluation failed", "portfolio", resp.Transaction.PortfolioID, "err", err)
	}

	metrics.TradesTotal.WithLabelValues(txType).Inc()
	slog.Info("trade executed",
		"type", txType,
		"group", groupID,
		"user", userID,
		"asset", req.AssetID,
		"shares", req.Shares.String(),
		"amount", resp.Transaction.TotalAmount.String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(ws.Event{
			Type:    ws.EventTradeExecuted,
			GroupID: groupID,
			UserID:  userID,
			AssetID: req.AssetID,
			Side:    txType,
			Shares:  req.Shares.String(),
			Price:   resp.Transaction.PricePerShare.String(),
		})
	}

	httpapi.WriteJSON(w, http.StatusCreated, resp)
}

// buy executes the buy sub-operation against a locked portfolio row.
// Average cost blends share-weighted on repeat purchases.
func buy(ctx context.Context, tx store.Store, portfolio *model.Portfolio, asset *model.Asset, shares decimal.Decimal) (TradeResponse, error) {
	price := asset.CurrentPrice
	cost := price.Mul(shares)

	if portfolio.CashBalance.LessThan(cost) {
		return TradeResponse{}, ErrInsufficientFunds
	}

	var newShares, newAvgCost decimal.Decimal

	holding, err := tx.GetHolding(ctx, portfolio.ID, asset.ID)
	switch {
	case err == nil:
		// newAvg = (oldShares·oldAvg + shares·price) / (oldShares + shares)
		newShares = holding.Shares.Add(shares)
		newAvgCost = holding.Shares.Mul(holding.AverageCost).Add(cost).Div(newShares)
		if err := tx.UpdateHoldingPosition(ctx, holding.ID, newShares, newAvgCost, price); err != nil {
			return TradeResponse{}, err
		}
	case errors.Is(err, store.ErrNotFound):
		newShares = shares
		newAvgCost = price
		m := valuation.ComputeHolding(newShares, newAvgCost, price)
		if err := tx.CreateHolding(ctx, &model.Holding{
			ID:              uuid.New().String(),
			PortfolioID:     portfolio.ID,
			AssetID:         asset.ID,
			Shares:          newShares,
			AverageCost:     newAvgCost,
			CurrentPrice:    price,
			TotalValue:      m.TotalValue,
			GainLoss:        m.GainLoss,
			GainLossPercent: m.GainLossPercent,
			Status:          model.SlotActive,
		}); err != nil {
			return TradeResponse{}, err
		}
	default:
		return TradeResponse{}, err
	}

	newCash := portfolio.CashBalance.Sub(cost)
	if err := tx.UpdatePortfolioBalances(ctx, portfolio.ID,
		newCash, portfolio.Savings, portfolio.Bonds, portfolio.IndexFunds); err != nil {
		return TradeResponse{}, err
	}

	entry := model.Transaction{
		ID:            uuid.New().String(),
		PortfolioID:   portfolio.ID,
		AssetID:       asset.ID,
		Type:          model.TxBuy,
		Shares:        shares,
		PricePerShare: price,
		TotalAmount:   cost,
		CashBefore:    portfolio.CashBalance,
		CashAfter:     newCash,
		CreatedAt:     time.Now().UTC(),
	}
	if err := tx.InsertTransaction(ctx, &entry); err != nil {
		return TradeResponse{}, err
	}

	return TradeResponse{
		Transaction:     entry,
		NewCashBalance:  newCash,
		RemainingShares: newShares,
		AverageCost:     newAvgCost,
	}, nil
}

// sell executes the sell sub-operation. Average cost is never changed by a
// sell; a holding reduced to exactly zero shares is deleted.
func sell(ctx context.Context, tx store.Store, portfolio *model.Portfolio, asset *model.Asset, shares decimal.Decimal) (TradeResponse, error) {
	holding, err := tx.GetHolding(ctx, portfolio.ID, asset.ID)
	if err != nil {
		return TradeResponse{}, err
	}
	if holding.Shares.LessThan(shares) {
		return TradeResponse{}, ErrInsufficientShares
	}

	price := asset.CurrentPrice
	proceeds := price.Mul(shares)
	remaining := holding.Shares.Sub(shares)

	if remaining.IsZero() {
		if err := tx.DeleteHolding(ctx, holding.ID); err != nil {
			return TradeResponse{}, err
		}
	} else {
		if err := tx.UpdateHoldingPosition(ctx, holding.ID, remaining, holding.AverageCost, price); err != nil {
			return TradeResponse{}, err
		}
	}

	newCash := portfolio.CashBalance.Add(proceeds)
	if err := tx.UpdatePortfolioBalances(ctx, portfolio.ID,
		newCash, portfolio.Savings, portfolio.Bonds, portfolio.IndexFunds); err != nil {
		return TradeResponse{}, err
	}

	entry := model.Transaction{
		ID:            uuid.New().String(),
		PortfolioID:   portfolio.ID,
		AssetID:       asset.ID,
		Type:          model.TxSell,
		Shares:        shares,
		PricePerShare: price,
		TotalAmount:   proceeds,
		CashBefore:    portfolio.CashBalance,
		CashAfter:     newCash,
		CreatedAt:     time.Now().UTC(),
	}
	if err := tx.InsertTransaction(ctx, &entry); err != nil {
		return TradeResponse{}, err
	}

	return TradeResponse{
		Transaction:     entry,
		NewCashBalance:  newCash,
		RemainingShares: remaining,
		AverageCost:     holding.AverageCost,
	}, nil
}

// GetPortfolio handles GET /api/v1/leagues/{groupID}/portfolio.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	userID := httpapi.UserID(r.Context())
	ctx := r.Context()

	portfolio, err := s.store.GetPortfolio(ctx, groupID, userID)
	if err != nil {
		s.writeTradeError(w, err)
		return
	}

	holdings, err := s.store.ListHoldings(ctx, portfolio.ID)
	if err != nil {
		httpapi.WriteError(w, "failed to load holdings", http.StatusInternalServerError)
		return
	}
	txs, err := s.store.ListTransactions(ctx, portfolio.ID, 50)
	if err != nil {
		httpapi.WriteError(w, "failed to load transactions", http.StatusInternalServerError)
		return
	}

	holdingValue := decimal.Zero
	for _, h := range holdings {
		holdingValue = holdingValue.Add(h.TotalValue)
	}

	httpapi.WriteJSON(w, http.StatusOK, PortfolioView{
		Portfolio:         *portfolio,
		Holdings:          holdings,
		Transactions:      txs,
		TotalHoldingValue: holdingValue,
	})
}

// Recalculate handles POST /api/v1/portfolios/recalculate for the acting
// user's portfolios.
func (s *Service) Recalculate(w http.ResponseWriter, r *http.Request) {
	userID := httpapi.UserID(r.Context())

	n, err := s.engine.RecalculateUser(r.Context(), userID)
	if err != nil {
		httpapi.WriteError(w, "recalculation failed", http.StatusInternalServerError)
		return
	}
	metrics.ValuationRuns.Inc()

	httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"recalculated": n,
	})
}

// Allocate handles POST /api/v1/leagues/{groupID}/allocate, moving funds
// between cash and the savings/bonds/index-fund side balances.
func (s *Service) Allocate(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	userID := httpapi.UserID(r.Context())
	ctx := r.Context()

	var req AllocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Type != "savings" && req.Type != "bonds" && req.Type != "index_funds" {
		httpapi.WriteError(w, "type must be savings, bonds, or index_funds", http.StatusBadRequest)
		return
	}
	if req.Amount.IsZero() {
		httpapi.WriteError(w, "amount must be non-zero", http.StatusBadRequest)
		return
	}

	var updated *model.Portfolio
	err := s.store.InTx(ctx, func(tx store.Store) error {
		portfolio, err := tx.GetPortfolioForUpdate(ctx, groupID, userID)
		if err != nil {
			return err
		}

		current := portfolio.Savings
		switch req.Type {
		case "bonds":
			current = portfolio.Bonds
		case "index_funds":
			current = portfolio.IndexFunds
		}

		if req.Amount.IsPositive() && portfolio.CashBalance.LessThan(req.Amount) {
			return ErrInsufficientFunds
		}
		if req.Amount.IsNegative() && current.LessThan(req.Amount.Neg()) {
			return ErrInsufficientAllocation
		}

		newCash := portfolio.CashBalance.Sub(req.Amount)
		newAlloc := current.Add(req.Amount)

		savings, bonds, index := portfolio.Savings, portfolio.Bonds, portfolio.IndexFunds
		switch req.Type {
		case "savings":
			savings = newAlloc
		case "bonds":
			bonds = newAlloc
		case "index_funds":
			index = newAlloc
		}

		if err := tx.UpdatePortfolioBalances(ctx, portfolio.ID, newCash, savings, bonds, index); err != nil {
			return err
		}

		portfolio.CashBalance = newCash
		portfolio.Savings = savings
		portfolio.Bonds = bonds
		portfolio.IndexFunds = index
		updated = portfolio
		return nil
	})
	if err != nil {
		s.writeTradeError(w, err)
		return
	}

	if _, err := s.engine.RecalculatePortfolio(ctx, updated.ID); err != nil {
		slog.Error("post-allocation revaluation failed", "portfolio", updated.ID, "err", err)
	}

	httpapi.WriteJSON(w, http.StatusOK, updated)
}

// SetLineup handles PUT /api/v1/leagues/{groupID}/lineup.
// Slot counts are validated against the league settings.
func (s *Service) SetLineup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	userID := httpapi.UserID(r.Context())
	ctx := r.Context()

	var req LineupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		s.writeTradeError(w, err)
		return
	}
	settings, err := config.Parse(group.SettingsRaw)
	if err != nil {
		httpapi.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if len(req.ActiveSlotIDs) != settings.ActiveSlots {
		httpapi.WriteError(w,
			"must have exactly "+strconv.Itoa(settings.ActiveSlots)+" active slots",
			http.StatusBadRequest)
		return
	}
	if len(req.BenchSlotIDs) != settings.BenchSlots {
		httpapi.WriteError(w,
			"must have exactly "+strconv.Itoa(settings.BenchSlots)+" bench slots",
			http.StatusBadRequest)
		return
	}

	portfolio, err := s.store.GetPortfolio(ctx, groupID, userID)
	if err != nil {
		s.writeTradeError(w, err)
		return
	}

	holdings, err := s.store.ListHoldings(ctx, portfolio.ID)
	if err != nil {
		httpapi.WriteError(w, "failed to load holdings", http.StatusInternalServerError)
		return
	}
	owned := make(map[string]bool, len(holdings))
	for _, h := range holdings {
		owned[h.ID] = true
	}
	for _, id := range append(append([]string{}, req.ActiveSlotIDs...), req.BenchSlotIDs...) {
		if !owned[id] {
			httpapi.WriteError(w, "slot "+id+" does not belong to this portfolio", http.StatusBadRequest)
			return
		}
	}

	err = s.store.InTx(ctx, func(tx store.Store) error {
		for _, id := range req.ActiveSlotIDs {
			if err := tx.UpdateHoldingStatus(ctx, id, model.SlotActive); err != nil {
				return err
			}
		}
		for _, id := range req.BenchSlotIDs {
			if err := tx.UpdateHoldingStatus(ctx, id, model.SlotBench); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.writeTradeError(w, err)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeTradeError maps domain errors onto HTTP status codes.
func (s *Service) writeTradeError(w http.ResponseWriter, err error) {
	var lessonErr *gate.LessonRequiredError
	switch {
	case errors.As(err, &lessonErr):
		metrics.TradeRejections.WithLabelValues("lesson_required").Inc()
		httpapi.WriteErrorBody(w, http.StatusForbidden, httpapi.ErrorBody{
			Error:          "asset locked",
			Code:           "LESSON_REQUIRED",
			MissingLessons: lessonErr.Missing,
		})
	case errors.Is(err, gate.ErrTradingNotPermitted):
		metrics.TradeRejections.WithLabelValues("policy").Inc()
		httpapi.WriteError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrInsufficientFunds):
		metrics.TradeRejections.WithLabelValues("insufficient_funds").Inc()
		httpapi.WriteError(w, "insufficient funds", http.StatusBadRequest)
	case errors.Is(err, ErrInsufficientShares):
		metrics.TradeRejections.WithLabelValues("insufficient_shares").Inc()
		httpapi.WriteError(w, "insufficient shares", http.StatusBadRequest)
	case errors.Is(err, ErrInsufficientAllocation):
		httpapi.WriteError(w, "insufficient allocation", http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		httpapi.WriteError(w, "not found", http.StatusNotFound)
	case errors.Is(err, store.ErrConflict):
		httpapi.WriteError(w, "conflict", http.StatusConflict)
	default:
		slog.Error("trade operation failed", "err", err)
		httpapi.WriteError(w, "internal error", http.StatusInternalServerError)
	}
}
