package trade_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/paperleague/league-engine/internal/config"
	"github.com/paperleague/league-engine/internal/httpapi"
	"github.com/paperleague/league-engine/internal/model"
	"github.com/paperleague/league-engine/internal/store"
	"github.com/paperleague/league-engine/internal/trade"
	"github.com/paperleague/league-engine/internal/valuation"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv creates a trade Service over an in-memory store and a router
// with the identity middleware, matching the server wiring.
func newTestEnv(t *testing.T) (*store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	svc := trade.NewService(ms, valuation.NewEngine(ms), nil)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(httpapi.Identity)
		r.Post("/api/v1/leagues/{groupID}/buy", svc.Buy)
		r.Post("/api/v1/leagues/{groupID}/sell", svc.Sell)
		r.Get("/api/v1/leagues/{groupID}/portfolio", svc.GetPortfolio)
		r.Post("/api/v1/leagues/{groupID}/allocate", svc.Allocate)
		r.Put("/api/v1/leagues/{groupID}/lineup", svc.SetLineup)
	})
	return ms, r
}

// seedTrader creates a group, one funded member, and one active asset.
func seedTrader(t *testing.T, ms *store.MemoryStore, mutate func(*config.Settings, *model.Asset)) (groupID string) {
	t.Helper()
	ctx := context.Background()

	settings := config.Default()
	settings.StartDate = time.Now().UTC().Add(-time.Hour)
	asset := &model.Asset{
		ID:           "asset-1",
		Ticker:       "ACME",
		Name:         "Acme Corp",
		Class:        model.AssetClassStock,
		CurrentPrice: d(100),
		IsActive:     true,
		UpdatedAt:    time.Now().UTC(),
	}
	if mutate != nil {
		mutate(&settings, asset)
	}
	raw, err := settings.Encode()
	if err != nil {
		t.Fatalf("encode settings: %v", err)
	}

	if err := ms.CreateGroup(ctx, &model.Group{
		ID:          "grp-1",
		Name:        "Test League",
		AdminUserID: "u1",
		MaxMembers:  4,
		JoinCode:    "TESTAA",
		SettingsRaw: raw,
	}); err != nil {
		t.Fatalf("seed group: %v", err)
	}
	if err := ms.CreateUser(ctx, &model.User{
		ID:              "u1",
		Username:        "u1",
		LearningDollars: d(20000),
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := ms.CreatePortfolio(ctx, &model.Portfolio{
		ID:          "pf-1",
		GroupID:     "grp-1",
		UserID:      "u1",
		CashBalance: d(10000),
		TotalValue:  d(10000),
	}); err != nil {
		t.Fatalf("seed portfolio: %v", err)
	}
	if err := ms.CreateAsset(ctx, asset); err != nil {
		t.Fatalf("seed asset: %v", err)
	}
	return "grp-1"
}

func doJSON(t *testing.T, r chi.Router, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-User-ID", userID)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func buyShares(t *testing.T, r chi.Router, groupID string, shares float64) trade.TradeResponse {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/buy", "u1",
		trade.TradeRequest{AssetID: "asset-1", Shares: d(shares)})
	if w.Code != http.StatusCreated {
		t.Fatalf("buy: status %d: %s", w.Code, w.Body.String())
	}
	var resp trade.TradeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode buy response: %v", err)
	}
	return resp
}

func TestBuy_DebitsCashAndCreatesHolding(t *testing.T) {
	ms, r := newTestEnv(t)
	groupID := seedTrader(t, ms, nil)

	resp := buyShares(t, r, groupID, 10)

	if !resp.NewCashBalance.Equal(d(9000)) {
		t.Errorf("cash after buy = %s, want 9000", resp.NewCashBalance)
	}
	if !resp.RemainingShares.Equal(d(10)) {
		t.Errorf("shares = %s, want 10", resp.RemainingShares)
	}
	if !resp.AverageCost.Equal(d(100)) {
		t.Errorf("average cost = %s, want 100", resp.AverageCost)
	}
	if resp.Transaction.Type != model.TxBuy {
		t.Errorf("transaction type = %q, want buy", resp.Transaction.Type)
	}
	if !resp.Transaction.CashBefore.Equal(d(10000)) || !resp.Transaction.CashAfter.Equal(d(9000)) {
		t.Errorf("ledger cash %s -> %s, want 10000 -> 9000",
			resp.Transaction.CashBefore, resp.Transaction.CashAfter)
	}
}

// Blended average cost: 10 @ 100 then 10 @ 120 must average to 110.
func TestBuy_AverageCostBlends(t *testing.T) {
	ms, r := newTestEnv(t)
	groupID := seedTrader(t, ms, nil)
	ctx := context.Background()

	buyShares(t, r, groupID, 10)

	a, _ := ms.GetAsset(ctx, "asset-1")
	if err := ms.UpdateAssetPrice(ctx, a.ID, d(120), a.CurrentPrice, time.Now().UTC()); err != nil {
		t.Fatalf("price update: %v", err)
	}

	resp := buyShares(t, r, groupID, 10)
	if !resp.AverageCost.Equal(d(110)) {
		t.Errorf("blended average cost = %s, want 110", resp.AverageCost)
	}
	if !resp.RemainingShares.Equal(d(20)) {
		t.Errorf("shares = %s, want 20", resp.RemainingShares)
	}
}

func TestBuy_InsufficientFunds(t *testing.T) {
	ms, r := newTestEnv(t)
	groupID := seedTrader(t, ms, nil)

	w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/buy", "u1",
		trade.TradeRequest{AssetID: "asset-1", Shares: d(101)}) // 10100 > 10000
	if w.Code != http.StatusBadRequest {
		t.Errorf("over-budget buy: status %d, want 400", w.Code)
	}

	// Cash must be untouched.
	pf, _ := ms.GetPortfolio(context.Background(), groupID, "u1")
	if !pf.CashBalance.Equal(d(10000)) {
		t.Errorf("cash after rejected buy = %s, want 10000", pf.CashBalance)
	}
}

// Buy then sell at the same price must restore the starting cash exactly.
func TestBuySell_RoundTripRestoresCash(t *testing.T) {
	ms, r := newTestEnv(t)
	groupID := seedTrader(t, ms, nil)

	buyShares(t, r, groupID, 10)

	w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/sell", "u1",
		trade.TradeRequest{AssetID: "asset-1", Shares: d(10)})
	if w.Code != http.StatusCreated {
		t.Fatalf("sell: status %d: %s", w.Code, w.Body.String())
	}
	var resp trade.TradeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.NewCashBalance.Equal(d(10000)) {
		t.Errorf("cash after round trip = %s, want 10000", resp.NewCashBalance)
	}

	// Selling to zero deletes the holding.
	pf, _ := ms.GetPortfolio(context.Background(), groupID, "u1")
	holdings, _ := ms.ListHoldings(context.Background(), pf.ID)
	if len(holdings) != 0 {
		t.Errorf("holdings after full sell = %d, want 0", len(holdings))
	}
}

func TestSell_OversellRejectedAndHoldingUnchanged(t *testing.T) {
	ms, r := newTestEnv(t)
	groupID := seedTrader(t, ms, nil)

	buyShares(t, r, groupID, 10)

	w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/sell", "u1",
		trade.TradeRequest{AssetID: "asset-1", Shares: d(11)})
	if w.Code != http.StatusBadRequest {
		t.Errorf("oversell: status %d, want 400", w.Code)
	}

	ctx := context.Background()
	pf, _ := ms.GetPortfolio(ctx, groupID, "u1")
	h, err := ms.GetHolding(ctx, pf.ID, "asset-1")
	if err != nil {
		t.Fatalf("holding should survive rejected sell: %v", err)
	}
	if !h.Shares.Equal(d(10)) || !h.AverageCost.Equal(d(100)) {
		t.Errorf("holding mutated by rejected sell: shares=%s cost=%s", h.Shares, h.AverageCost)
	}
	if !pf.CashBalance.Equal(d(9000)) {
		t.Errorf("cash mutated by rejected sell: %s", pf.CashBalance)
	}
}

// A partial sell must leave the average cost alone.
func TestSell_PartialKeepsAverageCost(t *testing.T) {
	ms, r := newTestEnv(t)
	groupID := seedTrader(t, ms, nil)

	buyShares(t, r, groupID, 10)

	w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/sell", "u1",
		trade.TradeRequest{AssetID: "asset-1", Shares: d(4)})
	if w.Code != http.StatusCreated {
		t.Fatalf("sell: status %d: %s", w.Code, w.Body.String())
	}
	var resp trade.TradeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.RemainingShares.Equal(d(6)) {
		t.Errorf("remaining shares = %s, want 6", resp.RemainingShares)
	}
	if !resp.AverageCost.Equal(d(100)) {
		t.Errorf("average cost changed on sell: %s", resp.AverageCost)
	}
}

func TestBuy_TradingDisabled(t *testing.T) {
	ms, r := newTestEnv(t)
	groupID := seedTrader(t, ms, func(s *config.Settings, _ *model.Asset) {
		s.TradingEnabled = false
	})

	w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/buy", "u1",
		trade.TradeRequest{AssetID: "asset-1", Shares: d(1)})
	if w.Code != http.StatusForbidden {
		t.Errorf("trading disabled: status %d, want 403", w.Code)
	}
}

func TestBuy_DisabledAssetClass(t *testing.T) {
	ms, r := newTestEnv(t)
	groupID := seedTrader(t, ms, func(s *config.Settings, a *model.Asset) {
		s.EnabledAssetClasses = []string{model.AssetClassETF}
	})

	w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/buy", "u1",
		trade.TradeRequest{AssetID: "asset-1", Shares: d(1)})
	if w.Code != http.StatusForbidden {
		t.Errorf("disabled class: status %d, want 403", w.Code)
	}
}

func TestBuy_LessonRequired(t *testing.T) {
	ms, r := newTestEnv(t)
	groupID := seedTrader(t, ms, func(_ *config.Settings, a *model.Asset) {
		a.RequiredLessons = []string{"lesson-options-101"}
	})

	w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/buy", "u1",
		trade.TradeRequest{AssetID: "asset-1", Shares: d(1)})
	if w.Code != http.StatusForbidden {
		t.Fatalf("locked asset: status %d, want 403", w.Code)
	}
	var body httpapi.ErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != "LESSON_REQUIRED" {
		t.Errorf("error code = %q, want LESSON_REQUIRED", body.Code)
	}
	if len(body.MissingLessons) != 1 || body.MissingLessons[0] != "lesson-options-101" {
		t.Errorf("missing lessons = %v", body.MissingLessons)
	}
}

// totalWriteFailStore makes persisting a portfolio total fail, so the
// revaluation that runs after a trade commits cannot succeed.
type totalWriteFailStore struct {
	*store.MemoryStore
}

func (s *totalWriteFailStore) UpdatePortfolioTotalValue(context.Context, string, decimal.Decimal) error {
	return errors.New("total write refused")
}

// A trade whose follow-up revaluation fails must still succeed, and the
// response must carry the pre-trade portfolio total, not zero.
func TestBuy_RevaluationFailureKeepsLastKnownTotal(t *testing.T) {
	ms := store.NewMemoryStore()
	svc := trade.NewService(ms, valuation.NewEngine(&totalWriteFailStore{MemoryStore: ms}), nil)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(httpapi.Identity)
		r.Post("/api/v1/leagues/{groupID}/buy", svc.Buy)
	})
	groupID := seedTrader(t, ms, nil)

	w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/buy", "u1",
		trade.TradeRequest{AssetID: "asset-1", Shares: d(10)})
	if w.Code != http.StatusCreated {
		t.Fatalf("buy: status %d: %s", w.Code, w.Body.String())
	}
	var resp trade.TradeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.PortfolioValue.IsZero() {
		t.Fatal("portfolio value reported as zero after failed revaluation")
	}
	if !resp.PortfolioValue.Equal(d(10000)) {
		t.Errorf("portfolio value = %s, want pre-trade 10000", resp.PortfolioValue)
	}

	// The trade itself still committed.
	pf, _ := ms.GetPortfolio(context.Background(), groupID, "u1")
	if !pf.CashBalance.Equal(d(9000)) {
		t.Errorf("cash = %s, want 9000", pf.CashBalance)
	}
}

func TestAllocate_MovesCashBothWays(t *testing.T) {
	ms, r := newTestEnv(t)
	groupID := seedTrader(t, ms, nil)

	w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/allocate", "u1",
		trade.AllocateRequest{Type: "savings", Amount: d(2000)})
	if w.Code != http.StatusOK {
		t.Fatalf("allocate: status %d: %s", w.Code, w.Body.String())
	}
	var pf model.Portfolio
	if err := json.Unmarshal(w.Body.Bytes(), &pf); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !pf.CashBalance.Equal(d(8000)) || !pf.Savings.Equal(d(2000)) {
		t.Errorf("after allocate: cash=%s savings=%s, want 8000/2000", pf.CashBalance, pf.Savings)
	}

	// Negative amount returns funds to cash.
	w = doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/allocate", "u1",
		trade.AllocateRequest{Type: "savings", Amount: d(-500)})
	if w.Code != http.StatusOK {
		t.Fatalf("withdraw: status %d: %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &pf); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !pf.CashBalance.Equal(d(8500)) || !pf.Savings.Equal(d(1500)) {
		t.Errorf("after withdraw: cash=%s savings=%s, want 8500/1500", pf.CashBalance, pf.Savings)
	}
}

func TestAllocate_OverdraftRejected(t *testing.T) {
	ms, r := newTestEnv(t)
	groupID := seedTrader(t, ms, nil)

	w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/allocate", "u1",
		trade.AllocateRequest{Type: "bonds", Amount: d(10001)})
	if w.Code != http.StatusBadRequest {
		t.Errorf("overdraft allocate: status %d, want 400", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/allocate", "u1",
		trade.AllocateRequest{Type: "bonds", Amount: d(-1)})
	if w.Code != http.StatusBadRequest {
		t.Errorf("withdraw from empty allocation: status %d, want 400", w.Code)
	}
}

func TestGetPortfolio_IncludesHoldingsAndLedger(t *testing.T) {
	ms, r := newTestEnv(t)
	groupID := seedTrader(t, ms, nil)

	buyShares(t, r, groupID, 5)

	w := doJSON(t, r, http.MethodGet, "/api/v1/leagues/"+groupID+"/portfolio", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get portfolio: status %d", w.Code)
	}
	var view trade.PortfolioView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(view.Holdings) != 1 {
		t.Errorf("holdings = %d, want 1", len(view.Holdings))
	}
	if len(view.Transactions) != 1 {
		t.Errorf("transactions = %d, want 1", len(view.Transactions))
	}
	if !view.TotalHoldingValue.Equal(d(500)) {
		t.Errorf("holding value = %s, want 500", view.TotalHoldingValue)
	}
	// cash + holdings: 9500 + 500
	if !view.TotalValue.Equal(d(10000)) {
		t.Errorf("total value = %s, want 10000", view.TotalValue)
	}
}

func TestSetLineup_WrongSlotCountRejected(t *testing.T) {
	ms, r := newTestEnv(t)
	groupID := seedTrader(t, ms, func(s *config.Settings, _ *model.Asset) {
		s.ActiveSlots = 1
		s.BenchSlots = 0
	})

	buyShares(t, r, groupID, 1)

	w := doJSON(t, r, http.MethodPut, "/api/v1/leagues/"+groupID+"/lineup", "u1",
		trade.LineupRequest{ActiveSlotIDs: []string{}, BenchSlotIDs: []string{}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("wrong slot count: status %d, want 400", w.Code)
	}
}

func TestSetLineup_MovesHoldingToBench(t *testing.T) {
	ms, r := newTestEnv(t)
	groupID := seedTrader(t, ms, func(s *config.Settings, _ *model.Asset) {
		s.ActiveSlots = 0
		s.BenchSlots = 1
	})

	buyShares(t, r, groupID, 1)

	ctx := context.Background()
	pf, _ := ms.GetPortfolio(ctx, groupID, "u1")
	h, _ := ms.GetHolding(ctx, pf.ID, "asset-1")

	w := doJSON(t, r, http.MethodPut, "/api/v1/leagues/"+groupID+"/lineup", "u1",
		trade.LineupRequest{ActiveSlotIDs: []string{}, BenchSlotIDs: []string{h.ID}})
	if w.Code != http.StatusOK {
		t.Fatalf("lineup: status %d: %s", w.Code, w.Body.String())
	}

	h, _ = ms.GetHolding(ctx, pf.ID, "asset-1")
	if h.Status != model.SlotBench {
		t.Errorf("holding status = %q, want BENCH", h.Status)
	}
}
