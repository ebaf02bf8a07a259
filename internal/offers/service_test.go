package offers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/paperleague/league-engine/internal/httpapi"
	"github.com/paperleague/league-engine/internal/model"
	"github.com/paperleague/league-engine/internal/notify"
	"github.com/paperleague/league-engine/internal/offers"
	"github.com/paperleague/league-engine/internal/store"
	"github.com/paperleague/league-engine/internal/valuation"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newTestEnv(t *testing.T) (*store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	svc := offers.NewService(ms, valuation.NewEngine(ms))
	notifySvc := notify.NewService(ms)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(httpapi.Identity)
		r.Post("/api/v1/leagues/{groupID}/offers", svc.Create)
		r.Get("/api/v1/leagues/{groupID}/offers", svc.List)
		r.Post("/api/v1/offers/{offerID}/accept", svc.Accept)
		r.Post("/api/v1/offers/{offerID}/reject", svc.Reject)
		r.Post("/api/v1/offers/{offerID}/cancel", svc.Cancel)
		r.Post("/api/v1/leagues/{groupID}/waivers", svc.SubmitWaiver)
		r.Get("/api/v1/leagues/{groupID}/waivers", svc.ListWaivers)
		r.Get("/api/v1/notifications", notifySvc.List)
		r.Post("/api/v1/notifications/{notificationID}/read", notifySvc.MarkRead)
	})
	return ms, r
}

// seedPair creates a group with two enrolled members: u1 holds asset-1 and
// u2 holds asset-2, ten shares each at 100.
func seedPair(t *testing.T, ms *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()

	if err := ms.CreateGroup(ctx, &model.Group{
		ID: "grp-1", Name: "Test League", AdminUserID: "u1",
		MaxMembers: 4, JoinCode: "TESTAA",
	}); err != nil {
		t.Fatalf("seed group: %v", err)
	}

	for i, id := range []string{"u1", "u2"} {
		if err := ms.CreateUser(ctx, &model.User{ID: id, Username: id, LearningDollars: d(20000)}); err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
		if err := ms.AddMembership(ctx, &model.Membership{
			ID: "mem-" + id, GroupID: "grp-1", UserID: id, JoinedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("seed membership %s: %v", id, err)
		}
		if err := ms.CreatePortfolio(ctx, &model.Portfolio{
			ID: "pf-" + id, GroupID: "grp-1", UserID: id,
			CashBalance: d(9000), TotalValue: d(10000),
		}); err != nil {
			t.Fatalf("seed portfolio %s: %v", id, err)
		}

		assetID := []string{"asset-1", "asset-2"}[i]
		if err := ms.CreateAsset(ctx, &model.Asset{
			ID: assetID, Ticker: assetID, Name: assetID,
			Class: model.AssetClassStock, CurrentPrice: d(100),
			IsActive: true, UpdatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("seed asset %s: %v", assetID, err)
		}
		if err := ms.CreateHolding(ctx, &model.Holding{
			ID: "h-" + id, PortfolioID: "pf-" + id, AssetID: assetID,
			Shares: d(10), AverageCost: d(100), CurrentPrice: d(100),
			TotalValue: d(1000), Status: model.SlotActive,
		}); err != nil {
			t.Fatalf("seed holding for %s: %v", id, err)
		}
	}
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

func proposeSwap(t *testing.T, r chi.Router) model.TradeOffer {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/grp-1/offers", "u1",
		offers.CreateOfferRequest{
			RecipientID:       "u2",
			OfferedAssetIDs:   []string{"asset-1"},
			RequestedAssetIDs: []string{"asset-2"},
		})
	if w.Code != http.StatusCreated {
		t.Fatalf("create offer: status %d: %s", w.Code, w.Body.String())
	}
	var offer model.TradeOffer
	if err := json.Unmarshal(w.Body.Bytes(), &offer); err != nil {
		t.Fatalf("decode offer: %v", err)
	}
	return offer
}

func TestCreateOffer_NotifiesRecipient(t *testing.T) {
	ms, r := newTestEnv(t)
	seedPair(t, ms)

	offer := proposeSwap(t, r)
	if offer.Status != model.OfferPending {
		t.Errorf("status = %q, want pending", offer.Status)
	}

	notifs, err := ms.ListNotifications(context.Background(), "u2", 50)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notifs) != 1 || notifs[0].Type != model.NotifOfferReceived {
		t.Errorf("recipient notifications = %+v, want one offer_received", notifs)
	}
}

func TestCreateOffer_Validation(t *testing.T) {
	ms, r := newTestEnv(t)
	seedPair(t, ms)

	// Trading with yourself.
	w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/grp-1/offers", "u1",
		offers.CreateOfferRequest{RecipientID: "u1", OfferedAssetIDs: []string{"asset-1"}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("self-offer: status %d, want 400", w.Code)
	}

	// Recipient outside the group.
	w = doJSON(t, r, http.MethodPost, "/api/v1/leagues/grp-1/offers", "u1",
		offers.CreateOfferRequest{RecipientID: "stranger", OfferedAssetIDs: []string{"asset-1"}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-member recipient: status %d, want 400", w.Code)
	}

	// Offering an asset the creator does not hold.
	w = doJSON(t, r, http.MethodPost, "/api/v1/leagues/grp-1/offers", "u1",
		offers.CreateOfferRequest{RecipientID: "u2", OfferedAssetIDs: []string{"asset-2"}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unheld offered asset: status %d, want 400", w.Code)
	}
}

func TestAcceptOffer_SwapsHoldings(t *testing.T) {
	ms, r := newTestEnv(t)
	seedPair(t, ms)
	offer := proposeSwap(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/v1/offers/"+offer.ID+"/accept", "u2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("accept: status %d: %s", w.Code, w.Body.String())
	}

	ctx := context.Background()
	// asset-1 now sits in u2's portfolio, asset-2 in u1's.
	if _, err := ms.GetHolding(ctx, "pf-u2", "asset-1"); err != nil {
		t.Errorf("asset-1 should have moved to u2: %v", err)
	}
	if _, err := ms.GetHolding(ctx, "pf-u1", "asset-2"); err != nil {
		t.Errorf("asset-2 should have moved to u1: %v", err)
	}
	if _, err := ms.GetHolding(ctx, "pf-u1", "asset-1"); err == nil {
		t.Error("asset-1 should be gone from u1")
	}

	stored, err := ms.GetTradeOffer(ctx, offer.ID)
	if err != nil {
		t.Fatalf("stored offer: %v", err)
	}
	if stored.Status != model.OfferAccepted {
		t.Errorf("status = %q, want accepted", stored.Status)
	}
	if stored.RespondedAt == nil {
		t.Error("responded_at not recorded")
	}

	// Creator hears about it.
	notifs, _ := ms.ListNotifications(ctx, "u1", 50)
	if len(notifs) != 1 || notifs[0].Type != model.NotifOfferAccepted {
		t.Errorf("creator notifications = %+v, want one offer_accepted", notifs)
	}
}

func TestAcceptOffer_OnlyRecipient(t *testing.T) {
	ms, r := newTestEnv(t)
	seedPair(t, ms)
	offer := proposeSwap(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/v1/offers/"+offer.ID+"/accept", "u1", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("creator accepting own offer: status %d, want 403", w.Code)
	}

	// Holdings untouched.
	if _, err := ms.GetHolding(context.Background(), "pf-u1", "asset-1"); err != nil {
		t.Errorf("asset-1 should still belong to u1: %v", err)
	}
}

func TestAcceptOffer_ResolvedOfferRejected(t *testing.T) {
	ms, r := newTestEnv(t)
	seedPair(t, ms)
	offer := proposeSwap(t, r)

	if w := doJSON(t, r, http.MethodPost, "/api/v1/offers/"+offer.ID+"/accept", "u2", nil); w.Code != http.StatusOK {
		t.Fatalf("first accept: status %d", w.Code)
	}
	w := doJSON(t, r, http.MethodPost, "/api/v1/offers/"+offer.ID+"/accept", "u2", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("replayed accept: status %d, want 409", w.Code)
	}
}

// The swap is all-or-nothing: if the creator sold the offered asset after
// proposing, accepting must fail and move nothing.
func TestAcceptOffer_StaleOfferMovesNothing(t *testing.T) {
	ms, r := newTestEnv(t)
	seedPair(t, ms)
	offer := proposeSwap(t, r)

	ctx := context.Background()
	h, err := ms.GetHolding(ctx, "pf-u1", "asset-1")
	if err != nil {
		t.Fatalf("holding: %v", err)
	}
	if err := ms.DeleteHolding(ctx, h.ID); err != nil {
		t.Fatalf("drop holding: %v", err)
	}

	w := doJSON(t, r, http.MethodPost, "/api/v1/offers/"+offer.ID+"/accept", "u2", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("stale accept: status %d, want 400", w.Code)
	}
	if _, err := ms.GetHolding(ctx, "pf-u2", "asset-2"); err != nil {
		t.Errorf("asset-2 should still belong to u2: %v", err)
	}
	stored, _ := ms.GetTradeOffer(ctx, offer.ID)
	if stored.Status != model.OfferPending {
		t.Errorf("status = %q, want still pending", stored.Status)
	}
}

func TestRejectOffer(t *testing.T) {
	ms, r := newTestEnv(t)
	seedPair(t, ms)
	offer := proposeSwap(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/v1/offers/"+offer.ID+"/reject", "u2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reject: status %d: %s", w.Code, w.Body.String())
	}

	ctx := context.Background()
	stored, _ := ms.GetTradeOffer(ctx, offer.ID)
	if stored.Status != model.OfferRejected {
		t.Errorf("status = %q, want rejected", stored.Status)
	}
	// No holdings moved.
	if _, err := ms.GetHolding(ctx, "pf-u1", "asset-1"); err != nil {
		t.Errorf("asset-1 should still belong to u1: %v", err)
	}
	notifs, _ := ms.ListNotifications(ctx, "u1", 50)
	if len(notifs) != 1 || notifs[0].Type != model.NotifOfferRejected {
		t.Errorf("creator notifications = %+v, want one offer_rejected", notifs)
	}
}

func TestCancelOffer_CreatorOnly(t *testing.T) {
	ms, r := newTestEnv(t)
	seedPair(t, ms)
	offer := proposeSwap(t, r)

	if w := doJSON(t, r, http.MethodPost, "/api/v1/offers/"+offer.ID+"/cancel", "u2", nil); w.Code != http.StatusForbidden {
		t.Errorf("recipient cancelling: status %d, want 403", w.Code)
	}

	w := doJSON(t, r, http.MethodPost, "/api/v1/offers/"+offer.ID+"/cancel", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: status %d: %s", w.Code, w.Body.String())
	}
	stored, _ := ms.GetTradeOffer(context.Background(), offer.ID)
	if stored.Status != model.OfferCancelled {
		t.Errorf("status = %q, want cancelled", stored.Status)
	}
}

func TestListOffers_FiltersToActingUser(t *testing.T) {
	ms, r := newTestEnv(t)
	seedPair(t, ms)
	proposeSwap(t, r)

	// A third member with no offers sees an empty list.
	ctx := context.Background()
	if err := ms.CreateUser(ctx, &model.User{ID: "u3", Username: "u3", LearningDollars: d(20000)}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := ms.AddMembership(ctx, &model.Membership{
		ID: "mem-u3", GroupID: "grp-1", UserID: "u3", JoinedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed membership: %v", err)
	}

	w := doJSON(t, r, http.MethodGet, "/api/v1/leagues/grp-1/offers", "u3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status %d", w.Code)
	}
	var body struct {
		Offers []model.TradeOffer `json:"offers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Offers) != 0 {
		t.Errorf("u3 offers = %d, want 0", len(body.Offers))
	}

	// Both parties see it.
	for _, u := range []string{"u1", "u2"} {
		w = doJSON(t, r, http.MethodGet, "/api/v1/leagues/grp-1/offers", u, nil)
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Offers) != 1 {
			t.Errorf("%s offers = %d, want 1", u, len(body.Offers))
		}
	}
}

func TestWaivers_PrioritySequence(t *testing.T) {
	ms, r := newTestEnv(t)
	seedPair(t, ms)

	if err := ms.CreateAsset(context.Background(), &model.Asset{
		ID: "asset-3", Ticker: "THR", Name: "Third", Class: model.AssetClassStock,
		CurrentPrice: d(50), IsActive: true, UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed asset: %v", err)
	}

	for i, user := range []string{"u1", "u2", "u1"} {
		w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/grp-1/waivers", user,
			offers.WaiverRequest{AssetID: "asset-3"})
		if w.Code != http.StatusCreated {
			t.Fatalf("claim %d: status %d: %s", i, w.Code, w.Body.String())
		}
		var claim model.WaiverClaim
		if err := json.Unmarshal(w.Body.Bytes(), &claim); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if claim.Priority != i+1 {
			t.Errorf("claim %d priority = %d, want %d", i, claim.Priority, i+1)
		}
		if claim.Status != model.ClaimPending {
			t.Errorf("claim %d status = %q, want pending", i, claim.Status)
		}
	}

	w := doJSON(t, r, http.MethodGet, "/api/v1/leagues/grp-1/waivers", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list waivers: status %d", w.Code)
	}
	var body struct {
		Claims []model.WaiverClaim `json:"claims"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Claims) != 3 {
		t.Fatalf("claims = %d, want 3", len(body.Claims))
	}
	for i, c := range body.Claims {
		if c.Priority != i+1 {
			t.Errorf("listed claim %d priority = %d, want ascending", i, c.Priority)
		}
	}
}

func TestWaivers_InactiveAssetRejected(t *testing.T) {
	ms, r := newTestEnv(t)
	seedPair(t, ms)

	if err := ms.CreateAsset(context.Background(), &model.Asset{
		ID: "asset-dead", Ticker: "DED", Name: "Delisted", Class: model.AssetClassStock,
		CurrentPrice: d(1), IsActive: false, UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed asset: %v", err)
	}

	w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/grp-1/waivers", "u1",
		offers.WaiverRequest{AssetID: "asset-dead"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("inactive asset claim: status %d, want 400", w.Code)
	}
}

func TestNotifications_ListAndMarkRead(t *testing.T) {
	ms, r := newTestEnv(t)
	seedPair(t, ms)
	proposeSwap(t, r)

	w := doJSON(t, r, http.MethodGet, "/api/v1/notifications", "u2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status %d", w.Code)
	}
	var body struct {
		Notifications []model.Notification `json:"notifications"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(body.Notifications))
	}
	n := body.Notifications[0]
	if n.IsRead {
		t.Error("fresh notification already read")
	}

	if w := doJSON(t, r, http.MethodPost, "/api/v1/notifications/"+n.ID+"/read", "u2", nil); w.Code != http.StatusOK {
		t.Fatalf("mark read: status %d: %s", w.Code, w.Body.String())
	}
	notifs, _ := ms.ListNotifications(context.Background(), "u2", 50)
	if !notifs[0].IsRead {
		t.Error("notification not marked read")
	}

	if w := doJSON(t, r, http.MethodPost, "/api/v1/notifications/nope/read", "u2", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown notification: status %d, want 404", w.Code)
	}
}
