package draft_test

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

	"github.com/paperleague/league-engine/internal/config"
	"github.com/paperleague/league-engine/internal/draft"
	"github.com/paperleague/league-engine/internal/httpapi"
	"github.com/paperleague/league-engine/internal/model"
	"github.com/paperleague/league-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv creates a draft Service over an in-memory store with the
// identity middleware wired, the way the server mounts it.
func newTestEnv(t *testing.T) (*store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	svc := draft.NewService(ms, nil)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(httpapi.Identity)
		r.Get("/api/v1/leagues/{groupID}/draft", svc.GetState)
		r.Post("/api/v1/leagues/{groupID}/draft/start", svc.Start)
		r.Post("/api/v1/leagues/{groupID}/draft/pick", svc.Pick)
		r.Get("/api/v1/leagues/{groupID}/draft/assets", svc.AvailableAssets)
	})
	return ms, r
}

// seedLeague creates a group with the given members, funded portfolios, a
// pending draft, and one asset per needed pick.
func seedLeague(t *testing.T, ms *store.MemoryStore, members []string, portfolioSize, activeSlots, benchSlots int) (groupID string, assetIDs []string) {
	t.Helper()
	ctx := context.Background()

	settings := config.Default()
	settings.StartDate = time.Now().UTC().Add(-time.Hour)
	settings.PortfolioSize = portfolioSize
	settings.ActiveSlots = activeSlots
	settings.BenchSlots = benchSlots
	raw, err := settings.Encode()
	if err != nil {
		t.Fatalf("encode settings: %v", err)
	}

	group := &model.Group{
		ID:          "grp-1",
		Name:        "Test League",
		AdminUserID: members[0],
		MaxMembers:  len(members),
		JoinCode:    "TESTAA",
		SettingsRaw: raw,
		CreatedAt:   time.Now().UTC(),
	}
	if err := ms.CreateGroup(ctx, group); err != nil {
		t.Fatalf("seed group: %v", err)
	}

	base := time.Now().UTC().Add(-time.Minute)
	for i, uid := range members {
		if err := ms.CreateUser(ctx, &model.User{
			ID:              uid,
			Username:        uid,
			LearningDollars: d(20000),
		}); err != nil {
			t.Fatalf("seed user: %v", err)
		}
		if err := ms.AddMembership(ctx, &model.Membership{
			ID:       "mem-" + uid,
			GroupID:  group.ID,
			UserID:   uid,
			JoinedAt: base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("seed membership: %v", err)
		}
		if err := ms.CreatePortfolio(ctx, &model.Portfolio{
			ID:          "pf-" + uid,
			GroupID:     group.ID,
			UserID:      uid,
			CashBalance: d(10000),
			TotalValue:  d(10000),
		}); err != nil {
			t.Fatalf("seed portfolio: %v", err)
		}
	}

	if err := ms.CreateDraftState(ctx, &model.DraftState{
		ID:      "draft-1",
		GroupID: group.ID,
		Status:  model.DraftPending,
	}); err != nil {
		t.Fatalf("seed draft state: %v", err)
	}

	needed := len(members) * ((portfolioSize + len(members) - 1) / len(members))
	for i := 0; i < needed; i++ {
		a := &model.Asset{
			ID:           "asset-" + string(rune('A'+i)),
			Ticker:       "TKR" + string(rune('A'+i)),
			Name:         "Asset " + string(rune('A'+i)),
			Class:        model.AssetClassStock,
			CurrentPrice: d(100 + float64(i)),
			IsActive:     true,
			UpdatedAt:    time.Now().UTC(),
		}
		if err := ms.CreateAsset(ctx, a); err != nil {
			t.Fatalf("seed asset: %v", err)
		}
		assetIDs = append(assetIDs, a.ID)
	}
	return group.ID, assetIDs
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

func startDraft(t *testing.T, r chi.Router, groupID, admin string) {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/draft/start", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start draft: status %d: %s", w.Code, w.Body.String())
	}
}

func TestStart_OnlyAdmin(t *testing.T) {
	ms, r := newTestEnv(t)
	groupID, _ := seedLeague(t, ms, []string{"u1", "u2"}, 4, 1, 1)

	w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/draft/start", "u2", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("non-admin start: status %d, want 403", w.Code)
	}
}

func TestStart_FirstPickGoesToEarliestJoiner(t *testing.T) {
	ms, r := newTestEnv(t)
	groupID, _ := seedLeague(t, ms, []string{"u1", "u2"}, 4, 1, 1)
	startDraft(t, r, groupID, "u1")

	state, err := ms.GetDraftState(context.Background(), groupID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Status != model.DraftActive {
		t.Errorf("status = %q, want active", state.Status)
	}
	if state.CurrentUserID != "u1" {
		t.Errorf("first pick owner = %q, want u1", state.CurrentUserID)
	}
	if state.CurrentRound != 1 || state.CurrentPickNumber != 1 {
		t.Errorf("cursor = round %d pick %d, want 1/1", state.CurrentRound, state.CurrentPickNumber)
	}
}

func TestPick_OutOfTurnRejected(t *testing.T) {
	ms, r := newTestEnv(t)
	groupID, assetIDs := seedLeague(t, ms, []string{"u1", "u2"}, 4, 1, 1)
	startDraft(t, r, groupID, "u1")

	w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/draft/pick", "u2",
		draft.PickRequest{AssetID: assetIDs[0]})
	if w.Code != http.StatusForbidden {
		t.Errorf("out-of-turn pick: status %d, want 403", w.Code)
	}

	// Cursor must be untouched.
	state, _ := ms.GetDraftState(context.Background(), groupID)
	if state.CurrentUserID != "u1" || state.CurrentPickNumber != 1 {
		t.Errorf("cursor moved after rejected pick: %+v", state)
	}
}

func TestPick_DuplicateAssetRejected(t *testing.T) {
	ms, r := newTestEnv(t)
	groupID, assetIDs := seedLeague(t, ms, []string{"u1", "u2"}, 4, 1, 1)
	startDraft(t, r, groupID, "u1")

	if w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/draft/pick", "u1",
		draft.PickRequest{AssetID: assetIDs[0]}); w.Code != http.StatusOK {
		t.Fatalf("first pick: status %d: %s", w.Code, w.Body.String())
	}

	// u2 tries to take the same asset.
	w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/draft/pick", "u2",
		draft.PickRequest{AssetID: assetIDs[0]})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate asset pick: status %d, want 409", w.Code)
	}

	state, _ := ms.GetDraftState(context.Background(), groupID)
	if state.CurrentUserID != "u2" {
		t.Errorf("cursor should still be on u2, got %q", state.CurrentUserID)
	}
}

// Full 4-member, 2-round draft: picks must snake and completion must build
// one-share portfolios split across active and bench slots.
func TestDraft_FullSnakeAndCompletion(t *testing.T) {
	ms, r := newTestEnv(t)
	members := []string{"u1", "u2", "u3", "u4"}
	groupID, assetIDs := seedLeague(t, ms, members, 8, 1, 1)
	startDraft(t, r, groupID, "u1")

	order := []string{"u1", "u2", "u3", "u4", "u4", "u3", "u2", "u1"}
	for i, uid := range order {
		w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/draft/pick", uid,
			draft.PickRequest{AssetID: assetIDs[i]})
		if w.Code != http.StatusOK {
			t.Fatalf("pick %d by %s: status %d: %s", i+1, uid, w.Code, w.Body.String())
		}
	}

	ctx := context.Background()
	state, err := ms.GetDraftState(ctx, groupID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Status != model.DraftCompleted {
		t.Fatalf("status = %q, want completed", state.Status)
	}
	if state.CurrentUserID != "" {
		t.Errorf("completed draft should have no current picker, got %q", state.CurrentUserID)
	}

	for _, uid := range members {
		pf, err := ms.GetPortfolio(ctx, groupID, uid)
		if err != nil {
			t.Fatalf("portfolio for %s: %v", uid, err)
		}
		holdings, err := ms.ListHoldings(ctx, pf.ID)
		if err != nil {
			t.Fatalf("holdings for %s: %v", uid, err)
		}
		if len(holdings) != 2 {
			t.Fatalf("%s has %d holdings, want 2", uid, len(holdings))
		}
		active, bench := 0, 0
		for _, h := range holdings {
			if !h.Shares.Equal(d(1)) {
				t.Errorf("%s holding shares = %s, want 1", uid, h.Shares)
			}
			if !h.AverageCost.Equal(h.CurrentPrice) {
				t.Errorf("%s drafted holding cost %s != price %s", uid, h.AverageCost, h.CurrentPrice)
			}
			switch h.Status {
			case model.SlotActive:
				active++
			case model.SlotBench:
				bench++
			}
		}
		if active != 1 || bench != 1 {
			t.Errorf("%s slot split = %d active / %d bench, want 1/1", uid, active, bench)
		}
	}

	// Completion also lays down the head-to-head schedule: every member has
	// a week-1 matchup waiting.
	schedule, err := ms.ListMatchups(ctx, groupID)
	if err != nil {
		t.Fatalf("list matchups: %v", err)
	}
	if len(schedule) == 0 {
		t.Fatal("no matchups generated on draft completion")
	}
	for _, uid := range members {
		if _, err := ms.MatchupByWeek(ctx, groupID, uid, 1); err != nil {
			t.Errorf("week-1 matchup for %s: %v", uid, err)
		}
	}
}

func TestAvailableAssets_ExcludesDrafted(t *testing.T) {
	ms, r := newTestEnv(t)
	groupID, assetIDs := seedLeague(t, ms, []string{"u1", "u2"}, 4, 1, 1)
	startDraft(t, r, groupID, "u1")

	if w := doJSON(t, r, http.MethodPost, "/api/v1/leagues/"+groupID+"/draft/pick", "u1",
		draft.PickRequest{AssetID: assetIDs[0]}); w.Code != http.StatusOK {
		t.Fatalf("pick: status %d", w.Code)
	}

	w := doJSON(t, r, http.MethodGet, "/api/v1/leagues/"+groupID+"/draft/assets", "u2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("available assets: status %d", w.Code)
	}
	var got []model.Asset
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, a := range got {
		if a.ID == assetIDs[0] {
			t.Errorf("drafted asset %s still listed as available", a.ID)
		}
	}
	if len(got) != len(assetIDs)-1 {
		t.Errorf("got %d available assets, want %d", len(got), len(assetIDs)-1)
	}
}
