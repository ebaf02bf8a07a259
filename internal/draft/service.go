package draft

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paperleague/league-engine/internal/config"
	"github.com/paperleague/league-engine/internal/gate"
	"github.com/paperleague/league-engine/internal/httpapi"
	"github.com/paperleague/league-engine/internal/matchups"
	"github.com/paperleague/league-engine/internal/metrics"
	"github.com/paperleague/league-engine/internal/model"
	"github.com/paperleague/league-engine/internal/store"
	"github.com/paperleague/league-engine/internal/valuation"
	"github.com/paperleague/league-engine/internal/ws"
)

var (
	// ErrDraftNotActive is returned when a pick or start is attempted in the
	// wrong draft phase.
	ErrDraftNotActive = errors.New("draft: not active")

	// ErrNotYourTurn is returned when the acting user does not own the
	// current pick.
	ErrNotYourTurn = errors.New("draft: not your turn")

	// ErrAssetAlreadyDrafted is returned when an asset was already selected
	// in this draft.
	ErrAssetAlreadyDrafted = errors.New("draft: asset already drafted")
)

// Service runs league drafts.
type Service struct {
	store store.Store
	hub   *ws.Hub // optional
}

// NewService creates a draft service.
func NewService(st store.Store, hub *ws.Hub) *Service {
	return &Service{store: st, hub: hub}
}

// PickRequest is the JSON body for making a selection.
type PickRequest struct {
	AssetID string `json:"asset_id"`
}

// StateView is the draft read model: the cursor plus all picks so far.
type StateView struct {
	model.DraftState
	TotalRounds int               `json:"total_rounds"`
	Picks       []model.DraftPick `json:"picks"`
}

// Start handles POST /api/v1/leagues/{groupID}/draft/start.
// Only the group admin may start, and only from the pending phase. The first
// pick goes to the earliest-joined member.
func (s *Service) Start(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	userID := httpapi.UserID(r.Context())
	ctx := r.Context()

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		s.writeDraftError(w, err)
		return
	}
	if group.AdminUserID != userID {
		httpapi.WriteError(w, "only the group admin can start the draft", http.StatusForbidden)
		return
	}
	settings, err := config.Parse(group.SettingsRaw)
	if err != nil {
		httpapi.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	members, err := s.store.ListMemberships(ctx, groupID)
	if err != nil {
		s.writeDraftError(w, err)
		return
	}
	if len(members) < 2 {
		httpapi.WriteError(w, "at least 2 members are required to draft", http.StatusBadRequest)
		return
	}

	var state *model.DraftState
	err = s.store.InTx(ctx, func(tx store.Store) error {
		state, err = tx.GetDraftStateForUpdate(ctx, groupID)
		if err != nil {
			return err
		}
		if state.Status != model.DraftPending {
			return ErrDraftNotActive
		}

		now := time.Now().UTC()
		state.Status = model.DraftActive
		state.CurrentRound = 1
		state.CurrentPickNumber = 1
		state.CurrentUserID = members[0].UserID
		state.RemainingSeconds = settings.DraftTimePerPick
		state.TimerStartedAt = &now
		return tx.UpdateDraftState(ctx, state)
	})
	if err != nil {
		s.writeDraftError(w, err)
		return
	}

	slog.Info("draft started", "group", groupID, "members", len(members),
		"rounds", settings.TotalDraftRounds(len(members)))

	if s.hub != nil {
		s.hub.Broadcast(ws.Event{
			Type:       ws.EventDraftPick,
			GroupID:    groupID,
			UserID:     state.CurrentUserID,
			Round:      1,
			PickNumber: 1,
		})
	}

	httpapi.WriteJSON(w, http.StatusOK, state)
}

// Pick handles POST /api/v1/leagues/{groupID}/draft/pick.
//
// The pick runs inside a transaction with the draft row locked, so two
// simultaneous picks serialize and the loser sees ErrNotYourTurn or
// ErrAssetAlreadyDrafted rather than corrupting the cursor.
func (s *Service) Pick(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	userID := httpapi.UserID(r.Context())
	ctx := r.Context()

	var req PickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AssetID == "" {
		httpapi.WriteError(w, "asset_id is required", http.StatusBadRequest)
		return
	}

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		s.writeDraftError(w, err)
		return
	}
	settings, err := config.Parse(group.SettingsRaw)
	if err != nil {
		httpapi.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	members, err := s.store.ListMemberships(ctx, groupID)
	if err != nil {
		s.writeDraftError(w, err)
		return
	}
	totalRounds := settings.TotalDraftRounds(len(members))

	var (
		state     *model.DraftState
		pick      model.DraftPick
		completed bool
	)
	err = s.store.InTx(ctx, func(tx store.Store) error {
		state, err = tx.GetDraftStateForUpdate(ctx, groupID)
		if err != nil {
			return err
		}
		if state.Status != model.DraftActive {
			return ErrDraftNotActive
		}
		if state.CurrentUserID != userID {
			return ErrNotYourTurn
		}

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
		user, err := tx.GetUserForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if err := gate.CheckLessons(user, asset); err != nil {
			return err
		}

		pick = model.DraftPick{
			ID:           uuid.New().String(),
			DraftStateID: state.ID,
			Round:        state.CurrentRound,
			PickNumber:   state.CurrentPickNumber,
			UserID:       userID,
			AssetID:      req.AssetID,
			CreatedAt:    time.Now().UTC(),
		}
		if err := tx.InsertDraftPick(ctx, &pick); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrAssetAlreadyDrafted
			}
			return err
		}

		nextRound, nextPick, pickerIdx, done :=
			NextPick(state.CurrentRound, state.CurrentPickNumber, len(members), totalRounds)
		if done {
			state.Status = model.DraftCompleted
			state.CurrentUserID = ""
			state.RemainingSeconds = 0
			state.TimerStartedAt = nil
			completed = true
			if err := tx.UpdateDraftState(ctx, state); err != nil {
				return err
			}
			if err := s.seedPortfolios(ctx, tx, state, members, &settings); err != nil {
				return err
			}
			// The competition schedule exists from the moment the draft
			// finishes.
			memberIDs := make([]string, len(members))
			for i, m := range members {
				memberIDs[i] = m.UserID
			}
			return matchups.Generate(ctx, tx, groupID, memberIDs, settings.CompetitionWeeks())
		}

		now := time.Now().UTC()
		state.CurrentRound = nextRound
		state.CurrentPickNumber = nextPick
		state.CurrentUserID = members[pickerIdx].UserID
		state.RemainingSeconds = settings.DraftTimePerPick
		state.TimerStartedAt = &now
		return tx.UpdateDraftState(ctx, state)
	})
	if err != nil {
		s.writeDraftError(w, err)
		return
	}

	metrics.DraftPicksTotal.Inc()
	slog.Info("draft pick", "group", groupID, "user", userID,
		"round", pick.Round, "pick", pick.PickNumber, "asset", req.AssetID)

	if s.hub != nil {
		evType := ws.EventDraftPick
		if completed {
			evType = ws.EventDraftCompleted
		}
		s.hub.Broadcast(ws.Event{
			Type:       evType,
			GroupID:    groupID,
			UserID:     userID,
			AssetID:    req.AssetID,
			Round:      pick.Round,
			PickNumber: pick.PickNumber,
		})
	}

	httpapi.WriteJSON(w, http.StatusOK, StateView{
		DraftState:  *state,
		TotalRounds: totalRounds,
	})
}

// seedPortfolios converts the completed draft into starting positions: one
// share of each drafted asset at its price right now, the earliest picks
// filling active slots and the rest going to the bench.
func (s *Service) seedPortfolios(ctx context.Context, tx store.Store, state *model.DraftState, members []model.Membership, settings *config.Settings) error {
	picks, err := tx.ListDraftPicks(ctx, state.ID)
	if err != nil {
		return err
	}

	byUser := make(map[string][]model.DraftPick, len(members))
	for _, p := range picks {
		byUser[p.UserID] = append(byUser[p.UserID], p)
	}

	one := decimal.NewFromInt(1)
	for _, m := range members {
		portfolio, err := tx.GetPortfolio(ctx, state.GroupID, m.UserID)
		if err != nil {
			return err
		}
		for i, p := range byUser[m.UserID] {
			asset, err := tx.GetAsset(ctx, p.AssetID)
			if err != nil {
				return err
			}
			status := model.SlotActive
			if i >= settings.ActiveSlots {
				status = model.SlotBench
			}
			hm := valuation.ComputeHolding(one, asset.CurrentPrice, asset.CurrentPrice)
			if err := tx.CreateHolding(ctx, &model.Holding{
				ID:              uuid.New().String(),
				PortfolioID:     portfolio.ID,
				AssetID:         asset.ID,
				Shares:          one,
				AverageCost:     asset.CurrentPrice,
				CurrentPrice:    asset.CurrentPrice,
				TotalValue:      hm.TotalValue,
				GainLoss:        hm.GainLoss,
				GainLossPercent: hm.GainLossPercent,
				Status:          status,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetState handles GET /api/v1/leagues/{groupID}/draft.
func (s *Service) GetState(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	ctx := r.Context()

	state, err := s.store.GetDraftState(ctx, groupID)
	if err != nil {
		s.writeDraftError(w, err)
		return
	}
	picks, err := s.store.ListDraftPicks(ctx, state.ID)
	if err != nil {
		s.writeDraftError(w, err)
		return
	}

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		s.writeDraftError(w, err)
		return
	}
	settings, err := config.Parse(group.SettingsRaw)
	if err != nil {
		httpapi.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	n, err := s.store.CountMemberships(ctx, groupID)
	if err != nil {
		s.writeDraftError(w, err)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, StateView{
		DraftState:  *state,
		TotalRounds: settings.TotalDraftRounds(n),
		Picks:       picks,
	})
}

// AvailableAssets handles GET /api/v1/leagues/{groupID}/draft/assets:
// tradable assets under the league settings minus anything already drafted.
func (s *Service) AvailableAssets(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	ctx := r.Context()

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		s.writeDraftError(w, err)
		return
	}
	settings, err := config.Parse(group.SettingsRaw)
	if err != nil {
		httpapi.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	state, err := s.store.GetDraftState(ctx, groupID)
	if err != nil {
		s.writeDraftError(w, err)
		return
	}
	picks, err := s.store.ListDraftPicks(ctx, state.ID)
	if err != nil {
		s.writeDraftError(w, err)
		return
	}

	taken := make([]string, 0, len(picks))
	for _, p := range picks {
		taken = append(taken, p.AssetID)
	}

	minPrice := decimal.NewFromFloat(settings.MinAssetPrice)
	assets, err := s.store.ListAssets(ctx, store.AssetFilter{
		Classes:    settings.EnabledAssetClasses,
		MinPrice:   &minPrice,
		ActiveOnly: true,
		ExcludeIDs: taken,
	})
	if err != nil {
		s.writeDraftError(w, err)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, assets)
}

func (s *Service) writeDraftError(w http.ResponseWriter, err error) {
	var lessonErr *gate.LessonRequiredError
	switch {
	case errors.As(err, &lessonErr):
		httpapi.WriteErrorBody(w, http.StatusForbidden, httpapi.ErrorBody{
			Error:          "asset locked",
			Code:           "LESSON_REQUIRED",
			MissingLessons: lessonErr.Missing,
		})
	case errors.Is(err, gate.ErrTradingNotPermitted):
		httpapi.WriteError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrNotYourTurn):
		httpapi.WriteError(w, "not your turn", http.StatusForbidden)
	case errors.Is(err, ErrDraftNotActive):
		httpapi.WriteError(w, "draft is not in the right phase", http.StatusConflict)
	case errors.Is(err, ErrAssetAlreadyDrafted):
		httpapi.WriteError(w, "asset already drafted", http.StatusConflict)
	case errors.Is(err, store.ErrNotFound):
		httpapi.WriteError(w, "not found", http.StatusNotFound)
	case errors.Is(err, store.ErrConflict):
		httpapi.WriteError(w, "conflict", http.StatusConflict)
	default:
		slog.Error("draft operation failed", "err", err)
		httpapi.WriteError(w, "internal error", http.StatusInternalServerError)
	}
}
