package matchups

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paperleague/league-engine/internal/config"
	"github.com/paperleague/league-engine/internal/httpapi"
	"github.com/paperleague/league-engine/internal/model"
	"github.com/paperleague/league-engine/internal/store"
)

// Service serves the weekly matchup views.
type Service struct {
	store store.Store
}

// NewService creates a matchup service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Generate inserts the full head-to-head schedule for a group. Called inside
// the draft-completion transaction; byes (empty User2) are not stored.
func Generate(ctx context.Context, st store.Store, groupID string, memberIDs []string, weeks int) error {
	for _, p := range Schedule(memberIDs, weeks) {
		if p.User2 == "" {
			continue
		}
		status := model.MatchupPending
		if p.Week == 1 {
			status = model.MatchupActive
		}
		if err := st.InsertMatchup(ctx, &model.Matchup{
			ID:         uuid.New().String(),
			GroupID:    groupID,
			Week:       p.Week,
			User1ID:    p.User1,
			User2ID:    p.User2,
			User1Score: decimal.Zero,
			User2Score: decimal.Zero,
			Status:     status,
		}); err != nil {
			return err
		}
	}
	return nil
}

// currentWeek maps wall-clock time onto the competition's week counter.
// Zero before the window opens.
func currentWeek(settings *config.Settings, now time.Time) int {
	if settings.StartDate.IsZero() || now.Before(settings.StartDate) {
		return 0
	}
	week := int(now.Sub(settings.StartDate)/(7*24*time.Hour)) + 1
	if max := settings.CompetitionWeeks(); week > max {
		week = max
	}
	return week
}

// refresh re-derives the matchup's status from the competition clock and its
// scores from the two portfolios, persisting both.
func (s *Service) refresh(ctx context.Context, m *model.Matchup, settings *config.Settings) error {
	week := currentWeek(settings, time.Now().UTC())
	switch {
	case m.Week < week:
		m.Status = model.MatchupCompleted
	case m.Week == week:
		m.Status = model.MatchupActive
	default:
		m.Status = model.MatchupPending
	}

	p1, err := s.store.GetPortfolio(ctx, m.GroupID, m.User1ID)
	if err != nil {
		return err
	}
	p2, err := s.store.GetPortfolio(ctx, m.GroupID, m.User2ID)
	if err != nil {
		return err
	}
	m.User1Score = p1.TotalValue
	m.User2Score = p2.TotalValue

	return s.store.UpdateMatchupScores(ctx, m.ID, m.User1Score, m.User2Score, m.Status)
}

func (s *Service) settingsFor(ctx context.Context, groupID string) (*config.Settings, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	settings, err := config.Parse(group.SettingsRaw)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// Current handles GET /api/v1/leagues/{groupID}/matchup/current: the acting
// user's matchup for the week in progress, with fresh scores. Before the
// window opens it previews week 1; a missing row is a bye week.
func (s *Service) Current(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	userID := httpapi.UserID(r.Context())
	ctx := r.Context()

	settings, err := s.settingsFor(ctx, groupID)
	if err != nil {
		s.writeMatchupError(w, err)
		return
	}
	week := currentWeek(settings, time.Now().UTC())
	if week == 0 {
		week = 1
	}
	m, err := s.store.MatchupByWeek(ctx, groupID, userID, week)
	if err != nil {
		s.writeMatchupError(w, err)
		return
	}
	if err := s.refresh(ctx, m, settings); err != nil {
		s.writeMatchupError(w, err)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, m)
}

// ByWeek handles GET /api/v1/leagues/{groupID}/matchup/week/{week}.
func (s *Service) ByWeek(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	userID := httpapi.UserID(r.Context())
	ctx := r.Context()

	week, err := strconv.Atoi(chi.URLParam(r, "week"))
	if err != nil || week < 1 {
		httpapi.WriteError(w, "week must be a positive integer", http.StatusBadRequest)
		return
	}

	settings, err := s.settingsFor(ctx, groupID)
	if err != nil {
		s.writeMatchupError(w, err)
		return
	}
	m, err := s.store.MatchupByWeek(ctx, groupID, userID, week)
	if err != nil {
		s.writeMatchupError(w, err)
		return
	}
	if err := s.refresh(ctx, m, settings); err != nil {
		s.writeMatchupError(w, err)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, m)
}

// List handles GET /api/v1/leagues/{groupID}/matchups: the whole schedule in
// week order, without score refresh.
func (s *Service) List(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	matchups, err := s.store.ListMatchups(r.Context(), groupID)
	if err != nil {
		s.writeMatchupError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, matchups)
}

func (s *Service) writeMatchupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httpapi.WriteError(w, "no matchup found", http.StatusNotFound)
	default:
		slog.Error("matchup operation failed", "err", err)
		httpapi.WriteError(w, "internal error", http.StatusInternalServerError)
	}
}
