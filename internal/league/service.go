// Package league manages groups: creation with typed settings, membership
// joins (by id or invite code), and reads with the derived competition
// status. Status is never stored; it is computed from the settings clock on
// every read.
package league

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paperleague/league-engine/internal/config"
	"github.com/paperleague/league-engine/internal/httpapi"
	"github.com/paperleague/league-engine/internal/model"
	"github.com/paperleague/league-engine/internal/store"
)

// joinCodeAlphabet omits 0/O/1/I to keep codes unambiguous when read aloud.
const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const joinCodeLength = 6

var (
	// ErrGroupFull is returned when a join would exceed max members.
	ErrGroupFull = errors.New("league: group is full")

	// ErrAlreadyMember is returned on a duplicate join.
	ErrAlreadyMember = errors.New("league: already a member")

	// ErrInsufficientLearningDollars is returned when the joining user has
	// not earned enough learning dollars to cover the starting balance.
	ErrInsufficientLearningDollars = errors.New("league: insufficient learning dollars")
)

// Service handles group operations.
type Service struct {
	store store.Store
}

// NewService creates a league service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// CreateGroupRequest is the JSON body for creating a group.
type CreateGroupRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	MaxMembers  int             `json:"max_members"`
	Settings    config.Settings `json:"settings"`
}

// JoinByCodeRequest carries an invite code.
type JoinByCodeRequest struct {
	JoinCode string `json:"join_code"`
}

// GroupView is the group read model with the derived status.
type GroupView struct {
	model.Group
	Settings    config.Settings    `json:"settings"`
	Status      string             `json:"status"`
	MemberCount int                `json:"member_count"`
	Members     []model.Membership `json:"members,omitempty"`
}

// StandingRow is one leaderboard entry.
type StandingRow struct {
	UserID        string          `json:"user_id"`
	TotalValue    decimal.Decimal `json:"total_value"`
	GainLoss      decimal.Decimal `json:"gain_loss"`
	ReturnPercent decimal.Decimal `json:"return_percent"`
	ScoringMethod string          `json:"scoring_method"`
}

// Create handles POST /api/v1/leagues. The creator becomes admin, joins
// immediately, and gets a portfolio funded with the starting balance.
// A draft state is created in the pending phase.
func (s *Service) Create(w http.ResponseWriter, r *http.Request) {
	userID := httpapi.UserID(r.Context())
	ctx := r.Context()

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		httpapi.WriteError(w, "name is required", http.StatusBadRequest)
		return
	}
	if req.MaxMembers == 0 {
		req.MaxMembers = req.Settings.GroupSize
	}
	if err := req.Settings.Validate(); err != nil {
		httpapi.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		s.writeLeagueError(w, err)
		return
	}
	starting := decimal.NewFromFloat(req.Settings.StartingBalance)
	if user.LearningDollars.LessThan(starting) {
		s.writeLeagueError(w, ErrInsufficientLearningDollars)
		return
	}

	raw, err := req.Settings.Encode()
	if err != nil {
		httpapi.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	group := &model.Group{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		AdminUserID: userID,
		MaxMembers:  req.MaxMembers,
		SettingsRaw: raw,
		CreatedAt:   now,
	}

	// Group, admin enrollment, and the pending draft commit together: a
	// mid-sequence failure must not leave a group without a portfolio or
	// draft state. Join codes can collide; retry with a fresh code on
	// conflict.
	for attempt := 0; ; attempt++ {
		group.JoinCode = newJoinCode()
		err = s.store.InTx(ctx, func(tx store.Store) error {
			if err := tx.CreateGroup(ctx, group); err != nil {
				return err
			}
			if err := s.enroll(ctx, tx, group, userID, starting, now); err != nil {
				return err
			}
			return tx.CreateDraftState(ctx, &model.DraftState{
				ID:      uuid.New().String(),
				GroupID: group.ID,
				Status:  model.DraftPending,
			})
		})
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConflict) || attempt >= 5 {
			s.writeLeagueError(w, err)
			return
		}
	}

	slog.Info("group created", "group", group.ID, "admin", userID, "code", group.JoinCode)

	httpapi.WriteJSON(w, http.StatusCreated, GroupView{
		Group:       *group,
		Settings:    req.Settings,
		Status:      req.Settings.Status(now),
		MemberCount: 1,
	})
}

// Join handles POST /api/v1/leagues/{groupID}/join.
func (s *Service) Join(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	userID := httpapi.UserID(r.Context())

	group, err := s.store.GetGroup(r.Context(), groupID)
	if err != nil {
		s.writeLeagueError(w, err)
		return
	}
	s.join(w, r, group, userID)
}

// JoinByCode handles POST /api/v1/leagues/join, looking the group up by its
// invite code.
func (s *Service) JoinByCode(w http.ResponseWriter, r *http.Request) {
	userID := httpapi.UserID(r.Context())

	var req JoinByCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.JoinCode == "" {
		httpapi.WriteError(w, "join_code is required", http.StatusBadRequest)
		return
	}

	group, err := s.store.GetGroupByJoinCode(r.Context(), req.JoinCode)
	if err != nil {
		s.writeLeagueError(w, err)
		return
	}
	s.join(w, r, group, userID)
}

func (s *Service) join(w http.ResponseWriter, r *http.Request, group *model.Group, userID string) {
	ctx := r.Context()

	settings, err := config.Parse(group.SettingsRaw)
	if err != nil {
		httpapi.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	starting := decimal.NewFromFloat(settings.StartingBalance)

	err = s.store.InTx(ctx, func(tx store.Store) error {
		if _, err := tx.GetMembership(ctx, group.ID, userID); err == nil {
			return ErrAlreadyMember
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		n, err := tx.CountMemberships(ctx, group.ID)
		if err != nil {
			return err
		}
		if n >= group.MaxMembers {
			return ErrGroupFull
		}

		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user.LearningDollars.LessThan(starting) {
			return ErrInsufficientLearningDollars
		}

		return s.enroll(ctx, tx, group, userID, starting, time.Now().UTC())
	})
	if err != nil {
		s.writeLeagueError(w, err)
		return
	}

	slog.Info("member joined", "group", group.ID, "user", userID)
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"group_id": group.ID})
}

// enroll adds a membership and its funded portfolio.
func (s *Service) enroll(ctx context.Context, st store.Store, group *model.Group, userID string, starting decimal.Decimal, now time.Time) error {
	if err := st.AddMembership(ctx, &model.Membership{
		ID:       uuid.New().String(),
		GroupID:  group.ID,
		UserID:   userID,
		JoinedAt: now,
	}); err != nil {
		return err
	}
	return st.CreatePortfolio(ctx, &model.Portfolio{
		ID:          uuid.New().String(),
		GroupID:     group.ID,
		UserID:      userID,
		CashBalance: starting,
		TotalValue:  starting,
		Savings:     decimal.Zero,
		Bonds:       decimal.Zero,
		IndexFunds:  decimal.Zero,
		CreatedAt:   now,
	})
}

// LeaveResult reports what a departure did to the group.
type LeaveResult struct {
	Message      string `json:"message"`
	GroupDeleted bool   `json:"group_deleted"`
}

// Leave handles DELETE /api/v1/leagues/{groupID}/leave. A regular member's
// departure removes their membership and portfolio. The admin leaving, or the
// last member leaving, deletes the whole group.
func (s *Service) Leave(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	userID := httpapi.UserID(r.Context())
	ctx := r.Context()

	var result LeaveResult
	err := s.store.InTx(ctx, func(tx store.Store) error {
		group, err := tx.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}

		if group.AdminUserID == userID {
			result = LeaveResult{Message: "group deleted (admin left)", GroupDeleted: true}
			return tx.DeleteGroup(ctx, groupID)
		}

		if _, err := tx.GetMembership(ctx, groupID, userID); err != nil {
			return err
		}
		if p, err := tx.GetPortfolio(ctx, groupID, userID); err == nil {
			if err := tx.DeletePortfolio(ctx, p.ID); err != nil {
				return err
			}
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := tx.DeleteMembership(ctx, groupID, userID); err != nil {
			return err
		}

		remaining, err := tx.CountMemberships(ctx, groupID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			result = LeaveResult{Message: "left group; group deleted as no members remain", GroupDeleted: true}
			return tx.DeleteGroup(ctx, groupID)
		}
		result = LeaveResult{Message: "left group"}
		return nil
	})
	if err != nil {
		s.writeLeagueError(w, err)
		return
	}

	slog.Info("member left", "group", groupID, "user", userID, "group_deleted", result.GroupDeleted)
	httpapi.WriteJSON(w, http.StatusOK, result)
}

// List handles GET /api/v1/leagues, returning the acting user's groups.
func (s *Service) List(w http.ResponseWriter, r *http.Request) {
	userID := httpapi.UserID(r.Context())
	ctx := r.Context()

	groups, err := s.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		s.writeLeagueError(w, err)
		return
	}

	now := time.Now().UTC()
	views := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		settings, err := config.Parse(g.SettingsRaw)
		if err != nil {
			continue
		}
		n, err := s.store.CountMemberships(ctx, g.ID)
		if err != nil {
			s.writeLeagueError(w, err)
			return
		}
		views = append(views, GroupView{
			Group:       g,
			Settings:    settings,
			Status:      settings.Status(now),
			MemberCount: n,
		})
	}
	httpapi.WriteJSON(w, http.StatusOK, views)
}

// Get handles GET /api/v1/leagues/{groupID}.
func (s *Service) Get(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	ctx := r.Context()

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		s.writeLeagueError(w, err)
		return
	}
	settings, err := config.Parse(group.SettingsRaw)
	if err != nil {
		httpapi.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	members, err := s.store.ListMemberships(ctx, groupID)
	if err != nil {
		s.writeLeagueError(w, err)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, GroupView{
		Group:       *group,
		Settings:    settings,
		Status:      settings.Status(time.Now().UTC()),
		MemberCount: len(members),
		Members:     members,
	})
}

// Standings handles GET /api/v1/leagues/{groupID}/standings: every member's
// portfolio ranked by the league's scoring method.
func (s *Service) Standings(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	ctx := r.Context()

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		s.writeLeagueError(w, err)
		return
	}
	settings, err := config.Parse(group.SettingsRaw)
	if err != nil {
		httpapi.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	members, err := s.store.ListMemberships(ctx, groupID)
	if err != nil {
		s.writeLeagueError(w, err)
		return
	}

	starting := decimal.NewFromFloat(settings.StartingBalance)
	rows := make([]StandingRow, 0, len(members))
	for _, m := range members {
		p, err := s.store.GetPortfolio(ctx, groupID, m.UserID)
		if err != nil {
			s.writeLeagueError(w, err)
			return
		}
		gain := p.TotalValue.Sub(starting)
		pct := decimal.Zero
		if starting.IsPositive() {
			pct = gain.Div(starting).Mul(decimal.NewFromInt(100))
		}
		rows = append(rows, StandingRow{
			UserID:        m.UserID,
			TotalValue:    p.TotalValue,
			GainLoss:      gain,
			ReturnPercent: pct,
			ScoringMethod: settings.ScoringMethod,
		})
	}

	// Rank by the configured scoring method. Absolute gain and return
	// percent order identically when everyone starts from the same balance,
	// but the league can be rescored after manual adjustments.
	sortStandings(rows, settings.ScoringMethod)

	httpapi.WriteJSON(w, http.StatusOK, rows)
}

func sortStandings(rows []StandingRow, method string) {
	sort.SliceStable(rows, func(i, j int) bool {
		if method == config.ScoreAbsoluteGain {
			return rows[i].GainLoss.GreaterThan(rows[j].GainLoss)
		}
		return rows[i].ReturnPercent.GreaterThan(rows[j].ReturnPercent)
	})
}

func newJoinCode() string {
	b := make([]byte, joinCodeLength)
	for i := range b {
		b[i] = joinCodeAlphabet[rand.Intn(len(joinCodeAlphabet))]
	}
	return string(b)
}

func (s *Service) writeLeagueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrGroupFull):
		httpapi.WriteError(w, "group is full", http.StatusForbidden)
	case errors.Is(err, ErrAlreadyMember):
		httpapi.WriteError(w, "already a member of this group", http.StatusConflict)
	case errors.Is(err, ErrInsufficientLearningDollars):
		httpapi.WriteError(w, "not enough learning dollars to cover the starting balance", http.StatusForbidden)
	case errors.Is(err, store.ErrNotFound):
		httpapi.WriteError(w, "not found", http.StatusNotFound)
	case errors.Is(err, store.ErrConflict):
		httpapi.WriteError(w, "conflict", http.StatusConflict)
	default:
		slog.Error("league operation failed", "err", err)
		httpapi.WriteError(w, "internal error", http.StatusInternalServerError)
	}
}
