// Package learn tracks lesson progress. Completing a lesson awards learning
// dollars, the virtual currency that gates group joins and unlocks
// lesson-restricted assets.
package learn

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paperleague/league-engine/internal/httpapi"
	"github.com/paperleague/league-engine/internal/model"
	"github.com/paperleague/league-engine/internal/store"
)

// ErrAlreadyCompleted is returned when a lesson completion is replayed.
// Each lesson pays out exactly once.
var ErrAlreadyCompleted = errors.New("learn: lesson already completed")

// Service handles lesson progress.
type Service struct {
	store store.Store
}

// NewService creates a learn service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// CompleteLessonRequest is the JSON body for recording a completion.
type CompleteLessonRequest struct {
	LessonID string          `json:"lesson_id"`
	Reward   decimal.Decimal `json:"reward"`
}

// ProgressView is the lesson-progress read model.
type ProgressView struct {
	UserID           string          `json:"user_id"`
	LearningDollars  decimal.Decimal `json:"learning_dollars"`
	CompletedLessons []string        `json:"completed_lessons"`
}

// CompleteLesson handles POST /api/v1/lessons/complete. Duplicate
// completions are rejected so a lesson cannot be farmed for dollars.
func (s *Service) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	userID := httpapi.UserID(r.Context())
	ctx := r.Context()

	var req CompleteLessonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.LessonID == "" {
		httpapi.WriteError(w, "lesson_id is required", http.StatusBadRequest)
		return
	}
	if req.Reward.IsNegative() {
		httpapi.WriteError(w, "reward must be non-negative", http.StatusBadRequest)
		return
	}

	var view ProgressView
	err := s.store.InTx(ctx, func(tx store.Store) error {
		// Row-lock the user: two concurrent completions of different
		// lessons must serialize, or the second write clobbers the first.
		user, err := tx.GetUserForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if user.HasCompleted(req.LessonID) {
			return ErrAlreadyCompleted
		}

		dollars := user.LearningDollars.Add(req.Reward)
		completed := append(user.CompletedLessons, req.LessonID)
		if err := tx.UpdateUserLearning(ctx, userID, dollars, completed); err != nil {
			return err
		}

		view = ProgressView{
			UserID:           userID,
			LearningDollars:  dollars,
			CompletedLessons: completed,
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyCompleted):
			httpapi.WriteError(w, "lesson already completed", http.StatusConflict)
		case errors.Is(err, store.ErrNotFound):
			httpapi.WriteError(w, "user not found", http.StatusNotFound)
		default:
			slog.Error("lesson completion failed", "err", err)
			httpapi.WriteError(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	slog.Info("lesson completed", "user", userID, "lesson", req.LessonID,
		"reward", req.Reward.String())
	httpapi.WriteJSON(w, http.StatusOK, view)
}

// Progress handles GET /api/v1/lessons/progress for the acting user.
func (s *Service) Progress(w http.ResponseWriter, r *http.Request) {
	userID := httpapi.UserID(r.Context())

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpapi.WriteError(w, "user not found", http.StatusNotFound)
			return
		}
		httpapi.WriteError(w, "internal error", http.StatusInternalServerError)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, ProgressView{
		UserID:           user.ID,
		LearningDollars:  user.LearningDollars,
		CompletedLessons: user.CompletedLessons,
	})
}

// Register handles POST /api/v1/users, creating a participant account.
func (s *Service) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" {
		httpapi.WriteError(w, "username is required", http.StatusBadRequest)
		return
	}

	user := &model.User{
		ID:              uuid.New().String(),
		Username:        req.Username,
		LearningDollars: decimal.Zero,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			httpapi.WriteError(w, "username already taken", http.StatusConflict)
			return
		}
		slog.Error("user creation failed", "err", err)
		httpapi.WriteError(w, "internal error", http.StatusInternalServerError)
		return
	}

	httpapi.WriteJSON(w, http.StatusCreated, user)
}
