// Package notify is the per-user inbox: league events push entries, the API
// lists them and marks them read.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/paperleague/league-engine/internal/httpapi"
	"github.com/paperleague/league-engine/internal/model"
	"github.com/paperleague/league-engine/internal/store"
)

// Push records a notification for the user. Best effort from callers: a
// failed push should not fail the event that produced it.
func Push(ctx context.Context, st store.Store, userID, groupID, typ, message string) error {
	return st.InsertNotification(ctx, &model.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		GroupID:   groupID,
		Type:      typ,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
}

// Service serves the notification inbox.
type Service struct {
	store store.Store
}

// NewService creates a notification service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// List handles GET /api/v1/notifications: the acting user's inbox, newest
// first, capped at 50.
func (s *Service) List(w http.ResponseWriter, r *http.Request) {
	userID := httpapi.UserID(r.Context())

	notifs, err := s.store.ListNotifications(r.Context(), userID, 50)
	if err != nil {
		slog.Error("notification list failed", "err", err)
		httpapi.WriteError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if notifs == nil {
		notifs = []model.Notification{}
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"notifications": notifs})
}

// MarkRead handles POST /api/v1/notifications/{notificationID}/read.
func (s *Service) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "notificationID")

	if err := s.store.MarkNotificationRead(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpapi.WriteError(w, "notification not found", http.StatusNotFound)
			return
		}
		slog.Error("notification update failed", "err", err)
		httpapi.WriteError(w, "internal error", http.StatusInternalServerError)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
