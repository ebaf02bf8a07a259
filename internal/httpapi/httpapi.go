// Package httpapi holds the small shared pieces of the JSON HTTP surface:
// response encoding, error payloads, and the request-identity middleware.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
)

type ctxKey int

const userIDKey ctxKey = 0

// ErrorBody is the JSON error envelope returned by every handler.
type ErrorBody struct {
	Error          string   `json:"error"`
	Code           string   `json:"code,omitempty"`
	MissingLessons []string `json:"missing_lessons,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, message string, status int) {
	WriteJSON(w, status, ErrorBody{Error: message})
}

// WriteErrorBody writes a structured error response.
func WriteErrorBody(w http.ResponseWriter, status int, body ErrorBody) {
	WriteJSON(w, status, body)
}

// Identity resolves the acting participant from the X-User-ID header set by
// the authenticating proxy and stores it on the request context. Requests
// without an identity are rejected. There is deliberately no process-wide
// "current user"; every handler reads the identity from its own request.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			WriteError(w, "missing X-User-ID header", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

// UserID returns the authenticated participant ID from the context, or ""
// when the identity middleware did not run.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
