package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"chatroom/internal/chat"
	"chatroom/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a chat error to an HTTP status and client-facing message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound, "Chat session not found"
	case errors.Is(err, chat.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, chat.ErrPersistence):
		return http.StatusServiceUnavailable, "Database error"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

// errorEvent maps a chat error to the frame sent back to the originating connection.
func errorEvent(err error) model.Event {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return model.NewErrorEvent(model.ErrCodeValidation, err.Error())
	case errors.Is(err, chat.ErrNotFound):
		return model.NewErrorEvent(model.ErrCodeNotFound, "Chat session not found")
	case errors.Is(err, chat.ErrPersistence):
		return model.NewErrorEvent(model.ErrCodePersistence, "Failed to save message, try again")
	default:
		return model.NewErrorEvent(model.ErrCodeInternal, "Internal error")
	}
}

type userKey struct{}

func withUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// userFrom returns the authenticated user id stored by requireUser.
func userFrom(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

// requireUser rejects requests that do not carry the identity header set by
// the upstream authentication proxy.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(h.Config.IdentityHeader)
		if userID == "" {
			h.Log.Warn("missing identity", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), userID)))
	})
}
