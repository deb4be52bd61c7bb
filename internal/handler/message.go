package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"chatroom/internal/chat"
	"chatroom/internal/model"
)

// maxRequestBody limits JSON request bodies to 1MB
const maxRequestBody = 1 << 20

// SendMessage handles POST /api/send-message/
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r.Context())
	h.Log.Debug("[POST /api/send-message/] request received", "remote", r.RemoteAddr, "user_id", userID)

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var body model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.Log.Warn("[POST /api/send-message/] bad request", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, "session_id and content are required")
		return
	}

	msg, err := h.Pipeline.Ingest(r.Context(), chat.IngestRequest{
		SessionID: body.SessionID,
		SenderID:  userID,
		Content:   body.Content,
		Source:    chat.SourceHTTP,
	})
	if err != nil {
		status, text := statusFor(err)
		h.Log.Warn("[POST /api/send-message/] rejected", "status", status, "error", err)
		writeError(w, status, text)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// ListMessages handles GET /api/messages/?session_id=N
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r.Context())

	raw := r.URL.Query().Get("session_id")
	if raw == "" {
		writeJSON(w, http.StatusOK, []model.Message{})
		return
	}
	sessionID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || sessionID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid session_id")
		return
	}

	msgs, err := h.Query.ListMessages(r.Context(), sessionID, userID)
	if err != nil {
		status, text := statusFor(err)
		h.Log.Warn("[GET /api/messages/] rejected", "session_id", sessionID, "user_id", userID, "error", err)
		writeError(w, status, text)
		return
	}

	h.Log.Debug("[GET /api/messages/] returned messages", "session_id", sessionID, "count", len(msgs))
	writeJSON(w, http.StatusOK, msgs)
}

// ListSessions handles GET /api/sessions/
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r.Context())

	sessions, err := h.Query.ListSessions(r.Context(), userID)
	if err != nil {
		status, text := statusFor(err)
		h.Log.Error("[GET /api/sessions/] failed", "user_id", userID, "error", err)
		writeError(w, status, text)
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

// GetSession handles GET /api/sessions/{id}/
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r.Context())
	sessionID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	detail, err := h.Query.GetSession(r.Context(), sessionID, userID)
	if err != nil {
		status, text := statusFor(err)
		h.Log.Warn("[GET /api/sessions/{id}/] rejected", "session_id", sessionID, "user_id", userID, "error", err)
		writeError(w, status, text)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}
