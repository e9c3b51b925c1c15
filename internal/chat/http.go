package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type markReadRequest struct {
	Side Role `json:"side"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, ErrValidation) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
}

// RecentChats lists conversation summaries, newest first.
// GET /api/chats?userId=&partnerId=
func (h *Handler) RecentChats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	convs, err := h.index.RecentChats(r.Context(), q.Get("userId"), q.Get("partnerId"))
	if err != nil {
		h.log.WithError(err).Error("failed to list recent chats")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

// GetChatHistory returns the full thread.
// GET /api/chats/{requestID}/messages
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	msgs, err := h.messages.History(r.Context(), requestID)
	if err != nil {
		h.log.WithError(err).WithField("request_id", requestID).Error("failed to load history")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// GetUnreadCount counts messages the given side has not read yet.
// GET /api/chats/{requestID}/unread?side=user
func (h *Handler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	side := Role(r.URL.Query().Get("side"))
	if !side.Valid() {
		writeError(w, ErrValidation)
		return
	}

	n, err := h.messages.UnreadCount(r.Context(), requestID, side)
	if err != nil {
		h.log.WithError(err).WithField("request_id", requestID).Error("failed to count unread")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// MarkChatRead is the non-realtime mark-as-read path.
// POST /api/chats/{requestID}/read {"side": "partner"}
func (h *Handler) MarkChatRead(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrValidation)
		return
	}

	n, err := h.MarkThreadRead(r.Context(), requestID, req.Side)
	if err != nil {
		if !errors.Is(err, ErrValidation) {
			h.log.WithError(err).WithField("request_id", requestID).Error("failed to mark read")
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
}
