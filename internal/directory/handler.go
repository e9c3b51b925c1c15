package directory

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	repo *Repository
	log  *logrus.Logger
}

func NewHandler(repo *Repository, logger *logrus.Logger) *Handler {
	return &Handler{repo: repo, log: logger}
}

// RegisterPushToken stores the device token used to reach a user.
func (h *Handler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req PushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if userID == "" || req.Token == "" {
		http.Error(w, "userID and token are required", http.StatusBadRequest)
		return
	}

	if err := h.repo.SetPushToken(r.Context(), userID, req.Token); err != nil {
		h.log.WithError(err).WithField("user_id", userID).Error("failed to store push token")
		http.Error(w, "failed to store push token", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
