package offer

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

type Handler struct {
	store Store
	log   *logrus.Logger
}

func NewHandler(store Store, logger *logrus.Logger) *Handler {
	return &Handler{store: store, log: logger}
}

// Create handles POST /messages.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.OfferID == "" || (req.Author != "user" && req.Author != "partner") || strings.TrimSpace(req.Text) == "" {
		http.Error(w, "offerId, author and text are required", http.StatusBadRequest)
		return
	}

	msg, err := h.store.Create(r.Context(), req.OfferID, req.Author, req.Text)
	if err != nil {
		h.log.WithError(err).WithField("offer_id", req.OfferID).Error("failed to create offer message")
		http.Error(w, "failed to create message", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

// List handles GET /messages?offerId=...; no offerId yields an empty list.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	offerID := r.URL.Query().Get("offerId")

	msgs := make([]*Message, 0)
	if offerID != "" {
		var err error
		msgs, err = h.store.ListByOffer(r.Context(), offerID)
		if err != nil {
			h.log.WithError(err).WithField("offer_id", offerID).Error("failed to list offer messages")
			http.Error(w, "failed to list messages", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msgs)
}
