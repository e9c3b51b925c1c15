package offer

import "time"

type Message struct {
	ID        string    `json:"id"`
	OfferID   string    `json:"offerId"`
	Author    string    `json:"author"` // "user" or "partner"
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

type CreateRequest struct {
	OfferID string `json:"offerId"`
	Author  string `json:"author"`
	Text    string `json:"text"`
}
