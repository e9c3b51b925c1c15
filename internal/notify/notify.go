package notify

import (
	"context"
	"errors"
)

// Push is the payload shown on the target device.
type Push struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound,omitempty"`
	Badge int               `json:"badge,omitempty"`
}

// TokenLookup finds the device push token registered for an account.
type TokenLookup interface {
	PushToken(ctx context.Context, userID string) (string, error)
}

// OwnerResolver maps a partner (business owner) id to its account id.
// An unknown owner resolves to "" without error.
type OwnerResolver interface {
	ResolveUserIDFromOwnerID(ctx context.Context, ownerID string) (string, error)
}

var (
	ErrNoPushToken = errors.New("no push token registered")
	ErrRejected    = errors.New("push rejected")
)
