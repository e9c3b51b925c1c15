package myMiddleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const identityKey contextKey = "identity"

const (
	HeaderUserID    = "x-user-id"
	HeaderPartnerID = "x-partner-id"
)

type Identity struct {
	UserID    string
	PartnerID string
}

// TokenValidator returns (userID, partnerID) for a valid bearer token.
type TokenValidator interface {
	ValidateToken(tokenString string) (string, string, error)
}

type IdentityMiddleware struct {
	validator TokenValidator
}

// NewIdentityMiddleware accepts a nil validator, in which case only the
// x-user-id / x-partner-id headers identify the caller.
func NewIdentityMiddleware(v TokenValidator) *IdentityMiddleware {
	return &IdentityMiddleware{validator: v}
}

func (im *IdentityMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id Identity

		if tokenString := bearerToken(r); tokenString != "" && im.validator != nil {
			userID, partnerID, err := im.validator.ValidateToken(tokenString)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			id.UserID, id.PartnerID = userID, partnerID
		}

		// Headers fill whatever the token left empty.
		if id.UserID == "" {
			id.UserID = strings.TrimSpace(r.Header.Get(HeaderUserID))
		}
		if id.PartnerID == "" {
			id.PartnerID = strings.TrimSpace(r.Header.Get(HeaderPartnerID))
		}

		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func IdentityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}

func bearerToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	// Browsers cannot set headers on a websocket handshake.
	return r.URL.Query().Get("token")
}
