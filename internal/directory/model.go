package directory

import "github.com/golang-jwt/jwt/v5"

type PushTokenRequest struct {
	Token string `json:"token"`
}

// Claims carried by access tokens issued by the account service.
type Claims struct {
	UserID    string `json:"uid"`
	PartnerID string `json:"pid,omitempty"`
	jwt.RegisteredClaims
}
