package jwt

import "github.com/golang-jwt/jwt"

// Payload is the claim set of a DuoChat session token.
type Payload struct {
	// StandardClaims carries Id (the token's unique jti), IssuedAt and Issuer.
	// ExpiresAt is left unset: sessions live as long as the process.
	jwt.StandardClaims

	// UserID is the normalized identity the session was issued to.
	UserID string `json:"uid"`
}
