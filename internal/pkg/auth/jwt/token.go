/*
Package jwt signs and parses session tokens and extracts them from HTTP requests.

A signature check alone never authenticates anything: the session store must also
recognise the token ID, so tokens minted by another process are rejected.
*/
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

// TokenIssuer identifies the issuer of the token.
const TokenIssuer = "DuoChat-Server"

var ErrInvalidToken = errors.New("invalid session token")

// GenerateToken signs payload with HS256. The caller sets payload.Id.
func GenerateToken(payload *Payload, secretKey string) (string, error) {
	payload.StandardClaims.IssuedAt = time.Now().Unix()
	payload.StandardClaims.Issuer = TokenIssuer

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)

	return token.SignedString([]byte(secretKey))
}

// ParseToken verifies the signature of tokenString and returns its claims.
func ParseToken(tokenString string, secretKey string) (*Payload, error) {
	claims := &Payload{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid || claims.Id == "" || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
