/*
Package randx generates the identifiers the relay hands out: chat message IDs,
session token IDs and per-connection IDs.
*/
package randx

import "github.com/google/uuid"

// MessageID generates a UUID v4 string identifying a chat message.
func MessageID() string {
	return uuid.New().String()
}

// TokenID generates the unique "jti" of a session token.
func TokenID() string {
	return uuid.New().String()
}

// ConnID generates a short identifier for a live connection, used in logs.
func ConnID() string {
	return "conn_" + uuid.New().String()[:8]
}
