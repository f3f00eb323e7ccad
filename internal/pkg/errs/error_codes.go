/*
Package errs provides custom error types and application-level error code constants.

These error codes identify request, chat and session failures both inside the server
and in the payloads sent to clients (HTTP bodies and WebSocket error events).
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Chat Errors
const (
	// ErrChatPrivate indicates that an identity outside the fixed pair tried to join.
	ErrChatPrivate = 2104

	// ErrInvalidImage indicates that a profile picture failed encoding or size validation.
	ErrInvalidImage = 2301
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrPowChallengeRequired indicates the client must complete a Proof-of-Work challenge first.
	ErrPowChallengeRequired = 3001

	// ErrPowChallengeInvalid indicates that the PoW proof provided by the client is invalid or incorrect.
	ErrPowChallengeInvalid = 3002

	// ErrSessionKicked indicates that the connection was replaced by a newer one for the same identity.
	ErrSessionKicked = 3004

	// ErrInvalidCredentials indicates that the user ID or password did not match.
	ErrInvalidCredentials = 3101

	// ErrUnauthorized indicates a missing or unknown session token, or a connection
	// that is not the current occupant of its identity's slot.
	ErrUnauthorized = 3102
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
