package jwt

import (
	"context"
	"net/http"
	"strings"

	"duochat/internal/pkg/errs"
	"duochat/internal/pkg/resp"
)

type contextKey string

// ContextIdentityKey stores the authenticated identity in the request context.
const ContextIdentityKey contextKey = "identity"

// Validator resolves a session token to an identity.
type Validator interface {
	Validate(token string) (string, bool)
}

// BearerToken returns the token from an "Authorization: Bearer <token>" header, or "".
func BearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireSession rejects requests without a valid bearer token (HTTP 401) and
// injects the resolved identity into the request context.
func RequireSession(v Validator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := v.Validate(BearerToken(r))
			if !ok {
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}

			ctx := context.WithValue(r.Context(), ContextIdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the identity injected by RequireSession.
func IdentityFromContext(r *http.Request) (string, bool) {
	identity, ok := r.Context().Value(ContextIdentityKey).(string)
	return identity, ok
}
