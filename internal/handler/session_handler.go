package handler

import (
	"net/http"

	"duochat/internal/pkg/auth/jwt"
	"duochat/internal/pkg/errs"
	"duochat/internal/pkg/resp"
)

// HandleSession returns the page-bootstrap view for the bearer token's identity.
// It must be mounted behind jwt.RequireSession.
func HandleSession(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := jwt.IdentityFromContext(r)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		resp.RespondSuccess(w, r, deps.Coordinator.Bootstrap(identity))
	}
}
