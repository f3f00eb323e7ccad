/*
Package handler provides HTTP handler functions for login and the Proof-of-Work challenge.
*/
package handler

import (
	"errors"
	"net/http"

	"duochat/internal/pkg/errs"
	"duochat/internal/pkg/logx"
	"duochat/internal/pkg/pow"
	"duochat/internal/pkg/req"
	"duochat/internal/pkg/resp"
)

type LoginInput struct {
	UserID   string `json:"userId" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token          string  `json:"token"`
	UserID         string  `json:"userId"`
	ProfilePicture *string `json:"profilePicture"`
}

// HandleLogin verifies credentials against the registry and issues a session token.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input LoginInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		identity, ok := deps.Registry.Authenticate(input.UserID, input.Password)
		if !ok {
			logx.Warn("login: invalid credentials", "user_id", input.UserID)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		token, err := deps.Sessions.Issue(identity)
		if err != nil {
			logx.Error(err, "login: session token generation failed", "user_id", identity)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("login: session issued", "user_id", identity, "issued_sessions", deps.Sessions.Count())

		resp.RespondSuccess(w, r, LoginResponse{
			Token:          token,
			UserID:         identity,
			ProfilePicture: deps.Coordinator.ProfilePicture(identity),
		})
	}
}

// HandleChallenge issues a PoW nonce and the difficulty it must be solved at.
func HandleChallenge(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.Pow.Enabled() {
			resp.RespondSuccess(w, r, map[string]any{
				"enabled":    false,
				"difficulty": 0,
			})
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"enabled":    true,
			"nonce":      deps.Pow.GenerateNonce(),
			"difficulty": deps.Pow.Difficulty(),
		})
	}
}

type VerifyInput struct {
	Nonce   string `json:"nonce" validate:"required"`
	Counter string `json:"counter" validate:"required"`
}

// HandleVerify trades a solved challenge for a single-use proof token.
func HandleVerify(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.Pow.Enabled() {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		var input VerifyInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		token, err := deps.Pow.ValidateProof(input.Nonce, input.Counter)
		if err != nil {
			if !errors.Is(err, pow.ErrProofTooWeak) {
				logx.Warn("pow: proof rejected", "error", err.Error())
			}
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeInvalid))
			return
		}

		resp.RespondSuccess(w, r, map[string]string{
			"powToken": token,
		})
	}
}
