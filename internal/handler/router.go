/*
Package handler provides the HTTP handlers and routing setup for the DuoChat server.

This file defines the main Router, applying necessary middleware like logging, CORS,
and IP-based rate limiting before delegating requests to specific handlers (API and WebSocket).
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"duochat/internal/pkg/auth/jwt"
	"duochat/internal/pkg/limiter"
	"duochat/internal/pkg/logx"
	"duochat/internal/pkg/resp"
)

const (
	LoginRate  = 0.2
	LoginBurst = 5
	JoinRate   = 0.5
	JoinBurst  = 10
)

// Limiters are the per-IP rate limiters owned by the router. Stop them on shutdown.
type Limiters struct {
	Login *limiter.IPRateLimiter
	Join  *limiter.IPRateLimiter
}

// NewLimiters creates the default login and WebSocket-upgrade limiters.
func NewLimiters() *Limiters {
	return &Limiters{
		Login: limiter.NewIPRateLimiter(rate.Limit(LoginRate), LoginBurst),
		Join:  limiter.NewIPRateLimiter(rate.Limit(JoinRate), JoinBurst),
	}
}

// Stop terminates the limiters' cleanup goroutines.
func (l *Limiters) Stop() {
	l.Login.Stop()
	l.Join.Stop()
}

// Router sets up the main HTTP routing table (chi.Router) for the application.
func Router(deps *AppDeps, limiters *Limiters) http.Handler {
	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-PoW-Token"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]string{
			"status":  "ok",
			"service": "DuoChat Server",
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(auth chi.Router) {
			auth.Get("/challenge", HandleChallenge(deps))
			auth.Post("/verify", HandleVerify(deps))
			auth.With(limiters.Login.Middleware, deps.Pow.Middleware).Post("/login", HandleLogin(deps))
		})

		api.With(jwt.RequireSession(deps.Sessions)).Get("/session", HandleSession(deps))
	})

	r.Get("/ws", HandleWebSocket(deps.Coordinator, wsUpgrader, limiters.Join))

	if deps.Config.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(deps.Config.StaticDir)))
	}

	return r
}
