package handler

import (
	"duochat/internal/app/chat"
	"duochat/internal/app/session"
	"duochat/internal/app/user"
	"duochat/internal/configs"
	"duochat/internal/pkg/pow"
)

// AppDeps bundles what the HTTP layer needs. It is built once in main.
type AppDeps struct {
	Coordinator *chat.Coordinator
	Sessions    *session.Store
	Registry    *user.Registry
	Pow         *pow.Manager
	Config      *configs.AppConfig
}
