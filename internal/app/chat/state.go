package chat

import (
	"time"

	"duochat/internal/app/user"
)

// Sessions resolves session tokens to identities.
type Sessions interface {
	Validate(token string) (string, bool)
}

// State bundles everything the Coordinator owns. One State is built at process
// start and handed to the Coordinator; tests build a fresh one per case.
type State struct {
	Registry *user.Registry
	Sessions Sessions
	Presence *Presence
	Log      *MessageLog
	Profiles *ProfileStore
}

// NewState wires empty presence, log and profile containers around registry and sessions.
func NewState(registry *user.Registry, sessions Sessions) *State {
	return &State{
		Registry: registry,
		Sessions: sessions,
		Presence: NewPresence(),
		Log:      NewMessageLog(time.Now),
		Profiles: NewProfileStore(),
	}
}
