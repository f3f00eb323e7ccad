/*
Package chat contains the relay's real-time core.

This file defines the Coordinator, the single owner of the Presence Table, the
Message Log and the Profile Store. Each identity has one slot that is either empty
or occupied by exactly one connection; a newer connection for the same identity
evicts the older one (forceLogout) before it is admitted.
*/
package chat

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"duochat/internal/pkg/errs"
	"duochat/internal/pkg/logx"
)

// Bootstrap is the read-only view returned to a page that already holds a token.
type Bootstrap struct {
	UserID         string  `json:"userId"`
	ProfilePicture *string `json:"profilePicture"`
	OtherOnline    bool    `json:"otherOnline"`
}

// Coordinator serializes every state transition of the relay.
//
// Transitions run under mu and record their sends in an outbox. The outbox is
// flushed while holding sendMu, which is acquired before mu is released: sends
// never run under the mutation lock, yet connections observe events in exactly
// the order the transitions happened.
type Coordinator struct {
	state *State

	// mu guards every container in state.
	mu sync.RWMutex

	// sendMu orders outbox flushes.
	sendMu sync.Mutex

	// attached holds every upgraded connection, joined or not, until it disconnects.
	attached map[Conn]struct{}
	closed   bool

	// structured logger with Coordinator context.
	logger zerolog.Logger
}

// NewCoordinator returns a Coordinator owning state.
func NewCoordinator(state *State) *Coordinator {
	return &Coordinator{
		state:    state,
		attached: make(map[Conn]struct{}),
		logger:   logx.Component("Coordinator"),
	}
}

// transition runs fn under the mutation lock, then flushes the deliveries it produced.
// A panic inside fn is logged and the Coordinator keeps serving. State changes made
// before the panic stay; of its deliveries only those addressed to connections it
// was closing are kept, so an evicted connection is still told and closed.
func (c *Coordinator) transition(name string, conn Conn, fn func(out *outbox)) {
	var out outbox

	c.mu.Lock()
	func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error().
					Str("transition", name).
					Str("conn_id", connID(conn)).
					Interface("panic", r).
					Msg("Recovered from panic in state transition.")
				out = out.closing()
			}
		}()
		fn(&out)
	}()

	c.sendMu.Lock()
	c.mu.Unlock()
	defer c.sendMu.Unlock()

	out.flush()
}

// Join authenticates conn with token and admits it into its identity's slot.
func (c *Coordinator) Join(token string, conn Conn) {
	c.transition("join", conn, func(out *outbox) {
		c.join(token, conn, out)
	})
}

func (c *Coordinator) join(token string, conn Conn, out *outbox) {
	presence := c.state.Presence
	registry := c.state.Registry

	identity, ok := c.state.Sessions.Validate(token)
	if !ok {
		c.logger.Warn().Str("conn_id", conn.ID()).Msg("Join rejected: unknown session token.")
		c.reject(conn, errs.ErrUnauthorized, WsCloseCodeUnauthorized, out)
		return
	}

	// The same socket switching to another identity leaves its old slot first.
	if previous, bound := presence.IdentityOf(conn); bound && previous != identity {
		c.leave(conn, out)
	}

	if current, occupied := presence.Occupant(identity); occupied && current != conn {
		c.logger.Warn().
			Str("user_id", identity).
			Str("old_conn_id", current.ID()).
			Str("new_conn_id", conn.ID()).
			Msg("Identity already connected. Closing old connection for replacement.")

		presence.Unbind(current)
		kicked := errs.NewError(errs.ErrSessionKicked)
		out.send(current, noticeEvent(EventForceLogout, kicked.Message))
		out.close(current, WsCloseCodeSessionKicked, kicked.Message)
	}

	if !registry.Contains(identity) ||
		(!presence.Occupied(identity) && presence.Count() >= registry.Size()) {
		c.logger.Warn().
			Str("user_id", identity).
			Int("occupied", presence.Count()).
			Int("capacity", registry.Size()).
			Msg("Join rejected: chat is private.")
		c.reject(conn, errs.ErrChatPrivate, WsCloseCodeChatPrivate, out)
		return
	}

	presence.Bind(identity, conn)

	other, hasOther := registry.Other(identity)
	otherConn, otherOnline := c.occupantOf(other, hasOther)

	out.send(conn, Event{Type: EventJoined, Payload: JoinedPayload{
		UserID:         identity,
		Messages:       c.state.Log.Snapshot(),
		ProfilePicture: c.profilePicture(identity),
		OtherOnline:    otherOnline,
	}})

	if otherOnline {
		out.send(otherConn, Event{Type: EventPresence, Payload: PresencePayload{UserID: identity, Online: true}})
	}

	c.logger.Info().
		Str("user_id", identity).
		Str("conn_id", conn.ID()).
		Bool("other_online", otherOnline).
		Msg("Connection joined.")
}

// Message appends text from conn's identity and broadcasts it to every live connection.
func (c *Coordinator) Message(token, text string, conn Conn) {
	c.transition("message", conn, func(out *outbox) {
		identity, ok := c.authorize(token, conn)
		if !ok {
			c.unauthorized(conn, out)
			return
		}

		text = strings.TrimSpace(text)
		if text == "" {
			return
		}

		msg := c.state.Log.Append(identity, text)
		c.broadcast(Event{Type: EventMessage, Payload: msg}, out)

		c.logger.Debug().
			Str("user_id", identity).
			Str("message_id", msg.ID).
			Int("log_len", c.state.Log.Len()).
			Msg("Message appended.")
	})
}

// ProfileUpdate validates imageData and, if acceptable, stores and broadcasts it.
func (c *Coordinator) ProfileUpdate(token, imageData string, conn Conn) {
	c.transition("profile_update", conn, func(out *outbox) {
		identity, ok := c.authorize(token, conn)
		if !ok {
			c.unauthorized(conn, out)
			return
		}

		if err := ValidateImage(imageData); err != nil {
			c.logger.Info().
				Str("user_id", identity).
				Int("length", len(imageData)).
				Msg("Profile picture rejected.")
			out.send(conn, noticeEvent(EventProfileError, errs.NewError(errs.ErrInvalidImage).Message))
			return
		}

		c.state.Profiles.Set(identity, imageData)
		c.broadcast(Event{Type: EventProfileUpdated, Payload: ProfileUpdatedPayload{
			UserID:    identity,
			ImageData: imageData,
		}}, out)

		c.logger.Info().Str("user_id", identity).Msg("Profile picture updated.")
	})
}

// Attach registers a freshly upgraded connection so Shutdown can close it even if
// it never joins. After Shutdown the connection is closed right away.
func (c *Coordinator) Attach(conn Conn) {
	c.transition("attach", conn, func(out *outbox) {
		if c.closed {
			out.close(conn, WsCloseCodeShutdown, "Server shutting down")
			return
		}
		c.attached[conn] = struct{}{}
	})
}

// Disconnect releases conn's slot if it still holds one. Calling it for a
// superseded or already released connection does nothing.
func (c *Coordinator) Disconnect(conn Conn) {
	c.transition("disconnect", conn, func(out *outbox) {
		delete(c.attached, conn)
		c.leave(conn, out)
	})
}

// leave clears conn's slot and tells the counterpart.
func (c *Coordinator) leave(conn Conn, out *outbox) {
	identity, ok := c.state.Presence.Unbind(conn)
	if !ok {
		c.logger.Debug().Str("conn_id", conn.ID()).Msg("Ignoring disconnect for stale connection.")
		return
	}

	other, hasOther := c.state.Registry.Other(identity)
	if otherConn, online := c.occupantOf(other, hasOther); online {
		out.send(otherConn, Event{Type: EventPresence, Payload: PresencePayload{UserID: identity, Online: false}})
	}

	c.logger.Info().Str("user_id", identity).Str("conn_id", conn.ID()).Msg("Connection left.")
}

// Bootstrap returns the page-bootstrap view for identity from a consistent snapshot.
func (c *Coordinator) Bootstrap(identity string) Bootstrap {
	c.mu.RLock()
	defer c.mu.RUnlock()

	other, hasOther := c.state.Registry.Other(identity)
	_, otherOnline := c.occupantOf(other, hasOther)

	return Bootstrap{
		UserID:         identity,
		ProfilePicture: c.profilePicture(identity),
		OtherOnline:    otherOnline,
	}
}

// ProfilePicture returns identity's current picture, or nil.
func (c *Coordinator) ProfilePicture(identity string) *string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.profilePicture(identity)
}

// Online reports whether identity currently has a live connection.
func (c *Coordinator) Online(identity string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state.Presence.Occupied(identity)
}

// Shutdown closes and releases every live connection, joined or not.
func (c *Coordinator) Shutdown() {
	c.transition("shutdown", nil, func(out *outbox) {
		c.closed = true

		for _, conn := range c.state.Presence.Conns() {
			c.state.Presence.Unbind(conn)
			delete(c.attached, conn)
			out.close(conn, WsCloseCodeShutdown, "Server shutting down")
		}

		for conn := range c.attached {
			out.close(conn, WsCloseCodeShutdown, "Server shutting down")
		}
		clear(c.attached)
	})

	c.logger.Info().Msg("Coordinator shutdown complete.")
}

// authorize resolves token and checks that conn is the current occupant of that identity's slot.
func (c *Coordinator) authorize(token string, conn Conn) (string, bool) {
	identity, ok := c.state.Sessions.Validate(token)
	if !ok {
		return "", false
	}

	current, occupied := c.state.Presence.Occupant(identity)
	if !occupied || current != conn {
		return "", false
	}

	return identity, true
}

func (c *Coordinator) unauthorized(conn Conn, out *outbox) {
	c.logger.Warn().Str("conn_id", conn.ID()).Msg("Event rejected: connection is not the current session.")
	out.send(conn, noticeEvent(EventJoinError, errs.NewError(errs.ErrUnauthorized).Message))
}

// reject answers a failed join with joinError and closes conn.
func (c *Coordinator) reject(conn Conn, code int, closeCode int, out *outbox) {
	message := errs.NewError(code).Message
	out.send(conn, noticeEvent(EventJoinError, message))
	out.close(conn, closeCode, message)
}

// broadcast sends evt to every connection in the shared group, sender included.
func (c *Coordinator) broadcast(evt Event, out *outbox) {
	for _, conn := range c.state.Presence.Conns() {
		out.send(conn, evt)
	}
}

func (c *Coordinator) occupantOf(identity string, known bool) (Conn, bool) {
	if !known {
		return nil, false
	}
	return c.state.Presence.Occupant(identity)
}

func (c *Coordinator) profilePicture(identity string) *string {
	img, ok := c.state.Profiles.Get(identity)
	if !ok {
		return nil
	}
	return &img
}

func connID(conn Conn) string {
	if conn == nil {
		return ""
	}
	return conn.ID()
}
