/*
Package chat contains the relay's real-time core: the Presence Table, the Message
Log, the Profile Store, and the Coordinator that owns them and serializes every
join, message, profile update and disconnect.

This file defines the event schema exchanged over a connection. Every frame is a
JSON object {"type": <event>, "payload": {...}}.
*/
package chat

import "encoding/json"

// EventType names an event on the wire.
type EventType string

// Client → server events.
const (
	EventJoin           EventType = "join"
	EventMessage        EventType = "message"
	EventProfilePicture EventType = "profilePicture"
)

// Server → client events. EventMessage is shared with the inbound direction.
const (
	EventJoinError      EventType = "joinError"
	EventForceLogout    EventType = "forceLogout"
	EventJoined         EventType = "joined"
	EventPresence       EventType = "presence"
	EventProfileUpdated EventType = "profileUpdated"
	EventProfileError   EventType = "profileError"
)

// Event is an outbound frame.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// InboundEvent is a frame received from a client, with its payload still encoded.
type InboundEvent struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload is the payload of an inbound join.
type JoinPayload struct {
	Token string `json:"token"`
}

// SendMessagePayload is the payload of an inbound message.
type SendMessagePayload struct {
	Token string `json:"token"`
	Text  string `json:"text"`
}

// ProfilePicturePayload is the payload of an inbound profilePicture.
type ProfilePicturePayload struct {
	Token     string `json:"token"`
	ImageData string `json:"imageData"`
}

// ChatMessage is one entry of the Message Log. It is also the payload of an
// outbound message event.
type ChatMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// NoticePayload carries the human-readable text of joinError, forceLogout and profileError.
type NoticePayload struct {
	Message string `json:"message"`
}

// JoinedPayload is sent to a connection once it occupies its identity's slot.
type JoinedPayload struct {
	UserID         string        `json:"userId"`
	Messages       []ChatMessage `json:"messages"`
	ProfilePicture *string       `json:"profilePicture"`
	OtherOnline    bool          `json:"otherOnline"`
}

// PresencePayload tells the counterpart that an identity came online or went offline.
type PresencePayload struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// ProfileUpdatedPayload announces a new profile picture.
type ProfileUpdatedPayload struct {
	UserID    string `json:"userId"`
	ImageData string `json:"imageData"`
}

func noticeEvent(t EventType, message string) Event {
	return Event{Type: t, Payload: NoticePayload{Message: message}}
}
