package chat

import (
	"time"

	"duochat/internal/pkg/randx"
)

// MessageLog is the append-only, process-lifetime chat history.
// Like Presence it relies on the Coordinator for synchronization.
type MessageLog struct {
	messages []ChatMessage
	now      func() time.Time
	last     int64
}

// NewMessageLog returns an empty log stamping entries with now.
func NewMessageLog(now func() time.Time) *MessageLog {
	return &MessageLog{now: now}
}

// Append records a new message. Timestamps are Unix milliseconds and never go
// backwards, even if the wall clock does.
func (l *MessageLog) Append(sender, text string) ChatMessage {
	ts := l.now().UnixMilli()
	if ts < l.last {
		ts = l.last
	}
	l.last = ts

	msg := ChatMessage{
		ID:        randx.MessageID(),
		Sender:    sender,
		Text:      text,
		Timestamp: ts,
	}
	l.messages = append(l.messages, msg)

	return msg
}

// Snapshot returns a copy of every message in append order. It is never nil.
func (l *MessageLog) Snapshot() []ChatMessage {
	out := make([]ChatMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages.
func (l *MessageLog) Len() int {
	return len(l.messages)
}
