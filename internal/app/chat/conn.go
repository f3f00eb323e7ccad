package chat

const (
	// WsCloseCodeSessionKicked tells a client its slot was taken by a newer connection.
	WsCloseCodeSessionKicked = 4001

	// WsCloseCodeUnauthorized closes a connection whose join token was rejected.
	WsCloseCodeUnauthorized = 4003

	// WsCloseCodeChatPrivate closes a connection refused by admission control.
	WsCloseCodeChatPrivate = 4004

	// WsCloseCodeShutdown closes every live connection when the server stops.
	WsCloseCodeShutdown = 1001
)

// Conn is a live connection as seen by the Coordinator.
//
// Send and Close must not block: they only hand work to the connection's own
// writer. Events sent after Close are dropped. Close is idempotent, and events
// sent before it are delivered before the close frame.
type Conn interface {
	ID() string
	Send(evt Event)
	Close(code int, reason string)
}

// delivery is one deferred side effect on a connection.
type delivery struct {
	conn  Conn
	event *Event
	code  int
	text  string
}

// outbox collects the sends and closes produced by one state transition, in order.
type outbox []delivery

func (o *outbox) send(conn Conn, evt Event) {
	*o = append(*o, delivery{conn: conn, event: &evt})
}

func (o *outbox) close(conn Conn, code int, reason string) {
	*o = append(*o, delivery{conn: conn, code: code, text: reason})
}

// closing returns the deliveries addressed to connections that o closes, in order.
func (o outbox) closing() outbox {
	closed := make(map[Conn]bool)
	for _, d := range o {
		if d.event == nil {
			closed[d.conn] = true
		}
	}

	var kept outbox
	for _, d := range o {
		if closed[d.conn] {
			kept = append(kept, d)
		}
	}
	return kept
}

func (o outbox) flush() {
	for _, d := range o {
		if d.event != nil {
			d.conn.Send(*d.event)
			continue
		}
		d.conn.Close(d.code, d.text)
	}
}
