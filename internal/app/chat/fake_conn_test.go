package chat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"duochat/internal/app/session"
	"duochat/internal/app/user"
)

// record is one observed side effect, in global order across all fake connections.
type record struct {
	conn   string
	event  Event
	closed bool
	code   int
}

type recorder struct {
	mu      sync.Mutex
	records []record
}

func (r *recorder) add(rec record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recorder) all() []record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]record(nil), r.records...)
}

// index returns the position of the first record on conn matching t (or a close when t is "").
func (r *recorder) index(conn string, t EventType) int {
	for i, rec := range r.all() {
		if rec.conn != conn {
			continue
		}
		if t == "" && rec.closed {
			return i
		}
		if t != "" && !rec.closed && rec.event.Type == t {
			return i
		}
	}
	return -1
}

type fakeConn struct {
	id  string
	rec *recorder

	mu     sync.Mutex
	events []Event
	closed bool
	code   int
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(evt Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.events = append(f.events, evt)
	f.rec.add(record{conn: f.id, event: evt})
}

func (f *fakeConn) Close(code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.code = code
	f.rec.add(record{conn: f.id, closed: true, code: code})
}

func (f *fakeConn) Events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func (f *fakeConn) EventsOf(t EventType) []Event {
	var out []Event
	for _, evt := range f.Events() {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

func (f *fakeConn) Closed() (bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.code
}

// harness is a fresh relay per test: registry "rafee@12"/"2632" and "partner"/"0000".
type harness struct {
	t           *testing.T
	sessions    *session.Store
	state       *State
	coordinator *Coordinator
	rec         *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	registry, err := user.NewRegistryWithCost(map[string]string{
		"rafee@12": "2632",
		"partner":  "0000",
	}, bcrypt.MinCost)
	require.NoError(t, err)

	sessions := session.NewStore("test-secret")
	state := NewState(registry, sessions)

	return &harness{
		t:           t,
		sessions:    sessions,
		state:       state,
		coordinator: NewCoordinator(state),
		rec:         &recorder{},
	}
}

// login authenticates like the login endpoint does and returns a fresh token.
func (h *harness) login(id, password string) string {
	h.t.Helper()
	identity, ok := h.state.Registry.Authenticate(id, password)
	require.True(h.t, ok)
	token, err := h.sessions.Issue(identity)
	require.NoError(h.t, err)
	return token
}

func (h *harness) conn(id string) *fakeConn {
	return &fakeConn{id: id, rec: h.rec}
}

func (h *harness) joined(token, id string) *fakeConn {
	h.t.Helper()
	c := h.conn(id)
	h.coordinator.Join(token, c)
	require.Len(h.t, c.EventsOf(EventJoined), 1)
	return c
}
