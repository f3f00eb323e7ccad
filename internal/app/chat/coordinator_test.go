package chat

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"duochat/internal/pkg/errs"
)

func notice(t *testing.T, evt Event) string {
	t.Helper()
	payload, ok := evt.Payload.(NoticePayload)
	require.True(t, ok, "payload of %s is %T", evt.Type, evt.Payload)
	return payload.Message
}

func TestJoin_FirstJoinReceivesEmptyHistory(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	// Given a token for rafee@12
	t1 := h.login("rafee@12", "2632")

	// When a connection joins with it
	c1 := h.joined(t1, "c1")

	// Then joined carries the identity and an empty, non-nil history
	payload := c1.EventsOf(EventJoined)[0].Payload.(JoinedPayload)
	req.Equal("rafee@12", payload.UserID)
	req.NotNil(payload.Messages)
	req.Empty(payload.Messages)
	req.Nil(payload.ProfilePicture)
	req.False(payload.OtherOnline)
	req.True(h.coordinator.Online("rafee@12"))
}

func TestJoin_UnknownTokenIsRejectedWithoutMutation(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	ta := h.login("rafee@12", "2632")
	a := h.joined(ta, "a")
	h.coordinator.Message(ta, "hello", a)
	before := h.state.Log.Len()

	intruder := h.conn("intruder")
	h.coordinator.Join("forged-token", intruder)

	events := intruder.Events()
	req.Len(events, 1)
	req.Equal(EventJoinError, events[0].Type)
	req.Equal("Unauthorized", notice(t, events[0]))

	closed, code := intruder.Closed()
	req.True(closed)
	req.Equal(WsCloseCodeUnauthorized, code)

	req.Equal(1, h.state.Presence.Count())
	req.Equal(before, h.state.Log.Len())
	occupant, _ := h.state.Presence.Occupant("rafee@12")
	req.Same(a, occupant)
}

func TestJoin_SecondLoginEvictsFirstConnection(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	// Given rafee@12 is connected with T1
	t1 := h.login("rafee@12", "2632")
	c1 := h.joined(t1, "c1")

	// When rafee@12 logs in again and joins with T2 on a new connection
	t2 := h.login("rafee@12", "2632")
	c2 := h.joined(t2, "c2")

	// Then c1 is told and closed before c2 learns it has joined
	forceLogout := c1.EventsOf(EventForceLogout)
	req.Len(forceLogout, 1)
	req.Equal(errs.NewError(errs.ErrSessionKicked).Message, notice(t, forceLogout[0]))

	closed, code := c1.Closed()
	req.True(closed)
	req.Equal(WsCloseCodeSessionKicked, code)

	kickedAt := h.rec.index("c1", EventForceLogout)
	closedAt := h.rec.index("c1", "")
	joinedAt := h.rec.index("c2", EventJoined)
	req.Less(kickedAt, closedAt)
	req.Less(closedAt, joinedAt)

	occupant, ok := h.state.Presence.Occupant("rafee@12")
	req.True(ok)
	req.Same(c2, occupant)
	req.Equal(1, h.state.Presence.Count())

	// And the superseded token still authenticates a later join
	c3 := h.joined(t1, "c3")
	req.Len(c2.EventsOf(EventForceLogout), 1)
	occupant, _ = h.state.Presence.Occupant("rafee@12")
	req.Same(c3, occupant)
}

func TestJoin_EvictionIsNotAnnouncedAsPresenceChange(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	b := h.joined(h.login("partner", "0000"), "b")
	a1 := h.joined(h.login("rafee@12", "2632"), "a1")
	h.joined(h.login("rafee@12", "2632"), "a2")

	// The old connection's Disconnect arrives after it was superseded.
	h.coordinator.Disconnect(a1)

	presence := b.EventsOf(EventPresence)
	req.Len(presence, 2)
	for _, evt := range presence {
		p := evt.Payload.(PresencePayload)
		req.Equal("rafee@12", p.UserID)
		req.True(p.Online)
	}
	req.True(h.coordinator.Online("rafee@12"))
}

func TestJoin_PresenceGoesToCounterpartOnly(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	a := h.joined(h.login("rafee@12", "2632"), "a")
	b := h.joined(h.login("partner", "0000"), "b")

	req.Empty(b.EventsOf(EventPresence))
	req.True(b.EventsOf(EventJoined)[0].Payload.(JoinedPayload).OtherOnline)

	presence := a.EventsOf(EventPresence)
	req.Len(presence, 1)
	req.Equal(PresencePayload{UserID: "partner", Online: true}, presence[0].Payload)
}

func TestJoin_NonMemberIsRejectedAsPrivate(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	// Given a session that was issued for an identity outside the registry
	token, err := h.sessions.Issue("intruder")
	req.NoError(err)

	c := h.conn("x")
	h.coordinator.Join(token, c)

	events := c.Events()
	req.Len(events, 1)
	req.Equal(EventJoinError, events[0].Type)
	req.Equal("Chat is private", notice(t, events[0]))

	closed, code := c.Closed()
	req.True(closed)
	req.Equal(WsCloseCodeChatPrivate, code)
	req.Zero(h.state.Presence.Count())
}

func TestJoin_FullTableRejectsAdditionalIdentity(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	// Given both slots are taken: one by a stray binding, one by partner
	ghost := h.conn("ghost")
	h.state.Presence.Bind("ghost", ghost)
	h.joined(h.login("partner", "0000"), "b")
	req.Equal(2, h.state.Presence.Count())

	// When rafee@12, a registry member with an empty slot, joins
	c := h.conn("a")
	h.coordinator.Join(h.login("rafee@12", "2632"), c)

	// Then the cardinality check refuses it
	events := c.Events()
	req.Len(events, 1)
	req.Equal(EventJoinError, events[0].Type)
	req.Equal("Chat is private", notice(t, events[0]))

	closed, code := c.Closed()
	req.True(closed)
	req.Equal(WsCloseCodeChatPrivate, code)

	req.Equal(2, h.state.Presence.Count())
	req.False(h.coordinator.Online("rafee@12"))
	closed, _ = ghost.Closed()
	req.False(closed)
}

func TestJoin_SameConnectionSwitchingIdentity(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	b := h.joined(h.login("partner", "0000"), "b")
	shared := h.joined(h.login("rafee@12", "2632"), "shared")

	// shared now presents the partner's token: it leaves rafee@12's slot and evicts b.
	h.coordinator.Join(h.login("partner", "0000"), shared)

	identity, ok := h.state.Presence.IdentityOf(shared)
	req.True(ok)
	req.Equal("partner", identity)
	req.False(h.coordinator.Online("rafee@12"))
	req.Len(b.EventsOf(EventForceLogout), 1)
	req.Equal(1, h.state.Presence.Count())
}

func TestMessage_BroadcastToBothParties(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	ta := h.login("rafee@12", "2632")
	a := h.joined(ta, "a")
	b := h.joined(h.login("partner", "0000"), "b")

	h.coordinator.Message(ta, "  hi  ", a)

	am := a.EventsOf(EventMessage)
	bm := b.EventsOf(EventMessage)
	req.Len(am, 1)
	req.Len(bm, 1)

	msgA := am[0].Payload.(ChatMessage)
	msgB := bm[0].Payload.(ChatMessage)
	req.Equal(msgA, msgB)
	req.NotEmpty(msgA.ID)
	req.Equal("rafee@12", msgA.Sender)
	req.Equal("hi", msgA.Text)
}

func TestMessage_EmptyTextIsIgnored(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	ta := h.login("rafee@12", "2632")
	a := h.joined(ta, "a")
	b := h.joined(h.login("partner", "0000"), "b")

	h.coordinator.Message(ta, "", a)
	h.coordinator.Message(ta, " \t\n ", a)

	req.Zero(h.state.Log.Len())
	req.Empty(a.EventsOf(EventMessage))
	req.Empty(b.EventsOf(EventMessage))
	req.Empty(a.EventsOf(EventJoinError))
}

func TestMessage_Unauthorized(t *testing.T) {
	h := newHarness(t)

	t1 := h.login("rafee@12", "2632")
	c1 := h.joined(t1, "c1")
	outsider := h.conn("outsider")

	c2 := h.joined(h.login("rafee@12", "2632"), "c2")

	tests := []struct {
		name  string
		token string
		conn  *fakeConn
	}{
		{"Invalid token", "garbage", c2},
		{"Valid token on a connection that never joined", t1, outsider},
		{"Valid token on the superseded connection", t1, c1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			before := len(tt.conn.EventsOf(EventJoinError))

			h.coordinator.Message(tt.token, "hello", tt.conn)

			req.Zero(h.state.Log.Len())
			if closed, _ := tt.conn.Closed(); !closed {
				errorsAfter := tt.conn.EventsOf(EventJoinError)
				req.Len(errorsAfter, before+1)
				req.Equal("Unauthorized", notice(t, errorsAfter[len(errorsAfter)-1]))
			}
		})
	}

	// The unauthorized path never closes a connection.
	closed, _ := outsider.Closed()
	require.False(t, closed)
	closed, _ = c2.Closed()
	require.False(t, closed)
}

func TestMessage_AnyCurrentTokenOfTheIdentityIsAccepted(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	t1 := h.login("rafee@12", "2632")
	t2 := h.login("rafee@12", "2632")
	a := h.joined(t1, "a")

	// Authorization is by identity and connection, not by the exact token used to join.
	h.coordinator.Message(t2, "from the other token", a)
	req.Equal(1, h.state.Log.Len())
}

func TestMessage_ReplayMatchesBroadcast(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	ta := h.login("rafee@12", "2632")
	tb := h.login("partner", "0000")
	a := h.joined(ta, "a")
	b := h.joined(tb, "b")

	for i := range 5 {
		h.coordinator.Message(ta, fmt.Sprintf("a-%d", i), a)
		h.coordinator.Message(tb, fmt.Sprintf("b-%d", i), b)
	}

	var broadcast []ChatMessage
	for _, evt := range a.EventsOf(EventMessage) {
		broadcast = append(broadcast, evt.Payload.(ChatMessage))
	}

	// A fresh connection for partner replays exactly what was broadcast.
	b2 := h.joined(h.login("partner", "0000"), "b2")
	replayed := b2.EventsOf(EventJoined)[0].Payload.(JoinedPayload).Messages

	req.Equal(broadcast, replayed)
	for i := 1; i < len(replayed); i++ {
		req.GreaterOrEqual(replayed[i].Timestamp, replayed[i-1].Timestamp)
	}
}

func TestProfileUpdate(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	ta := h.login("rafee@12", "2632")
	a := h.joined(ta, "a")
	b := h.joined(h.login("partner", "0000"), "b")

	img := pngDataURL()
	h.coordinator.ProfileUpdate(ta, img, a)

	for _, c := range []*fakeConn{a, b} {
		updates := c.EventsOf(EventProfileUpdated)
		req.Len(updates, 1)
		req.Equal(ProfileUpdatedPayload{UserID: "rafee@12", ImageData: img}, updates[0].Payload)
	}

	pic := h.coordinator.ProfilePicture("rafee@12")
	req.NotNil(pic)
	req.Equal(img, *pic)

	// A later join sees the stored picture.
	a2 := h.joined(h.login("rafee@12", "2632"), "a2")
	joined := a2.EventsOf(EventJoined)[0].Payload.(JoinedPayload)
	req.NotNil(joined.ProfilePicture)
	req.Equal(img, *joined.ProfilePicture)
}

func TestProfileUpdate_OversizedImageIsRejected(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	ta := h.login("rafee@12", "2632")
	a := h.joined(ta, "a")
	b := h.joined(h.login("partner", "0000"), "b")

	original := pngDataURL()
	h.coordinator.ProfileUpdate(ta, original, a)

	oversized := "data:image/png;base64," + strings.Repeat("A", MaxImageDataLength)
	h.coordinator.ProfileUpdate(ta, oversized, a)

	profileErrors := a.EventsOf(EventProfileError)
	req.Len(profileErrors, 1)
	req.Equal("Invalid image", notice(t, profileErrors[0]))
	req.Empty(b.EventsOf(EventProfileError))

	// Only the first, valid update was broadcast; the store still holds it.
	req.Len(b.EventsOf(EventProfileUpdated), 1)
	req.Equal(original, *h.coordinator.ProfilePicture("rafee@12"))

	closed, _ := a.Closed()
	req.False(closed)
}

func TestProfileUpdate_Unauthorized(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	outsider := h.conn("outsider")
	h.coordinator.ProfileUpdate(h.login("rafee@12", "2632"), pngDataURL(), outsider)

	req.Equal("Unauthorized", notice(t, outsider.EventsOf(EventJoinError)[0]))
	req.Nil(h.coordinator.ProfilePicture("rafee@12"))
}

func TestDisconnect_NotifiesCounterpartAndFreesSlot(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	ta := h.login("rafee@12", "2632")
	a := h.joined(ta, "a")
	b := h.joined(h.login("partner", "0000"), "b")

	h.coordinator.Disconnect(a)

	last := b.EventsOf(EventPresence)
	req.Equal(PresencePayload{UserID: "rafee@12", Online: false}, last[len(last)-1].Payload)
	req.False(h.coordinator.Online("rafee@12"))
	req.False(h.coordinator.Bootstrap("partner").OtherOnline)

	// Disconnect is idempotent.
	h.coordinator.Disconnect(a)
	req.Len(b.EventsOf(EventPresence), len(last))

	// Rejoining is a plain join: nobody is evicted.
	a2 := h.joined(ta, "a2")
	req.Empty(a.EventsOf(EventForceLogout))
	req.Empty(a2.EventsOf(EventForceLogout))
	req.True(a2.EventsOf(EventJoined)[0].Payload.(JoinedPayload).OtherOnline)
}

func TestBootstrap(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	req.Equal(Bootstrap{UserID: "partner"}, h.coordinator.Bootstrap("partner"))

	ta := h.login("rafee@12", "2632")
	a := h.joined(ta, "a")
	img := pngDataURL()
	h.coordinator.ProfileUpdate(ta, img, a)

	got := h.coordinator.Bootstrap("partner")
	req.True(got.OtherOnline)
	req.Nil(got.ProfilePicture)

	got = h.coordinator.Bootstrap("rafee@12")
	req.False(got.OtherOnline)
	req.Equal(img, *got.ProfilePicture)
}

func TestShutdown_ClosesEveryConnection(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	a := h.joined(h.login("rafee@12", "2632"), "a")
	b := h.joined(h.login("partner", "0000"), "b")

	h.coordinator.Shutdown()

	for _, c := range []*fakeConn{a, b} {
		closed, code := c.Closed()
		req.True(closed)
		req.Equal(WsCloseCodeShutdown, code)
	}
	req.Zero(h.state.Presence.Count())
}

// panicConn blows up on the panicOn-th call to ID.
type panicConn struct {
	fakeConn
	panicOn int
	calls   int
}

func (p *panicConn) ID() string {
	p.calls++
	if p.calls == p.panicOn {
		panic("boom")
	}
	return p.id
}

func TestTransition_PanicDoesNotPoisonCoordinator(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	bad := &panicConn{fakeConn: fakeConn{id: "bad", rec: h.rec}, panicOn: 1}
	req.NotPanics(func() { h.coordinator.Join("garbage", bad) })

	// The mutation lock was released and later events still work.
	h.joined(h.login("rafee@12", "2632"), "a")
	req.True(h.coordinator.Online("rafee@12"))
}

func TestTransition_PanicAfterEvictionStillClosesEvictedConnection(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	old := h.joined(h.login("rafee@12", "2632"), "old")
	other := h.joined(h.login("partner", "0000"), "other")

	// The joiner's ID is read once while evicting and panics on the second read,
	// after the old connection was already unbound.
	joiner := &panicConn{fakeConn: fakeConn{id: "joiner", rec: h.rec}, panicOn: 2}
	req.NotPanics(func() { h.coordinator.Join(h.login("rafee@12", "2632"), joiner) })

	req.Len(old.EventsOf(EventForceLogout), 1)
	closed, code := old.Closed()
	req.True(closed)
	req.Equal(WsCloseCodeSessionKicked, code)
	req.Less(h.rec.index("old", EventForceLogout), h.rec.index("old", ""))

	// Deliveries to connections that were not being closed are dropped.
	req.Empty(joiner.Events())
	req.Len(other.EventsOf(EventPresence), 0)
}

func TestShutdown_ClosesAttachedConnectionsThatNeverJoined(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	// Given one joined connection and one that only attached
	a := h.conn("a")
	h.coordinator.Attach(a)
	h.coordinator.Join(h.login("rafee@12", "2632"), a)
	idle := h.conn("idle")
	h.coordinator.Attach(idle)

	// And one that attached and already went away
	gone := h.conn("gone")
	h.coordinator.Attach(gone)
	h.coordinator.Disconnect(gone)

	h.coordinator.Shutdown()

	for _, c := range []*fakeConn{a, idle} {
		closed, code := c.Closed()
		req.True(closed, c.id)
		req.Equal(WsCloseCodeShutdown, code)
	}
	closed, _ := gone.Closed()
	req.False(closed)

	// A connection attaching after shutdown is closed immediately.
	late := h.conn("late")
	h.coordinator.Attach(late)
	closed, code := late.Closed()
	req.True(closed)
	req.Equal(WsCloseCodeShutdown, code)
}

func TestJoin_ConcurrentJoinsKeepOneOccupant(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	const n = 32
	tokens := make([]string, n)
	conns := make([]*fakeConn, n)
	for i := range n {
		tokens[i] = h.login("rafee@12", "2632")
		conns[i] = h.conn(fmt.Sprintf("c%d", i))
	}

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.coordinator.Join(tokens[i], conns[i])
		}()
	}
	wg.Wait()

	req.Equal(1, h.state.Presence.Count())
	occupant, ok := h.state.Presence.Occupant("rafee@12")
	req.True(ok)

	// Every connection joined once; all but the final occupant were then evicted.
	live := 0
	for _, c := range conns {
		req.Len(c.EventsOf(EventJoined), 1)
		if closed, _ := c.Closed(); !closed {
			live++
			req.Same(occupant, Conn(c))
			continue
		}
		req.Len(c.EventsOf(EventForceLogout), 1)
		req.Less(h.rec.index(c.id, EventJoined), h.rec.index(c.id, EventForceLogout))
	}
	req.Equal(1, live)
}
