package chat

import (
	"slices"

	"github.com/samber/lo"
)

// Presence is the bidirectional identity ↔ connection table.
//
// Each identity maps to at most one connection. Presence has no lock of its own:
// the Coordinator is its only writer and guards it with its mutex.
type Presence struct {
	byIdentity map[string]Conn
	byConn     map[Conn]string
}

// NewPresence returns an empty table.
func NewPresence() *Presence {
	return &Presence{
		byIdentity: make(map[string]Conn),
		byConn:     make(map[Conn]string),
	}
}

// Bind makes conn the occupant of identity's slot, releasing whatever either side
// was bound to before.
func (p *Presence) Bind(identity string, conn Conn) {
	if prev, ok := p.byIdentity[identity]; ok {
		delete(p.byConn, prev)
	}
	if prevIdentity, ok := p.byConn[conn]; ok {
		delete(p.byIdentity, prevIdentity)
	}

	p.byIdentity[identity] = conn
	p.byConn[conn] = identity
}

// Unbind clears the slot held by conn and returns the identity it occupied.
func (p *Presence) Unbind(conn Conn) (string, bool) {
	identity, ok := p.byConn[conn]
	if !ok {
		return "", false
	}

	delete(p.byConn, conn)
	delete(p.byIdentity, identity)
	return identity, true
}

// Occupant returns the connection bound to identity.
func (p *Presence) Occupant(identity string) (Conn, bool) {
	conn, ok := p.byIdentity[identity]
	return conn, ok
}

// Occupied reports whether identity's slot holds a connection.
func (p *Presence) Occupied(identity string) bool {
	_, ok := p.byIdentity[identity]
	return ok
}

// IdentityOf returns the identity conn currently occupies.
func (p *Presence) IdentityOf(conn Conn) (string, bool) {
	identity, ok := p.byConn[conn]
	return identity, ok
}

// Count returns the number of occupied slots.
func (p *Presence) Count() int {
	return len(p.byIdentity)
}

// Conns returns every bound connection, ordered by identity.
func (p *Presence) Conns() []Conn {
	identities := lo.Keys(p.byIdentity)
	slices.Sort(identities)

	return lo.Map(identities, func(identity string, _ int) Conn {
		return p.byIdentity[identity]
	})
}
