package session

import (
	"sort"
	"time"

	"github.com/ranielm/planning-poker-sub000/internal/models"
)

// Sender is one live connection's outbound side. Implemented by the
// gateway; SendJSON must not block the caller.
type Sender interface {
	SendJSON(v any) bool
	// Kick closes the connection after a targeted kicked notification has
	// been delivered.
	Kick()
}

// participant is the in-memory session view of a membership record plus
// its live connection set. Mutated only from the coordinator goroutine.
type participant struct {
	userID    uint
	name      string
	role      models.Role
	away      bool
	awaySince *time.Time
	conns     map[string]Sender
}

func (p *participant) online() bool { return len(p.conns) > 0 }

// registry tracks who is present in one room. It carries no lock: all
// access happens on the owning coordinator's goroutine.
type registry struct {
	parts map[uint]*participant
}

func newRegistry() *registry {
	return &registry{parts: make(map[uint]*participant)}
}

func (r *registry) get(userID uint) *participant { return r.parts[userID] }

// join is an idempotent upsert: an existing participant is returned
// unchanged so a re-join never silently overwrites the role.
func (r *registry) join(userID uint, name string, role models.Role) (*participant, bool) {
	if p, ok := r.parts[userID]; ok {
		if name != "" {
			p.name = name
		}
		return p, false
	}
	p := &participant{
		userID: userID,
		name:   name,
		role:   role,
		conns:  make(map[string]Sender),
	}
	r.parts[userID] = p
	return p, true
}

func (r *registry) addConn(userID uint, connID string, s Sender) {
	if p, ok := r.parts[userID]; ok {
		p.conns[connID] = s
	}
}

// removeConn drops one connection; the participant record survives with
// zero connections so history and role are preserved.
func (r *registry) removeConn(userID uint, connID string) {
	if p, ok := r.parts[userID]; ok {
		delete(p.conns, connID)
	}
}

func (r *registry) remove(userID uint) *participant {
	p := r.parts[userID]
	delete(r.parts, userID)
	return p
}

func (r *registry) setAway(userID uint, away bool, at time.Time) bool {
	p, ok := r.parts[userID]
	if !ok {
		return false
	}
	p.away = away
	if away {
		p.awaySince = &at
	} else {
		p.awaySince = nil
	}
	return true
}

// ordered returns participants sorted by user id for deterministic
// snapshots and broadcasts.
func (r *registry) ordered() []*participant {
	out := make([]*participant, 0, len(r.parts))
	for _, p := range r.parts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].userID < out[j].userID })
	return out
}

// onlineCount is the number of users with at least one live connection.
func (r *registry) onlineCount() int {
	n := 0
	for _, p := range r.parts {
		if p.online() {
			n++
		}
	}
	return n
}

// eachSender visits every live connection in the room.
func (r *registry) eachSender(fn func(userID uint, s Sender)) {
	for _, p := range r.ordered() {
		for _, s := range p.conns {
			fn(p.userID, s)
		}
	}
}
