package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/datatypes"

	"github.com/ranielm/planning-poker-sub000/internal/deck"
	"github.com/ranielm/planning-poker-sub000/internal/models"
)

// Identity is what the gateway learned about a user at authentication
// time; the coordinator never sees credentials.
type Identity struct {
	UserID uint
	Name   string
}

// RoundHistory is one revealed round with its votes and derived result.
type RoundHistory struct {
	RoundID    uint          `json:"round_id"`
	Topic      *models.Topic `json:"topic,omitempty"`
	RevealedAt *time.Time    `json:"revealed_at,omitempty"`
	Votes      []VoteView    `json:"votes"`
	Result     deck.Result   `json:"result"`
}

// Wire payloads pushed to room members. Snapshots are authoritative;
// events are lightweight hints so clients can animate without waiting.
type snapshotMsg struct {
	Type     string   `json:"type"`
	Snapshot Snapshot `json:"snapshot"`
}

type eventMsg struct {
	Type   string `json:"type"`
	Event  string `json:"event"`
	UserID uint   `json:"user_id,omitempty"`
}

type kickedMsg struct {
	Type string `json:"type"`
}

// Coordinator owns one room's mutable session state. Every mutation runs
// on its single goroutine, so the round state machine's read-modify-write
// sequences never interleave for the same room. Mutations for different
// rooms proceed independently.
type Coordinator struct {
	store Store
	clock clockwork.Clock

	acts chan func()
	quit chan struct{}

	// Owned by the actor goroutine; never touched from outside it.
	room   models.Room
	round  *models.Round
	votes  map[uint]string
	result deck.Result
	reg    *registry
}

func newCoordinator(store Store, clock clockwork.Clock, room models.Room) *Coordinator {
	return &Coordinator{
		store: store,
		clock: clock,
		acts:  make(chan func(), 64),
		quit:  make(chan struct{}),
		room:  room,
		votes: make(map[uint]string),
		reg:   newRegistry(),
	}
}

// hydrate loads persisted participants, the active round and its votes so
// a restarted process resumes with the authoritative durable state.
func (c *Coordinator) hydrate(ctx context.Context) error {
	parts, err := c.store.ParticipantsByRoom(ctx, c.room.ID)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	ids := make([]uint, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, p.UserID)
	}
	users, err := c.store.UsersByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	for _, p := range parts {
		mem, _ := c.reg.join(p.UserID, users[p.UserID].Username, p.Role)
		mem.away = p.Away
		mem.awaySince = p.AwaySince
	}
	round, err := c.store.ActiveRound(ctx, c.room.ID)
	if err != nil {
		return fmt.Errorf("load round: %w", err)
	}
	if round != nil {
		c.round = round
		votes, err := c.store.VotesByRound(ctx, round.ID)
		if err != nil {
			return fmt.Errorf("load votes: %w", err)
		}
		for _, v := range votes {
			c.votes[v.UserID] = v.Value
		}
	}
	return nil
}

func (c *Coordinator) run() {
	for {
		select {
		case fn := <-c.acts:
			fn()
		case <-c.quit:
			return
		}
	}
}

// do runs fn on the actor goroutine and waits for it to complete, which
// serializes all room mutations including their persistence writes.
func (c *Coordinator) do(fn func()) error {
	done := make(chan struct{})
	select {
	case c.acts <- func() { fn(); close(done) }:
	case <-c.quit:
		return ErrRoomClosed
	}
	select {
	case <-done:
		return nil
	case <-c.quit:
		return ErrRoomClosed
	}
}

func (c *Coordinator) close() { close(c.quit) }

// Attach joins the user (idempotently) and binds one live connection.
// The fresh snapshot is delivered to the new connection and, because
// presence changed, rebroadcast to the whole room.
func (c *Coordinator) Attach(ctx context.Context, id Identity, role models.Role, connID string, s Sender) error {
	var err error
	doErr := c.do(func() {
		if id.UserID == c.room.OwnerID {
			role = models.RoleModerator
		} else if !validRole(role) || role == models.RoleModerator {
			role = models.RoleVoter
		}
		p, created := c.reg.join(id.UserID, id.Name, role)
		if created {
			if perr := c.store.UpsertParticipant(ctx, &models.Participant{
				RoomID: c.room.ID,
				UserID: id.UserID,
				Role:   p.role,
			}); perr != nil {
				c.reg.remove(id.UserID)
				err = fmt.Errorf("persist participant: %w", perr)
				return
			}
			c.emit(eventMsg{Type: "event", Event: "joined", UserID: id.UserID})
		}
		c.reg.addConn(id.UserID, connID, s)
		c.broadcast()
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Detach removes one connection. The participant record survives so the
// user stays a member while offline; others see the presence change.
func (c *Coordinator) Detach(userID uint, connID string) {
	_ = c.do(func() {
		if c.reg.get(userID) == nil {
			return
		}
		c.reg.removeConn(userID, connID)
		c.broadcast()
	})
}

// Leave removes the user's membership entirely. Past votes are kept:
// rounds record history, not current membership.
func (c *Coordinator) Leave(ctx context.Context, userID uint) error {
	var err error
	doErr := c.do(func() {
		if c.reg.get(userID) == nil {
			err = ErrParticipantMissing
			return
		}
		if derr := c.store.DeleteParticipant(ctx, c.room.ID, userID); derr != nil {
			err = fmt.Errorf("delete participant: %w", derr)
			return
		}
		c.reg.remove(userID)
		c.clearDealerIfTarget(ctx, userID)
		c.emit(eventMsg{Type: "event", Event: "left", UserID: userID})
		c.broadcast()
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// CastVote upserts the user's vote for the active round. Repeat casts
// with the same value are idempotent.
func (c *Coordinator) CastVote(ctx context.Context, userID uint, value string) error {
	var err error
	doErr := c.do(func() {
		p := c.reg.get(userID)
		switch {
		case p == nil:
			err = ErrParticipantMissing
			return
		case p.role == models.RoleObserver:
			err = ErrObserverCannotVote
			return
		case p.away:
			err = ErrAwayCannotVote
			return
		case c.isDealer(userID):
			err = ErrDealerCannotVote
			return
		}
		if c.round == nil || c.round.Phase != models.PhaseVoting {
			err = ErrRoundNotVoting
			return
		}
		if !deck.IsValid(c.room.Scheme, value) {
			err = ErrInvalidVoteValue
			return
		}
		norm := deck.Normalize(c.room.Scheme, value)
		if verr := c.store.UpsertVote(ctx, &models.Vote{
			RoundID: c.round.ID,
			RoomID:  c.room.ID,
			UserID:  userID,
			Value:   norm,
		}); verr != nil {
			err = fmt.Errorf("persist vote: %w", verr)
			return
		}
		c.votes[userID] = norm
		c.emit(eventMsg{Type: "event", Event: "vote_cast", UserID: userID})
		c.broadcast()
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Reveal transitions the active round to REVEALED and returns the
// aggregate. Revealing an already-revealed round returns the cached
// result without error.
func (c *Coordinator) Reveal(ctx context.Context, userID uint) (deck.Result, error) {
	var (
		res deck.Result
		err error
	)
	doErr := c.do(func() {
		if err = c.requireModerator(userID); err != nil {
			return
		}
		if c.round == nil {
			err = ErrNoActiveRound
			return
		}
		if c.round.Phase == models.PhaseRevealed {
			res = c.result
			return
		}
		now := c.clock.Now().UTC()
		round := *c.round
		round.Phase = models.PhaseRevealed
		round.RevealedAt = &now
		if serr := c.store.SaveRound(ctx, &round); serr != nil {
			err = fmt.Errorf("persist reveal: %w", serr)
			return
		}
		c.round = &round
		c.result = deck.Aggregate(c.room.Scheme, voteValues(c.votes))
		res = c.result
		c.emit(eventMsg{Type: "event", Event: "revealed", UserID: userID})
		c.broadcast()
	})
	if doErr != nil {
		return nil, doErr
	}
	return res, err
}

// SetTopic updates the room's active topic and opens a fresh round for
// it, closing any round still in flight.
func (c *Coordinator) SetTopic(ctx context.Context, userID uint, topic *models.Topic) error {
	var err error
	doErr := c.do(func() {
		if err = c.requireModerator(userID); err != nil {
			return
		}
		room := c.room
		room.Topic = datatypes.NewJSONType(topic)
		if serr := c.store.SaveRoom(ctx, &room); serr != nil {
			err = fmt.Errorf("persist topic: %w", serr)
			return
		}
		c.room = room
		if err = c.startRound(ctx, topic); err != nil {
			return
		}
		c.emit(eventMsg{Type: "event", Event: "topic_changed", UserID: userID})
		c.broadcast()
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Reset opens a new round for the current topic: same question, fresh
// votes. The old round is closed out, never rewound.
func (c *Coordinator) Reset(ctx context.Context, userID uint) error {
	var err error
	doErr := c.do(func() {
		if err = c.requireModerator(userID); err != nil {
			return
		}
		topic := c.room.Topic.Data()
		if c.round != nil {
			topic = c.round.Topic.Data()
		}
		if err = c.startRound(ctx, topic); err != nil {
			return
		}
		c.emit(eventMsg{Type: "event", Event: "round_reset", UserID: userID})
		c.broadcast()
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// startRound force-closes any open round and creates a new VOTING round
// with a snapshot of the topic. Caller must be on the actor goroutine.
func (c *Coordinator) startRound(ctx context.Context, topic *models.Topic) error {
	now := c.clock.Now().UTC()
	if err := c.store.CloseOpenRounds(ctx, c.room.ID, now); err != nil {
		return fmt.Errorf("close open rounds: %w", err)
	}
	round := &models.Round{
		RoomID: c.room.ID,
		Phase:  models.PhaseVoting,
		Topic:  datatypes.NewJSONType(topic),
	}
	if err := c.store.CreateRound(ctx, round); err != nil {
		return fmt.Errorf("create round: %w", err)
	}
	c.round = round
	c.votes = make(map[uint]string)
	c.result = nil
	return nil
}

// ChangeDeck switches the scoring scheme. Votes already recorded under
// the old scheme are left untouched; future casts validate against the
// new one.
func (c *Coordinator) ChangeDeck(ctx context.Context, userID uint, scheme models.Scheme) error {
	var err error
	doErr := c.do(func() {
		if err = c.requireModerator(userID); err != nil {
			return
		}
		if scheme != models.SchemeFibonacci && scheme != models.SchemeTShirt {
			err = ErrInvalidScheme
			return
		}
		room := c.room
		room.Scheme = scheme
		if serr := c.store.SaveRoom(ctx, &room); serr != nil {
			err = fmt.Errorf("persist scheme: %w", serr)
			return
		}
		c.room = room
		if c.round != nil && c.round.Phase == models.PhaseRevealed {
			c.result = deck.Aggregate(scheme, voteValues(c.votes))
		}
		c.emit(eventMsg{Type: "event", Event: "deck_changed", UserID: userID})
		c.broadcast()
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// SetRole lets the moderator change another member's role.
func (c *Coordinator) SetRole(ctx context.Context, actorID, targetID uint, role models.Role) error {
	var err error
	doErr := c.do(func() {
		if err = c.requireModerator(actorID); err != nil {
			return
		}
		if !validRole(role) {
			err = ErrInvalidRole
			return
		}
		p := c.reg.get(targetID)
		if p == nil {
			err = ErrParticipantMissing
			return
		}
		if perr := c.persistParticipant(ctx, p, role, p.away, p.awaySince); perr != nil {
			err = perr
			return
		}
		p.role = role
		c.emit(eventMsg{Type: "event", Event: "role_changed", UserID: targetID})
		c.broadcast()
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// ToggleOwnRole is the self-service switch between voting and observing,
// optionally persisted as the user's default for future rooms.
func (c *Coordinator) ToggleOwnRole(ctx context.Context, userID uint, role models.Role, persist bool) error {
	var err error
	doErr := c.do(func() {
		if role != models.RoleVoter && role != models.RoleObserver {
			err = ErrInvalidRole
			return
		}
		p := c.reg.get(userID)
		if p == nil {
			err = ErrParticipantMissing
			return
		}
		if p.role == models.RoleModerator {
			err = ErrInvalidRole
			return
		}
		if perr := c.persistParticipant(ctx, p, role, p.away, p.awaySince); perr != nil {
			err = perr
			return
		}
		p.role = role
		if persist {
			if derr := c.store.SetDefaultRole(ctx, userID, role); derr != nil {
				err = fmt.Errorf("persist default role: %w", derr)
				return
			}
		}
		c.emit(eventMsg{Type: "event", Event: "role_changed", UserID: userID})
		c.broadcast()
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Kick removes a member and force-disconnects every one of their live
// connections. Only those connections receive the kicked notification.
func (c *Coordinator) Kick(ctx context.Context, actorID, targetID uint) error {
	var err error
	doErr := c.do(func() {
		if err = c.requireModerator(actorID); err != nil {
			return
		}
		if actorID == targetID {
			err = ErrCannotKickSelf
			return
		}
		p := c.reg.get(targetID)
		if p == nil {
			err = ErrParticipantMissing
			return
		}
		if derr := c.store.DeleteParticipant(ctx, c.room.ID, targetID); derr != nil {
			err = fmt.Errorf("delete participant: %w", derr)
			return
		}
		c.reg.remove(targetID)
		c.clearDealerIfTarget(ctx, targetID)
		for _, s := range p.conns {
			s.SendJSON(kickedMsg{Type: "kicked"})
			s.Kick()
		}
		c.emit(eventMsg{Type: "event", Event: "kicked", UserID: targetID})
		c.broadcast()
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// AssignDealer designates a non-voting facilitator; nil clears it.
func (c *Coordinator) AssignDealer(ctx context.Context, actorID uint, targetID *uint) error {
	var err error
	doErr := c.do(func() {
		if err = c.requireModerator(actorID); err != nil {
			return
		}
		if targetID != nil && c.reg.get(*targetID) == nil {
			err = ErrParticipantMissing
			return
		}
		room := c.room
		room.DealerID = targetID
		if serr := c.store.SaveRoom(ctx, &room); serr != nil {
			err = fmt.Errorf("persist dealer: %w", serr)
			return
		}
		c.room = room
		evt := eventMsg{Type: "event", Event: "dealer_changed"}
		if targetID != nil {
			evt.UserID = *targetID
		}
		c.emit(evt)
		c.broadcast()
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// SetAway flips the user's away flag; away voters stop counting toward
// reveal readiness until they return.
func (c *Coordinator) SetAway(ctx context.Context, userID uint, away bool) error {
	var err error
	doErr := c.do(func() {
		p := c.reg.get(userID)
		if p == nil {
			err = ErrParticipantMissing
			return
		}
		now := c.clock.Now().UTC()
		var since *time.Time
		if away {
			since = &now
		}
		if perr := c.persistParticipant(ctx, p, p.role, away, since); perr != nil {
			err = perr
			return
		}
		c.reg.setAway(userID, away, now)
		c.emit(eventMsg{Type: "event", Event: "away_changed", UserID: userID})
		c.broadcast()
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// History returns the most recent revealed rounds, newest first, with
// results derived on demand under the room's current scheme.
func (c *Coordinator) History(ctx context.Context, limit int) ([]RoundHistory, error) {
	var (
		out []RoundHistory
		err error
	)
	doErr := c.do(func() {
		rounds, rerr := c.store.RevealedRounds(ctx, c.room.ID, limit)
		if rerr != nil {
			err = fmt.Errorf("load rounds: %w", rerr)
			return
		}
		for _, r := range rounds {
			votes, verr := c.store.VotesByRound(ctx, r.ID)
			if verr != nil {
				err = fmt.Errorf("load votes: %w", verr)
				return
			}
			entry := RoundHistory{
				RoundID:    r.ID,
				Topic:      r.Topic.Data(),
				RevealedAt: r.RevealedAt,
				Votes:      make([]VoteView, 0, len(votes)),
			}
			values := make([]string, 0, len(votes))
			for _, v := range votes {
				entry.Votes = append(entry.Votes, VoteView{UserID: v.UserID, Value: v.Value})
				values = append(values, v.Value)
			}
			entry.Result = deck.Aggregate(c.room.Scheme, values)
			out = append(out, entry)
		}
	})
	if doErr != nil {
		return nil, doErr
	}
	return out, err
}

// Snapshot returns the current authoritative view, e.g. for an idempotent
// re-join refresh.
func (c *Coordinator) Snapshot() Snapshot {
	var snap Snapshot
	_ = c.do(func() { snap = c.snapshot() })
	return snap
}

// Online reports how many members have at least one live connection.
func (c *Coordinator) Online() int {
	n := 0
	_ = c.do(func() { n = c.reg.onlineCount() })
	return n
}

func (c *Coordinator) requireModerator(userID uint) error {
	p := c.reg.get(userID)
	if p == nil {
		return ErrParticipantMissing
	}
	if p.role != models.RoleModerator {
		return ErrNotModerator
	}
	return nil
}

func (c *Coordinator) persistParticipant(ctx context.Context, p *participant, role models.Role, away bool, since *time.Time) error {
	if err := c.store.UpsertParticipant(ctx, &models.Participant{
		RoomID:    c.room.ID,
		UserID:    p.userID,
		Role:      role,
		Away:      away,
		AwaySince: since,
	}); err != nil {
		return fmt.Errorf("persist participant: %w", err)
	}
	return nil
}

// clearDealerIfTarget drops the dealer assignment when the dealer leaves
// or is kicked. Persistence failure here is logged state drift at worst;
// the next SaveRoom heals it, so the error is ignored.
func (c *Coordinator) clearDealerIfTarget(ctx context.Context, userID uint) {
	if c.room.DealerID == nil || *c.room.DealerID != userID {
		return
	}
	room := c.room
	room.DealerID = nil
	if err := c.store.SaveRoom(ctx, &room); err == nil {
		c.room = room
	}
}

// broadcast pushes a fresh snapshot to every live connection in the room,
// in mutation order because it runs on the actor goroutine.
func (c *Coordinator) broadcast() {
	msg := snapshotMsg{Type: "snapshot", Snapshot: c.snapshot()}
	c.reg.eachSender(func(_ uint, s Sender) { s.SendJSON(msg) })
}

func (c *Coordinator) emit(evt eventMsg) {
	c.reg.eachSender(func(_ uint, s Sender) { s.SendJSON(evt) })
}

func validRole(r models.Role) bool {
	switch r {
	case models.RoleModerator, models.RoleVoter, models.RoleObserver:
		return true
	}
	return false
}

func voteValues(votes map[uint]string) []string {
	out := make([]string, 0, len(votes))
	for _, v := range votes {
		out = append(out, v)
	}
	return out
}
