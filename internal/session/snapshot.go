package session

import (
	"sort"
	"time"

	"github.com/ranielm/planning-poker-sub000/internal/deck"
	"github.com/ranielm/planning-poker-sub000/internal/models"
)

// ParticipantView is the per-member slice of a snapshot. HasVoted exposes
// only the fact of a vote, never its value.
type ParticipantView struct {
	UserID   uint        `json:"user_id"`
	Name     string      `json:"name"`
	Role     models.Role `json:"role"`
	IsOnline bool        `json:"is_online"`
	IsAway   bool        `json:"is_away"`
	IsDealer bool        `json:"is_dealer"`
	HasVoted bool        `json:"has_voted"`
}

type VoteView struct {
	UserID uint   `json:"user_id"`
	Value  string `json:"value"`
}

// Snapshot is the complete authoritative view of a room's session state.
// Clients replace their local state wholesale with every snapshot they
// receive; they never merge deltas.
type Snapshot struct {
	RoomID        uint              `json:"room_id"`
	Slug          string            `json:"slug"`
	Name          string            `json:"name"`
	Phase         models.Phase      `json:"phase"`
	Scheme        models.Scheme     `json:"scheme"`
	Cards         []string          `json:"cards"`
	Topic         *models.Topic     `json:"topic,omitempty"`
	RoundID       uint              `json:"round_id,omitempty"`
	DealerID      *uint             `json:"dealer_id,omitempty"`
	Participants  []ParticipantView `json:"participants"`
	PendingVoters []uint            `json:"pending_voters"`
	Votes         []VoteView        `json:"votes,omitempty"`
	Result        deck.Result       `json:"result,omitempty"`
	RevealedAt    *time.Time        `json:"revealed_at,omitempty"`
}

// snapshot computes the outbound state view. Vote values appear only once
// the round is REVEALED.
func (c *Coordinator) snapshot() Snapshot {
	snap := Snapshot{
		RoomID:        c.room.ID,
		Slug:          c.room.Slug,
		Name:          c.room.Name,
		Phase:         models.PhaseWaiting,
		Scheme:        c.room.Scheme,
		Cards:         deck.Cards(c.room.Scheme),
		Topic:         c.room.Topic.Data(),
		DealerID:      c.room.DealerID,
		Participants:  make([]ParticipantView, 0, len(c.reg.parts)),
		PendingVoters: make([]uint, 0),
	}
	if c.round != nil {
		snap.Phase = c.round.Phase
		snap.RoundID = c.round.ID
		snap.Topic = c.round.Topic.Data()
		snap.RevealedAt = c.round.RevealedAt
	}
	for _, p := range c.reg.ordered() {
		_, voted := c.votes[p.userID]
		snap.Participants = append(snap.Participants, ParticipantView{
			UserID:   p.userID,
			Name:     p.name,
			Role:     p.role,
			IsOnline: p.online(),
			IsAway:   p.away,
			IsDealer: c.isDealer(p.userID),
			HasVoted: voted,
		})
		if snap.Phase == models.PhaseVoting && c.canVote(p) && !voted {
			snap.PendingVoters = append(snap.PendingVoters, p.userID)
		}
	}
	if snap.Phase == models.PhaseRevealed {
		// Include every vote of the round, even from users who have since
		// left the room.
		ids := make([]uint, 0, len(c.votes))
		for id := range c.votes {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			snap.Votes = append(snap.Votes, VoteView{UserID: id, Value: c.votes[id]})
		}
		snap.Result = c.result
	}
	return snap
}

// canVote mirrors the castVote gate: voters and moderators that are
// neither away nor the dealer count toward reveal readiness.
func (c *Coordinator) canVote(p *participant) bool {
	return p.role != models.RoleObserver && !p.away && !c.isDealer(p.userID)
}

func (c *Coordinator) isDealer(userID uint) bool {
	return c.room.DealerID != nil && *c.room.DealerID == userID
}
