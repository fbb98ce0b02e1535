package session

import "errors"

// Session-layer errors. The gateway maps these to structured failure
// replies for the acting connection only; they are never broadcast.
var (
	ErrNotModerator       = errors.New("moderator role required")
	ErrParticipantMissing = errors.New("participant not found in room")
	ErrObserverCannotVote = errors.New("observers cannot vote")
	ErrAwayCannotVote     = errors.New("away participants cannot vote")
	ErrDealerCannotVote   = errors.New("the dealer does not vote")
	ErrRoundNotVoting     = errors.New("round is not accepting votes")
	ErrNoActiveRound      = errors.New("no active round")
	ErrInvalidVoteValue   = errors.New("value is not a card of the current deck")
	ErrInvalidScheme      = errors.New("unknown scoring scheme")
	ErrInvalidRole        = errors.New("invalid role")
	ErrCannotKickSelf     = errors.New("moderators cannot kick themselves")
	ErrRoomClosed         = errors.New("room session is closed")
)
