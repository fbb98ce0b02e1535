package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ranielm/planning-poker-sub000/internal/auth"
	"github.com/ranielm/planning-poker-sub000/internal/metrics"
	"github.com/ranielm/planning-poker-sub000/internal/models"
	"github.com/ranielm/planning-poker-sub000/internal/session"
	"github.com/ranielm/planning-poker-sub000/internal/topic"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway upgrades websocket connections and translates client actions
// into session coordinator calls. It holds no room state of its own.
type Gateway struct {
	hub      *session.Hub
	verifier auth.Verifier
	store    session.Store
	lookup   topic.Lookup
}

func NewGateway(hub *session.Hub, verifier auth.Verifier, store session.Store, lookup topic.Lookup) *Gateway {
	return &Gateway{hub: hub, verifier: verifier, store: store, lookup: lookup}
}

type inbound struct {
	Action    string        `json:"action"`
	RoomID    uint          `json:"room_id,omitempty"`
	Role      string        `json:"role,omitempty"`
	Value     string        `json:"value,omitempty"`
	Scheme    string        `json:"scheme,omitempty"`
	Persist   bool          `json:"persist,omitempty"`
	UserID    uint          `json:"user_id,omitempty"`
	Clear     bool          `json:"clear,omitempty"`
	Away      bool          `json:"away,omitempty"`
	Limit     int           `json:"limit,omitempty"`
	Topic     *models.Topic `json:"topic,omitempty"`
	LookupKey string        `json:"lookup_key,omitempty"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type historyMsg struct {
	Type   string                 `json:"type"`
	Rounds []session.RoundHistory `json:"rounds"`
}

// Serve authenticates the upgrade request and runs the connection pumps.
// The connection joins a room only through an explicit join action.
func (g *Gateway) Serve() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.Request)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		ident, err := g.verifier.VerifyToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		metrics.WsConnections.Inc()
		client := &Client{
			gw:     g,
			conn:   conn,
			send:   make(chan []byte, 256),
			kick:   make(chan struct{}),
			slow:   make(chan struct{}),
			connID: uuid.NewString(),
			id:     session.Identity{UserID: ident.UserID, Name: ident.DisplayName},
		}
		log.Info().Uint("user_id", ident.UserID).Str("conn_id", client.connID).Msg("ws connected")

		go client.writePump()
		client.readPump()
	}
}

// dispatch routes one inbound action. Errors are reported back to the
// sender as structured error messages, never as connection failures.
func (g *Gateway) dispatch(c *Client, in inbound) error {
	ctx := context.Background()

	if in.Action == "join" {
		return g.join(ctx, c, in)
	}

	coord, _ := c.room()
	if coord == nil {
		c.sendError("not_in_room", "join a room first")
		return session.ErrParticipantMissing
	}

	var err error
	switch in.Action {
	case "leave":
		err = coord.Leave(ctx, c.id.UserID)
		if err == nil {
			c.setRoom(nil, 0)
		}
	case "vote":
		err = coord.CastVote(ctx, c.id.UserID, in.Value)
		if err == nil {
			metrics.VotesCastTotal.Inc()
		}
	case "reveal":
		_, err = coord.Reveal(ctx, c.id.UserID)
		if err == nil {
			metrics.RevealsTotal.Inc()
		}
	case "reset":
		err = coord.Reset(ctx, c.id.UserID)
		if err == nil {
			metrics.RoundsStartedTotal.Inc()
		}
	case "set_topic":
		var t *models.Topic
		t, err = g.resolveTopic(ctx, in)
		if err == nil {
			err = coord.SetTopic(ctx, c.id.UserID, t)
		}
		if err == nil {
			metrics.RoundsStartedTotal.Inc()
		}
	case "change_deck":
		err = coord.ChangeDeck(ctx, c.id.UserID, models.Scheme(in.Scheme))
	case "set_role":
		err = coord.SetRole(ctx, c.id.UserID, in.UserID, models.Role(in.Role))
	case "toggle_role":
		err = coord.ToggleOwnRole(ctx, c.id.UserID, models.Role(in.Role), in.Persist)
	case "kick":
		err = coord.Kick(ctx, c.id.UserID, in.UserID)
	case "assign_dealer":
		var target *uint
		if !in.Clear {
			uid := in.UserID
			target = &uid
		}
		err = coord.AssignDealer(ctx, c.id.UserID, target)
	case "set_away":
		err = coord.SetAway(ctx, c.id.UserID, in.Away)
	case "get_history":
		var rounds []session.RoundHistory
		rounds, err = coord.History(ctx, in.Limit)
		if err == nil {
			c.SendJSON(historyMsg{Type: "history", Rounds: rounds})
		}
	default:
		c.sendError("invalid_argument", "unknown action")
		return nil
	}

	if err != nil {
		code, msg := mapError(err)
		c.sendError(code, msg)
	}
	return err
}

// join binds the connection to a room, detaching from any previous one.
// Re-joining the current room just re-delivers a fresh snapshot.
func (g *Gateway) join(ctx context.Context, c *Client, in inbound) error {
	if in.RoomID == 0 {
		c.sendError("invalid_argument", "room_id required")
		return nil
	}
	coord, err := g.hub.GetRoom(ctx, in.RoomID)
	if err != nil {
		code, msg := mapError(err)
		c.sendError(code, msg)
		return err
	}

	role := models.Role(in.Role)
	if role == "" {
		if users, uerr := g.store.UsersByIDs(ctx, []uint{c.id.UserID}); uerr == nil {
			role = users[c.id.UserID].DefaultRole
		}
	}
	if err := coord.Attach(ctx, c.id, role, c.connID, c); err != nil {
		code, msg := mapError(err)
		c.sendError(code, msg)
		return err
	}
	// Leave the old room only once the new attach has succeeded, so a
	// failed switch keeps the current binding intact.
	if prev, prevID := c.room(); prev != nil && prevID != in.RoomID {
		prev.Detach(c.id.UserID, c.connID)
	}
	c.setRoom(coord, in.RoomID)
	return nil
}

// resolveTopic builds the topic from the lookup key when configured,
// falling back to the manually supplied fields.
func (g *Gateway) resolveTopic(ctx context.Context, in inbound) (*models.Topic, error) {
	if in.LookupKey != "" && g.lookup != nil {
		t, err := g.lookup.Fetch(ctx, in.LookupKey)
		if err == nil {
			return t, nil
		}
		if in.Topic == nil {
			return nil, err
		}
		log.Warn().Err(err).Str("key", in.LookupKey).Msg("topic lookup failed, using manual fields")
	}
	if in.Topic == nil {
		return nil, errInvalidTopic
	}
	return in.Topic, nil
}

var errInvalidTopic = errors.New("topic required")

func mapError(err error) (string, string) {
	switch {
	case errors.Is(err, session.ErrNotModerator),
		errors.Is(err, session.ErrObserverCannotVote),
		errors.Is(err, session.ErrAwayCannotVote),
		errors.Is(err, session.ErrDealerCannotVote),
		errors.Is(err, session.ErrCannotKickSelf):
		return "authorization_failure", err.Error()
	case errors.Is(err, session.ErrParticipantMissing):
		return "not_in_room", err.Error()
	case errors.Is(err, session.ErrRoundNotVoting),
		errors.Is(err, session.ErrNoActiveRound):
		return "invalid_round_state", err.Error()
	case errors.Is(err, session.ErrInvalidVoteValue):
		return "invalid_vote_value", err.Error()
	case errors.Is(err, session.ErrInvalidScheme),
		errors.Is(err, session.ErrInvalidRole),
		errors.Is(err, errInvalidTopic):
		return "invalid_argument", err.Error()
	case errors.Is(err, topic.ErrUnavailable):
		return "lookup_unavailable", err.Error()
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrRoomClosed):
		return "not_found", err.Error()
	default:
		return "transient_io_failure", "temporary failure, retry"
	}
}
