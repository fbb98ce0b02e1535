// Package client is a reconnecting websocket client for the poker
// server, usable by bots, CLIs and integration tests.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrRetriesExhausted is returned by Run once the bounded reconnect
// budget is spent without a successful connection.
var ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

var errNotConnected = errors.New("not connected")

type State string

const (
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateLost         State = "lost"
)

// Event reports a connection state change. During reconnects Attempt
// counts up toward Max so callers can surface progress.
type Event struct {
	State   State
	Attempt int
	Max     int
	Err     error
}

// Conn is the transport surface the controller needs; satisfied by
// *websocket.Conn and by test fakes.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Config configures a Controller. Zero values fall back to defaults:
// 10 attempts, 1s base backoff doubling to a 30s cap, real clock.
type Config struct {
	URL   string
	Token string

	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	Clock     clockwork.Clock
	OnEvent   func(Event)
	OnMessage func([]byte)

	// Dial overrides the websocket dialer, used in tests.
	Dial func(ctx context.Context) (Conn, error)
}

// Controller maintains one logical connection to the server. On drops it
// reconnects with bounded exponential backoff and rejoins the last room,
// so a transient network failure never loses the seat at the table.
type Controller struct {
	cfg   Config
	nudge chan struct{}

	mu     sync.Mutex
	conn   Conn
	roomID uint
	role   string
}

func New(cfg Config) *Controller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Dial == nil {
		cfg.Dial = func(ctx context.Context) (Conn, error) {
			hdr := http.Header{}
			if cfg.Token != "" {
				hdr.Set("Authorization", "Bearer "+cfg.Token)
			}
			c, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, hdr)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	return &Controller{cfg: cfg, nudge: make(chan struct{}, 1)}
}

// Run connects and keeps the connection alive until ctx is cancelled or
// the reconnect budget runs out. Each successful connection resets the
// budget.
func (c *Controller) Run(ctx context.Context) error {
	attempt := 0
	backoff := c.cfg.BaseBackoff
	for {
		conn, err := c.cfg.Dial(ctx)
		if err == nil {
			attempt = 0
			backoff = c.cfg.BaseBackoff
			c.setConn(conn)
			c.emit(Event{State: StateConnected})
			c.rejoin()
			err = c.readLoop(ctx, conn)
			c.setConn(nil)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		if attempt > c.cfg.MaxAttempts {
			c.emit(Event{State: StateLost, Err: err})
			return fmt.Errorf("%w: %v", ErrRetriesExhausted, err)
		}
		c.emit(Event{State: StateReconnecting, Attempt: attempt, Max: c.cfg.MaxAttempts, Err: err})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.cfg.Clock.After(backoff):
		case <-c.nudge:
		}
		backoff = nextBackoff(backoff, c.cfg.MaxBackoff)
	}
}

// Join records the room so reconnects return to it, and joins right away
// when connected.
func (c *Controller) Join(roomID uint, role string) error {
	c.mu.Lock()
	c.roomID = roomID
	c.role = role
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}
	return c.writeJSON(conn, map[string]any{"action": "join", "room_id": roomID, "role": role})
}

// Send writes one action to the server.
func (c *Controller) Send(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}
	return c.writeJSON(conn, v)
}

// Nudge skips the remainder of the current backoff wait, e.g. when the
// OS reports the network came back.
func (c *Controller) Nudge() {
	select {
	case c.nudge <- struct{}{}:
	default:
	}
}

func (c *Controller) readLoop(ctx context.Context, conn Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return err
		}
		if c.cfg.OnMessage != nil {
			c.cfg.OnMessage(data)
		}
	}
}

// rejoin re-enters the last room after a reconnect. Join is idempotent
// server-side, so repeating it is safe.
func (c *Controller) rejoin() {
	c.mu.Lock()
	roomID, role := c.roomID, c.role
	c.mu.Unlock()
	if roomID == 0 {
		return
	}
	if err := c.Join(roomID, role); err != nil {
		log.Warn().Err(err).Uint("room_id", roomID).Msg("rejoin failed")
	}
}

func (c *Controller) setConn(conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Controller) writeJSON(conn Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (c *Controller) emit(e Event) {
	if c.cfg.OnEvent != nil {
		c.cfg.OnEvent(e)
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	cur *= 2
	if cur > max {
		return max
	}
	return cur
}
