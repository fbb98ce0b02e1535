package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ranielm/planning-poker-sub000/internal/metrics"
	"github.com/ranielm/planning-poker-sub000/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 1 << 20 // 1MB
)

// Client is one websocket connection. It is bound to at most one room
// at a time and acts as the session layer's Sender for that room.
type Client struct {
	gw       *Gateway
	conn     *websocket.Conn
	send     chan []byte
	kick     chan struct{}
	kickOnce sync.Once
	slow     chan struct{}
	slowOnce sync.Once
	connID   string
	id       session.Identity

	mu     sync.Mutex
	coord  *session.Coordinator
	roomID uint
}

// SendJSON queues a message for the write pump. A full buffer means the
// reader fell hopelessly behind; the connection is torn down so the
// client resyncs from a fresh snapshot after reconnecting.
func (c *Client) SendJSON(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		c.slowOnce.Do(func() { close(c.slow) })
		return false
	}
}

// Kick asks the write pump to close the connection. Safe to call from
// the coordinator goroutine.
func (c *Client) Kick() {
	c.mu.Lock()
	c.coord = nil
	c.roomID = 0
	c.mu.Unlock()
	c.kickOnce.Do(func() { close(c.kick) })
}

func (c *Client) room() (*session.Coordinator, uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coord, c.roomID
}

func (c *Client) setRoom(coord *session.Coordinator, roomID uint) {
	c.mu.Lock()
	c.coord = coord
	c.roomID = roomID
	c.mu.Unlock()
}

func (c *Client) readPump() {
	defer func() {
		if coord, _ := c.room(); coord != nil {
			coord.Detach(c.id.UserID, c.connID)
		}
		metrics.WsConnections.Dec()
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.sendError("invalid_argument", "malformed message")
			continue
		}
		if err := c.gw.dispatch(c, in); err != nil {
			log.Debug().Err(err).Uint("user_id", c.id.UserID).Str("action", in.Action).Msg("ws action rejected")
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.kick:
			// Flush everything already queued, the kicked notification
			// among it, before the close frame.
			for {
				select {
				case message := <-c.send:
					if !c.writeText(message) {
						return
					}
				default:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "kicked"))
					return
				}
			}
		case <-c.slow:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "send buffer overflow"))
			return
		case message, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.writeText(message) {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeText(message []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return false
	}
	_, _ = w.Write(message)
	return w.Close() == nil
}

func (c *Client) sendError(code, message string) {
	c.SendJSON(errorMsg{Type: "error", Code: code, Message: message})
}
