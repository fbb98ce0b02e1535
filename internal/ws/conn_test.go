package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsPair upgrades one websocket connection and returns both ends.
func wsPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()
	serverCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverCh <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return <-serverCh, client
}

func newPumpClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, 256),
		kick: make(chan struct{}),
		slow: make(chan struct{}),
	}
}

// A kick racing a deep send backlog must still deliver the queued kicked
// notification before the connection closes.
func TestWritePump_KickFlushesBacklog(t *testing.T) {
	serverConn, clientConn := wsPair(t)
	c := newPumpClient(serverConn)

	for i := 0; i < 200; i++ {
		if !c.SendJSON(map[string]any{"type": "snapshot", "seq": i}) {
			t.Fatalf("queue message %d", i)
		}
	}
	if !c.SendJSON(map[string]any{"type": "kicked"}) {
		t.Fatal("queue kicked message")
	}
	c.Kick()

	go c.writePump()

	sawKicked := false
	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, raw, err := clientConn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				t.Fatalf("close error = %v, want policy violation", err)
			}
			break
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if m["type"] == "kicked" {
			sawKicked = true
		}
	}
	if !sawKicked {
		t.Fatal("kicked notification never delivered")
	}
}

// A consumer whose send buffer overflows gets disconnected instead of
// silently missing snapshots.
func TestSendJSON_OverflowClosesConnection(t *testing.T) {
	serverConn, clientConn := wsPair(t)
	c := newPumpClient(serverConn)
	c.send = make(chan []byte, 1)

	if !c.SendJSON(map[string]any{"type": "snapshot", "seq": 1}) {
		t.Fatal("first message should queue")
	}
	if c.SendJSON(map[string]any{"type": "snapshot", "seq": 2}) {
		t.Fatal("second message should overflow")
	}

	go c.writePump()

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := clientConn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
				t.Fatalf("close error = %v, want try again later", err)
			}
			return
		}
	}
}
