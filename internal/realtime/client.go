package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Client is one websocket connection subscribed to a show.  Anonymous
// clients (empty userID) receive events but are not counted as viewers.
type Client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	showID  uint64
	userID  string
	touch   func(ctx context.Context) error
	minGap  time.Duration
	lastHit time.Time
	log     logrus.FieldLogger
}

// clientMessage is what clients may send.  Only heartbeats are understood.
type clientMessage struct {
	Type string `json:"type"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks are left to the edge proxy; the socket only ever
	// carries public tallies and presence.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// readPump reads heartbeats until the connection fails, refreshing the
// viewer's presence on each heartbeat or pong.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.heartbeat()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithError(err).Debug("websocket closed")
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type == "heartbeat" {
			c.heartbeat()
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		}
	}
}

// heartbeat refreshes presence, at most once per minGap.
func (c *Client) heartbeat() {
	if c.userID == "" || c.touch == nil {
		return
	}
	now := time.Now()
	if now.Sub(c.lastHit) < c.minGap {
		return
	}
	c.lastHit = now
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.touch(ctx); err != nil {
		c.log.WithError(err).Warn("presence heartbeat failed")
	}
}

// writePump sends queued events and periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Serve upgrades the request and subscribes the connection to the show.
// touch is called on heartbeats of authenticated clients and may be nil.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, showID uint64, userID string, heartbeatGap time.Duration, touch func(ctx context.Context) error) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &Client{
		id:     uuid.NewString(),
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 64),
		showID: showID,
		userID: userID,
		touch:  touch,
		minGap: heartbeatGap,
		log:    h.log,
	}
	c.log = h.log.WithFields(logrus.Fields{"conn_id": c.id, "show_id": showID})
	if !h.join(c) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		return conn.Close()
	}
	go c.writePump()
	go c.readPump()
	return nil
}
