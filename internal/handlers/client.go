package handlers

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/haven-health/consult-signaling/internal/event"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Large enough for SDP
	// payloads.
	maxMessageSize = 64 * 1024
)

// Client is one authenticated websocket connection: the transport handle
// every component delivers events through. A fresh Client is created per
// connection; the same identity reconnecting gets a new Client and the
// old one is closed.
type Client struct {
	identity string
	connID   string
	conn     *websocket.Conn
	send     chan []byte
	log      zerolog.Logger

	closeOnce sync.Once
}

func newClient(identity, connID string, conn *websocket.Conn, log zerolog.Logger) *Client {
	return &Client{
		identity: identity,
		connID:   connID,
		conn:     conn,
		send:     make(chan []byte, 256),
		log:      log,
	}
}

// Deliver enqueues one event for the write pump. It never blocks: a full
// buffer means the connection is stalled and the event is dropped.
func (c *Client) Deliver(ev event.Envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	default:
		return event.ErrChannelUnavailable
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// readPump pumps inbound envelopes from the websocket into the dispatcher.
// It runs in the connection's handler goroutine; there is at most one
// reader per connection.
func (c *Client) readPump(dispatch func(*Client, event.Envelope)) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var env event.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		dispatch(c, env)
	}
}

// writePump pumps queued events to the websocket and keeps the
// connection alive with pings. There is at most one writer per
// connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Warn().Err(err).Msg("websocket write error")
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
