package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const sendBuffer = 64

// Client is one live WebSocket connection. Writes go through a buffered
// channel drained by WritePump, so Send never blocks the caller.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient wraps conn and installs the read limits and pong handler.
func NewClient(conn *websocket.Conn, log zerolog.Logger) *Client {
	id := uuid.NewString()
	c := &Client{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		log:  log.With().Str("conn_id", id).Logger(),
		done: make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return c
}

// ID identifies the connection for the lifetime of the process.
func (c *Client) ID() string { return c.id }

// Conn exposes the underlying socket to the read loop.
func (c *Client) Conn() *websocket.Conn { return c.conn }

// Send queues msg for delivery. It reports false when the client is closed
// or its buffer is full, in which case the message is dropped.
func (c *Client) Send(msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error().Err(err).Str("event", string(msg.Event)).Msg("Marshal outbound message")
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		c.log.Warn().Str("event", string(msg.Event)).Msg("Send buffer full, dropping message")
		return false
	}
}

// Close stops the write pump, which sends a close frame and closes the socket.
// Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once Close has been called.
func (c *Client) Done() <-chan struct{} { return c.done }

// WritePump drains the send buffer and keeps the connection alive with pings.
// It owns all writes to the socket and returns when the client is closed or a
// write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug().Err(err).Msg("WebSocket write error")
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug().Err(err).Msg("WebSocket ping error")
				c.Close()
				return
			}

		case <-c.done:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still buffered, best effort.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}
