package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends a single error frame. Used before a Client exists,
// e.g. when a handshake is rejected after the upgrade.
func WriteError(conn *websocket.Conn, code, msg string) error {
	return WriteTyped(conn, ErrorMessage(code, msg))
}

// ErrorMessage builds an outbound error event.
func ErrorMessage(code, msg string) Message {
	return Message{Event: EventError, Data: ErrorResponse{Code: code, Message: msg}}
}

// ReadJSON reads and decodes a message into the provided structure.
// The read deadline is extended by the pong handler installed in NewClient.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	return conn.ReadJSON(v)
}
