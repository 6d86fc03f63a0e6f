package websocket

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteJSON sends an event envelope.
func WriteJSON(conn *websocket.Conn, event Event, data interface{}) error {
	return WriteTyped(conn, Message{Event: event, Data: data})
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetReadDeadline(time.Now().Add(readWait))
	return conn.ReadJSON(v)
}

var errEmptyData = errors.New("data is empty")

// DecodeData decodes base64 image data, accepting a data URL prefix.
func DecodeData(raw string) ([]byte, error) {
	if i := strings.Index(raw, ","); strings.HasPrefix(raw, "data:") && i >= 0 {
		raw = raw[i+1:]
	}
	if raw == "" {
		return nil, errEmptyData
	}
	return base64.StdEncoding.DecodeString(raw)
}
