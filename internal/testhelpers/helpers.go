// Package testhelpers provides common utilities for testing the chat relay
// over real WebSocket connections.
//
// It provides functions for dialing test servers, exchanging JSON frames and
// asserting the presence or absence of frames, to reduce duplication in the
// server tests.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/protocol"
)

// DefaultTimeout bounds every read a helper performs.
const DefaultTimeout = 2 * time.Second

// WebSocketURL converts an httptest server URL into the relay's WebSocket URL.
func WebSocketURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

// ConnectWebSocket dials url with the given Origin header (omitted when empty).
func ConnectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// MustConnect dials url and registers the connection for cleanup.
func MustConnect(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := ConnectWebSocket(url, "")
	require.NoError(t, err, "dial %s", url)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendJSON writes v as one text frame.
func SendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

// SendRaw writes data as one text frame.
func SendRaw(t *testing.T, conn *websocket.Conn, data string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

// Join sends a join frame and consumes the acknowledgement.
func Join(t *testing.T, conn *websocket.Conn, room, name string) {
	t.Helper()
	SendJSON(t, conn, map[string]string{"type": protocol.TypeJoin, "room": room, "name": name})
	f := ReadFrame(t, conn)
	require.Equal(t, protocol.TypeJoined, f.Type)
}

// ReadFrame reads the next frame, failing the test after DefaultTimeout.
func ReadFrame(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(DefaultTimeout)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err, "waiting for frame")

	var f protocol.Frame
	require.NoError(t, json.Unmarshal(data, &f), "frame %q", data)
	return f
}

// ExpectNoFrame fails the test if a frame arrives within wait. A read timeout
// leaves the connection unusable, so it must be the last read on conn.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no frame, got %s", data)
	}
}

// CloseWebSocket sends a normal close frame and closes the connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
