// Package testhelpers provides common utilities for testing the Parley
// relay server.
//
// It contains reusable helpers shared across integration tests: creating
// test servers, dialing WebSocket connections, speaking the join/message
// protocol, and decoding the relay's event stream.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket dials the relay's WebSocket endpoint with the given
// Origin header.
func ConnectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendJoin sends a join frame. An empty targetOwner omits the field,
// requesting a fresh room owned by the client.
func SendJoin(conn *websocket.Conn, username, targetOwner string) error {
	frame := map[string]string{"type": "join", "username": username}
	if targetOwner != "" {
		frame["targetOwner"] = targetOwner
	}
	return conn.WriteJSON(frame)
}

// SendChat sends a chat message frame.
func SendChat(conn *websocket.Conn, text string) error {
	return conn.WriteJSON(map[string]string{"type": "message", "text": text})
}

// SendRaw sends a raw byte payload, useful for malformed-frame tests.
func SendRaw(conn *websocket.Conn, data []byte) error {
	return conn.WriteMessage(websocket.TextMessage, data)
}

// EventReader decodes the relay's event stream. The relay may batch
// several events into one websocket frame separated by newlines, so the
// reader splits frames and hands events out one at a time.
type EventReader struct {
	conn     *websocket.Conn
	pending  [][]byte
	inflight chan readResult
}

type readResult struct {
	payload []byte
	err     error
}

// NewEventReader wraps a connection for event-at-a-time consumption.
func NewEventReader(conn *websocket.Conn) *EventReader {
	return &EventReader{conn: conn}
}

// Conn returns the underlying WebSocket connection for writing frames.
func (r *EventReader) Conn() *websocket.Conn {
	return r.conn
}

// Next returns the next event, waiting up to timeout for a frame.
// Reads happen in a goroutine so a timed-out wait does not poison the
// connection (gorilla treats read errors as permanent); a frame that
// arrives after the timeout is delivered by a later call.
func (r *EventReader) Next(timeout time.Duration) (map[string]any, error) {
	if len(r.pending) == 0 {
		if r.inflight == nil {
			r.inflight = make(chan readResult, 1)
			go func(ch chan readResult) {
				_, payload, err := r.conn.ReadMessage()
				ch <- readResult{payload: payload, err: err}
			}(r.inflight)
		}
		select {
		case res := <-r.inflight:
			r.inflight = nil
			if res.err != nil {
				return nil, res.err
			}
			r.pending = bytes.Split(res.payload, []byte{'\n'})
		case <-time.After(timeout):
			return nil, fmt.Errorf("timed out after %v waiting for event", timeout)
		}
	}

	raw := r.pending[0]
	r.pending = r.pending[1:]

	var event map[string]any
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("malformed event %q: %w", raw, err)
	}
	return event, nil
}

// ExpectEvent reads the next event and fails the test if its type does
// not match.
func ExpectEvent(t *testing.T, r *EventReader, wantType string) map[string]any {
	t.Helper()

	event, err := r.Next(2 * time.Second)
	if err != nil {
		t.Fatalf("Failed waiting for %q event: %v", wantType, err)
	}
	if event["type"] != wantType {
		t.Fatalf("Expected event type %q, got %v (event: %v)", wantType, event["type"], event)
	}
	return event
}

// ExpectNoEvent asserts that no event arrives within the timeout.
func ExpectNoEvent(t *testing.T, r *EventReader, timeout time.Duration) {
	t.Helper()

	event, err := r.Next(timeout)
	if err == nil {
		t.Fatalf("Expected no event, got %v", event)
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
