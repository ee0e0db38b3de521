// Package integration contains integration tests for the Parley relay.
//
// These tests verify complete system behavior with a real HTTP server
// and real WebSocket connections: join routing, pairing, message
// relay, presence notifications, and protocol error handling.
package integration

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parley-chat/parley/internal/relay"
	"github.com/parley-chat/parley/test/testhelpers"
)

var startHubOnce sync.Once

// startRelay boots the shared hub once and returns a running test
// server plus the ws:// URL of its WebSocket endpoint.
func startRelay(t *testing.T) (baseURL, wsURL string, cleanup func()) {
	t.Helper()

	startHubOnce.Do(relay.StartHub)

	server := testhelpers.CreateTestServer(relay.SetupRoutes())

	cfg := relay.NewConfig()
	cfg.AllowedOrigins = append([]string{server.URL}, cfg.AllowedOrigins...)
	relay.SetConfig(cfg)

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	return server.URL, u.String(), func() {
		server.Close()
		relay.SetConfig(nil)
	}
}

func dial(t *testing.T, wsURL, origin string) (*testhelpers.EventReader, func()) {
	t.Helper()

	conn, err := testhelpers.ConnectWebSocket(wsURL, origin)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	return testhelpers.NewEventReader(conn), func() { _ = conn.Close() }
}

// TestHealthEndpoint verifies the plain-text health check.
func TestHealthEndpoint(t *testing.T) {
	baseURL, _, cleanup := startRelay(t)
	defer cleanup()

	resp := testhelpers.MakeRequest(t, http.MethodGet, baseURL+"/healthz")
	defer func() { _ = resp.Body.Close() }()
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
}

// TestOwnerJoinFlow covers the owner path over the wire: joined with
// room id and owner, empty history, singleton user list.
func TestOwnerJoinFlow(t *testing.T) {
	baseURL, wsURL, cleanup := startRelay(t)
	defer cleanup()

	alice, closeAlice := dial(t, wsURL, baseURL)
	defer closeAlice()

	if err := testhelpers.SendJoin(alice.Conn(), "alice", ""); err != nil {
		t.Fatalf("Failed to send join: %v", err)
	}

	joined := testhelpers.ExpectEvent(t, alice, "joined")
	if joined["owner"] != "alice" {
		t.Errorf("Expected owner alice, got %v", joined["owner"])
	}
	if joined["roomId"] == "" {
		t.Error("joined event missing roomId")
	}

	history := testhelpers.ExpectEvent(t, alice, "history")
	if data, ok := history["data"].([]any); !ok || len(data) != 0 {
		t.Errorf("Expected empty history array, got %v", history["data"])
	}

	userList := testhelpers.ExpectEvent(t, alice, "user_list")
	users, ok := userList["users"].([]any)
	if !ok || len(users) != 1 || users[0] != "alice" {
		t.Errorf("Expected user list [alice], got %v", userList["users"])
	}
}

// TestPairingAndChat covers the full pairing flow: a second client
// targeting the owner lands in the same room, presence events fire,
// and chat messages echo to the whole room.
func TestPairingAndChat(t *testing.T) {
	baseURL, wsURL, cleanup := startRelay(t)
	defer cleanup()

	host, closeHost := dial(t, wsURL, baseURL)
	defer closeHost()
	guest, closeGuest := dial(t, wsURL, baseURL)
	defer closeGuest()

	if err := testhelpers.SendJoin(host.Conn(), "host", ""); err != nil {
		t.Fatalf("Failed to send host join: %v", err)
	}
	joined := testhelpers.ExpectEvent(t, host, "joined")
	roomID := joined["roomId"]
	testhelpers.ExpectEvent(t, host, "history")
	testhelpers.ExpectEvent(t, host, "user_list")

	if err := testhelpers.SendJoin(guest.Conn(), "guest", "host"); err != nil {
		t.Fatalf("Failed to send guest join: %v", err)
	}
	guestJoined := testhelpers.ExpectEvent(t, guest, "joined")
	if guestJoined["roomId"] != roomID {
		t.Errorf("Guest landed in room %v, expected %v", guestJoined["roomId"], roomID)
	}
	testhelpers.ExpectEvent(t, guest, "history")
	testhelpers.ExpectEvent(t, guest, "user_list")

	// The host sees the refreshed list, then the join notice.
	refreshed := testhelpers.ExpectEvent(t, host, "user_list")
	if users, ok := refreshed["users"].([]any); !ok || len(users) != 2 {
		t.Errorf("Expected 2 users in refreshed list, got %v", refreshed["users"])
	}
	userJoined := testhelpers.ExpectEvent(t, host, "user_joined")
	if userJoined["username"] != "guest" {
		t.Errorf("Expected user_joined for guest, got %v", userJoined["username"])
	}

	// Chat echoes to both members, sender included.
	if err := testhelpers.SendChat(guest.Conn(), "hello host"); err != nil {
		t.Fatalf("Failed to send chat: %v", err)
	}
	for name, reader := range map[string]*testhelpers.EventReader{"host": host, "guest": guest} {
		msg := testhelpers.ExpectEvent(t, reader, "message")
		if msg["username"] != "guest" || msg["text"] != "hello host" {
			t.Errorf("%s received wrong message: %v", name, msg)
		}
	}
}

// TestChatBeforeJoin verifies the error event for unjoined senders.
func TestChatBeforeJoin(t *testing.T) {
	baseURL, wsURL, cleanup := startRelay(t)
	defer cleanup()

	client, closeClient := dial(t, wsURL, baseURL)
	defer closeClient()

	if err := testhelpers.SendChat(client.Conn(), "anyone?"); err != nil {
		t.Fatalf("Failed to send chat: %v", err)
	}

	errEvent := testhelpers.ExpectEvent(t, client, "error")
	if msg, ok := errEvent["message"].(string); !ok || msg == "" {
		t.Errorf("Expected a human-readable error message, got %v", errEvent["message"])
	}
}

// TestMalformedFramesDropped verifies that garbage input and unknown
// frame types get no reply and do not break the connection.
func TestMalformedFramesDropped(t *testing.T) {
	baseURL, wsURL, cleanup := startRelay(t)
	defer cleanup()

	client, closeClient := dial(t, wsURL, baseURL)
	defer closeClient()

	if err := testhelpers.SendRaw(client.Conn(), []byte("{broken")); err != nil {
		t.Fatalf("Failed to send raw frame: %v", err)
	}
	if err := testhelpers.SendRaw(client.Conn(), []byte(`{"type":"teleport"}`)); err != nil {
		t.Fatalf("Failed to send unknown frame: %v", err)
	}
	testhelpers.ExpectNoEvent(t, client, 200*time.Millisecond)

	// Connection still usable afterwards.
	if err := testhelpers.SendJoin(client.Conn(), "survivor", ""); err != nil {
		t.Fatalf("Failed to join after malformed frames: %v", err)
	}
	testhelpers.ExpectEvent(t, client, "joined")
}

// TestDisconnectNotifiesRoom verifies leave semantics on channel close:
// remaining members get user_left and a refreshed user_list.
func TestDisconnectNotifiesRoom(t *testing.T) {
	baseURL, wsURL, cleanup := startRelay(t)
	defer cleanup()

	host, closeHost := dial(t, wsURL, baseURL)
	defer closeHost()
	guest, closeGuest := dial(t, wsURL, baseURL)
	defer closeGuest()

	if err := testhelpers.SendJoin(host.Conn(), "stayer", ""); err != nil {
		t.Fatalf("Failed to join host: %v", err)
	}
	testhelpers.ExpectEvent(t, host, "joined")
	testhelpers.ExpectEvent(t, host, "history")
	testhelpers.ExpectEvent(t, host, "user_list")

	if err := testhelpers.SendJoin(guest.Conn(), "leaver", "stayer"); err != nil {
		t.Fatalf("Failed to join guest: %v", err)
	}
	testhelpers.ExpectEvent(t, host, "user_list")
	testhelpers.ExpectEvent(t, host, "user_joined")

	if err := testhelpers.CloseWebSocket(guest.Conn()); err != nil {
		t.Fatalf("Failed to close guest: %v", err)
	}

	userLeft := testhelpers.ExpectEvent(t, host, "user_left")
	if userLeft["username"] != "leaver" {
		t.Errorf("Expected user_left for leaver, got %v", userLeft["username"])
	}
	refreshed := testhelpers.ExpectEvent(t, host, "user_list")
	if users, ok := refreshed["users"].([]any); !ok || len(users) != 1 {
		t.Errorf("Expected 1 remaining user, got %v", refreshed["users"])
	}
}

// TestDisallowedOriginRejected verifies the upgrade is blocked for
// origins outside the allow-list.
func TestDisallowedOriginRejected(t *testing.T) {
	_, wsURL, cleanup := startRelay(t)
	defer cleanup()

	_, err := testhelpers.ConnectWebSocket(wsURL, "http://evil.example")
	if err == nil {
		t.Fatal("Expected handshake to fail for disallowed origin")
	}
	if !strings.Contains(err.Error(), "bad handshake") {
		t.Errorf("Expected bad handshake error, got %v", err)
	}
}

// TestWebSocketEndpointRejectsNonGet verifies the method guard.
func TestWebSocketEndpointRejectsNonGet(t *testing.T) {
	baseURL, _, cleanup := startRelay(t)
	defer cleanup()

	resp := testhelpers.MakeRequest(t, http.MethodPost, baseURL+"/ws")
	defer func() { _ = resp.Body.Close() }()
	testhelpers.AssertStatusCode(t, resp, http.StatusMethodNotAllowed)
}

// TestMetricsEndpoint verifies the Prometheus scrape surface is wired.
func TestMetricsEndpoint(t *testing.T) {
	baseURL, _, cleanup := startRelay(t)
	defer cleanup()

	resp := testhelpers.MakeRequest(t, http.MethodGet, baseURL+"/metrics")
	defer func() { _ = resp.Body.Close() }()
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
}
