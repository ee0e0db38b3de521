// Package relay defines the wire-level event types exchanged with
// clients and the sanitization helpers applied to client-supplied text.
package relay

import "strings"

const (
	// maxNameLength bounds client-supplied display names and owner names.
	maxNameLength = 30

	// maxTextLength bounds the text of a single chat message.
	maxTextLength = 1000

	// anonymousName is assigned when a client joins without a username.
	anonymousName = "Anonymous"
)

// Frame is the inbound client message. Type selects the operation;
// the remaining fields are populated depending on the type.
type Frame struct {
	Type        string `json:"type"`
	Username    string `json:"username,omitempty"`
	TargetOwner string `json:"targetOwner,omitempty"`
	Text        string `json:"text,omitempty"`
}

// MessageEvent is a relayed chat message. It is the only event kind
// retained in room history. Ts is Unix milliseconds.
type MessageEvent struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Text     string `json:"text"`
	Ts       int64  `json:"ts"`
}

// JoinedEvent confirms room placement to the joining client.
type JoinedEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Owner  string `json:"owner"`
}

// HistoryEvent replays the room's buffered messages to a new member.
type HistoryEvent struct {
	Type string         `json:"type"`
	Data []MessageEvent `json:"data"`
}

// UserListEvent carries the current member names of a room.
type UserListEvent struct {
	Type   string   `json:"type"`
	Users  []string `json:"users"`
	RoomID string   `json:"roomId"`
	Owner  string   `json:"owner"`
}

// PresenceEvent announces a member joining or leaving a room.
type PresenceEvent struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// ErrorEvent reports a user-visible failure to a single client.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newJoinedEvent(roomID, owner string) JoinedEvent {
	return JoinedEvent{Type: "joined", RoomID: roomID, Owner: owner}
}

func newHistoryEvent(data []MessageEvent) HistoryEvent {
	if data == nil {
		data = []MessageEvent{}
	}
	return HistoryEvent{Type: "history", Data: data}
}

func newUserListEvent(users []string, roomID, owner string) UserListEvent {
	if users == nil {
		users = []string{}
	}
	return UserListEvent{Type: "user_list", Users: users, RoomID: roomID, Owner: owner}
}

func newUserJoinedEvent(username string) PresenceEvent {
	return PresenceEvent{Type: "user_joined", Username: username}
}

func newUserLeftEvent(username string) PresenceEvent {
	return PresenceEvent{Type: "user_left", Username: username}
}

func newErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: "error", Message: message}
}

// sanitizeUsername clamps a display name to maxNameLength runes and
// substitutes the anonymous placeholder for empty input.
func sanitizeUsername(name string) string {
	if name == "" {
		return anonymousName
	}
	return truncateRunes(name, maxNameLength)
}

// sanitizeOwner clamps a target owner name without applying the
// anonymous default; an empty owner means "no target".
func sanitizeOwner(owner string) string {
	return truncateRunes(owner, maxNameLength)
}

func sanitizeText(text string) string {
	return truncateRunes(text, maxTextLength)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
