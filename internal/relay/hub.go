// Package relay coordinates client registration, room routing, message
// broadcast, and connection cleanup for the Parley relay via the Hub type.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Chat dispatch failures surfaced to the sender as error events.
var (
	// ErrNotJoined is returned when a client sends a chat message
	// before joining a room.
	ErrNotJoined = errors.New("client has not joined a room")

	// ErrRoomMissing is returned when a client's room reference no
	// longer resolves in the registry.
	ErrRoomMissing = errors.New("room no longer exists")
)

const (
	notJoinedMessage   = "You need to join a room before sending messages."
	roomMissingMessage = "Room not found."
)

// Hub owns the room registry and the set of live client connections.
// A single mutex serializes every registry and membership mutation, so
// find-and-join runs atomically with respect to concurrent joins and
// leaves. Registration and unregistration flow through channels consumed
// by the Run loop, which also drives the heartbeat sweep.
type Hub struct {
	clients    map[*Client]bool
	reg        *registry
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates and initializes a new Hub instance with an empty room
// registry. The returned Hub is ready to manage WebSocket connections.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		reg:        newRegistry(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

var hub = NewHub()

// GetRegisterChan returns the channel used for registering new clients
// with the hub.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, and the periodic heartbeat sweep. This method should
// be called in a separate goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	ticker := time.NewTicker(currentConfig().HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case <-ticker.C:
			h.sweep()
		}
	}
}

func (h *Hub) addClient(client *Client) {
	if client == nil {
		log.Warn().Msg("received nil client registration; skipping")
		return
	}

	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	metricConnectedClients.Set(float64(clientCount))
	log.Info().Str("addr", client.addr).Str("conn", client.id).Int("clients", clientCount).Msg("client registered")

	if client.conn == nil {
		return
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// removeClient unregisters a client and runs the full departure
// semantics in its room before the send channel is closed.
func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	h.leaveLocked(client)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock.
	close(client.send)
	metricConnectedClients.Set(float64(clientCount))
	log.Info().Str("addr", client.addr).Str("conn", client.id).Int("clients", clientCount).Msg("client unregistered")
}

// unregisterClient hands a client back to the Run loop. During shutdown
// the loop is gone, so the handoff aborts instead of blocking.
func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// HandleJoin routes a join request: sanitize the display name, decide
// whether the client acts as an owner or seeks a waiting partner, place
// it in a room, and emit the joined/history/user_list notifications.
// Any prior room membership is left first with full departure semantics.
func (h *Hub) HandleJoin(c *Client, username, targetOwner string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	name := sanitizeUsername(username)
	c.name = name
	owner := sanitizeOwner(targetOwner)
	cfg := currentConfig()

	if owner == "" || owner == name {
		// Acting as an owner: always a fresh room, never a search.
		room := h.reg.create(name, cfg.HistoryCapacity)
		metricActiveRooms.Set(float64(h.reg.roomCount()))
		h.placeLocked(c, room)
		h.sendEventLocked(c, newJoinedEvent(room.id, room.owner))
		h.sendEventLocked(c, newHistoryEvent(room.history.snapshot()))
		h.broadcastLocked(room, newUserListEvent(room.memberNames(), room.id, room.owner), nil)
		log.Info().Str("conn", c.id).Str("user", name).Str("room", room.id).Msg("owner opened room")
		return
	}

	room, found := h.reg.findJoinable(owner)
	if !found {
		room = h.reg.create(owner, cfg.HistoryCapacity)
		metricActiveRooms.Set(float64(h.reg.roomCount()))
	}

	h.placeLocked(c, room)
	h.sendEventLocked(c, newJoinedEvent(room.id, room.owner))
	h.sendEventLocked(c, newHistoryEvent(room.history.snapshot()))
	h.broadcastLocked(room, newUserListEvent(room.memberNames(), room.id, room.owner), nil)
	h.broadcastLocked(room, newUserJoinedEvent(name), c)
	log.Info().Str("conn", c.id).Str("user", name).Str("owner", owner).Str("room", room.id).Bool("paired", found).Msg("client joined room")
}

// placeLocked adds the client to a room, leaving its previous room
// first unless it is the same one.
func (h *Hub) placeLocked(c *Client, room *Room) {
	if c.roomID != "" && c.roomID != room.id {
		h.leaveLocked(c)
	}
	room.addMember(c)
	c.roomID = room.id
}

// leaveLocked removes the client from its current room, notifies the
// remaining members, and deletes the room once it is empty.
func (h *Hub) leaveLocked(c *Client) {
	roomID := c.roomID
	if roomID == "" {
		return
	}
	c.roomID = ""

	room, ok := h.reg.get(roomID)
	if !ok {
		return
	}

	room.removeMember(c)
	h.broadcastLocked(room, newUserLeftEvent(c.name), nil)
	h.broadcastLocked(room, newUserListEvent(room.memberNames(), room.id, room.owner), nil)

	if room.memberCount() == 0 {
		h.reg.remove(roomID)
		metricActiveRooms.Set(float64(h.reg.roomCount()))
		log.Info().Str("room", roomID).Str("owner", room.owner).Msg("empty room deleted")
	}
}

// HandleChatMessage validates, records, and broadcasts a chat message
// to the sender's room. The sender receives the echo with everyone else.
func (h *Hub) HandleChatMessage(c *Client, text string) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if c.roomID == "" {
		h.sendEventLocked(c, newErrorEvent(notJoinedMessage))
		return ErrNotJoined
	}

	room, ok := h.reg.get(c.roomID)
	if !ok {
		h.sendEventLocked(c, newErrorEvent(roomMissingMessage))
		return ErrRoomMissing
	}

	name := c.name
	if name == "" {
		name = anonymousName
	}

	msg := MessageEvent{
		Type:     "message",
		Username: name,
		Text:     sanitizeText(text),
		Ts:       time.Now().UnixMilli(),
	}

	room.history.append(msg)
	metricMessagesRelayed.Inc()
	h.broadcastLocked(room, msg, nil)
	return nil
}

// Broadcast serializes an event once and fans it out to every member of
// the identified room, optionally excluding one connection. Unknown
// room ids are a no-op.
func (h *Hub) Broadcast(roomID string, event any, except *Client) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	room, ok := h.reg.get(roomID)
	if !ok {
		return
	}
	h.broadcastLocked(room, event, except)
}

// broadcastLocked fans a serialized event out to the room's members.
// Requires the hub mutex (read or write) to be held.
func (h *Hub) broadcastLocked(room *Room, event any, except *Client) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("room", room.id).Msg("failed to marshal broadcast event")
		return
	}

	for member := range room.members {
		if member == except {
			continue
		}
		h.sendLocked(member, payload)
	}
}

// sendEventLocked serializes an event for a single client.
func (h *Hub) sendEventLocked(c *Client, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("conn", c.id).Msg("failed to marshal event")
		return
	}
	h.sendLocked(c, payload)
}

// sendLocked delivers a payload to one client, best-effort: clients
// that are unregistered, closed, or have a full send buffer are
// silently skipped. Requires the hub mutex to be held.
func (h *Hub) sendLocked(c *Client, payload []byte) bool {
	if registered := h.clients[c]; !registered || c.closed {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// sweep is one heartbeat tick: connections that produced no pulse since
// the previous sweep are terminated, everyone else gets a fresh probe
// and a cleared liveness flag.
func (h *Hub) sweep() {
	h.mutex.RLock()
	snapshot := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		snapshot = append(snapshot, client)
	}
	h.mutex.RUnlock()

	for _, client := range snapshot {
		if !client.isAlive() {
			log.Warn().Str("addr", client.addr).Str("conn", client.id).Msg("heartbeat missed; terminating connection")
			metricHeartbeatEvictions.Inc()
			client.terminate()
			continue
		}
		client.clearAlive()
		client.requestPing()
	}
}

// shutdownClients drains every connected client. Unregistering closes
// the send channel, which stops the write pump; closing the network
// connection stops the read pump. Both must happen here because the
// run loop is gone and cannot process unregister handoffs anymore.
func (h *Hub) shutdownClients() {
	log.Info().Msg("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		h.removeClient(client)
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				log.Error().Err(err).Str("addr", client.addr).Msg("error closing client connection")
			}
		}
	}

	log.Info().Int("count", len(clients)).Msg("closed client connections")
}

// Shutdown initiates graceful shutdown of the hub and waits for all
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Info().Msg("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		log.Warn().Msg("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
