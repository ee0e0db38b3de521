// Package relay manages individual WebSocket clients, handling read/write
// pumps, rate limiting, liveness tracking, and lifecycle control for each
// connection.
package relay

import (
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

// Client wraps a single WebSocket connection. It tracks the opaque
// connection identifier, the display name assigned on join, current
// room membership, and the liveness flag driven by the heartbeat sweep.
//
// name and roomID are guarded by the hub mutex; alive is atomic because
// the pong handler and the sweep touch it from different goroutines.
type Client struct {
	id   string
	conn *websocket.Conn
	hub  *Hub
	addr string

	send    chan []byte
	pingReq chan struct{}
	closed  bool

	name   string
	roomID string
	alive  atomic.Bool

	maxMessageSize int64
	heartbeat      time.Duration
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient creates a new Client instance with the provided WebSocket
// connection, hub reference, and remote address. The send channel is
// buffered to absorb bursts of room traffic.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	limiter := newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval)

	c := &Client{
		id:             uuid.NewString(),
		conn:           conn,
		hub:            hub,
		addr:           addr,
		send:           make(chan []byte, 256),
		pingReq:        make(chan struct{}, 1),
		maxMessageSize: cfg.MaxMessageSize,
		heartbeat:      cfg.HeartbeatInterval,
		rateLimiter:    limiter,
		rateLimit:      cfg.RateLimit,
	}
	c.markAlive()
	return c
}

func (c *Client) markAlive() {
	c.alive.Store(true)
}

func (c *Client) clearAlive() {
	c.alive.Store(false)
}

func (c *Client) isAlive() bool {
	return c.alive.Load()
}

// requestPing asks the write pump to dispatch a liveness probe. The
// request is dropped if a probe is already pending.
func (c *Client) requestPing() {
	select {
	case c.pingReq <- struct{}{}:
	default:
	}
}

// terminate forcibly tears down the connection. Closing the network
// connection unblocks the read pump, which performs the Leave cleanup.
// Clients without a live connection are removed from the hub directly.
func (c *Client) terminate() {
	if c.conn != nil {
		_ = c.conn.Close()
		return
	}
	c.hub.removeClient(c)
}

// readDeadline is twice the heartbeat interval so a connection survives
// exactly one missed probe cycle at the transport level.
func (c *Client) readDeadline() time.Duration {
	return 2 * c.heartbeat
}

// setupReadConnection configures read deadlines and the pong handler.
// Each pong is the counter-probe to a heartbeat ping and marks the
// connection alive for the next sweep.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readDeadline())); err != nil {
		log.Error().Err(err).Str("addr", c.addr).Msg("failed to set initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		c.markAlive()
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readDeadline())); err != nil {
			log.Error().Err(err).Str("addr", c.addr).Msg("failed to set read deadline in pong handler")
		}
		return nil
	})
}

// logReadError records why the read loop is ending, at a severity
// matching how unexpected the error is.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Warn().Str("addr", c.addr).Int64("limit", c.maxMessageSize).Msg("inbound frame exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Debug().Err(err).Str("addr", c.addr).Msg("client disconnected")
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		log.Debug().Err(err).Str("addr", c.addr).Msg("client connection closed")
	default:
		log.Warn().Err(err).Str("addr", c.addr).Msg("websocket read error")
	}
}

// checkRateLimit reports whether the next inbound frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		log.Warn().
			Str("addr", c.addr).
			Int("burst", c.rateLimit.Burst).
			Dur("interval", c.rateLimit.RefillInterval).
			Msg("rate limit exceeded; discarding frame")
		return false
	}
	return true
}

// processFrame parses an inbound frame and routes it to the hub.
// Malformed frames and unknown types are silently dropped.
func (c *Client) processFrame(raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.Debug().Err(err).Str("addr", c.addr).Msg("dropping malformed frame")
		return
	}

	switch frame.Type {
	case "join":
		c.hub.HandleJoin(c, frame.Username, frame.TargetOwner)
	case "message":
		if err := c.hub.HandleChatMessage(c, frame.Text); err != nil {
			log.Debug().Err(err).Str("addr", c.addr).Msg("chat message rejected")
		}
	default:
		log.Debug().Str("addr", c.addr).Str("type", frame.Type).Msg("ignoring unknown frame type")
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				log.Error().Err(err).Str("addr", c.addr).Msg("error closing connection in read pump")
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			break
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processFrame(raw)
	}
}

func (c *Client) writePump() {
	defer c.closeConnection()

	for c.processWriteEvent() {
	}
}

// processWriteEvent waits for the next write event and returns false
// when the pump should stop processing.
func (c *Client) processWriteEvent() bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-c.pingReq:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.Error().Err(err).Str("addr", c.addr).Msg("error closing connection in write pump")
		}
	}
}

// handleMessage writes outgoing payloads and returns false if the
// connection should be closed.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Error().Err(err).Str("addr", c.addr).Msg("failed to set write deadline")
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close frame after the hub closed the send channel.
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			log.Error().Err(err).Str("addr", c.addr).Msg("error writing close message")
		}
	}
	return false
}

// writeTextMessage writes a payload plus any queued payloads in a
// single websocket frame batch.
func (c *Client) writeTextMessage(message []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		log.Debug().Err(err).Str("addr", c.addr).Msg("error creating writer")
		return false
	}

	if _, err := w.Write(message); err != nil {
		log.Debug().Err(err).Str("addr", c.addr).Msg("error writing message")
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			log.Debug().Err(err).Str("addr", c.addr).Msg("error writing frame separator")
			return false
		}
		if _, err := w.Write(<-c.send); err != nil {
			log.Debug().Err(err).Str("addr", c.addr).Msg("error writing queued message")
			return false
		}
	}

	if err := w.Close(); err != nil {
		log.Debug().Err(err).Str("addr", c.addr).Msg("error closing writer")
		return false
	}
	return true
}

// handlePing dispatches a heartbeat probe. A failed probe dispatch is
// fatal to the connection, the same as a missed pulse.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Error().Err(err).Str("addr", c.addr).Msg("failed to set write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			log.Warn().Err(err).Str("addr", c.addr).Msg("failed to dispatch heartbeat probe")
		}
		return false
	}
	return true
}
