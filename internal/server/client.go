// Package server manages individual WebSocket clients, handling read/write
// pumps, keepalive and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/config"
)

// Limits bounds a single client connection.
type Limits struct {
	MaxMessageSize int64
	SendBuffer     int
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
}

// LimitsFromConfig extracts the per-connection limits from cfg.
func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		MaxMessageSize: cfg.MaxMessageSize,
		SendBuffer:     cfg.SendBuffer,
		PingPeriod:     cfg.PingPeriod,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
	}
}

// Client is the transport side of one WebSocket connection. It implements
// registry.Sender: frames are queued without blocking and written by the
// write pump, one frame per WebSocket text message.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	addr   string
	limits Limits
	log    zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewClient wraps conn. The read limit is applied immediately.
func NewClient(conn *websocket.Conn, addr string, limits Limits, logger zerolog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(limits.MaxMessageSize)
	}
	buf := limits.SendBuffer
	if buf <= 0 {
		buf = 1
	}

	return &Client{
		conn:   conn,
		send:   make(chan []byte, buf),
		addr:   addr,
		limits: limits,
		log:    logger.With().Str("addr", addr).Logger(),
	}
}

// Send queues one frame for delivery.
func (c *Client) Send(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops accepting frames. The write pump flushes what is queued, sends
// a close message and shuts the connection. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Addr returns the remote address of the client.
func (c *Client) Addr() string { return c.addr }

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.limits.PongWait)); err != nil {
		c.log.Warn().Err(err).Msg("set initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.limits.PongWait))
	})
}

// handleReadError logs the reason a read loop ended.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Info().Int64("limit", c.limits.MaxMessageSize).Msg("frame exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Debug().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug().Err(err).Msg("connection closed")
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn().Err(err).Msg("unexpected websocket close")
	default:
		c.log.Debug().Err(err).Msg("websocket read error")
	}
}

// readPump hands every data frame to handle, in arrival order, until the
// transport fails or closes.
func (c *Client) readPump(handle func(frame []byte)) {
	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		handle(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.limits.PingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case frame, ok := <-c.send:
		if !ok {
			return c.writeCloseMessage()
		}
		return c.writeFrame(frame)
	case <-ticker.C:
		return c.writePing()
	}
}

// closeConnection closes the WebSocket connection, logging only unexpected errors.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Debug().Err(err).Msg("close connection")
	}
}

func (c *Client) writeFrame(frame []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.limits.WriteWait)); err != nil {
		c.log.Debug().Err(err).Msg("set write deadline")
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Debug().Err(err).Msg("write frame")
		}
		return false
	}
	return true
}

func (c *Client) writeCloseMessage() bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.limits.WriteWait))
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		c.log.Debug().Err(err).Msg("write close message")
	}
	return false
}

// writePing sends a ping control frame to keep the connection alive.
func (c *Client) writePing() bool {
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.limits.WriteWait)); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Debug().Err(err).Msg("write ping")
		}
		return false
	}
	return true
}
