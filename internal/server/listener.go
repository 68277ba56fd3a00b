// Package server tracks live WebSocket connections, drives one receive loop
// per connection and coordinates graceful shutdown.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/registry"
)

// Dispatcher is the part of the router the listener drives.
type Dispatcher interface {
	Dispatch(s *registry.Session, frame []byte)
	Disconnect(s *registry.Session)
}

// Listener owns every accepted connection for its whole lifetime.
type Listener struct {
	router Dispatcher
	limits Limits
	log    zerolog.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
	closing bool
	wg      sync.WaitGroup
}

// NewListener creates a Listener that hands frames to router.
func NewListener(router Dispatcher, limits Limits, logger zerolog.Logger) *Listener {
	return &Listener{
		router:  router,
		limits:  limits,
		log:     logger.With().Str("module", "server").Logger(),
		clients: make(map[*Client]struct{}),
	}
}

// Serve runs conn until its transport closes. It blocks the calling
// goroutine with the receive loop, so frames of one connection are handled
// strictly in order, and runs the disconnect cleanup exactly once on exit.
func (l *Listener) Serve(conn *websocket.Conn, addr string) {
	client := NewClient(conn, addr, l.limits, l.log)
	if !l.track(client) {
		client.closeConnection()
		return
	}
	defer l.untrack(client)

	sess := registry.NewSession(client, addr)
	l.log.Info().Str("sid", sess.ID()).Str("addr", addr).Int("clients", l.Count()).Msg("client connected")

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		client.writePump()
	}()

	client.readPump(func(frame []byte) {
		l.router.Dispatch(sess, frame)
	})

	l.router.Disconnect(sess)
	client.Close()
	l.log.Info().Str("sid", sess.ID()).Str("addr", addr).Msg("client disconnected")
}

func (l *Listener) track(c *Client) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closing {
		return false
	}
	l.clients[c] = struct{}{}
	l.wg.Add(1)
	return true
}

func (l *Listener) untrack(c *Client) {
	l.mu.Lock()
	delete(l.clients, c)
	l.mu.Unlock()
	l.wg.Done()
}

// Count returns the number of live connections.
func (l *Listener) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.clients)
}

// Shutdown refuses new connections, closes every live one and waits for
// their loops to finish or for timeout to pass.
func (l *Listener) Shutdown(timeout time.Duration) error {
	l.mu.Lock()
	l.closing = true
	clients := make([]*Client, 0, len(l.clients))
	for c := range l.clients {
		clients = append(clients, c)
	}
	l.mu.Unlock()

	l.log.Info().Int("clients", len(clients)).Msg("closing client connections")
	for _, c := range clients {
		c.closeConnection()
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.log.Info().Msg("listener shutdown completed")
		return nil
	case <-time.After(timeout):
		l.log.Warn().Dur("timeout", timeout).Msg("listener shutdown timed out")
		return context.DeadlineExceeded
	}
}
