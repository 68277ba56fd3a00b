// Package router turns inbound client frames into registry operations.
package router

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/protocol"
	"github.com/Tyrowin/roomchat/internal/registry"
)

// Router dispatches frames for any number of sessions. It holds no
// per-session state of its own; the registry is the only shared store.
type Router struct {
	reg *registry.Registry
	log zerolog.Logger
	now func() time.Time
}

// Option customizes a Router.
type Option func(*Router)

// WithClock overrides the clock used to stamp chat messages.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

// New creates a Router backed by reg.
func New(reg *registry.Registry, logger zerolog.Logger, opts ...Option) *Router {
	r := &Router{
		reg: reg,
		log: logger.With().Str("module", "router").Logger(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dispatch handles one raw frame received on s. Frames for a session must be
// dispatched in arrival order from a single goroutine.
func (r *Router) Dispatch(s *registry.Session, raw []byte) {
	in, err := protocol.Decode(raw)
	if err != nil {
		r.log.Debug().Err(err).Str("sid", s.ID()).Int("bytes", len(raw)).Msg("invalid frame")
		r.reply(s, protocol.Error(protocol.ErrTextInvalidJSON))
		return
	}

	switch in.Type {
	case protocol.TypeJoin:
		r.reg.Join(s, in.Room, in.Name)
	case protocol.TypeMessage:
		r.handleMessage(s, in.Text)
	case protocol.TypePing:
		r.reply(s, protocol.Pong())
	default:
		r.log.Debug().Str("sid", s.ID()).Str("type", in.Type).Msg("unknown frame type")
		r.reply(s, protocol.Error(protocol.ErrTextUnknownType))
	}
}

func (r *Router) handleMessage(s *registry.Session, text string) {
	roomID, name, joined := r.reg.Membership(s)
	if !joined {
		r.reply(s, protocol.Error(protocol.ErrTextNotJoined))
		return
	}

	frame := protocol.Chat(roomID, name, protocol.MessageText(text), r.now().UnixMilli())
	res := r.reg.Broadcast(roomID, frame, s)
	if res.Dropped > 0 {
		r.log.Debug().Str("sid", s.ID()).Str("room", roomID).Int("dropped", res.Dropped).Msg("message partially delivered")
	}
}

// Disconnect runs the cleanup for a closed transport. The remaining members
// of the session's room hear "<name> disconnected".
func (r *Router) Disconnect(s *registry.Session) {
	r.reg.Leave(s, registry.ReasonDisconnected)
}

func (r *Router) reply(s *registry.Session, f protocol.Frame) {
	if !r.reg.SendDirect(s, f) {
		r.log.Debug().Str("sid", s.ID()).Str("type", f.Type).Msg("reply dropped")
	}
}
