package registry

import (
	"github.com/google/uuid"

	"github.com/Tyrowin/roomchat/internal/protocol"
)

// Sender is the outbound side of a transport connection. Send must not block;
// it either queues the frame or reports why it could not.
type Sender interface {
	Send(frame []byte) error
}

// Session is the per-connection state the registry tracks. The transport
// layer owns its lifetime; the registry only references it from member sets.
type Session struct {
	id     string
	addr   string
	sender Sender

	// Guarded by the owning Registry's mutex.
	room string
	name string
}

// NewSession creates an unjoined session for a freshly accepted connection.
func NewSession(sender Sender, addr string) *Session {
	return &Session{
		id:     uuid.NewString(),
		addr:   addr,
		sender: sender,
		name:   protocol.DefaultName,
	}
}

// ID returns the session's random identifier, used for logging.
func (s *Session) ID() string { return s.id }

// Addr returns the remote address the session connected from.
func (s *Session) Addr() string { return s.addr }
