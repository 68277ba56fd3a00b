// Package registry tracks which sessions belong to which chat room and fans
// frames out to room members. Every membership change and every recipient
// lookup happens under the registry's own lock, so callers never coordinate.
package registry

import (
	"cmp"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/Tyrowin/roomchat/internal/protocol"
)

// LeaveReason is appended to the member's name in the notice sent to the
// room they leave.
type LeaveReason string

const (
	ReasonLeft         LeaveReason = "left"
	ReasonDisconnected LeaveReason = "disconnected"
)

// RoomInfo is a read-only view of one room.
type RoomInfo struct {
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
}

// PublishResult reports how a fan-out went. Dropped counts recipients whose
// transport refused the frame.
type PublishResult struct {
	SentTo  int
	Dropped int
}

type room struct {
	id      string
	members map[*Session]struct{}
}

// Registry is the authoritative room membership store. A room exists only
// while it has at least one member, and a session's room field always names
// the room whose member set contains it.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room
	log   zerolog.Logger
}

// New creates an empty registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		rooms: make(map[string]*room),
		log:   logger.With().Str("module", "registry").Logger(),
	}
}

// Join moves s into roomID under the given display name. A session already
// in a room leaves it first, and the old room hears "<name> left". The
// joining session gets a joined acknowledgement and every other member of the
// new room gets "<name> joined the room".
func (r *Registry) Join(s *Session, roomID, name string) {
	roomID = protocol.RoomID(roomID)
	name = protocol.DisplayName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(s, ReasonLeft)

	s.room = roomID
	s.name = name

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{id: roomID, members: make(map[*Session]struct{})}
		r.rooms[roomID] = rm
		r.log.Debug().Str("room", roomID).Msg("room created")
	}
	rm.members[s] = struct{}{}

	r.log.Info().
		Str("sid", s.id).
		Str("room", roomID).
		Str("name", name).
		Int("members", len(rm.members)).
		Msg("session joined")

	r.sendLocked(s, protocol.Joined(roomID))
	r.broadcastLocked(roomID, protocol.Info(name+" joined the room"), s)
}

// Leave removes s from its room and tells the remaining members why. It is a
// no-op for a session that is not in a room.
func (r *Registry) Leave(s *Session, reason LeaveReason) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(s, reason)
}

func (r *Registry) leaveLocked(s *Session, reason LeaveReason) {
	roomID := s.room
	if roomID == "" {
		return
	}
	s.room = ""

	rm, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(rm.members, s)

	r.log.Info().
		Str("sid", s.id).
		Str("room", roomID).
		Str("reason", string(reason)).
		Int("members", len(rm.members)).
		Msg("session left")

	if len(rm.members) == 0 {
		delete(r.rooms, roomID)
		r.log.Debug().Str("room", roomID).Msg("room removed")
		return
	}

	r.broadcastLocked(roomID, protocol.Info(s.name+" "+string(reason)), nil)
}

// Broadcast sends f to every member of roomID except the given session,
// which may be nil. A missing room is a no-op. Delivery is best effort: a
// member whose transport refuses the frame is skipped.
func (r *Registry) Broadcast(roomID string, f protocol.Frame, except *Session) PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.broadcastLocked(roomID, f, except)
}

func (r *Registry) broadcastLocked(roomID string, f protocol.Frame, except *Session) PublishResult {
	var res PublishResult

	rm, ok := r.rooms[roomID]
	if !ok {
		return res
	}

	payload, err := protocol.Encode(f)
	if err != nil {
		r.log.Error().Err(err).Str("room", roomID).Msg("broadcast dropped")
		return res
	}

	for member := range rm.members {
		if member == except {
			continue
		}
		if r.deliver(member, payload) {
			res.SentTo++
		} else {
			res.Dropped++
		}
	}

	r.log.Debug().
		Str("room", roomID).
		Str("type", f.Type).
		Int("sent_to", res.SentTo).
		Int("dropped", res.Dropped).
		Msg("broadcast result")
	return res
}

// SendDirect delivers f to s alone, with the same best-effort contract as
// Broadcast. It reports whether the transport accepted the frame.
func (r *Registry) SendDirect(s *Session, f protocol.Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sendLocked(s, f)
}

func (r *Registry) sendLocked(s *Session, f protocol.Frame) bool {
	payload, err := protocol.Encode(f)
	if err != nil {
		r.log.Error().Err(err).Str("sid", s.id).Msg("direct send dropped")
		return false
	}
	return r.deliver(s, payload)
}

func (r *Registry) deliver(s *Session, payload []byte) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Str("sid", s.id).Msg("recovered from panic during send")
			ok = false
		}
	}()

	if s.sender == nil {
		return false
	}
	if err := s.sender.Send(payload); err != nil {
		r.log.Debug().Err(err).Str("sid", s.id).Str("addr", s.addr).Msg("send failed")
		return false
	}
	return true
}

// Membership reports the room and display name of s. joined is false while
// the session has not joined any room.
func (r *Registry) Membership(s *Session) (roomID, name string, joined bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return s.room, s.name, s.room != ""
}

// Members returns a snapshot of the sessions in roomID.
func (r *Registry) Members(roomID string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return lo.Keys(rm.members)
}

// Rooms lists the live rooms ordered by name.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := lo.MapToSlice(r.rooms, func(id string, rm *room) RoomInfo {
		return RoomInfo{Name: id, MemberCount: len(rm.members)}
	})
	slices.SortFunc(out, func(a, b RoomInfo) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.rooms)
}
