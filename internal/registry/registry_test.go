package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/protocol"
)

var errClosed = errors.New("closed")

// recorder is a Sender that keeps every frame it accepts.
type recorder struct {
	mu     sync.Mutex
	frames []protocol.Frame
	fail   bool
	panics bool
}

func (r *recorder) Send(frame []byte) error {
	if r.panics {
		panic("send on closed channel")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errClosed
	}
	var f protocol.Frame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *recorder) take() []protocol.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.frames
	r.frames = nil
	return out
}

func newSession(t *testing.T) (*Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	return NewSession(rec, "127.0.0.1:0"), rec
}

func newRegistry() *Registry {
	return New(zerolog.Nop())
}

// assertConsistent checks that every session's room matches the member sets
// and that no empty room survives.
func assertConsistent(t *testing.T, r *Registry, sessions ...*Session) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, rm := range r.rooms {
		assert.NotEmpty(t, rm.members, "room %q has no members", id)
		for s := range rm.members {
			assert.Equal(t, id, s.room, "member of %q has room %q", id, s.room)
		}
	}
	for _, s := range sessions {
		if s.room == "" {
			for id, rm := range r.rooms {
				_, in := rm.members[s]
				assert.False(t, in, "unjoined session found in %q", id)
			}
			continue
		}
		rm, ok := r.rooms[s.room]
		require.True(t, ok, "room %q missing", s.room)
		_, in := rm.members[s]
		assert.True(t, in, "session not in its room %q", s.room)
	}
}

func TestJoinAcknowledgesAndNotifiesOthers(t *testing.T) {
	reg := newRegistry()
	alice, aliceRec := newSession(t)
	bob, bobRec := newSession(t)

	reg.Join(alice, "lobby", "Alice")
	require.Equal(t, []protocol.Frame{protocol.Joined("lobby")}, aliceRec.take())

	reg.Join(bob, "lobby", "Bob")
	assert.Equal(t, []protocol.Frame{protocol.Info("Bob joined the room")}, aliceRec.take())
	assert.Equal(t, []protocol.Frame{protocol.Joined("lobby")}, bobRec.take())

	room, name, joined := reg.Membership(bob)
	assert.True(t, joined)
	assert.Equal(t, "lobby", room)
	assert.Equal(t, "Bob", name)
	assert.Len(t, reg.Members("lobby"), 2)
	assertConsistent(t, reg, alice, bob)
}

func TestJoinAppliesDefaults(t *testing.T) {
	reg := newRegistry()
	s, rec := newSession(t)

	reg.Join(s, "", "")

	room, name, joined := reg.Membership(s)
	require.True(t, joined)
	assert.Equal(t, protocol.DefaultRoom, room)
	assert.Equal(t, protocol.DefaultName, name)
	assert.Equal(t, []protocol.Frame{protocol.Joined(protocol.DefaultRoom)}, rec.take())
}

func TestJoinTruncatesName(t *testing.T) {
	reg := newRegistry()
	s, _ := newSession(t)

	reg.Join(s, "lobby", strings.Repeat("x", 50))

	_, name, _ := reg.Membership(s)
	assert.Equal(t, strings.Repeat("x", protocol.MaxNameLength), name)
}

func TestRoomIDsAreCaseSensitive(t *testing.T) {
	reg := newRegistry()
	a, _ := newSession(t)
	b, bRec := newSession(t)

	reg.Join(a, "Lobby", "A")
	reg.Join(b, "lobby", "B")
	bRec.take()

	reg.Broadcast("Lobby", protocol.Info("only upper"), nil)
	assert.Empty(t, bRec.take())
	assert.Equal(t, 2, reg.Len())
}

func TestRejoinLeavesOldRoomFirst(t *testing.T) {
	reg := newRegistry()
	alice, aliceRec := newSession(t)
	bob, bobRec := newSession(t)
	carol, carolRec := newSession(t)

	reg.Join(alice, "lobby", "Alice")
	reg.Join(bob, "lobby", "Bob")
	reg.Join(carol, "games", "Carol")
	aliceRec.take()
	bobRec.take()
	carolRec.take()

	reg.Join(bob, "games", "Robert")

	assert.Equal(t, []protocol.Frame{protocol.Info("Bob left")}, aliceRec.take())
	assert.Equal(t, []protocol.Frame{protocol.Joined("games")}, bobRec.take())
	assert.Equal(t, []protocol.Frame{protocol.Info("Robert joined the room")}, carolRec.take())

	assert.Len(t, reg.Members("lobby"), 1)
	assert.Len(t, reg.Members("games"), 2)
	assertConsistent(t, reg, alice, bob, carol)
}

func TestRejoinFromSoleMemberRemovesOldRoom(t *testing.T) {
	reg := newRegistry()
	s, _ := newSession(t)

	reg.Join(s, "first", "Solo")
	reg.Join(s, "second", "Solo")

	assert.Equal(t, []RoomInfo{{Name: "second", MemberCount: 1}}, reg.Rooms())
	assertConsistent(t, reg, s)
}

func TestLeaveLastMemberDeletesRoom(t *testing.T) {
	reg := newRegistry()
	s, rec := newSession(t)

	reg.Join(s, "lobby", "Alice")
	rec.take()
	reg.Leave(s, ReasonDisconnected)

	assert.Equal(t, 0, reg.Len())
	assert.Nil(t, reg.Members("lobby"))
	assert.Empty(t, rec.take(), "leaving member must not be notified")
	_, _, joined := reg.Membership(s)
	assert.False(t, joined)
}

func TestLeaveNotifiesRemainingMembers(t *testing.T) {
	reg := newRegistry()
	alice, aliceRec := newSession(t)
	bob, bobRec := newSession(t)

	reg.Join(alice, "lobby", "Alice")
	reg.Join(bob, "lobby", "Bob")
	aliceRec.take()
	bobRec.take()

	reg.Leave(bob, ReasonDisconnected)

	assert.Equal(t, []protocol.Frame{protocol.Info("Bob disconnected")}, aliceRec.take())
	assert.Empty(t, bobRec.take())
	assert.Equal(t, []*Session{alice}, reg.Members("lobby"))
}

func TestLeaveUnjoinedIsNoop(t *testing.T) {
	reg := newRegistry()
	other, otherRec := newSession(t)
	s, rec := newSession(t)
	reg.Join(other, "lobby", "Other")
	otherRec.take()

	reg.Leave(s, ReasonDisconnected)
	reg.Leave(s, ReasonDisconnected)

	assert.Empty(t, rec.take())
	assert.Empty(t, otherRec.take())
	assert.Equal(t, 1, reg.Len())
}

func TestBroadcastExcludesSenderAndOtherRooms(t *testing.T) {
	reg := newRegistry()
	a, aRec := newSession(t)
	b, bRec := newSession(t)
	c, cRec := newSession(t)
	reg.Join(a, "lobby", "A")
	reg.Join(b, "lobby", "B")
	reg.Join(c, "elsewhere", "C")
	aRec.take()
	bRec.take()
	cRec.take()

	msg := protocol.Chat("lobby", "B", "hi", 1)
	res := reg.Broadcast("lobby", msg, b)

	assert.Equal(t, PublishResult{SentTo: 1}, res)
	assert.Equal(t, []protocol.Frame{msg}, aRec.take())
	assert.Empty(t, bRec.take())
	assert.Empty(t, cRec.take())
}

func TestBroadcastMissingRoomIsNoop(t *testing.T) {
	reg := newRegistry()
	res := reg.Broadcast("nowhere", protocol.Info("hello"), nil)
	assert.Equal(t, PublishResult{}, res)
	assert.Equal(t, 0, reg.Len())
}

func TestBroadcastIsolatesFailingMembers(t *testing.T) {
	reg := newRegistry()
	good1, rec1 := newSession(t)
	broken, brokenRec := newSession(t)
	panicky, panickyRec := newSession(t)
	good2, rec2 := newSession(t)

	for i, s := range []*Session{good1, broken, panicky, good2} {
		reg.Join(s, "lobby", fmt.Sprintf("user%d", i))
	}
	rec1.take()
	rec2.take()
	brokenRec.fail = true
	panickyRec.panics = true

	res := reg.Broadcast("lobby", protocol.Info("still delivered"), nil)

	assert.Equal(t, PublishResult{SentTo: 2, Dropped: 2}, res)
	assert.Equal(t, []protocol.Frame{protocol.Info("still delivered")}, rec1.take())
	assert.Equal(t, []protocol.Frame{protocol.Info("still delivered")}, rec2.take())
}

func TestSendDirect(t *testing.T) {
	reg := newRegistry()
	s, rec := newSession(t)
	other, otherRec := newSession(t)
	reg.Join(other, "lobby", "Other")
	otherRec.take()

	assert.True(t, reg.SendDirect(s, protocol.Pong()))
	assert.Equal(t, []protocol.Frame{protocol.Pong()}, rec.take())
	assert.Empty(t, otherRec.take())

	rec.fail = true
	assert.False(t, reg.SendDirect(s, protocol.Pong()))
}

func TestRoomsSnapshotIsSorted(t *testing.T) {
	reg := newRegistry()
	for _, room := range []string{"zeta", "alpha", "alpha", "mid"} {
		s, _ := newSession(t)
		reg.Join(s, room, "x")
	}

	assert.Equal(t, []RoomInfo{
		{Name: "alpha", MemberCount: 2},
		{Name: "mid", MemberCount: 1},
		{Name: "zeta", MemberCount: 1},
	}, reg.Rooms())
}

func TestConcurrentJoinLeaveKeepsInvariants(t *testing.T) {
	reg := newRegistry()
	rooms := []string{"a", "b", "c"}

	const workers = 16
	sessions := make([]*Session, workers)
	for i := range sessions {
		sessions[i], _ = newSession(t)
	}

	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func(i int, s *Session) {
			defer wg.Done()
			for n := 0; n < 200; n++ {
				room := rooms[(i+n)%len(rooms)]
				switch n % 4 {
				case 0, 1:
					reg.Join(s, room, fmt.Sprintf("u%d", i))
				case 2:
					reg.Broadcast(room, protocol.Chat(room, "u", "x", int64(n)), s)
				case 3:
					reg.Leave(s, ReasonLeft)
				}
			}
		}(i, s)
	}
	wg.Wait()

	assertConsistent(t, reg, sessions...)

	for _, s := range sessions {
		reg.Leave(s, ReasonDisconnected)
	}
	assert.Equal(t, 0, reg.Len())
}
