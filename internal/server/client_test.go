package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimits() Limits {
	return Limits{
		MaxMessageSize: 512,
		SendBuffer:     2,
		PingPeriod:     time.Second,
		PongWait:       2 * time.Second,
		WriteWait:      time.Second,
	}
}

func TestClientSendQueuesUntilFull(t *testing.T) {
	c := NewClient(nil, "127.0.0.1:1", testLimits(), zerolog.Nop())

	require.NoError(t, c.Send([]byte("one")))
	require.NoError(t, c.Send([]byte("two")))
	assert.ErrorIs(t, c.Send([]byte("three")), ErrSendBufferFull)

	assert.Equal(t, []byte("one"), <-c.send)
	assert.NoError(t, c.Send([]byte("four")))
}

func TestClientCloseIsIdempotent(t *testing.T) {
	c := NewClient(nil, "127.0.0.1:1", testLimits(), zerolog.Nop())
	require.NoError(t, c.Send([]byte("queued")))

	c.Close()
	c.Close()

	assert.ErrorIs(t, c.Send([]byte("late")), ErrClientClosed)

	// Queued frames stay readable for the write pump, then the channel ends.
	frame, ok := <-c.send
	assert.True(t, ok)
	assert.Equal(t, []byte("queued"), frame)
	_, ok = <-c.send
	assert.False(t, ok)
}

func TestClientZeroBufferStillQueuesOne(t *testing.T) {
	limits := testLimits()
	limits.SendBuffer = 0
	c := NewClient(nil, "127.0.0.1:1", limits, zerolog.Nop())

	assert.NoError(t, c.Send([]byte("x")))
	assert.ErrorIs(t, c.Send([]byte("y")), ErrSendBufferFull)
}

func TestIsExpectedCloseError(t *testing.T) {
	assert.True(t, isExpectedCloseError(nil))
	assert.True(t, isExpectedCloseError(errors.New("write tcp: broken pipe")))
	assert.True(t, isExpectedCloseError(errors.New("websocket: close sent")))
	assert.False(t, isExpectedCloseError(errors.New("permission denied")))
}

func TestOriginPolicy(t *testing.T) {
	policy := NewOriginPolicy([]string{" http://Localhost:3000 ", "not a url", "", "https://chat.example"}, zerolog.Nop())

	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:3000", true},
		{"HTTP://LOCALHOST:3000", true},
		{"https://chat.example", true},
		{"http://chat.example", false},
		{"http://localhost:3001", false},
		{"", false},
		{"::bad::", false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", http.NoBody)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, policy.Check(req), "origin %q", tt.origin)
	}
}

func TestOriginPolicyWildcard(t *testing.T) {
	policy := NewOriginPolicy([]string{"*"}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/ws", http.NoBody)
	assert.True(t, policy.Allowed(req), "requests without Origin pass the wildcard")

	req.Header.Set("Origin", "http://anything.example")
	assert.True(t, policy.Allowed(req))
}
