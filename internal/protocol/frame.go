// Package protocol defines the JSON frames exchanged between chat clients and
// the relay, together with the decoding and coercion rules applied to
// client-supplied fields.
package protocol

// Frame types sent by clients.
const (
	TypeJoin    = "join"
	TypeMessage = "message"
	TypePing    = "ping"
)

// Frame types sent by the server. TypeMessage is shared by both directions.
const (
	TypeJoined = "joined"
	TypeInfo   = "info"
	TypeError  = "error"
	TypePong   = "pong"
)

// Error texts carried by error frames.
const (
	ErrTextInvalidJSON = "Invalid JSON"
	ErrTextNotJoined   = "Join a room first"
	ErrTextUnknownType = "Unknown message type"
)

// Frame is the outbound wire payload. Empty fields are omitted so every
// frame kind carries only the fields it defines.
type Frame struct {
	Type    string `json:"type"`
	Room    string `json:"room,omitempty"`
	Name    string `json:"name,omitempty"`
	Text    string `json:"text,omitempty"`
	Time    int64  `json:"time,omitempty"`
	Message string `json:"message,omitempty"`
}

// Joined acknowledges a join to the joining connection.
func Joined(room string) Frame {
	return Frame{Type: TypeJoined, Room: room}
}

// Info carries a room event such as a join, leave or disconnect.
func Info(message string) Frame {
	return Frame{Type: TypeInfo, Message: message}
}

// Error reports that the last client frame was rejected.
func Error(message string) Frame {
	return Frame{Type: TypeError, Message: message}
}

// Pong answers a ping.
func Pong() Frame {
	return Frame{Type: TypePong}
}

// Chat is a message relayed to the other members of a room. sentAt is in
// Unix milliseconds.
func Chat(room, name, text string, sentAt int64) Frame {
	return Frame{Type: TypeMessage, Room: room, Name: name, Text: text, Time: sentAt}
}
