package protocol

import "unicode/utf16"

// Field limits, counted in UTF-16 code units like a browser's string length.
const (
	MaxTextLength = 1000
	MaxNameLength = 32
	MaxRoomLength = 64
)

// Defaults applied when a client omits a field.
const (
	DefaultRoom = "default"
	DefaultName = "Anonymous"
)

// Truncate cuts s to at most n UTF-16 code units. A character outside the
// Basic Multilingual Plane takes two units and is dropped whole when only one
// unit is left.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	units := 0
	for i, r := range s {
		size := utf16.RuneLen(r)
		if units+size > n {
			return s[:i]
		}
		units += size
	}
	return s
}

// RoomID resolves a client-supplied room identifier.
func RoomID(room string) string {
	if room == "" {
		return DefaultRoom
	}
	return Truncate(room, MaxRoomLength)
}

// DisplayName resolves a client-supplied display name.
func DisplayName(name string) string {
	if name == "" {
		return DefaultName
	}
	return Truncate(name, MaxNameLength)
}

// MessageText bounds the text of a chat message.
func MessageText(text string) string {
	return Truncate(text, MaxTextLength)
}
