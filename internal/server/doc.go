// Package server implements the HTTP and WebSocket surface of the chat relay.
//
// The implementation is organized into specialized files for client pumps,
// the connection listener, origin policy, routing and HTTP handlers. Room
// membership itself lives in the registry package; this package only owns
// transport lifetimes.
package server
