// Package server implements the HTTP and WebSocket surface of the relay.
//
// The implementation is organized into specialized files for configuration,
// origin policy, routing, handlers and server lifecycle. Session semantics
// live in the relay package; this package only creates sessions and owns
// the registry they share.
package server
