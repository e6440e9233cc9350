// Package relay forwards text messages between paired websocket sessions.
//
// A Registry maps connection ids to live sessions. Each Session owns its
// transport, reads inbound frames in order, and routes every text frame to
// the single peer it was paired with at connect time. Cross-session
// delivery goes through the target session's outbox, so a slow peer never
// stalls the sender's read loop. Delivery is at-most-once and only to a
// peer that is registered at the moment of routing.
package relay
