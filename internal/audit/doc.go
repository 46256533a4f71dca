// Package audit records peer lifecycle events.
//
// The Writer batches events into the peer_events table:
//   - connected, authenticated, auth_failed, disconnected, reaped
//   - Never records frame contents
//   - Drops events rather than block a connection when its buffer is full
package audit
