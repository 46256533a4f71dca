// Package peer implements the Peer Registry.
//
// The Registry:
//   - Tracks one Peer per live connection, keyed by an opaque ID
//   - Records each peer's role (controller or source) and authentication state
//   - Owns the aggregate "source connected" flag derived from its contents
//   - Hands out snapshot copies so callers can iterate while peers come and go
package peer
