// Package relay is the HTTP surface of the relay.
//
// It upgrades WebSocket requests on any path, registers each connection as
// a peer and drains the connection's event stream into the Router, one
// goroutine per peer. It also serves the read-only health (GET /) and
// status (GET /status) endpoints.
package relay
