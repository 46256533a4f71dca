// Package protocol defines the JSON text frames exchanged between the relay
// and its peers.
//
// Inbound frames are decoded into a closed set of message types (Auth,
// PhoneData, Command, Ping, Pong, Unknown). Outbound frames are produced by
// the Encode* helpers so every server-initiated message has one canonical
// shape.
package protocol
