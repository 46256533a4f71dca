// Package connection wraps a single WebSocket peer connection.
//
// A Conn:
//   - Serialises writes behind a mutex with a per-frame write deadline
//   - Reads frames on its own goroutine and delivers them, in order, as
//     Events on one channel (message, then exactly one close or error)
//   - Fails sends fast once the connection is closed or broken
//
// Server-side Conns come from an upgraded HTTP request; Dial produces the
// same type for clients.
package connection
