// Package liveness implements the Liveness Monitor component.
//
// The Liveness Monitor:
//   - Pings every registered peer on a fixed interval (default 30s)
//   - Reaps peers whose transport is closed or whose ping fails
//   - Recomputes the aggregate source flag after each sweep and announces
//     changes to controllers
package liveness
