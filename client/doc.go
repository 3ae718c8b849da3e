// Package client is a single threaded, non-blocking SAM v3 client.
//
// Nothing in this package blocks or starts goroutines. A Session owns one
// control socket to the bridge and, for STREAM sessions, any number of
// Connections with a socket each. The caller drives them from its own
// event loop:
//
//   for s.IsActive() {
//       readable, writable := transport.NewFDSet(), transport.NewFDSet()
//       s.CollectReadiness(readable, writable)
//       poller.Wait(readable, writable, timeout)
//       s.Dispatch(readable, writable)
//   }
//
// Run wraps that loop for the common case. Events are delivered through a
// SessionHandler or ConnectionHandler from within Dispatch, and handlers
// may call any method on the session or connection, including Close.
package client
