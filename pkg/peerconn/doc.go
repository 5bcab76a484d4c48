// Package peerconn defines the boundary between a Peer and the physical
// connections that reach it.
//
// This package defines the core abstractions for a single peer connection:
//   - Conn: one handshaken, bidirectional channel to a remote node
//   - ConnInfo: the diagnostic snapshot a connection reports about itself
//   - HealthState: coarse liveness of a connection as seen by its keep-alive
//
// A Conn is owned by exactly one Peer once it has been added. The Peer wires
// the close notifier, starts the receive loop and the keep-alive, and from then
// on is the only component allowed to remove it. Implementations must:
//   - fire the close notifier at most once, from their own goroutines
//   - keep Close idempotent and never wait on their own receive loop
//   - serialize Send internally against their keep-alive traffic
//
// Example usage:
//
//	conn := newHandshakenConn()
//	conn.SetCloseNotifier(func(id uuid.UUID) { closed <- id })
//	conn.StartRecvLoop(inbound)
//	conn.StartPingPong()
//
//	if err := conn.Send(ctx, []byte("hello")); err != nil {
//		return err
//	}
package peerconn
