package peerconn

import (
	"context"

	"github.com/google/uuid"
)

// HealthState represents the liveness of a connection
type HealthState int

const (
	Healthy HealthState = iota
	Unhealthy
	Disconnected
)

func (s HealthState) String() string {
	switch s {
	case Healthy:
		return "Healthy"
	case Unhealthy:
		return "Unhealthy"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// TunnelInfo describes the transport a connection runs over
type TunnelInfo struct {
	Type       string
	LocalAddr  string
	RemoteAddr string
}

// ConnStats holds traffic counters for one connection
type ConnStats struct {
	RxPackets uint64
	TxPackets uint64
	RxBytes   uint64
	TxBytes   uint64

	// LatencyUs is the last measured ping round trip in microseconds (0 if unknown)
	LatencyUs uint64
}

// ConnInfo is a point-in-time description of a connection
type ConnInfo struct {
	ConnID      uuid.UUID
	MyNodeID    uuid.UUID
	PeerNodeID  uuid.UUID
	NetworkName string
	Tunnel      TunnelInfo
	Stats       ConnStats
	Health      HealthState
}

// Conn is one handshaken channel to a remote node.
//
// Send and Info require exclusive access; the owning Peer guarantees that by
// locking the registry entry around each call.
type Conn interface {
	// ID returns the unique, stable identifier of this connection
	ID() uuid.UUID

	// Info returns a diagnostic snapshot of the connection
	Info() ConnInfo

	// Send transmits one payload to the remote node
	Send(ctx context.Context, payload []byte) error

	// SetCloseNotifier registers the function invoked once when the
	// connection detects it is no longer usable.
	SetCloseNotifier(fn func(connID uuid.UUID))

	// StartRecvLoop starts forwarding received payloads to sink
	StartRecvLoop(sink chan<- []byte)

	// StartPingPong starts the keep-alive mechanism
	StartPingPong()

	// Close releases the connection. Safe to call multiple times and
	// concurrently with Send, which it must unblock.
	Close() error
}
