package meshnode

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/rmacdonaldsmith/meshpeer-go/pkg/peerconn"
)

// MeshNode hosts the local end of a mesh network. It accepts and dials
// tunnels, handshakes them into connections and groups the connections by
// remote node, one peer per node.
type MeshNode interface {
	io.Closer

	// Start begins listening for inbound tunnels and dials the seed nodes.
	// Seed failures are logged, not returned.
	Start(ctx context.Context) error

	// Connect dials addr, runs the client handshake and adds the resulting
	// connection to the peer for the remote node. It returns that node's id.
	// Calling it repeatedly for the same node creates redundant connections.
	Connect(ctx context.Context, addr string) (uuid.UUID, error)

	// SendTo sends payload to nodeID over any of its live connections
	SendTo(ctx context.Context, nodeID uuid.UUID, payload []byte) error

	// CloseConnection requests removal of one connection of nodeID
	CloseConnection(ctx context.Context, nodeID, connID uuid.UUID) error

	// ListPeers returns every known remote node and its connections
	ListPeers(ctx context.Context) []PeerSummary

	// Inbound delivers data payloads received from any peer
	Inbound() <-chan []byte

	// GetNodeID returns this node's unique identifier in the mesh
	GetNodeID() uuid.UUID

	// GetHealth returns the overall health status of this mesh node
	GetHealth(ctx context.Context) (HealthStatus, error)
}

// PeerSummary describes one remote node and its live connections
type PeerSummary struct {
	NodeID      uuid.UUID
	Connections []peerconn.ConnInfo
}

// HealthStatus represents the overall health of a mesh node
type HealthStatus struct {
	// Healthy indicates if the node is functioning properly
	Healthy bool

	// Listening is true while inbound tunnels are being accepted
	Listening bool

	// ListenAddress is the bound address, empty before Start
	ListenAddress string

	// KnownPeers is the number of remote nodes ever connected
	KnownPeers int

	// ConnectedPeers is the number of remote nodes with at least one connection
	ConnectedPeers int

	// Connections is the total number of live connections
	Connections int

	// Message provides additional health information
	Message string
}
