package discovery

import (
	"context"
)

// Discovery defines the interface for finding the addresses of other nodes
type Discovery interface {
	// FindPeers returns dialable addresses of nodes in the network
	FindPeers(ctx context.Context) ([]string, error)
}
