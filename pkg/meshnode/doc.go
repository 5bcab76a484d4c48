// Package meshnode provides interfaces for the node that hosts peers.
//
// This package defines the abstractions for the meshpeer node component:
//   - MeshNode: listens for and dials tunnels, handshakes them into
//     connections and keeps one peer per remote node
//   - PeerSummary: a remote node with its live connections
//   - HealthStatus: health monitoring and status reporting
//
// A node may hold several redundant connections to the same remote node.
// Sending to a node uses any one of them; when a connection fails it is
// removed from its peer and the remaining ones keep the node reachable.
//
// Example usage:
//
//	node, err := meshnode.NewNode(config)
//	if err != nil {
//		return err
//	}
//	defer node.Close()
//
//	if err := node.Start(ctx); err != nil {
//		return err
//	}
//
//	remoteID, err := node.Connect(ctx, "10.0.0.2:11010")
//	if err != nil {
//		return err
//	}
//	if err := node.SendTo(ctx, remoteID, []byte("hello")); err != nil {
//		return err
//	}
//
//	for payload := range node.Inbound() {
//		handle(payload)
//	}
package meshnode
