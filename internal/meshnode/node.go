package meshnode

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rmacdonaldsmith/meshpeer-go/internal/discovery"
	"github.com/rmacdonaldsmith/meshpeer-go/internal/globalctx"
	"github.com/rmacdonaldsmith/meshpeer-go/internal/peer"
	"github.com/rmacdonaldsmith/meshpeer-go/internal/peerconn"
	"github.com/rmacdonaldsmith/meshpeer-go/internal/tunnel"
	"github.com/rmacdonaldsmith/meshpeer-go/pkg/meshnode"
)

var (
	// ErrNodeClosed is returned by operations on a closed node
	ErrNodeClosed = errors.New("mesh node closed")
	// ErrUnknownPeer is returned when no peer exists for a node id
	ErrUnknownPeer = errors.New("unknown peer")
	// ErrSelfConnection is returned when a handshake reveals our own node id
	ErrSelfConnection = errors.New("connection to self")
)

// Node implements the meshnode.MeshNode interface over gRPC tunnels.
// It keeps one peer.Peer per remote node id; peers are created on the first
// connection to a node and live until the node is closed.
type Node struct {
	config    Config
	nodeID    uuid.UUID
	logger    *zap.Logger
	globalCtx *globalctx.GlobalCtx
	discovery discovery.Discovery
	tunnelOpt *tunnel.Options

	inbound chan []byte

	mu       sync.RWMutex
	peers    map[uuid.UUID]*peer.Peer
	listener *tunnel.GRPCListener
	started  bool
	closed   bool

	// ctx bounds the accept loop and inbound handshakes
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNode creates a node with the given configuration. Nothing is started
// until Start; Connect may be used without it.
func NewNode(config *Config) (*Node, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := *config
	c.SetDefaults()

	pcc := *c.PeerConnConfig
	if pcc.Logger == nil {
		pcc.Logger = c.Logger
	}
	c.PeerConnConfig = &pcc

	logger := c.Logger.With(zap.Stringer("node_id", c.NodeID))
	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		config: c,
		nodeID: c.NodeID,
		logger: logger,
		globalCtx: globalctx.NewWithConfig(&globalctx.Config{
			NetworkName: pcc.NetworkName,
			Logger:      logger,
		}),
		discovery: discovery.NewStaticDiscovery(c.SeedPeers),
		tunnelOpt: &tunnel.Options{Logger: logger},
		inbound:   make(chan []byte, c.InboundQueueSize),
		peers:     make(map[uuid.UUID]*peer.Peer),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start listens for inbound tunnels and dials every seed concurrently.
// It returns after all seed dials finished; their failures are only logged.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrNodeClosed
	}
	if n.started {
		n.mu.Unlock()
		return nil
	}

	lis, err := tunnel.Listen(n.config.ListenAddress, n.tunnelOpt)
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", n.config.ListenAddress, err)
	}
	n.listener = lis
	n.started = true

	n.wg.Add(1)
	go n.acceptLoop(lis)
	n.mu.Unlock()

	n.logger.Info("mesh node started", zap.String("listen_addr", lis.Addr().String()))

	seeds, err := n.discovery.FindPeers(ctx)
	if err != nil {
		n.logger.Warn("seed discovery failed", zap.Error(err))
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, addr := range seeds {
		g.Go(func() error {
			remoteID, err := n.Connect(gctx, addr)
			if err != nil {
				n.logger.Warn("failed to connect to seed", zap.String("addr", addr), zap.Error(err))
				return nil
			}
			n.logger.Info("connected to seed", zap.String("addr", addr), zap.Stringer("peer_node_id", remoteID))
			return nil
		})
	}
	return g.Wait()
}

func (n *Node) acceptLoop(lis *tunnel.GRPCListener) {
	defer n.wg.Done()

	for {
		t, err := lis.Accept(n.ctx)
		if err != nil {
			if !errors.Is(err, tunnel.ErrListenerClosed) && n.ctx.Err() == nil {
				n.logger.Error("accept failed", zap.Error(err))
			}
			return
		}

		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if _, err := n.handleInbound(t); err != nil {
				n.logger.Warn("inbound connection rejected",
					zap.String("remote_addr", t.Info().RemoteAddr), zap.Error(err))
			}
		}()
	}
}

func (n *Node) handleInbound(t tunnel.Tunnel) (uuid.UUID, error) {
	pc, err := peerconn.New(n.nodeID, t, n.config.PeerConnConfig)
	if err != nil {
		_ = t.Close()
		return uuid.Nil, err
	}
	if err := pc.DoHandshakeAsServer(n.ctx); err != nil {
		_ = pc.Close()
		return uuid.Nil, err
	}
	return n.adopt(pc)
}

// Connect dials addr and adds the handshaken connection to the remote node's peer
func (n *Node) Connect(ctx context.Context, addr string) (uuid.UUID, error) {
	if n.isClosed() {
		return uuid.Nil, ErrNodeClosed
	}

	t, err := tunnel.DialGRPC(ctx, addr, n.tunnelOpt)
	if err != nil {
		return uuid.Nil, err
	}

	pc, err := peerconn.New(n.nodeID, t, n.config.PeerConnConfig)
	if err != nil {
		_ = t.Close()
		return uuid.Nil, err
	}
	if err := pc.DoHandshakeAsClient(ctx); err != nil {
		_ = pc.Close()
		return uuid.Nil, fmt.Errorf("handshake with %s: %w", addr, err)
	}
	return n.adopt(pc)
}

// adopt hands a handshaken connection to the peer for its remote node
func (n *Node) adopt(pc *peerconn.PeerConn) (uuid.UUID, error) {
	remoteID := pc.PeerNodeID()
	if remoteID == n.nodeID {
		_ = pc.Close()
		return uuid.Nil, ErrSelfConnection
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		_ = pc.Close()
		return uuid.Nil, ErrNodeClosed
	}
	p, ok := n.peers[remoteID]
	if !ok {
		p = peer.NewWithConfig(remoteID, n.inbound, n.globalCtx, &peer.Config{Logger: n.logger})
		n.peers[remoteID] = p
		n.logger.Info("new peer", zap.Stringer("peer_node_id", remoteID))
	}
	n.mu.Unlock()

	// a peer closed in between releases the connection itself
	p.AddConnection(pc)
	return remoteID, nil
}

// SendTo sends payload to nodeID over any of its live connections
func (n *Node) SendTo(ctx context.Context, nodeID uuid.UUID, payload []byte) error {
	p, err := n.lookup(nodeID)
	if err != nil {
		return err
	}
	return p.Send(ctx, payload)
}

// CloseConnection requests removal of connID from the peer for nodeID
func (n *Node) CloseConnection(ctx context.Context, nodeID, connID uuid.UUID) error {
	p, err := n.lookup(nodeID)
	if err != nil {
		return err
	}
	return p.CloseConnection(ctx, connID)
}

func (n *Node) lookup(nodeID uuid.UUID) (*peer.Peer, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return nil, ErrNodeClosed
	}
	p, ok := n.peers[nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, nodeID)
	}
	return p, nil
}

// Peer returns the peer for nodeID, if one was ever connected
func (n *Node) Peer(nodeID uuid.UUID) (*peer.Peer, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	p, ok := n.peers[nodeID]
	return p, ok
}

// ListPeers returns every known remote node ordered by id
func (n *Node) ListPeers(ctx context.Context) []meshnode.PeerSummary {
	n.mu.RLock()
	peers := make([]*peer.Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].NodeID().String() < peers[j].NodeID().String()
	})

	summaries := make([]meshnode.PeerSummary, 0, len(peers))
	for _, p := range peers {
		summaries = append(summaries, meshnode.PeerSummary{
			NodeID:      p.NodeID(),
			Connections: p.ListConnections(ctx),
		})
	}
	return summaries
}

// Inbound delivers data payloads received from any peer. The channel is never
// closed; stop reading once the node is closed.
func (n *Node) Inbound() <-chan []byte {
	return n.inbound
}

// GlobalCtx returns the event sink shared by every peer of this node
func (n *Node) GlobalCtx() *globalctx.GlobalCtx {
	return n.globalCtx
}

func (n *Node) GetNodeID() uuid.UUID {
	return n.nodeID
}

// ListenAddr returns the bound listen address, or "" before Start
func (n *Node) ListenAddr() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.listener == nil {
		return ""
	}
	return n.listener.Addr().String()
}

// GetHealth returns the overall health status of this mesh node
func (n *Node) GetHealth(ctx context.Context) (meshnode.HealthStatus, error) {
	n.mu.RLock()
	closed := n.closed
	listening := n.started && !n.closed
	known := len(n.peers)
	peers := make([]*peer.Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()

	status := meshnode.HealthStatus{
		Healthy:       !closed,
		Listening:     listening,
		ListenAddress: n.ListenAddr(),
		KnownPeers:    known,
	}
	for _, p := range peers {
		count := p.ConnectionCount()
		status.Connections += count
		if count > 0 {
			status.ConnectedPeers++
		}
	}

	switch {
	case closed:
		status.Message = "Node is closed"
	case !listening:
		status.Message = "Node is not listening"
	default:
		status.Message = "All systems operational"
	}
	return status, nil
}

func (n *Node) isClosed() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.closed
}

// Close stops the listener, closes every peer and waits for their connections
// to be released. Safe to call multiple times.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	lis := n.listener
	peers := make([]*peer.Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.Unlock()

	n.cancel()

	var err error
	if lis != nil {
		if cerr := lis.Close(); cerr != nil {
			err = fmt.Errorf("failed to close listener: %w", cerr)
		}
	}
	n.wg.Wait()

	for _, p := range peers {
		_ = p.Close()
	}
	for _, p := range peers {
		<-p.Done()
	}

	n.logger.Info("mesh node closed")
	return err
}

// Verify that Node implements the MeshNode interface at compile time
var _ meshnode.MeshNode = (*Node)(nil)
