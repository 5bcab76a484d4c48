package peer

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rmacdonaldsmith/meshpeer-go/pkg/globalctx"
	"github.com/rmacdonaldsmith/meshpeer-go/pkg/peerconn"
)

// Peer is one remote node, reachable over any number of redundant connections.
//
// Connections are removed only by the close event listener goroutine started in
// New. Both unsolicited failures (reported through each connection's close
// notifier) and explicit CloseConnection calls are funnelled through the
// closeEvents channel, so every connection is removed and reported at most once.
// It is safe for concurrent use.
type Peer struct {
	nodeID    uuid.UUID
	conns     *connMap
	globalCtx globalctx.EventSink
	logger    *zap.Logger

	packetRecv chan<- []byte

	closeEvents  chan uuid.UUID
	listenerDone chan struct{}

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New creates a Peer with default settings. The close event listener starts immediately.
func New(nodeID uuid.UUID, packetRecv chan<- []byte, globalCtx globalctx.EventSink) *Peer {
	return NewWithConfig(nodeID, packetRecv, globalCtx, nil)
}

// NewWithConfig creates a Peer using cfg. A nil cfg means defaults.
func NewWithConfig(nodeID uuid.UUID, packetRecv chan<- []byte, globalCtx globalctx.EventSink, cfg *Config) *Peer {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.SetDefaults()

	p := &Peer{
		nodeID:       nodeID,
		conns:        &connMap{},
		globalCtx:    globalCtx,
		logger:       c.Logger.With(zap.Stringer("peer_node_id", nodeID)),
		packetRecv:   packetRecv,
		closeEvents:  make(chan uuid.UUID, c.CloseQueueSize),
		listenerDone: make(chan struct{}),
		shutdown:     make(chan struct{}),
	}

	go p.closeEventListener()

	return p
}

// NodeID returns the identifier of the remote node this peer represents
func (p *Peer) NodeID() uuid.UUID {
	return p.nodeID
}

// AddConnection takes ownership of a handshaken connection.
// The close notifier and background tasks are wired before the connection
// becomes visible to senders.
func (p *Peer) AddConnection(conn peerconn.Conn) {
	id := conn.ID()
	entry := newConnEntry(conn)

	conn.SetCloseNotifier(func(connID uuid.UUID) {
		entry.closeNotified.Store(true)
		p.handOffClose(connID)
	})
	conn.StartRecvLoop(p.packetRecv)
	conn.StartPingPong()

	info := conn.Info()
	p.globalCtx.IssueEvent(globalctx.NewPeerConnAdded(info))
	p.conns.insert(id, entry)

	p.logger.Info("peer conn added",
		zap.Stringer("conn_id", id),
		zap.String("tunnel", info.Tunnel.Type),
		zap.String("remote_addr", info.Tunnel.RemoteAddr))

	select {
	case <-p.shutdown:
		// the listener is gone and will not release this one
		if _, ok := p.conns.remove(id); ok {
			_ = conn.Close()
		}
		return
	default:
	}

	// The connection may have failed before it was inserted, in which case the
	// listener already dropped its id. Enqueue it again now that it is visible.
	if entry.closeNotified.Load() {
		p.enqueueClose(id)
	}
}

// Send transmits payload over an arbitrary live connection. There is exactly
// one attempt; a transport error from the connection is returned unmodified.
func (p *Peer) Send(ctx context.Context, payload []byte) error {
	entry, ok := p.conns.any()
	if !ok {
		return &NoConnectionError{NodeID: p.nodeID}
	}

	if err := entry.lock(ctx); err != nil {
		return err
	}
	defer entry.unlock()

	if entry.removed {
		return ErrConnectionGone
	}

	return entry.conn.Send(ctx, payload)
}

// CloseConnection requests asynchronous removal of a connection. It returns
// once the request is queued, not once the connection is gone.
func (p *Peer) CloseConnection(ctx context.Context, connID uuid.UUID) error {
	select {
	case <-p.shutdown:
		return ErrPeerClosed
	default:
	}

	if !p.conns.contains(connID) {
		return ErrConnectionNotFound
	}

	select {
	case p.closeEvents <- connID:
		return nil
	case <-p.shutdown:
		return ErrPeerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListConnections returns info for every connection present during the call.
// Connections removed between the snapshot and the read are omitted.
func (p *Peer) ListConnections(ctx context.Context) []peerconn.ConnInfo {
	// do not lock while collecting: an entry lock held across the registry
	// walk can deadlock against a concurrent removal
	entries := p.conns.snapshot()

	infos := make([]peerconn.ConnInfo, 0, len(entries))
	for _, entry := range entries {
		if err := entry.lock(ctx); err != nil {
			continue
		}
		if !entry.removed {
			infos = append(infos, entry.conn.Info())
		}
		entry.unlock()
	}
	return infos
}

// HasConnection reports whether connID is currently registered
func (p *Peer) HasConnection(connID uuid.UUID) bool {
	return p.conns.contains(connID)
}

// ConnectionCount returns the number of registered connections
func (p *Peer) ConnectionCount() int {
	return p.conns.len()
}

// Close fires the shutdown signal. It does not wait for the close event
// listener to exit; use Done for that. Safe to call multiple times.
//
// Removals already queued by CloseConnection or by failing connections are
// still carried out, with their PeerConnRemoved events. Connections left in the
// registry after that are closed without events, so once Done is closed every
// connection this peer owned has been closed.
func (p *Peer) Close() error {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
		p.logger.Info("peer closed")
	})
	return nil
}

// Done is closed once the close event listener has exited and released the
// connections still registered at shutdown.
func (p *Peer) Done() <-chan struct{} {
	return p.listenerDone
}

// enqueueClose hands connID to the listener. After shutdown it returns
// immediately so failing connections never pile up on a dead channel.
func (p *Peer) enqueueClose(connID uuid.UUID) {
	select {
	case p.closeEvents <- connID:
	case <-p.shutdown:
	}
}

// handOffClose queues connID without ever blocking the caller. Notifiers may
// run while their caller holds the entry lock the listener is waiting on, so a
// full queue is handed to a goroutine instead.
func (p *Peer) handOffClose(connID uuid.UUID) {
	select {
	case p.closeEvents <- connID:
	case <-p.shutdown:
	default:
		go p.enqueueClose(connID)
	}
}

// closeEventListener is the only remover of registry entries.
func (p *Peer) closeEventListener() {
	defer close(p.listenerDone)

	for {
		select {
		case connID := <-p.closeEvents:
			p.logger.Warn("notified that peer conn is closed", zap.Stringer("conn_id", connID))
			p.removeConn(connID)

		case <-p.shutdown:
			p.logger.Warn("peer close event listener notified")
			p.drainCloseEvents()
			p.releaseAll()
			p.logger.Info("peer close event listener exit")
			return
		}
	}
}

func (p *Peer) removeConn(connID uuid.UUID) {
	entry, ok := p.conns.remove(connID)
	if !ok {
		p.logger.Debug("peer conn already removed", zap.Stringer("conn_id", connID))
		return
	}

	// Close before taking the entry lock so an in-flight Send is released.
	if err := entry.conn.Close(); err != nil {
		p.logger.Debug("closing removed peer conn", zap.Stringer("conn_id", connID), zap.Error(err))
	}

	entry.lockBlocking()
	entry.removed = true
	info := entry.conn.Info()
	entry.unlock()

	p.globalCtx.IssueEvent(globalctx.NewPeerConnRemoved(info))
}

// drainCloseEvents removes every id queued before shutdown. Producers stop
// queueing once shutdown is closed, so the queue only shrinks here.
func (p *Peer) drainCloseEvents() {
	for {
		select {
		case connID := <-p.closeEvents:
			p.logger.Warn("notified that peer conn is closed", zap.Stringer("conn_id", connID))
			p.removeConn(connID)
		default:
			return
		}
	}
}

// releaseAll drops every remaining connection once the peer is shut down.
// No removal events are issued for these.
func (p *Peer) releaseAll() {
	for _, entry := range p.conns.snapshot() {
		id := entry.conn.ID()
		if _, ok := p.conns.remove(id); !ok {
			continue
		}
		if err := entry.conn.Close(); err != nil {
			p.logger.Debug("releasing peer conn", zap.Stringer("conn_id", id), zap.Error(err))
		}
	}
}
