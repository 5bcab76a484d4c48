package globalctx

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/rmacdonaldsmith/meshpeer-go/pkg/globalctx"
)

// DefaultHistorySize is the number of events kept by History
const DefaultHistorySize = 256

// Config holds configuration for a GlobalCtx
type Config struct {
	NetworkName string
	HistorySize int
	Logger      *zap.Logger
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// GlobalCtx is the node-wide event sink. It logs every event, keeps a bounded
// history and fans events out to subscribers without ever blocking the issuer.
// It is safe for concurrent use.
type GlobalCtx struct {
	networkName string
	logger      *zap.Logger

	mu          sync.RWMutex
	history     []globalctx.Event
	historySize int
	subscribers map[int]chan globalctx.Event
	nextSubID   int

	dropped atomic.Uint64
}

// New creates a GlobalCtx for the named network
func New(networkName string, logger *zap.Logger) *GlobalCtx {
	return NewWithConfig(&Config{NetworkName: networkName, Logger: logger})
}

// NewWithConfig creates a GlobalCtx from cfg
func NewWithConfig(cfg *Config) *GlobalCtx {
	c := *cfg
	c.SetDefaults()

	return &GlobalCtx{
		networkName: c.NetworkName,
		logger:      c.Logger.With(zap.String("network", c.NetworkName)),
		history:     make([]globalctx.Event, 0, c.HistorySize),
		historySize: c.HistorySize,
		subscribers: make(map[int]chan globalctx.Event),
	}
}

// IssueEvent records and broadcasts event. Slow subscribers miss events
// instead of slowing the issuer down.
func (g *GlobalCtx) IssueEvent(event globalctx.Event) {
	g.logger.Info("global ctx event",
		zap.Stringer("type", event.Type),
		zap.Stringer("conn_id", event.Conn.ConnID),
		zap.Stringer("peer_node_id", event.Conn.PeerNodeID),
		zap.String("tunnel", event.Conn.Tunnel.Type))

	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.history) == g.historySize {
		copy(g.history, g.history[1:])
		g.history = g.history[:len(g.history)-1]
	}
	g.history = append(g.history, event)

	for _, ch := range g.subscribers {
		select {
		case ch <- event:
		default:
			g.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel receiving every event issued from now on, and a
// function that cancels the subscription and closes the channel.
func (g *GlobalCtx) Subscribe(buffer int) (<-chan globalctx.Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan globalctx.Event, buffer)

	g.mu.Lock()
	id := g.nextSubID
	g.nextSubID++
	g.subscribers[id] = ch
	g.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.subscribers, id)
			g.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// History returns the most recent events, oldest first
func (g *GlobalCtx) History() []globalctx.Event {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]globalctx.Event, len(g.history))
	copy(result, g.history)
	return result
}

// Dropped returns how many deliveries were skipped because a subscriber was full
func (g *GlobalCtx) Dropped() uint64 {
	return g.dropped.Load()
}

// NetworkName returns the name of the network this context belongs to
func (g *GlobalCtx) NetworkName() string {
	return g.networkName
}

// Logger returns the context's logger
func (g *GlobalCtx) Logger() *zap.Logger {
	return g.logger
}

// Verify that GlobalCtx implements the EventSink interface at compile time
var _ globalctx.EventSink = (*GlobalCtx)(nil)
