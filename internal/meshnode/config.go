package meshnode

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rmacdonaldsmith/meshpeer-go/internal/peerconn"
)

// DefaultInboundQueueSize is the capacity of the channel returned by Inbound
const DefaultInboundQueueSize = 1024

var (
	// ErrEmptyNodeID is returned when node ID is empty
	ErrEmptyNodeID = errors.New("node ID cannot be empty")
	// ErrInvalidListenAddress is returned when listen address is invalid
	ErrInvalidListenAddress = errors.New("listen address cannot be empty")
	// ErrMissingPeerConnConfig is returned when no connection settings are given
	ErrMissingPeerConnConfig = errors.New("peer conn config cannot be nil")
)

// Config represents configuration for a Node
type Config struct {
	// NodeID uniquely identifies this node in the mesh
	NodeID uuid.UUID

	// ListenAddress is the address inbound tunnels are accepted on
	// Format: "host:port" (e.g., "localhost:11010")
	ListenAddress string

	// SeedPeers are dialed once on Start
	SeedPeers []string

	// InboundQueueSize is the capacity of the shared inbound payload channel
	InboundQueueSize int

	// PeerConnConfig is passed to every connection: network identity,
	// keep-alive and message limits
	PeerConnConfig *peerconn.Config

	Logger *zap.Logger
}

// NewConfig creates a new Node configuration with safe defaults
func NewConfig(nodeID uuid.UUID, listenAddress string) *Config {
	return &Config{
		NodeID:           nodeID,
		ListenAddress:    listenAddress,
		InboundQueueSize: DefaultInboundQueueSize,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.NodeID == uuid.Nil {
		return ErrEmptyNodeID
	}
	if c.ListenAddress == "" {
		return ErrInvalidListenAddress
	}
	if c.PeerConnConfig == nil {
		return ErrMissingPeerConnConfig
	}
	if err := c.PeerConnConfig.Validate(); err != nil {
		return fmt.Errorf("invalid PeerConn config: %w", err)
	}
	return nil
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.InboundQueueSize <= 0 {
		c.InboundQueueSize = DefaultInboundQueueSize
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// WithSeedPeers sets the addresses dialed on Start
func (c *Config) WithSeedPeers(seeds ...string) *Config {
	c.SeedPeers = seeds
	return c
}

// WithInboundQueueSize sets the inbound channel capacity
func (c *Config) WithInboundQueueSize(size int) *Config {
	c.InboundQueueSize = size
	return c
}

// WithPeerConnConfig sets the connection configuration
func (c *Config) WithPeerConnConfig(config *peerconn.Config) *Config {
	c.PeerConnConfig = config
	return c
}

// WithLogger sets the logger used by the node and everything it creates
func (c *Config) WithLogger(logger *zap.Logger) *Config {
	c.Logger = logger
	return c
}
