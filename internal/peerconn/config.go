package peerconn

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrEmptyNetworkName is returned when the network name is empty
	ErrEmptyNetworkName = errors.New("network name cannot be empty")
	// ErrEmptyNetworkSecret is returned when the network secret is empty
	ErrEmptyNetworkSecret = errors.New("network secret cannot be empty")
)

// Config holds configuration for peer connections
type Config struct {
	// NetworkName must match on both ends of a connection
	NetworkName string

	// NetworkSecret signs and verifies handshake tokens
	NetworkSecret string

	HeartbeatInterval time.Duration
	// HeartbeatTimeout is how long a connection may stay silent before it is closed
	HeartbeatTimeout time.Duration
	HandshakeTimeout time.Duration
	MaxMessageSize   int

	Logger *zap.Logger
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.NetworkName == "" {
		return ErrEmptyNetworkName
	}
	if c.NetworkSecret == "" {
		return ErrEmptyNetworkSecret
	}
	return nil
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 3 * c.HeartbeatInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 1024 * 1024 // 1MB
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}
