package peer

import "go.uber.org/zap"

// DefaultCloseQueueSize is the capacity of the closure channel
const DefaultCloseQueueSize = 10

// Config holds optional settings for a Peer
type Config struct {
	// CloseQueueSize bounds the number of pending removal requests
	CloseQueueSize int

	Logger *zap.Logger
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.CloseQueueSize <= 0 {
		c.CloseQueueSize = DefaultCloseQueueSize
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}
