package meshnode

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/rmacdonaldsmith/meshpeer-go/internal/peerconn"
)

// fileConfig is the YAML layout of a node configuration file:
//
//	node_id: 6f1c...           # optional, random when empty
//	listen_address: ":11010"
//	seed_peers: ["10.0.0.2:11010"]
//	inbound_queue_size: 1024
//	network:
//	  name: home
//	  secret: s3cret
//	  heartbeat_interval: 5s
//	  heartbeat_timeout: 15s
//	  handshake_timeout: 5s
//	  max_message_size: 1048576
type fileConfig struct {
	NodeID           string      `yaml:"node_id"`
	ListenAddress    string      `yaml:"listen_address"`
	SeedPeers        []string    `yaml:"seed_peers"`
	InboundQueueSize int         `yaml:"inbound_queue_size"`
	Network          networkFile `yaml:"network"`
}

type networkFile struct {
	Name              string        `yaml:"name"`
	Secret            string        `yaml:"secret"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	MaxMessageSize    int           `yaml:"max_message_size"`
}

// LoadConfigFile reads a YAML node configuration. The result is not validated
// so that command line flags can still fill in missing fields.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML node configuration
func ParseConfig(data []byte) (*Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	nodeID := uuid.New()
	if fc.NodeID != "" {
		id, err := uuid.Parse(fc.NodeID)
		if err != nil {
			return nil, fmt.Errorf("parse node_id: %w", err)
		}
		nodeID = id
	}

	cfg := NewConfig(nodeID, fc.ListenAddress).
		WithSeedPeers(fc.SeedPeers...).
		WithPeerConnConfig(&peerconn.Config{
			NetworkName:       fc.Network.Name,
			NetworkSecret:     fc.Network.Secret,
			HeartbeatInterval: fc.Network.HeartbeatInterval,
			HeartbeatTimeout:  fc.Network.HeartbeatTimeout,
			HandshakeTimeout:  fc.Network.HandshakeTimeout,
			MaxMessageSize:    fc.Network.MaxMessageSize,
		})
	if fc.InboundQueueSize > 0 {
		cfg.InboundQueueSize = fc.InboundQueueSize
	}
	return cfg, nil
}
