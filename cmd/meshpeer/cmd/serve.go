package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rmacdonaldsmith/meshpeer-go/internal/meshnode"
	"github.com/rmacdonaldsmith/meshpeer-go/internal/peerconn"
)

var (
	serveListen        string
	serveNodeID        string
	serveNetworkName   string
	serveNetworkSecret string
	serveSeeds         []string
	serveConfigPath    string
	serveHeartbeat     time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a mesh node",
	Long: `Run a mesh node that accepts connections, dials the seed nodes and logs
every received payload and connection event until interrupted.

Flags override values read from --config.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", ":11010", "Listen address")
	serveCmd.Flags().StringVar(&serveNodeID, "node-id", "", "Node id (UUID, random by default)")
	serveCmd.Flags().StringVarP(&serveNetworkName, "network-name", "n", "", "Network name")
	serveCmd.Flags().StringVarP(&serveNetworkSecret, "network-secret", "s", "", "Network secret")
	serveCmd.Flags().StringSliceVar(&serveSeeds, "seed", nil, "Seed node address (repeatable)")
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "YAML config file")
	serveCmd.Flags().DurationVar(&serveHeartbeat, "heartbeat", 0, "Keep-alive ping interval")

	rootCmd.AddCommand(serveCmd)
}

// buildServeConfig merges the config file, if any, with explicitly set flags
func buildServeConfig(cmd *cobra.Command) (*meshnode.Config, error) {
	var config *meshnode.Config
	if serveConfigPath != "" {
		loaded, err := meshnode.LoadConfigFile(serveConfigPath)
		if err != nil {
			return nil, err
		}
		config = loaded
	} else {
		config = meshnode.NewConfig(uuid.New(), serveListen).
			WithPeerConnConfig(&peerconn.Config{})
	}

	flags := cmd.Flags()
	if flags.Changed("listen") || config.ListenAddress == "" {
		config.ListenAddress = serveListen
	}
	if flags.Changed("node-id") {
		id, err := uuid.Parse(serveNodeID)
		if err != nil {
			return nil, fmt.Errorf("invalid --node-id: %w", err)
		}
		config.NodeID = id
	}
	if flags.Changed("seed") {
		config.SeedPeers = serveSeeds
	}

	pcc := config.PeerConnConfig
	if flags.Changed("network-name") {
		pcc.NetworkName = serveNetworkName
	}
	if flags.Changed("network-secret") {
		pcc.NetworkSecret = serveNetworkSecret
	}
	if flags.Changed("heartbeat") {
		pcc.HeartbeatInterval = serveHeartbeat
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	config, err := buildServeConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	config.Logger = logger

	node, err := meshnode.NewNode(config)
	if err != nil {
		return fmt.Errorf("failed to create mesh node: %w", err)
	}
	defer func() {
		if err := node.Close(); err != nil {
			logger.Warn("error during shutdown", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events, cancelEvents := node.GlobalCtx().Subscribe(64)
	defer cancelEvents()

	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("failed to start mesh node: %w", err)
	}

	logger.Info("meshpeer node started",
		zap.String("version", appVersion),
		zap.Stringer("node_id", node.GetNodeID()),
		zap.String("listen_addr", node.ListenAddr()),
		zap.String("network", config.PeerConnConfig.NetworkName))
	fmt.Fprintf(cmd.OutOrStdout(), "✅ node %s listening on %s\n", node.GetNodeID(), node.ListenAddr())

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil

		case payload := <-node.Inbound():
			logger.Info("payload received", zap.Int("bytes", len(payload)), zap.ByteString("payload", payload))

		case event := <-events:
			health, _ := node.GetHealth(ctx)
			logger.Info("connection event",
				zap.Stringer("type", event.Type),
				zap.Stringer("peer_node_id", event.Conn.PeerNodeID),
				zap.Stringer("conn_id", event.Conn.ConnID),
				zap.String("remote_addr", event.Conn.Tunnel.RemoteAddr),
				zap.Int("connected_peers", health.ConnectedPeers),
				zap.Int("connections", health.Connections))
		}
	}
}
