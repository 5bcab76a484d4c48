package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rmacdonaldsmith/meshpeer-go/internal/meshnode"
	"github.com/rmacdonaldsmith/meshpeer-go/internal/peerconn"
	meshnodepkg "github.com/rmacdonaldsmith/meshpeer-go/pkg/meshnode"
)

var (
	sendConnect       string
	sendConns         int
	sendMessage       string
	sendNetworkName   string
	sendNetworkSecret string
	sendTimeout       time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message to a node over redundant connections",
	Long: `Open --conns redundant connections to the node at --connect, list them,
send --message over any one of them and disconnect.`,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendConnect, "connect", "", "Address of the node to send to")
	sendCmd.Flags().IntVar(&sendConns, "conns", 1, "Number of redundant connections to open")
	sendCmd.Flags().StringVarP(&sendMessage, "message", "m", "", "Message to send")
	sendCmd.Flags().StringVarP(&sendNetworkName, "network-name", "n", "", "Network name")
	sendCmd.Flags().StringVarP(&sendNetworkSecret, "network-secret", "s", "", "Network secret")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 30*time.Second, "Overall timeout")
	_ = sendCmd.MarkFlagRequired("connect")
	_ = sendCmd.MarkFlagRequired("message")

	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	if sendConns < 1 {
		return fmt.Errorf("--conns must be at least 1, got %d", sendConns)
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// never started: this node only dials
	config := meshnode.NewConfig(uuid.New(), "127.0.0.1:0").
		WithPeerConnConfig(&peerconn.Config{
			NetworkName:   sendNetworkName,
			NetworkSecret: sendNetworkSecret,
		}).
		WithLogger(logger)

	node, err := meshnode.NewNode(config)
	if err != nil {
		return err
	}
	defer node.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	remoteID, err := connectRedundant(ctx, node, sendConnect, sendConns)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printPeers(out, node.ListPeers(ctx))

	if err := node.SendTo(ctx, remoteID, []byte(sendMessage)); err != nil {
		return fmt.Errorf("send to %s: %w", remoteID, err)
	}
	fmt.Fprintf(out, "✅ sent %d bytes to %s\n", len(sendMessage), remoteID)
	return nil
}

// connectRedundant opens n connections to addr concurrently. Every connection
// must reach the same remote node.
func connectRedundant(ctx context.Context, node *meshnode.Node, addr string, n int) (uuid.UUID, error) {
	ids := make([]uuid.UUID, n)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			id, err := node.Connect(gctx, addr)
			if err != nil {
				return fmt.Errorf("connection %d to %s: %w", i+1, addr, err)
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return uuid.Nil, err
	}

	for _, id := range ids[1:] {
		if id != ids[0] {
			return uuid.Nil, fmt.Errorf("%s answered as both %s and %s", addr, ids[0], id)
		}
	}
	return ids[0], nil
}

func printPeers(w io.Writer, peers []meshnodepkg.PeerSummary) {
	for _, p := range peers {
		fmt.Fprintf(w, "peer %s (%d connections)\n", p.NodeID, len(p.Connections))
		for _, c := range p.Connections {
			fmt.Fprintf(w, "  conn %s  %s %s -> %s  %s\n",
				c.ConnID, c.Tunnel.Type, c.Tunnel.LocalAddr, c.Tunnel.RemoteAddr, c.Health)
		}
	}
}
