package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/meshpeer-go/internal/meshnode"
	"github.com/rmacdonaldsmith/meshpeer-go/internal/peerconn"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, Execute())
	assert.Equal(t, "meshpeer v"+appVersion+"\n", out.String())
}

func TestBuildServeConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_address: "127.0.0.1:12000"
seed_peers: ["file-seed:1"]
network:
  name: home
  secret: from-file
`), 0o600))

	nodeID := uuid.New()
	require.NoError(t, serveCmd.ParseFlags([]string{
		"--config", path,
		"--network-secret", "from-flag",
		"--seed", "a:1",
		"--seed", "b:2",
		"--node-id", nodeID.String(),
	}))

	config, err := buildServeConfig(serveCmd)
	require.NoError(t, err)

	assert.Equal(t, nodeID, config.NodeID)
	assert.Equal(t, "127.0.0.1:12000", config.ListenAddress)
	assert.Equal(t, []string{"a:1", "b:2"}, config.SeedPeers)
	assert.Equal(t, "home", config.PeerConnConfig.NetworkName)
	assert.Equal(t, "from-flag", config.PeerConnConfig.NetworkSecret)
}

func TestConnectRedundant(t *testing.T) {
	pcc := &peerconn.Config{NetworkName: "test", NetworkSecret: "test-secret"}

	server, err := meshnode.NewNode(meshnode.NewConfig(uuid.New(), "127.0.0.1:0").WithPeerConnConfig(pcc))
	require.NoError(t, err)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, server.Start(ctx))

	client, err := meshnode.NewNode(meshnode.NewConfig(uuid.New(), "127.0.0.1:0").WithPeerConnConfig(pcc))
	require.NoError(t, err)
	defer client.Close()

	remoteID, err := connectRedundant(ctx, client, server.ListenAddr(), 3)
	require.NoError(t, err)
	assert.Equal(t, server.GetNodeID(), remoteID)

	peers := client.ListPeers(ctx)
	require.Len(t, peers, 1)
	assert.Len(t, peers[0].Connections, 3)

	var out bytes.Buffer
	printPeers(&out, peers)
	assert.Contains(t, out.String(), "peer "+remoteID.String()+" (3 connections)")
	assert.Contains(t, out.String(), "grpc")

	require.NoError(t, client.SendTo(ctx, remoteID, []byte("hello")))
	select {
	case got := <-server.Inbound():
		assert.Equal(t, []byte("hello"), got)
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

func TestConnectRedundant_Unreachable(t *testing.T) {
	pcc := &peerconn.Config{NetworkName: "test", NetworkSecret: "test-secret"}
	client, err := meshnode.NewNode(meshnode.NewConfig(uuid.New(), "127.0.0.1:0").WithPeerConnConfig(pcc))
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = connectRedundant(ctx, client, "127.0.0.1:1", 2)
	assert.Error(t, err)
}
