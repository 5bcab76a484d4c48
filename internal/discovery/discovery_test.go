package discovery

import (
	"context"
	"testing"
)

// TestStaticDiscovery_FindPeers tests the discovery interface contract
func TestStaticDiscovery_FindPeers(t *testing.T) {
	discovery := NewStaticDiscovery([]string{"node1:11010", "node2:11010"})

	if discovery == nil {
		t.Fatal("Expected discovery service to be created, got nil")
	}

	peers, err := discovery.FindPeers(context.Background())
	if err != nil {
		t.Errorf("Expected no error from FindPeers, got %v", err)
	}

	if len(peers) != 2 {
		t.Fatalf("Expected 2 peers, got %d", len(peers))
	}
	if peers[0] != "node1:11010" {
		t.Errorf("Expected first peer 'node1:11010', got '%s'", peers[0])
	}
	if peers[1] != "node2:11010" {
		t.Errorf("Expected second peer 'node2:11010', got '%s'", peers[1])
	}
}

// TestStaticDiscovery_EmptySeeds tests discovery with no seeds
func TestStaticDiscovery_EmptySeeds(t *testing.T) {
	peers, err := NewStaticDiscovery([]string{}).FindPeers(context.Background())

	if err != nil {
		t.Errorf("Expected no error from FindPeers with empty seeds, got %v", err)
	}
	if len(peers) != 0 {
		t.Errorf("Expected 0 peers with empty seeds, got %d", len(peers))
	}
}

func TestStaticDiscovery_DropsBlankAndDuplicates(t *testing.T) {
	peers, err := NewStaticDiscovery([]string{" a:1 ", "", "b:2", "a:1"}).FindPeers(context.Background())
	if err != nil {
		t.Fatalf("FindPeers: %v", err)
	}
	if len(peers) != 2 || peers[0] != "a:1" || peers[1] != "b:2" {
		t.Errorf("Expected [a:1 b:2], got %v", peers)
	}
}

func TestStaticDiscovery_ReturnsCopy(t *testing.T) {
	d := NewStaticDiscovery([]string{"a:1"})

	peers, _ := d.FindPeers(context.Background())
	peers[0] = "mutated"

	again, _ := d.FindPeers(context.Background())
	if again[0] != "a:1" {
		t.Errorf("Expected seeds to be unaffected by caller mutation, got %v", again)
	}
}

func TestStaticDiscovery_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewStaticDiscovery([]string{"a:1"}).FindPeers(ctx); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
