package discovery

import (
	"context"
	"strings"
)

// StaticDiscovery implements Discovery using a static list of seed addresses
type StaticDiscovery struct {
	seeds []string
}

// NewStaticDiscovery creates a static discovery service. Blank and duplicate
// addresses are dropped; order is preserved.
func NewStaticDiscovery(seeds []string) *StaticDiscovery {
	seen := make(map[string]struct{}, len(seeds))
	cleaned := make([]string, 0, len(seeds))
	for _, addr := range seeds {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		cleaned = append(cleaned, addr)
	}
	return &StaticDiscovery{seeds: cleaned}
}

// FindPeers returns the seed addresses
func (s *StaticDiscovery) FindPeers(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	peers := make([]string, len(s.seeds))
	copy(peers, s.seeds)
	return peers, nil
}

// Verify that StaticDiscovery implements the Discovery interface at compile time
var _ Discovery = (*StaticDiscovery)(nil)
