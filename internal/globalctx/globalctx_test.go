package globalctx

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/meshpeer-go/pkg/globalctx"
	"github.com/rmacdonaldsmith/meshpeer-go/pkg/peerconn"
)

func testInfo() peerconn.ConnInfo {
	return peerconn.ConnInfo{
		ConnID:      uuid.New(),
		MyNodeID:    uuid.New(),
		PeerNodeID:  uuid.New(),
		NetworkName: "test",
		Tunnel:      peerconn.TunnelInfo{Type: "ring"},
	}
}

func TestNew_Defaults(t *testing.T) {
	g := New("test", nil)

	assert.Equal(t, "test", g.NetworkName())
	assert.NotNil(t, g.Logger())
	assert.Empty(t, g.History())
	assert.Zero(t, g.Dropped())
}

func TestIssueEvent_RecordsHistoryInOrder(t *testing.T) {
	g := New("test", nil)

	info := testInfo()
	g.IssueEvent(globalctx.NewPeerConnAdded(info))
	g.IssueEvent(globalctx.NewPeerConnRemoved(info))

	history := g.History()
	require.Len(t, history, 2)
	assert.Equal(t, globalctx.PeerConnAdded, history[0].Type)
	assert.Equal(t, globalctx.PeerConnRemoved, history[1].Type)
	assert.Equal(t, info.ConnID, history[1].Conn.ConnID)
}

func TestIssueEvent_HistoryIsBounded(t *testing.T) {
	g := NewWithConfig(&Config{NetworkName: "test", HistorySize: 3})

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		info := testInfo()
		ids = append(ids, info.ConnID)
		g.IssueEvent(globalctx.NewPeerConnAdded(info))
	}

	history := g.History()
	require.Len(t, history, 3)
	for i, e := range history {
		assert.Equal(t, ids[i+2], e.Conn.ConnID)
	}
}

func TestHistory_ReturnsCopy(t *testing.T) {
	g := New("test", nil)
	g.IssueEvent(globalctx.NewPeerConnAdded(testInfo()))

	history := g.History()
	history[0].Type = globalctx.PeerConnRemoved

	assert.Equal(t, globalctx.PeerConnAdded, g.History()[0].Type)
}

func TestSubscribe_ReceivesEvents(t *testing.T) {
	g := New("test", nil)

	// events issued before subscribing are not replayed
	g.IssueEvent(globalctx.NewPeerConnAdded(testInfo()))

	events, cancel := g.Subscribe(4)
	defer cancel()

	info := testInfo()
	g.IssueEvent(globalctx.NewPeerConnRemoved(info))

	select {
	case e := <-events:
		assert.Equal(t, globalctx.PeerConnRemoved, e.Type)
		assert.Equal(t, info.ConnID, e.Conn.ConnID)
	default:
		t.Fatal("expected event to be delivered")
	}
	assert.Empty(t, events)
}

func TestSubscribe_FullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	g := New("test", nil)

	events, cancel := g.Subscribe(1)
	defer cancel()

	for i := 0; i < 3; i++ {
		g.IssueEvent(globalctx.NewPeerConnAdded(testInfo()))
	}

	assert.Len(t, events, 1)
	assert.Equal(t, uint64(2), g.Dropped())
	assert.Len(t, g.History(), 3)
}

func TestSubscribe_CancelClosesChannel(t *testing.T) {
	g := New("test", nil)

	events, cancel := g.Subscribe(1)
	cancel()
	cancel()

	_, ok := <-events
	assert.False(t, ok)

	// no delivery after cancel, and nothing counted as dropped
	g.IssueEvent(globalctx.NewPeerConnAdded(testInfo()))
	assert.Zero(t, g.Dropped())
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "PeerConnAdded", globalctx.PeerConnAdded.String())
	assert.Equal(t, "PeerConnRemoved", globalctx.PeerConnRemoved.String())
	assert.Equal(t, "Unknown", globalctx.EventType(42).String())
}
