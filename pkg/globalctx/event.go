package globalctx

import (
	"time"

	"github.com/rmacdonaldsmith/meshpeer-go/pkg/peerconn"
)

// EventType identifies the kind of diagnostic event
type EventType int

const (
	PeerConnAdded EventType = iota
	PeerConnRemoved
)

func (t EventType) String() string {
	switch t {
	case PeerConnAdded:
		return "PeerConnAdded"
	case PeerConnRemoved:
		return "PeerConnRemoved"
	default:
		return "Unknown"
	}
}

// Event is a notification about a connection being added to or removed from a peer
type Event struct {
	Type EventType
	Conn peerconn.ConnInfo
	Time time.Time
}

// NewPeerConnAdded creates a PeerConnAdded event stamped with the current time
func NewPeerConnAdded(info peerconn.ConnInfo) Event {
	return Event{Type: PeerConnAdded, Conn: info, Time: time.Now().UTC()}
}

// NewPeerConnRemoved creates a PeerConnRemoved event stamped with the current time
func NewPeerConnRemoved(info peerconn.ConnInfo) Event {
	return Event{Type: PeerConnRemoved, Conn: info, Time: time.Now().UTC()}
}

// EventSink accepts diagnostic events. Implementations must not block.
type EventSink interface {
	IssueEvent(event Event)
}
