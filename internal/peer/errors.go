package peer

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNoConnection is returned when sending to a peer with no registered connections
	ErrNoConnection = errors.New("peer has no connection")
	// ErrConnectionNotFound is returned when closing a connection id that is not registered
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrConnectionGone is returned when the selected connection was removed before it could be used
	ErrConnectionGone = errors.New("connection removed while in use")
	// ErrPeerClosed is returned when a close request arrives after the peer was shut down
	ErrPeerClosed = errors.New("peer is closed")
)

// NoConnectionError reports which peer had nothing to send on.
// It matches ErrNoConnection with errors.Is.
type NoConnectionError struct {
	NodeID uuid.UUID
}

func (e *NoConnectionError) Error() string {
	return fmt.Sprintf("peer %s has no connection", e.NodeID)
}

func (e *NoConnectionError) Is(target error) bool {
	return target == ErrNoConnection
}
