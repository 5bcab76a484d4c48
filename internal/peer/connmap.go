package peer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rmacdonaldsmith/meshpeer-go/pkg/peerconn"
)

// connEntry is one independently lockable cell of the registry.
// The lock is a one-slot channel so that waiters can give up on ctx.
type connEntry struct {
	sem  chan struct{}
	conn peerconn.Conn

	// removed is guarded by sem
	removed bool

	// closeNotified is set as soon as the connection reports failure,
	// even before the entry is visible in the registry.
	closeNotified atomic.Bool
}

func newConnEntry(conn peerconn.Conn) *connEntry {
	return &connEntry{
		sem:  make(chan struct{}, 1),
		conn: conn,
	}
}

func (e *connEntry) lock(ctx context.Context) error {
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// lockBlocking waits for the entry without a way to give up. Only the close
// event listener uses it; every other holder releases the entry in bounded time.
func (e *connEntry) lockBlocking() {
	e.sem <- struct{}{}
}

func (e *connEntry) unlock() {
	<-e.sem
}

// connMap maps connection ids to entries. Reads never take a global lock;
// entries are added and removed independently.
type connMap struct {
	m sync.Map // uuid.UUID -> *connEntry
}

func (c *connMap) insert(id uuid.UUID, e *connEntry) {
	c.m.Store(id, e)
}

// any returns an arbitrary present entry
func (c *connMap) any() (*connEntry, bool) {
	var found *connEntry
	c.m.Range(func(_, v any) bool {
		found = v.(*connEntry)
		return false
	})
	return found, found != nil
}

func (c *connMap) contains(id uuid.UUID) bool {
	_, ok := c.m.Load(id)
	return ok
}

// remove deletes and returns the entry for id. Removing a missing id is a no-op.
func (c *connMap) remove(id uuid.UUID) (*connEntry, bool) {
	v, ok := c.m.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	return v.(*connEntry), true
}

// snapshot collects the present entries without locking any of them.
// Callers lock each entry only after the snapshot is taken.
func (c *connMap) snapshot() []*connEntry {
	var entries []*connEntry
	c.m.Range(func(_, v any) bool {
		entries = append(entries, v.(*connEntry))
		return true
	})
	return entries
}

func (c *connMap) len() int {
	n := 0
	c.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
