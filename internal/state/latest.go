package state

import (
	"sync"
	"time"

	"github.com/lucaslui/hems/sensor-bridge/internal/model"
)

// Snapshot is the most recent reading and where it came from.
type Snapshot struct {
	Reading    *model.Reading
	Topic      string
	ReceivedAt time.Time
}

// LatestReadingCache holds the last reading seen by the listener. It is the
// only state shared with the query side. A new snapshot is built outside the
// lock and swapped in whole, and readings are immutable, so readers never see
// a partial value.
type LatestReadingCache struct {
	mu   sync.RWMutex
	snap *Snapshot
	now  func() time.Time
}

func NewLatestReadingCache() *LatestReadingCache {
	return &LatestReadingCache{now: time.Now}
}

// Set replaces the snapshot unconditionally.
func (c *LatestReadingCache) Set(topic string, r *model.Reading) {
	snap := &Snapshot{Reading: r, Topic: topic, ReceivedAt: c.now().UTC()}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
}

// Get returns the current reading, or false before the first Set.
func (c *LatestReadingCache) Get() (*model.Reading, bool) {
	snap, ok := c.Snapshot()
	if !ok {
		return nil, false
	}
	return snap.Reading, true
}

func (c *LatestReadingCache) Snapshot() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.snap == nil {
		return Snapshot{}, false
	}
	return *c.snap, true
}
