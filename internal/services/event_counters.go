package services

import (
	"sync"
	"sync/atomic"

	"github.com/qlozet/stylefeed/pkg/models"
)

// EventCounters counts observed events per type to throttle log output.
// Counts accumulate for the lifetime of the process and are never reset;
// nothing in the feed pipeline reads them.
type EventCounters struct {
	counts   sync.Map // models.EventType -> *atomic.Int64
	logEvery int64
}

// NewEventCounters flags the first and then every logEvery-th event of a type.
func NewEventCounters(logEvery int64) *EventCounters {
	if logEvery <= 0 {
		logEvery = 1
	}
	return &EventCounters{logEvery: logEvery}
}

// Observe increments the counter for eventType and reports whether this
// occurrence should be logged.
func (c *EventCounters) Observe(eventType models.EventType) (int64, bool) {
	if c == nil {
		return 0, false
	}
	v, _ := c.counts.LoadOrStore(eventType, new(atomic.Int64))
	n := v.(*atomic.Int64).Add(1)
	return n, (n-1)%c.logEvery == 0
}

// Count is the number of events of eventType observed so far.
func (c *EventCounters) Count(eventType models.EventType) int64 {
	if c == nil {
		return 0
	}
	v, ok := c.counts.Load(eventType)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

func (c *EventCounters) Snapshot() map[models.EventType]int64 {
	out := make(map[models.EventType]int64)
	if c == nil {
		return out
	}
	c.counts.Range(func(key, value any) bool {
		out[key.(models.EventType)] = value.(*atomic.Int64).Load()
		return true
	})
	return out
}
