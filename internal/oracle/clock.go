package oracle

import (
	"sync/atomic"
	"time"
)

// Clock supplies the monotonic slot counter and wall time that the
// guard and coordinator stamp into position records. Slots are the
// protocol's coarse time unit; all staleness and delay bookkeeping is
// slot-denominated.
type Clock interface {
	Slot() uint64
	Now() time.Time
}

// SlotDuration is the wall-time width of one slot.
const SlotDuration = 400 * time.Millisecond

// SystemClock derives slots from wall time against a fixed genesis.
type SystemClock struct {
	genesis time.Time
}

func NewSystemClock(genesis time.Time) *SystemClock {
	return &SystemClock{genesis: genesis}
}

func (c *SystemClock) Slot() uint64 {
	elapsed := time.Since(c.genesis)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / SlotDuration)
}

func (c *SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock is an advanceable clock for tests and replay.
type ManualClock struct {
	slot atomic.Uint64
	now  atomic.Int64 // unix nanos
}

func NewManualClock(slot uint64, now time.Time) *ManualClock {
	mc := &ManualClock{}
	mc.slot.Store(slot)
	mc.now.Store(now.UnixNano())
	return mc
}

func (c *ManualClock) Slot() uint64 {
	return c.slot.Load()
}

func (c *ManualClock) Now() time.Time {
	return time.Unix(0, c.now.Load())
}

// Advance moves the clock forward by n slots.
func (c *ManualClock) Advance(n uint64) {
	c.slot.Add(n)
	c.now.Add(int64(n) * int64(SlotDuration))
}

// SetTime pins the wall-clock component without moving slots.
func (c *ManualClock) SetTime(t time.Time) {
	c.now.Store(t.UnixNano())
}
