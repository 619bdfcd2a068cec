package oracle

import (
	"errors"
	"testing"
	"time"
)

func TestFeedLatest(t *testing.T) {
	clock := NewManualClock(500, time.Unix(1_700_000_000, 0))
	feed := NewFeed(clock)

	if _, err := feed.Latest("SOL"); !errors.Is(err, ErrNoPrice) {
		t.Fatalf("empty feed err = %v, want ErrNoPrice", err)
	}

	ts := time.Unix(1_700_000_100, 0)
	feed.Publish("SOL", 50_00000000, 5_000000, ts)
	feed.Publish("SOL", 51_00000000, 4_000000, ts.Add(time.Second))

	pd, err := feed.Latest("SOL")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if pd.Price != 51_00000000 {
		t.Errorf("Price = %d, want latest observation", pd.Price)
	}
}

func TestFreezeSnapshotStampsSlot(t *testing.T) {
	clock := NewManualClock(500, time.Unix(1_700_000_000, 0))
	feed := NewFeed(clock)
	feed.Publish("SOL", 50_00000000, 0, clock.Now())

	clock.Advance(7)
	snap, err := feed.FreezeSnapshot("SOL")
	if err != nil {
		t.Fatalf("FreezeSnapshot: %v", err)
	}
	if snap.Slot != 507 {
		t.Errorf("Slot = %d, want 507", snap.Slot)
	}
	if snap.Price != 50_00000000 {
		t.Errorf("Price = %d, want 5000000000", snap.Price)
	}

	if _, err := feed.FreezeSnapshot("ETH"); !errors.Is(err, ErrNoPrice) {
		t.Errorf("unknown asset err = %v, want ErrNoPrice", err)
	}
}

func TestSnapshotExpiry(t *testing.T) {
	snap := FrozenSnapshot{Slot: 1_000}

	tests := []struct {
		name        string
		currentSlot uint64
		want        bool
	}{
		{"fresh", 1_000, false},
		{"one under the limit", 1_099, false},
		{"exactly at the limit", 1_100, true},
		{"well past", 2_000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := snap.Expired(tt.currentSlot, 100); got != tt.want {
				t.Errorf("Expired(%d, 100) = %v, want %v", tt.currentSlot, got, tt.want)
			}
		})
	}
}

func TestManualClockAdvance(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := NewManualClock(10, start)

	clock.Advance(5)
	if clock.Slot() != 15 {
		t.Errorf("Slot = %d, want 15", clock.Slot())
	}
	if want := start.Add(5 * SlotDuration); !clock.Now().Equal(want) {
		t.Errorf("Now = %v, want %v", clock.Now(), want)
	}
}

func TestSystemClockSlots(t *testing.T) {
	genesis := time.Now().Add(-10 * SlotDuration)
	clock := NewSystemClock(genesis)

	slot := clock.Slot()
	if slot < 9 || slot > 11 {
		t.Errorf("Slot = %d, want about 10", slot)
	}

	// Genesis in the future pins the slot at zero.
	future := NewSystemClock(time.Now().Add(time.Hour))
	if got := future.Slot(); got != 0 {
		t.Errorf("pre-genesis Slot = %d, want 0", got)
	}
}
