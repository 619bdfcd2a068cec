package oracle

import (
	"errors"
	"sync"
	"time"
)

// PriceData is one validated oracle observation. Price is 8-decimal
// fixed point; Confidence is an 8-decimal half-width interval.
type PriceData struct {
	Price      int64
	Confidence int64
	Timestamp  time.Time
}

// FrozenSnapshot is a price locked for the duration of one liquidation
// call. All seize math must use it instead of re-reading the live feed.
type FrozenSnapshot struct {
	PriceData
	Slot uint64
}

// Expired reports whether the snapshot has aged past maxAgeSlots.
func (s FrozenSnapshot) Expired(currentSlot, maxAgeSlots uint64) bool {
	return currentSlot-s.Slot >= maxAgeSlots
}

// Oracle is the validated-price collaborator consumed by the guard and
// the liquidation coordinator. Aggregation and TWAP internals live
// behind it; only the validated snapshot is consumed here.
type Oracle interface {
	Latest(asset string) (PriceData, error)
	FreezeSnapshot(asset string) (FrozenSnapshot, error)
}

var ErrNoPrice = errors.New("no validated price for asset")

// Feed is the in-process Oracle implementation: it holds the most
// recent validated observation per asset, written by the ingestion
// layer and read by the guard and coordinator.
type Feed struct {
	mu     sync.RWMutex
	latest map[string]PriceData
	clock  Clock
}

func NewFeed(clock Clock) *Feed {
	return &Feed{
		latest: make(map[string]PriceData),
		clock:  clock,
	}
}

// Publish stores a validated observation for an asset.
func (f *Feed) Publish(asset string, price, confidence int64, ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest[asset] = PriceData{Price: price, Confidence: confidence, Timestamp: ts}
}

func (f *Feed) Latest(asset string) (PriceData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	pd, ok := f.latest[asset]
	if !ok {
		return PriceData{}, ErrNoPrice
	}
	return pd, nil
}

// FreezeSnapshot captures the current validated price together with the
// slot it was frozen at.
func (f *Feed) FreezeSnapshot(asset string) (FrozenSnapshot, error) {
	pd, err := f.Latest(asset)
	if err != nil {
		return FrozenSnapshot{}, err
	}
	return FrozenSnapshot{PriceData: pd, Slot: f.clock.Slot()}, nil
}
