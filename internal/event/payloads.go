package event

import (
	"fmt"

	"github.com/google/uuid"
)

// PositionOpened is emitted after a successful Open.
type PositionOpened struct {
	Position        uuid.UUID `json:"position_id"`
	OwnerID         uuid.UUID `json:"owner_id"`
	CollateralAsset string    `json:"collateral_asset"`
	CollateralUsd   int64     `json:"collateral_usd_value"`
	DeferredPayment int64     `json:"deferred_payment_amount"`
	InitialLtvBps   int64     `json:"initial_ltv_bps"`
	TermEnd         int64     `json:"term_end"`
}

func (e *PositionOpened) IdempotencyKey() string {
	return fmt.Sprintf("open:%s", e.Position)
}
func (e *PositionOpened) EventType() EventType  { return EventTypePositionOpened }
func (e *PositionOpened) PositionID() uuid.UUID { return e.Position }

// PriceUpdated is emitted when the guard accepts a price.
type PriceUpdated struct {
	Position  uuid.UUID `json:"position_id"`
	Price     int64     `json:"price_8dp"`
	Slot      uint64    `json:"slot"`
	Authority uuid.UUID `json:"authority"`
}

func (e *PriceUpdated) IdempotencyKey() string {
	return fmt.Sprintf("price:%s:%d", e.Position, e.Slot)
}
func (e *PriceUpdated) EventType() EventType  { return EventTypePriceUpdated }
func (e *PriceUpdated) PositionID() uuid.UUID { return e.Position }

// LiquidationTriggered is emitted when the trigger check passes.
type LiquidationTriggered struct {
	Position     uuid.UUID `json:"position_id"`
	CurrentLtv   int64     `json:"current_ltv_bps"`
	ThresholdBps int64     `json:"threshold_bps"`
	Slot         uint64    `json:"slot"`
}

func (e *LiquidationTriggered) IdempotencyKey() string {
	return fmt.Sprintf("liq-trigger:%s:%d", e.Position, e.Slot)
}
func (e *LiquidationTriggered) EventType() EventType  { return EventTypeLiquidationTriggered }
func (e *LiquidationTriggered) PositionID() uuid.UUID { return e.Position }

// SnapshotFrozen is emitted when an oracle snapshot is frozen for a run.
type SnapshotFrozen struct {
	Position    uuid.UUID `json:"position_id"`
	FrozenPrice int64     `json:"frozen_price_8dp"`
	FrozenSlot  uint64    `json:"frozen_slot"`
}

func (e *SnapshotFrozen) IdempotencyKey() string {
	return fmt.Sprintf("liq-snapshot:%s:%d", e.Position, e.FrozenSlot)
}
func (e *SnapshotFrozen) EventType() EventType  { return EventTypeSnapshotFrozen }
func (e *SnapshotFrozen) PositionID() uuid.UUID { return e.Position }

// LiquidationExecuted is emitted after a successful execution.
type LiquidationExecuted struct {
	Position         uuid.UUID `json:"position_id"`
	DebtRepaid       int64     `json:"debt_repaid"`
	CollateralSeized int64     `json:"collateral_seized"`
	BonusPaid        int64     `json:"bonus_paid"`
	RemainingDebt    int64     `json:"remaining_debt"`
	Status           string    `json:"status"`
	Slot             uint64    `json:"slot"`
}

func (e *LiquidationExecuted) IdempotencyKey() string {
	return fmt.Sprintf("liq-exec:%s:%d", e.Position, e.Slot)
}
func (e *LiquidationExecuted) EventType() EventType  { return EventTypeLiquidationExecuted }
func (e *LiquidationExecuted) PositionID() uuid.UUID { return e.Position }

// PositionSettled is emitted when the settlement adapter consumes the
// position's final obligations.
type PositionSettled struct {
	Position             uuid.UUID `json:"position_id"`
	FinalObligations     int64     `json:"final_obligations"`
	FinalCollateralValue int64     `json:"final_collateral_value"`
	ProtocolShare        int64     `json:"protocol_share"`
	TreasuryShare        int64     `json:"treasury_share"`
	UserShare            int64     `json:"user_share"`
}

func (e *PositionSettled) IdempotencyKey() string {
	return fmt.Sprintf("settle:%s", e.Position)
}
func (e *PositionSettled) EventType() EventType  { return EventTypePositionSettled }
func (e *PositionSettled) PositionID() uuid.UUID { return e.Position }

// PositionClosed is emitted on final teardown.
type PositionClosed struct {
	Position uuid.UUID `json:"position_id"`
	Reason   string    `json:"reason"`
}

func (e *PositionClosed) IdempotencyKey() string {
	return fmt.Sprintf("close:%s", e.Position)
}
func (e *PositionClosed) EventType() EventType  { return EventTypePositionClosed }
func (e *PositionClosed) PositionID() uuid.UUID { return e.Position }
