package position

import (
	"github.com/google/uuid"
)

// Status tracks the financing position lifecycle
type Status int32

const (
	StatusOpen Status = iota
	StatusPartiallyLiquidated
	StatusLiquidated
	StatusSettled
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusPartiallyLiquidated:
		return "PartiallyLiquidated"
	case StatusLiquidated:
		return "Liquidated"
	case StatusSettled:
		return "Settled"
	case StatusClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates status transitions
func (s Status) CanTransitionTo(next Status) bool {
	validTransitions := map[Status][]Status{
		StatusOpen: {
			StatusPartiallyLiquidated,
			StatusLiquidated,
			StatusSettled,
			StatusClosed, // early close with full repayment
		},
		StatusPartiallyLiquidated: {
			StatusPartiallyLiquidated, // multiple partial liquidations
			StatusLiquidated,
			StatusSettled,
		},
		StatusLiquidated: {
			StatusClosed,
		},
		StatusSettled: {
			StatusClosed,
		},
		StatusClosed: {},
	}

	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}

	for _, allowedStatus := range allowed {
		if next == allowedStatus {
			return true
		}
	}

	return false
}

// MaxOracleSources bounds the per-position oracle authority set.
const MaxOracleSources = 10

// FinancingPosition is one owner x collateral-asset financing record.
// All USD values are 8-decimal fixed point; debt is 6-decimal fixed
// point; collateral amounts are native token units.
type FinancingPosition struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	CollateralAsset string
	FinancedAsset   string

	CollateralAmount      int64
	CollateralDecimals    int
	CollateralUsdValue    int64 // 8dp
	FinancedAmount        int64
	FinancedUsdValue      int64 // 8dp
	DeferredPaymentAmount int64 // 6dp, outstanding debt incl. fees

	InitialLtvBps           int64
	MaxLtvBps               int64
	LiquidationThresholdBps int64
	FeeScheduleBps          int64
	CarryEnabled            bool

	TermStart int64 // unix seconds
	TermEnd   int64

	LastCollateralPrice int64 // 8dp, guarded price level
	LastPriceUpdateSlot uint64

	OracleSources       []uuid.UUID
	DelegatedSettler    uuid.UUID
	DelegatedLiquidator uuid.UUID

	Status Status

	// Scoped liquidation lock. Set only through Ledger.BeginLiquidation
	// and cleared through Ledger.EndLiquidation; true only while one
	// liquidation call is in flight against this record.
	isBeingLiquidated bool

	Version int64 // bumped on every successful mutation
}

// IsBeingLiquidated reports the in-flight liquidation lock state.
func (p *FinancingPosition) IsBeingLiquidated() bool {
	return p.isBeingLiquidated
}

// HasOracleSource checks membership in the bounded oracle authority set.
func (p *FinancingPosition) HasOracleSource(authority uuid.UUID) bool {
	for _, src := range p.OracleSources {
		if src == authority {
			return true
		}
	}
	return false
}

// IsMatured reports whether the term window has elapsed.
func (p *FinancingPosition) IsMatured(nowUnix int64) bool {
	return nowUnix >= p.TermEnd
}

// Liquidatable reports whether the status admits a liquidation mutation.
func (p *FinancingPosition) Liquidatable() bool {
	return p.Status == StatusOpen || p.Status == StatusPartiallyLiquidated
}

// clone returns a copy safe to hand to readers outside the ledger lock.
func (p *FinancingPosition) clone() *FinancingPosition {
	cp := *p
	cp.OracleSources = append([]uuid.UUID(nil), p.OracleSources...)
	return &cp
}
