package liquidation

import "errors"

// Economic guard failures. All of these are expected, retriable
// conditions — the caller decides whether and when to retry; the
// coordinator never retries internally.
var (
	ErrLiquidationNotTriggered            = errors.New("liquidation threshold not breached")
	ErrSnapshotMissing                    = errors.New("oracle snapshot missing")
	ErrSnapshotExpired                    = errors.New("oracle snapshot expired")
	ErrSnapshotStillFresh                 = errors.New("previous snapshot still fresh")
	ErrPriceUpdateTooRecent               = errors.New("price update too recent to liquidate against")
	ErrLiquidationAmountTooSmall          = errors.New("partial liquidation below minimum percentage")
	ErrPositionTooSmallToPartialLiquidate = errors.New("remaining debt would be dust; only full liquidation allowed")
	ErrInsufficientCollateral             = errors.New("claim exceeds remaining collateral")
)

// Validation failures.
var (
	ErrInvalidPercentage = errors.New("liquidation percentage must be in (0, 100]")
	ErrInvalidPhase      = errors.New("invalid liquidation phase for operation")
)
