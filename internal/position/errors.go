package position

import "errors"

// Validation errors — rejected before any mutation.
var (
	ErrZeroCollateral        = errors.New("collateral must be non-zero")
	ErrInvalidTerm           = errors.New("term end must be after term start")
	ErrInvalidLtvOrdering    = errors.New("ltv ordering violated: initial <= max < liquidation threshold required")
	ErrMinimumPositionSize   = errors.New("position below minimum size")
	ErrPositionLimitExceeded = errors.New("position limit exceeded for owner")
	ErrTooManyOracleSources  = errors.New("oracle source set exceeds maximum cardinality")
	ErrNegativeEquity        = errors.New("obligations exceed collateral value at open")
	ErrInvalidStatus         = errors.New("invalid position status for operation")
	ErrPositionNotFound      = errors.New("position not found")
)

// Authorization errors.
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidDelegate = errors.New("delegate must be a non-zero id")
)

// Arithmetic errors beyond fpmath's own. ErrInvalidCalculation is the
// postcondition failure of the collateral-value recomputation.
var ErrInvalidCalculation = errors.New("invalid calculation: collateral value increased")

// Concurrency errors.
var (
	ErrLiquidationInProgress = errors.New("liquidation already in progress")
	ErrNotBeingLiquidated    = errors.New("position is not under an active liquidation")
)
