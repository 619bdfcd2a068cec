package position

import (
	"FinLedger/internal/fpmath"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds the size/count bounds owned by the ledger layer.
type Config struct {
	MinPositionUsd       int64 // 8dp; minimum collateral value at open
	MaxPositionsPerOwner int
}

func DefaultConfig() Config {
	return Config{
		MinPositionUsd:       100 * fpmath.UsdConfig.Scale, // $100
		MaxPositionsPerOwner: 16,
	}
}

// Ledger owns every financing position record. All mutations go through
// its methods under the ledger lock; operations against one record never
// interleave.
type Ledger struct {
	mu        sync.RWMutex
	positions map[uuid.UUID]*FinancingPosition
	byOwner   map[uuid.UUID]map[string]uuid.UUID // owner -> collateral asset -> position
	cfg       Config
	log       zerolog.Logger
}

func NewLedger(cfg Config, log zerolog.Logger) *Ledger {
	return &Ledger{
		positions: make(map[uuid.UUID]*FinancingPosition),
		byOwner:   make(map[uuid.UUID]map[string]uuid.UUID),
		cfg:       cfg,
		log:       log,
	}
}

// OpenParams is the input to Open. FinancingAmount may be zero, in which
// case it is derived from the collateral value at InitialLtvBps.
type OpenParams struct {
	OwnerID            uuid.UUID
	CollateralAsset    string
	FinancedAsset      string
	CollateralAmount   int64
	CollateralDecimals int
	CollateralUsdValue int64 // 8dp
	FinancingAmount    int64 // 6dp; 0 = derive from collateral

	InitialLtvBps           int64
	MaxLtvBps               int64
	LiquidationThresholdBps int64
	FeeScheduleBps          int64
	CarryEnabled            bool

	TermStart int64
	TermEnd   int64

	OracleSources []uuid.UUID
}

// Open validates params, creates the record, and returns its id.
// Validation happens strictly before the record exists; a failed Open
// leaves no trace in the ledger.
func (l *Ledger) Open(params OpenParams, currentSlot uint64) (uuid.UUID, error) {
	if params.CollateralAmount <= 0 || params.CollateralUsdValue <= 0 {
		return uuid.Nil, ErrZeroCollateral
	}
	if params.TermEnd <= params.TermStart {
		return uuid.Nil, ErrInvalidTerm
	}
	// Invariant: initial <= max < liquidation threshold. The ledger
	// rejects, never caps.
	if params.InitialLtvBps > params.MaxLtvBps ||
		params.MaxLtvBps >= params.LiquidationThresholdBps {
		return uuid.Nil, ErrInvalidLtvOrdering
	}
	if params.CollateralUsdValue < l.cfg.MinPositionUsd {
		return uuid.Nil, ErrMinimumPositionSize
	}
	if len(params.OracleSources) > MaxOracleSources {
		return uuid.Nil, ErrTooManyOracleSources
	}

	financing := params.FinancingAmount
	if financing == 0 {
		// F = C * m / (10_000 - m), then down to debt scale.
		financedUsd, err := fpmath.FinancingFromCollateral(params.CollateralUsdValue, params.InitialLtvBps)
		if err != nil {
			return uuid.Nil, fmt.Errorf("derive financing: %w", err)
		}
		financing = financedUsd / (fpmath.UsdConfig.Scale / fpmath.DebtConfig.Scale)
	}

	fee, err := fpmath.MulBps(financing, params.FeeScheduleBps)
	if err != nil {
		return uuid.Nil, fmt.Errorf("fee schedule: %w", err)
	}
	deferred, err := fpmath.CheckedAdd(financing, fee)
	if err != nil {
		return uuid.Nil, fmt.Errorf("seed obligations: %w", err)
	}

	// No negative equity at origination.
	obligationsUsd, err := fpmath.DebtToUsd(deferred)
	if err != nil {
		return uuid.Nil, err
	}
	if obligationsUsd > params.CollateralUsdValue {
		return uuid.Nil, ErrNegativeEquity
	}

	financedUsd, err := fpmath.DebtToUsd(financing)
	if err != nil {
		return uuid.Nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ownerBook := l.byOwner[params.OwnerID]
	if len(ownerBook) >= l.cfg.MaxPositionsPerOwner {
		return uuid.Nil, ErrPositionLimitExceeded
	}
	if _, exists := ownerBook[params.CollateralAsset]; exists {
		// One record per owner x collateral asset.
		return uuid.Nil, ErrPositionLimitExceeded
	}

	pos := &FinancingPosition{
		ID:                      uuid.New(),
		OwnerID:                 params.OwnerID,
		CollateralAsset:         params.CollateralAsset,
		FinancedAsset:           params.FinancedAsset,
		CollateralAmount:        params.CollateralAmount,
		CollateralDecimals:      params.CollateralDecimals,
		CollateralUsdValue:      params.CollateralUsdValue,
		FinancedAmount:          financing,
		FinancedUsdValue:        financedUsd,
		DeferredPaymentAmount:   deferred,
		InitialLtvBps:           params.InitialLtvBps,
		MaxLtvBps:               params.MaxLtvBps,
		LiquidationThresholdBps: params.LiquidationThresholdBps,
		FeeScheduleBps:          params.FeeScheduleBps,
		CarryEnabled:            params.CarryEnabled,
		TermStart:               params.TermStart,
		TermEnd:                 params.TermEnd,
		LastCollateralPrice:     params.CollateralUsdValue,
		LastPriceUpdateSlot:     currentSlot,
		OracleSources:           append([]uuid.UUID(nil), params.OracleSources...),
		Status:                  StatusOpen,
		Version:                 1,
	}

	l.positions[pos.ID] = pos
	if ownerBook == nil {
		ownerBook = make(map[string]uuid.UUID)
		l.byOwner[params.OwnerID] = ownerBook
	}
	ownerBook[params.CollateralAsset] = pos.ID

	l.log.Info().
		Str("position_id", pos.ID.String()).
		Str("owner_id", pos.OwnerID.String()).
		Str("collateral_asset", pos.CollateralAsset).
		Int64("collateral_usd_value", pos.CollateralUsdValue).
		Int64("deferred_payment_amount", pos.DeferredPaymentAmount).
		Msg("position opened")

	return pos.ID, nil
}

// Get returns a read-only copy of the record.
func (l *Ledger) Get(id uuid.UUID) (*FinancingPosition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[id]
	if !ok {
		return nil, ErrPositionNotFound
	}
	return pos.clone(), nil
}

// With runs fn against the live record under the ledger lock. fn must
// not call back into the ledger. Any error from fn aborts with whatever
// partial assignments fn made, so fn must follow the compute-then-assign
// discipline.
func (l *Ledger) With(id uuid.UUID, fn func(*FinancingPosition) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[id]
	if !ok {
		return ErrPositionNotFound
	}
	if err := fn(pos); err != nil {
		return err
	}
	pos.Version++
	return nil
}

// BeginLiquidation acquires the scoped liquidation lock on the record.
// A second acquisition while one is in flight fails; the caller must
// pair every successful Begin with a deferred EndLiquidation.
func (l *Ledger) BeginLiquidation(id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[id]
	if !ok {
		return ErrPositionNotFound
	}
	if pos.isBeingLiquidated {
		return ErrLiquidationInProgress
	}
	if !pos.Liquidatable() {
		return ErrInvalidStatus
	}
	pos.isBeingLiquidated = true
	return nil
}

// EndLiquidation releases the scoped liquidation lock. Safe to call from
// a defer on every exit path; releasing an unheld lock is a no-op so the
// guard can never be leaked or double-released.
func (l *Ledger) EndLiquidation(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pos, ok := l.positions[id]; ok {
		pos.isBeingLiquidated = false
	}
}

// LiquidationResult reports the ledger-side outcome of ApplyLiquidation.
type LiquidationResult struct {
	DebtRepaid         int64
	CollateralSeized   int64
	RemainingDebt      int64
	CollateralUsdValue int64
	Status             Status
}

// ApplyLiquidation applies the result of one liquidation step. Callable
// only while the liquidation lock is held. The mutation is all-or-nothing:
// every quantity is computed from pre-mutation snapshots and validated
// before anything is assigned.
func (l *Ledger) ApplyLiquidation(id uuid.UUID, debtToRepay, collateralToSeize int64) (LiquidationResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[id]
	if !ok {
		return LiquidationResult{}, ErrPositionNotFound
	}
	if !pos.isBeingLiquidated {
		return LiquidationResult{}, ErrNotBeingLiquidated
	}
	if !pos.Liquidatable() {
		return LiquidationResult{}, ErrInvalidStatus
	}

	// Snapshot originals before any mutation; the recomputation below
	// must divide by these, never by the mutated amount.
	originalCollateralAmount := pos.CollateralAmount
	originalCollateralValue := pos.CollateralUsdValue

	newCollateralAmount, err := fpmath.CheckedSub(originalCollateralAmount, collateralToSeize)
	if err != nil {
		return LiquidationResult{}, fmt.Errorf("seize collateral: %w", err)
	}
	newDeferred, err := fpmath.CheckedSub(pos.DeferredPaymentAmount, debtToRepay)
	if err != nil {
		return LiquidationResult{}, fmt.Errorf("repay debt: %w", err)
	}

	newCollateralValue, err := fpmath.MulDiv(originalCollateralValue, newCollateralAmount, originalCollateralAmount)
	if err != nil {
		return LiquidationResult{}, fmt.Errorf("revalue collateral: %w", err)
	}
	// Postcondition: the retained value can never exceed the original.
	if newCollateralValue > originalCollateralValue {
		return LiquidationResult{}, ErrInvalidCalculation
	}

	newStatus := StatusPartiallyLiquidated
	if newDeferred == 0 {
		newStatus = StatusLiquidated
	}
	if !pos.Status.CanTransitionTo(newStatus) {
		return LiquidationResult{}, ErrInvalidStatus
	}

	// All checks passed; assign in one shot.
	pos.CollateralAmount = newCollateralAmount
	pos.DeferredPaymentAmount = newDeferred
	pos.CollateralUsdValue = newCollateralValue
	pos.Status = newStatus
	pos.Version++

	l.log.Info().
		Str("position_id", id.String()).
		Int64("debt_repaid", debtToRepay).
		Int64("collateral_seized", collateralToSeize).
		Int64("remaining_debt", newDeferred).
		Str("status", newStatus.String()).
		Msg("liquidation applied")

	return LiquidationResult{
		DebtRepaid:         debtToRepay,
		CollateralSeized:   collateralToSeize,
		RemainingDebt:      newDeferred,
		CollateralUsdValue: newCollateralValue,
		Status:             newStatus,
	}, nil
}

// AssignDelegates sets the settlement and liquidation authorities.
// Owner-only; delegates must be non-zero.
func (l *Ledger) AssignDelegates(id, caller, settler, liquidator uuid.UUID) error {
	if settler == uuid.Nil || liquidator == uuid.Nil {
		return ErrInvalidDelegate
	}
	return l.With(id, func(pos *FinancingPosition) error {
		if pos.OwnerID != caller {
			return ErrUnauthorized
		}
		pos.DelegatedSettler = settler
		pos.DelegatedLiquidator = liquidator
		return nil
	})
}

// CurrentLtvBps computes the live loan-to-value ratio in basis points.
func (l *Ledger) CurrentLtvBps(id uuid.UUID) (int64, error) {
	pos, err := l.Get(id)
	if err != nil {
		return 0, err
	}
	obligationsUsd, err := fpmath.DebtToUsd(pos.DeferredPaymentAmount)
	if err != nil {
		return 0, err
	}
	return fpmath.ComputeLtvBps(obligationsUsd, pos.CollateralUsdValue)
}

// ValidateLtv is a read-only health recheck against the position's own
// max LTV. Drift above max is reported, not corrected.
func (l *Ledger) ValidateLtv(id uuid.UUID) error {
	pos, err := l.Get(id)
	if err != nil {
		return err
	}
	ltv, err := l.CurrentLtvBps(id)
	if err != nil {
		return err
	}
	if ltv > pos.MaxLtvBps {
		return fmt.Errorf("ltv %d bps above max %d bps", ltv, pos.MaxLtvBps)
	}
	return nil
}

// Count returns the number of records, for metrics and tests.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}
