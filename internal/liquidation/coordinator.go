package liquidation

import (
	"context"
	"errors"
	"fmt"

	"FinLedger/internal/custody"
	"FinLedger/internal/event"
	"FinLedger/internal/fpmath"
	"FinLedger/internal/observability"
	"FinLedger/internal/oracle"
	"FinLedger/internal/position"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Phase tracks one liquidation run through its protocol steps
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseTriggered
	PhaseSnapshotFrozen
	PhaseExecuting
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseTriggered:
		return "Triggered"
	case PhaseSnapshotFrozen:
		return "SnapshotFrozen"
	case PhaseExecuting:
		return "Executing"
	case PhaseDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Config holds the coordinator's global protocol constants.
type Config struct {
	MinDelaySlots       uint64 // slots that must elapse after a price update
	MinPartialPct       int64  // smallest allowed partial liquidation
	MinDustDebt         int64  // 6dp; remainders below this force full liquidation
	BonusBps            int64  // liquidator incentive on repaid debt
	MaxSnapshotAgeSlots uint64 // frozen snapshot expiry
}

func DefaultConfig() Config {
	return Config{
		MinDelaySlots:       2,
		MinPartialPct:       25,
		MinDustDebt:         100 * fpmath.DebtConfig.Scale, // $100
		BonusBps:            250,                           // 2.5%
		MaxSnapshotAgeSlots: 100,                           // ~40s at 400ms/slot
	}
}

// Coordinator orchestrates the liquidation protocol against one
// position at a time: trigger check, snapshot freeze, guarded
// execution. It is the only caller permitted to mutate debt and
// collateral through the ledger outside of Open and settlement.
type Coordinator struct {
	ledger  *position.Ledger
	oracle  oracle.Oracle
	custody custody.Custody
	clock   oracle.Clock
	cfg     Config
	log     zerolog.Logger
	metrics *observability.Metrics
	emit    func(event.Event)
}

func NewCoordinator(
	ledger *position.Ledger,
	orc oracle.Oracle,
	cust custody.Custody,
	clock oracle.Clock,
	cfg Config,
	log zerolog.Logger,
	metrics *observability.Metrics,
	emit func(event.Event),
) *Coordinator {
	if emit == nil {
		emit = func(event.Event) {}
	}
	return &Coordinator{
		ledger:  ledger,
		oracle:  orc,
		custody: cust,
		clock:   clock,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		emit:    emit,
	}
}

// Run is one liquidation attempt against one position. A Run is owned
// by a single caller and is not safe for concurrent use; concurrent
// protection lives in the ledger's scoped liquidation lock.
type Run struct {
	c          *Coordinator
	positionID uuid.UUID
	phase      Phase
	snapshot   *oracle.FrozenSnapshot
}

func (c *Coordinator) NewRun(positionID uuid.UUID) *Run {
	return &Run{c: c, positionID: positionID, phase: PhaseIdle}
}

func (r *Run) Phase() Phase { return r.phase }

// CurrentLtv reads the position's live LTV in basis points.
func (c *Coordinator) CurrentLtv(positionID uuid.UUID) (int64, error) {
	return c.ledger.CurrentLtvBps(positionID)
}

// CheckTrigger is a pure, repeatable read: it moves the run to
// Triggered iff currentLtv >= threshold and touches nothing else.
// Repeated calls produce no further state change.
func (r *Run) CheckTrigger(currentLtv, threshold int64) error {
	if r.phase != PhaseIdle && r.phase != PhaseTriggered {
		return fmt.Errorf("%w: %s", ErrInvalidPhase, r.phase)
	}
	if currentLtv < threshold {
		return fmt.Errorf("%w: ltv %d bps < threshold %d bps", ErrLiquidationNotTriggered, currentLtv, threshold)
	}
	if r.phase == PhaseIdle {
		r.phase = PhaseTriggered
		r.c.metrics.LiquidationTriggered.Inc()
		r.c.emit(&event.LiquidationTriggered{
			Position:     r.positionID,
			CurrentLtv:   currentLtv,
			ThresholdBps: threshold,
			Slot:         r.c.clock.Slot(),
		})
	}
	return nil
}

// FreezeSnapshot captures the oracle's current validated price for all
// seize math in this run. A still-fresh snapshot cannot be replaced;
// an expired one must be, before execution may proceed.
func (r *Run) FreezeSnapshot() error {
	switch r.phase {
	case PhaseTriggered:
		// first freeze
	case PhaseSnapshotFrozen:
		if !r.snapshot.Expired(r.c.clock.Slot(), r.c.cfg.MaxSnapshotAgeSlots) {
			return ErrSnapshotStillFresh
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidPhase, r.phase)
	}

	pos, err := r.c.ledger.Get(r.positionID)
	if err != nil {
		return err
	}
	snap, err := r.c.oracle.FreezeSnapshot(pos.CollateralAsset)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotMissing, err)
	}

	r.snapshot = &snap
	r.phase = PhaseSnapshotFrozen
	r.c.emit(&event.SnapshotFrozen{
		Position:    r.positionID,
		FrozenPrice: snap.Price,
		FrozenSlot:  snap.Slot,
	})
	return nil
}

// Result reports the outcome of one executed liquidation.
type Result struct {
	DebtRepaid       int64
	CollateralSeized int64
	BonusPaid        int64
	RemainingDebt    int64
	Status           position.Status
}

// ExecuteLiquidation runs the guarded execution step. Guards are
// evaluated strictly in order; any failure aborts with zero ledger
// effect and the liquidation lock released.
func (r *Run) ExecuteLiquidation(ctx context.Context, pct int64) (Result, error) {
	if r.phase != PhaseSnapshotFrozen {
		if r.snapshot == nil {
			return Result{}, ErrSnapshotMissing
		}
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidPhase, r.phase)
	}

	res, err := r.execute(ctx, pct)
	if err != nil {
		// Failed executions return to SnapshotFrozen; the caller may
		// retry once the failing guard clears (refreezing if expired).
		r.phase = PhaseSnapshotFrozen
		r.c.metrics.LiquidationRejected.WithLabelValues(guardLabel(err)).Inc()
		return Result{}, err
	}

	r.phase = PhaseDone
	r.c.metrics.LiquidationExecuted.WithLabelValues(res.Status.String()).Inc()
	r.c.metrics.DebtRepaid.Add(float64(res.DebtRepaid) / float64(fpmath.DebtConfig.Scale))
	r.c.metrics.BonusPaid.Add(float64(res.BonusPaid) / float64(fpmath.DebtConfig.Scale))
	r.c.emit(&event.LiquidationExecuted{
		Position:         r.positionID,
		DebtRepaid:       res.DebtRepaid,
		CollateralSeized: res.CollateralSeized,
		BonusPaid:        res.BonusPaid,
		RemainingDebt:    res.RemainingDebt,
		Status:           res.Status.String(),
		Slot:             r.c.clock.Slot(),
	})
	return res, nil
}

func (r *Run) execute(ctx context.Context, pct int64) (Result, error) {
	c := r.c

	// Guard 1: reentrancy. Execution calls out to custody, which could
	// re-enter; the scoped lock rejects that. Released on every exit
	// path below, success or failure.
	if err := c.ledger.BeginLiquidation(r.positionID); err != nil {
		return Result{}, err
	}
	defer c.ledger.EndLiquidation(r.positionID)

	r.phase = PhaseExecuting

	pos, err := c.ledger.Get(r.positionID)
	if err != nil {
		return Result{}, err
	}

	// Guard 2: minimum delay after the last price update. Liquidating
	// on the heels of an update would let the update itself be the
	// manipulation vector.
	currentSlot := c.clock.Slot()
	if currentSlot < pos.LastPriceUpdateSlot+c.cfg.MinDelaySlots {
		return Result{}, fmt.Errorf("%w: slot %d, last update %d, min delay %d",
			ErrPriceUpdateTooRecent, currentSlot, pos.LastPriceUpdateSlot, c.cfg.MinDelaySlots)
	}

	// Snapshot expiry re-check at execution time.
	if r.snapshot.Expired(currentSlot, c.cfg.MaxSnapshotAgeSlots) {
		return Result{}, ErrSnapshotExpired
	}

	// Guard 3: percentage bounds.
	if pct <= 0 || pct > 100 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidPercentage, pct)
	}
	if pct < 100 && pct < c.cfg.MinPartialPct {
		return Result{}, fmt.Errorf("%w: %d%% < %d%%", ErrLiquidationAmountTooSmall, pct, c.cfg.MinPartialPct)
	}

	// Guard 4: dust. A partial that leaves a remainder too small to be
	// worth another round is rejected; only full liquidation is valid.
	debtToRepay, err := fpmath.MulDiv(pos.DeferredPaymentAmount, pct, 100)
	if err != nil {
		return Result{}, err
	}
	remaining := pos.DeferredPaymentAmount - debtToRepay
	if remaining > 0 && remaining < c.cfg.MinDustDebt {
		return Result{}, fmt.Errorf("%w: remainder %d below %d", ErrPositionTooSmallToPartialLiquidate, remaining, c.cfg.MinDustDebt)
	}

	// Guard 5: seize computation against the frozen snapshot price.
	bonus, err := fpmath.MulBps(debtToRepay, c.cfg.BonusBps)
	if err != nil {
		return Result{}, err
	}
	totalClaim, err := fpmath.CheckedAdd(debtToRepay, bonus)
	if err != nil {
		return Result{}, err
	}
	claimUsd, err := fpmath.DebtToUsd(totalClaim)
	if err != nil {
		return Result{}, err
	}
	collateralToSeize, err := fpmath.UsdToTokenUnits(claimUsd, r.snapshot.Price, pos.CollateralDecimals)
	if err != nil {
		return Result{}, err
	}
	if collateralToSeize > pos.CollateralAmount {
		// Bad-debt condition; the write-off path is external.
		return Result{}, fmt.Errorf("%w: need %d, have %d", ErrInsufficientCollateral, collateralToSeize, pos.CollateralAmount)
	}

	// Custody moves first, under the lock; a failed transfer aborts
	// with zero ledger effect.
	if err := c.custody.TransferOut(ctx, pos.CollateralAsset, collateralToSeize); err != nil {
		return Result{}, fmt.Errorf("custody transfer: %w", err)
	}

	applied, err := c.ledger.ApplyLiquidation(r.positionID, debtToRepay, collateralToSeize)
	if err != nil {
		// The ledger rejected after custody moved; return the seized
		// collateral so the abort really is all-or-nothing.
		if refundErr := c.custody.TransferIn(ctx, pos.CollateralAsset, collateralToSeize); refundErr != nil {
			err = errors.Join(err, fmt.Errorf("custody refund: %w", refundErr))
		}
		return Result{}, err
	}

	c.log.Info().
		Str("position_id", r.positionID.String()).
		Int64("pct", pct).
		Int64("debt_repaid", applied.DebtRepaid).
		Int64("collateral_seized", applied.CollateralSeized).
		Int64("bonus", bonus).
		Str("status", applied.Status.String()).
		Msg("liquidation executed")

	return Result{
		DebtRepaid:       applied.DebtRepaid,
		CollateralSeized: applied.CollateralSeized,
		BonusPaid:        bonus,
		RemainingDebt:    applied.RemainingDebt,
		Status:           applied.Status,
	}, nil
}

// guardLabel maps an execution failure to its metrics label.
func guardLabel(err error) string {
	switch {
	case errors.Is(err, position.ErrLiquidationInProgress):
		return "reentrancy"
	case errors.Is(err, ErrPriceUpdateTooRecent):
		return "delay"
	case errors.Is(err, ErrSnapshotExpired):
		return "snapshot_expired"
	case errors.Is(err, ErrInvalidPercentage), errors.Is(err, ErrLiquidationAmountTooSmall):
		return "bounds"
	case errors.Is(err, ErrPositionTooSmallToPartialLiquidate):
		return "dust"
	case errors.Is(err, ErrInsufficientCollateral):
		return "insufficient_collateral"
	case errors.Is(err, custody.ErrInsufficientBalance), errors.Is(err, custody.ErrVaultPaused):
		return "custody"
	case errors.Is(err, fpmath.ErrMathOverflow), errors.Is(err, fpmath.ErrDivideByZero):
		return "arithmetic"
	default:
		return "other"
	}
}
