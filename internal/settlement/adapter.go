// Package settlement bridges matured or early-closed positions to the
// external settlement engine. The adapter computes final obligations
// (debt plus carry) and the proceeds waterfall, hands both to the
// settler, and tears the record down through the ledger.
package settlement

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

var (
	ErrNotMatured      = errors.New("position has not matured")
	ErrRepaymentTooLow = errors.New("early close requires full repayment of obligations")
)

// Settler is the external settlement collaborator. It receives the
// position's final read of obligations and collateral value; everything
// downstream of that is out of this core's hands.
type Settler interface {
	Settle(ctx context.Context, positionID uuid.UUID, finalObligations, finalCollateralValue int64) error
}

// Waterfall shares applied to total proceeds at settlement.
const (
	protocolSharePct = 4
	treasurySharePct = 16
)

// Config holds settlement-side protocol constants.
type Config struct {
	CarryBps int64 // annualized carry applied when the position has carry enabled
}

func DefaultConfig() Config {
	return Config{CarryBps: 50}
}

// Adapter consumes final obligations at maturity or early close.
type Adapter struct {
	ledger  *position.Ledger
	custody custody.Custody
	clock   oracle.Clock
	settler Settler
	cfg     Config
	log     zerolog.Logger
	metrics *observability.Metrics
	emit    func(event.Event)
}

func NewAdapter(
	ledger *position.Ledger,
	cust custody.Custody,
	clock oracle.Clock,
	settler Settler,
	cfg Config,
	log zerolog.Logger,
	metrics *observability.Metrics,
	emit func(event.Event),
) *Adapter {
	if emit == nil {
		emit = func(event.Event) {}
	}
	return &Adapter{
		ledger:  ledger,
		custody: cust,
		clock:   clock,
		settler: settler,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		emit:    emit,
	}
}

// Result reports the settlement waterfall applied to one position.
type Result struct {
	FinalObligations     int64
	FinalCollateralValue int64
	Carry                int64
	ProtocolShare        int64
	TreasuryShare        int64
	UserShare            int64
}

// FinalObligations computes debt plus carry for a position.
func (a *Adapter) FinalObligations(pos *position.FinancingPosition) (obligations, carry int64, err error) {
	obligations = pos.DeferredPaymentAmount
	if pos.CarryEnabled {
		carry, err = fpmath.MulBps(obligations, a.cfg.CarryBps)
		if err != nil {
			return 0, 0, err
		}
		obligations, err = fpmath.CheckedAdd(obligations, carry)
		if err != nil {
			return 0, 0, err
		}
	}
	return obligations, carry, nil
}

// SettleAtMaturity closes a position whose term window has elapsed:
// obligations are read out, the waterfall computed, the settler
// notified, collateral returned through custody, and the record moved
// Settled then Closed.
//
// The whole settlement runs under the position's liquidation lock, so
// no liquidation can interleave with the settler callout and the
// custody amounts are always computed from the live record.
func (a *Adapter) SettleAtMaturity(ctx context.Context, positionID uuid.UUID) (Result, error) {
	if err := a.ledger.BeginLiquidation(positionID); err != nil {
		return Result{}, err
	}
	defer a.ledger.EndLiquidation(positionID)

	pos, err := a.ledger.Get(positionID)
	if err != nil {
		return Result{}, err
	}
	if !pos.IsMatured(a.clock.Now().Unix()) {
		return Result{}, ErrNotMatured
	}
	return a.settle(ctx, pos, "maturity")
}

// CloseEarly settles before maturity against a full repayment of the
// final obligations, transferred in through custody before any ledger
// effect. Runs under the position's liquidation lock like
// SettleAtMaturity.
func (a *Adapter) CloseEarly(ctx context.Context, positionID uuid.UUID, repayment int64) (Result, error) {
	if err := a.ledger.BeginLiquidation(positionID); err != nil {
		return Result{}, err
	}
	defer a.ledger.EndLiquidation(positionID)

	pos, err := a.ledger.Get(positionID)
	if err != nil {
		return Result{}, err
	}
	obligations, _, err := a.FinalObligations(pos)
	if err != nil {
		return Result{}, err
	}
	if repayment < obligations {
		return Result{}, fmt.Errorf("%w: repayment %d < obligations %d", ErrRepaymentTooLow, repayment, obligations)
	}
	if err := a.custody.TransferIn(ctx, pos.FinancedAsset, repayment); err != nil {
		return Result{}, fmt.Errorf("repayment transfer: %w", err)
	}
	return a.settle(ctx, pos, "early_close")
}

// settle requires the caller to hold the position's liquidation lock;
// pos must be a read taken after the lock was acquired.
func (a *Adapter) settle(ctx context.Context, pos *position.FinancingPosition, kind string) (Result, error) {
	if pos.Status != position.StatusOpen && pos.Status != position.StatusPartiallyLiquidated {
		return Result{}, position.ErrInvalidStatus
	}

	obligations, carry, err := a.FinalObligations(pos)
	if err != nil {
		return Result{}, err
	}

	res, err := waterfall(obligations, carry)
	if err != nil {
		return Result{}, err
	}
	res.FinalCollateralValue = pos.CollateralUsdValue

	if err := a.settler.Settle(ctx, pos.ID, res.FinalObligations, res.FinalCollateralValue); err != nil {
		return Result{}, fmt.Errorf("settler: %w", err)
	}

	// Return remaining collateral to the owner.
	if pos.CollateralAmount > 0 {
		if err := a.custody.TransferOut(ctx, pos.CollateralAsset, pos.CollateralAmount); err != nil {
			return Result{}, fmt.Errorf("collateral return: %w", err)
		}
	}

	err = a.ledger.With(pos.ID, func(live *position.FinancingPosition) error {
		if !live.Status.CanTransitionTo(position.StatusSettled) {
			return position.ErrInvalidStatus
		}
		live.Status = position.StatusSettled
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	// Teardown is a separate transition so downstream consumers observe
	// the settled state before the record closes.
	err = a.ledger.With(pos.ID, func(live *position.FinancingPosition) error {
		live.Status = position.StatusClosed
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	a.metrics.PositionsSettled.WithLabelValues(kind).Inc()
	a.emit(&event.PositionSettled{
		Position:             pos.ID,
		FinalObligations:     res.FinalObligations,
		FinalCollateralValue: res.FinalCollateralValue,
		ProtocolShare:        res.ProtocolShare,
		TreasuryShare:        res.TreasuryShare,
		UserShare:            res.UserShare,
	})
	a.emit(&event.PositionClosed{Position: pos.ID, Reason: kind})

	a.log.Info().
		Str("position_id", pos.ID.String()).
		Str("kind", kind).
		Int64("final_obligations", res.FinalObligations).
		Int64("final_collateral_value", res.FinalCollateralValue).
		Msg("position settled")

	return res, nil
}

// waterfall splits total proceeds: protocol 4%, LP treasury 16%, user
// remainder.
func waterfall(obligations, carry int64) (Result, error) {
	total := obligations
	protocol, err := fpmath.MulDiv(total, protocolSharePct, 100)
	if err != nil {
		return Result{}, err
	}
	treasury, err := fpmath.MulDiv(total, treasurySharePct, 100)
	if err != nil {
		return Result{}, err
	}
	user, err := fpmath.CheckedSub(total, protocol)
	if err != nil {
		return Result{}, err
	}
	user, err = fpmath.CheckedSub(user, treasury)
	if err != nil {
		return Result{}, err
	}
	return Result{
		FinalObligations: obligations,
		Carry:            carry,
		ProtocolShare:    protocol,
		TreasuryShare:    treasury,
		UserShare:        user,
	}, nil
}
