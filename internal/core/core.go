// Package core wires the position ledger, price guard, liquidation
// coordinator, and settlement adapter into one facade, and fans
// successful mutations out to the persistence worker and the outbound
// event stream.
package core

import (
	"context"
	"errors"
	"time"

	"FinLedger/internal/custody"
	"FinLedger/internal/event"
	"FinLedger/internal/liquidation"
	"FinLedger/internal/observability"
	"FinLedger/internal/oracle"
	"FinLedger/internal/persistence"
	"FinLedger/internal/position"
	"FinLedger/internal/settlement"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config aggregates the per-layer protocol constants.
type Config struct {
	Ledger      position.Config
	Guard       oracle.Config
	Liquidation liquidation.Config
	Settlement  settlement.Config
}

func DefaultConfig() Config {
	return Config{
		Ledger:      position.DefaultConfig(),
		Guard:       oracle.DefaultConfig(),
		Liquidation: liquidation.DefaultConfig(),
		Settlement:  settlement.DefaultConfig(),
	}
}

// Core is the operational facade over the financing triad.
type Core struct {
	ledger      *position.Ledger
	guard       *oracle.PriceGuard
	coordinator *liquidation.Coordinator
	settlement  *settlement.Adapter
	feed        *oracle.Feed
	clock       oracle.Clock

	persistChan chan<- persistence.Record
	eventChan   chan<- event.Event

	metrics *observability.Metrics
	log     zerolog.Logger
}

func New(
	cfg Config,
	clock oracle.Clock,
	cust custody.Custody,
	settler settlement.Settler,
	persistChan chan<- persistence.Record,
	eventChan chan<- event.Event,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Core {
	c := &Core{
		clock:       clock,
		persistChan: persistChan,
		eventChan:   eventChan,
		metrics:     metrics,
		log:         log,
	}

	c.ledger = position.NewLedger(cfg.Ledger, log.With().Str("component", "ledger").Logger())
	c.feed = oracle.NewFeed(clock)
	c.guard = oracle.NewPriceGuard(c.ledger, clock, cfg.Guard, log.With().Str("component", "price_guard").Logger())
	c.coordinator = liquidation.NewCoordinator(
		c.ledger, c.feed, cust, clock, cfg.Liquidation,
		log.With().Str("component", "liquidation").Logger(),
		metrics, c.emit,
	)
	c.settlement = settlement.NewAdapter(
		c.ledger, cust, clock, settler, cfg.Settlement,
		log.With().Str("component", "settlement").Logger(),
		metrics, c.emit,
	)
	return c
}

// Ledger exposes the position ledger for read paths and tests.
func (c *Core) Ledger() *position.Ledger { return c.ledger }

// Feed exposes the oracle feed for the ingestion layer.
func (c *Core) Feed() *oracle.Feed { return c.feed }

// Coordinator exposes the step-wise liquidation protocol.
func (c *Core) Coordinator() *liquidation.Coordinator { return c.coordinator }

func (c *Core) emit(evt event.Event) {
	if c.eventChan == nil {
		return
	}
	c.eventChan <- evt
}

func (c *Core) persist(rec persistence.Record) {
	if c.persistChan == nil {
		return
	}
	c.persistChan <- rec
}

// OpenPosition opens a financing position and records it.
func (c *Core) OpenPosition(params position.OpenParams) (uuid.UUID, error) {
	id, err := c.ledger.Open(params, c.clock.Slot())
	if err != nil {
		c.metrics.OpenRejected.WithLabelValues(openRejectReason(err)).Inc()
		return uuid.Nil, err
	}

	c.metrics.PositionsOpened.Inc()
	c.metrics.ActivePositions.Set(float64(c.ledger.Count()))

	pos, _ := c.ledger.Get(id)
	c.emit(&event.PositionOpened{
		Position:        id,
		OwnerID:         params.OwnerID,
		CollateralAsset: params.CollateralAsset,
		CollateralUsd:   pos.CollateralUsdValue,
		DeferredPayment: pos.DeferredPaymentAmount,
		InitialLtvBps:   pos.InitialLtvBps,
		TermEnd:         pos.TermEnd,
	})
	c.persistPosition(pos)
	return id, nil
}

// UpdatePrice runs one observation through the guard and records the
// accepted update.
func (c *Core) UpdatePrice(positionID uuid.UUID, newPrice int64, authority uuid.UUID) error {
	if err := c.guard.UpdatePrice(positionID, newPrice, authority); err != nil {
		return err
	}

	pos, err := c.ledger.Get(positionID)
	if err != nil {
		return err
	}
	c.emit(&event.PriceUpdated{
		Position:  positionID,
		Price:     newPrice,
		Slot:      pos.LastPriceUpdateSlot,
		Authority: authority,
	})
	c.persist(persistence.Record{PriceUpdate: &persistence.PriceUpdateRow{
		IdempotencyKey: (&event.PriceUpdated{Position: positionID, Slot: pos.LastPriceUpdateSlot}).IdempotencyKey(),
		PositionID:     positionID.String(),
		Price:          newPrice,
		Slot:           int64(pos.LastPriceUpdateSlot),
		Authority:      authority.String(),
		Timestamp:      c.clock.Now(),
	}})
	c.persistPosition(pos)
	return nil
}

// Liquidate runs the full liquidation protocol in one call: trigger
// check against the position's own threshold, snapshot freeze, guarded
// execution. The step-wise Run API remains available through
// Coordinator for callers that manage the protocol themselves.
func (c *Core) Liquidate(ctx context.Context, positionID uuid.UUID, pct int64) (liquidation.Result, error) {
	start := time.Now()

	pos, err := c.ledger.Get(positionID)
	if err != nil {
		return liquidation.Result{}, err
	}
	currentLtv, err := c.coordinator.CurrentLtv(positionID)
	if err != nil {
		return liquidation.Result{}, err
	}

	run := c.coordinator.NewRun(positionID)
	if err := run.CheckTrigger(currentLtv, pos.LiquidationThresholdBps); err != nil {
		return liquidation.Result{}, err
	}
	if err := run.FreezeSnapshot(); err != nil {
		return liquidation.Result{}, err
	}
	res, err := run.ExecuteLiquidation(ctx, pct)
	if err != nil {
		return liquidation.Result{}, err
	}

	c.metrics.LiquidationDuration.Observe(time.Since(start).Seconds())

	slot := c.clock.Slot()
	after, _ := c.ledger.Get(positionID)
	c.persist(persistence.Record{Liquidation: &persistence.LiquidationRow{
		IdempotencyKey:   (&event.LiquidationExecuted{Position: positionID, Slot: slot}).IdempotencyKey(),
		PositionID:       positionID.String(),
		DebtRepaid:       res.DebtRepaid,
		CollateralSeized: res.CollateralSeized,
		BonusPaid:        res.BonusPaid,
		RemainingDebt:    res.RemainingDebt,
		Status:           res.Status.String(),
		Slot:             int64(slot),
		Timestamp:        c.clock.Now(),
	}})
	if after != nil {
		c.persistPosition(after)
	}
	return res, nil
}

// SettleAtMaturity settles a matured position and records the closure.
func (c *Core) SettleAtMaturity(ctx context.Context, positionID uuid.UUID) (settlement.Result, error) {
	res, err := c.settlement.SettleAtMaturity(ctx, positionID)
	if err != nil {
		return settlement.Result{}, err
	}
	if pos, err := c.ledger.Get(positionID); err == nil {
		c.persistPosition(pos)
	}
	return res, nil
}

// CloseEarly settles before maturity against a full repayment.
func (c *Core) CloseEarly(ctx context.Context, positionID uuid.UUID, repayment int64) (settlement.Result, error) {
	res, err := c.settlement.CloseEarly(ctx, positionID, repayment)
	if err != nil {
		return settlement.Result{}, err
	}
	if pos, err := c.ledger.Get(positionID); err == nil {
		c.persistPosition(pos)
	}
	return res, nil
}

func (c *Core) persistPosition(pos *position.FinancingPosition) {
	c.persist(persistence.Record{Position: &persistence.PositionRow{
		PositionID:            pos.ID.String(),
		OwnerID:               pos.OwnerID.String(),
		CollateralAsset:       pos.CollateralAsset,
		FinancedAsset:         pos.FinancedAsset,
		CollateralAmount:      pos.CollateralAmount,
		CollateralUsdValue:    pos.CollateralUsdValue,
		FinancedAmount:        pos.FinancedAmount,
		DeferredPaymentAmount: pos.DeferredPaymentAmount,
		InitialLtvBps:         pos.InitialLtvBps,
		MaxLtvBps:             pos.MaxLtvBps,
		LiquidationThreshold:  pos.LiquidationThresholdBps,
		LastCollateralPrice:   pos.LastCollateralPrice,
		LastPriceUpdateSlot:   int64(pos.LastPriceUpdateSlot),
		Status:                pos.Status.String(),
		Version:               pos.Version,
		TermStart:             pos.TermStart,
		TermEnd:               pos.TermEnd,
		UpdatedAt:             c.clock.Now(),
	}})
}

func openRejectReason(err error) string {
	switch {
	case errors.Is(err, position.ErrInvalidLtvOrdering):
		return "ltv_ordering"
	case errors.Is(err, position.ErrMinimumPositionSize):
		return "min_size"
	case errors.Is(err, position.ErrPositionLimitExceeded):
		return "position_limit"
	case errors.Is(err, position.ErrZeroCollateral):
		return "zero_collateral"
	case errors.Is(err, position.ErrInvalidTerm):
		return "invalid_term"
	case errors.Is(err, position.ErrTooManyOracleSources):
		return "oracle_sources"
	case errors.Is(err, position.ErrNegativeEquity):
		return "negative_equity"
	default:
		return "other"
	}
}
