package oracle

import (
	"FinLedger/internal/fpmath"
	"FinLedger/internal/position"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Economic guard failures. Expected and retriable; not defects.
var ErrPriceDeviationTooHigh = errors.New("price deviation above ceiling")

// Config holds the guard's global protocol constants. The deviation
// ceiling is protocol-wide, not per asset.
type Config struct {
	MaxDeviationPct int64     // whole percent; updates moving more than this are rejected
	ProtocolAdmin   uuid.UUID // may update any position regardless of source set
}

func DefaultConfig() Config {
	return Config{
		MaxDeviationPct: 10,
	}
}

// PriceGuard gatekeeps collateral price updates into position records:
// authorization against the bounded oracle source set, deviation bounds,
// and staleness bookkeeping. It never reacts to LTV drift; positions
// above max LTV are the liquidation coordinator's business.
type PriceGuard struct {
	ledger *position.Ledger
	clock  Clock
	cfg    Config
	log    zerolog.Logger
}

func NewPriceGuard(ledger *position.Ledger, clock Clock, cfg Config, log zerolog.Logger) *PriceGuard {
	return &PriceGuard{
		ledger: ledger,
		clock:  clock,
		cfg:    cfg,
		log:    log,
	}
}

// UpdatePrice admits a new 8-decimal collateral price into the position.
// On acceptance the price level and slot are stored and the position's
// collateral USD value is revalued proportionally to the price move, so
// invariant math downstream sees a single consistent valuation.
func (g *PriceGuard) UpdatePrice(positionID uuid.UUID, newPrice int64, authority uuid.UUID) error {
	if newPrice <= 0 {
		return fmt.Errorf("price must be positive: %d", newPrice)
	}

	slot := g.clock.Slot()

	err := g.ledger.With(positionID, func(pos *position.FinancingPosition) error {
		// The zero id is never a valid authority; an unset admin must not
		// turn it into one.
		if authority == uuid.Nil {
			return position.ErrUnauthorized
		}
		isAdmin := g.cfg.ProtocolAdmin != uuid.Nil && authority == g.cfg.ProtocolAdmin
		if !isAdmin && !pos.HasOracleSource(authority) {
			return position.ErrUnauthorized
		}

		lastPrice := pos.LastCollateralPrice
		newValue := pos.CollateralUsdValue

		// Deviation check is skipped only at bootstrap.
		if lastPrice > 0 {
			pct, err := fpmath.PctChange(lastPrice, newPrice)
			if err != nil {
				return err
			}
			if pct > g.cfg.MaxDeviationPct {
				return fmt.Errorf("%w: %d%% > %d%%", ErrPriceDeviationTooHigh, pct, g.cfg.MaxDeviationPct)
			}

			// Proportional revaluation at the accepted price ratio.
			newValue, err = fpmath.MulDiv(pos.CollateralUsdValue, newPrice, lastPrice)
			if err != nil {
				return err
			}
		}

		pos.LastCollateralPrice = newPrice
		pos.LastPriceUpdateSlot = slot
		pos.CollateralUsdValue = newValue
		return nil
	})
	if err != nil {
		return err
	}

	g.log.Debug().
		Str("position_id", positionID.String()).
		Int64("price", newPrice).
		Uint64("slot", slot).
		Msg("price accepted")
	return nil
}
