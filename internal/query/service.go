package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"FinLedger/internal/fpmath"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

// Service provides read-only access to the persisted position tables.
// Reads are served from Postgres, not live ledger memory, so responses
// trail the core by at most one persist batch.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

const positionColumns = `position_id, owner_id, collateral_asset, financed_asset,
	collateral_amount, collateral_usd_value, financed_amount, deferred_payment_amount,
	initial_ltv_bps, max_ltv_bps, liquidation_threshold_bps,
	last_collateral_price, last_price_update_slot, status, version,
	term_start, term_end, updated_at`

// GetPosition returns one position by id.
func (s *Service) GetPosition(ctx context.Context, id uuid.UUID) (*PositionResponse, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+positionColumns+" FROM finledger.positions WHERE position_id = $1", id)
	return scanPosition(row)
}

// ListPositionsByOwner returns all positions for one owner.
func (s *Service) ListPositionsByOwner(ctx context.Context, owner uuid.UUID) ([]*PositionResponse, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+positionColumns+" FROM finledger.positions WHERE owner_id = $1 ORDER BY collateral_asset", owner)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []*PositionResponse
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

// ListLiquidations returns the liquidation history for one position,
// newest first.
func (s *Service) ListLiquidations(ctx context.Context, positionID uuid.UUID) ([]*LiquidationResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_id, debt_repaid, collateral_seized, bonus_paid,
		       remaining_debt, status, slot, timestamp
		FROM finledger.liquidation_history
		WHERE position_id = $1
		ORDER BY slot DESC`, positionID)
	if err != nil {
		return nil, fmt.Errorf("list liquidations: %w", err)
	}
	defer rows.Close()

	var out []*LiquidationResponse
	for rows.Next() {
		var l LiquidationResponse
		if err := rows.Scan(&l.PositionID, &l.DebtRepaid, &l.CollateralSeized, &l.BonusPaid,
			&l.RemainingDebt, &l.Status, &l.Slot, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("scan liquidation: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*PositionResponse, error) {
	var p PositionResponse
	err := row.Scan(
		&p.PositionID, &p.OwnerID, &p.CollateralAsset, &p.FinancedAsset,
		&p.CollateralAmount, &p.CollateralUsdValue, &p.FinancedAmount, &p.DeferredPaymentAmount,
		&p.InitialLtvBps, &p.MaxLtvBps, &p.LiquidationThreshold,
		&p.LastCollateralPrice, &p.LastPriceUpdateSlot, &p.Status, &p.Version,
		&p.TermStart, &p.TermEnd, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan position: %w", err)
	}

	// Derived at query time, same formula as the ledger.
	if p.CollateralUsdValue > 0 {
		obligationsUsd, err := fpmath.DebtToUsd(p.DeferredPaymentAmount)
		if err == nil {
			if ltv, err := fpmath.ComputeLtvBps(obligationsUsd, p.CollateralUsdValue); err == nil {
				p.CurrentLtvBps = ltv
			}
		}
	}
	return &p, nil
}
