package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Writer persists position snapshots and append-only history rows to
// Postgres. History writes use multi-row INSERT with ON CONFLICT DO
// NOTHING so replays are idempotent; position snapshots are upserts
// keyed by position id.
type Writer struct {
	db *sql.DB
}

func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// PositionRow mirrors finledger.positions.
type PositionRow struct {
	PositionID            string
	OwnerID               string
	CollateralAsset       string
	FinancedAsset         string
	CollateralAmount      int64
	CollateralUsdValue    int64
	FinancedAmount        int64
	DeferredPaymentAmount int64
	InitialLtvBps         int64
	MaxLtvBps             int64
	LiquidationThreshold  int64
	LastCollateralPrice   int64
	LastPriceUpdateSlot   int64
	Status                string
	Version               int64
	TermStart             int64
	TermEnd               int64
	UpdatedAt             time.Time
}

// LiquidationRow mirrors finledger.liquidation_history.
type LiquidationRow struct {
	IdempotencyKey   string
	PositionID       string
	DebtRepaid       int64
	CollateralSeized int64
	BonusPaid        int64
	RemainingDebt    int64
	Status           string
	Slot             int64
	Timestamp        time.Time
}

// PriceUpdateRow mirrors finledger.price_updates.
type PriceUpdateRow struct {
	IdempotencyKey string
	PositionID     string
	Price          int64
	Slot           int64
	Authority      string
	Timestamp      time.Time
}

// UpsertPositions writes position snapshots, last-writer-wins on the
// version column.
func (w *Writer) UpsertPositions(ctx context.Context, rows []PositionRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO finledger.positions
		(position_id, owner_id, collateral_asset, financed_asset,
		 collateral_amount, collateral_usd_value, financed_amount, deferred_payment_amount,
		 initial_ltv_bps, max_ltv_bps, liquidation_threshold_bps,
		 last_collateral_price, last_price_update_slot, status, version,
		 term_start, term_end, updated_at)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*18)

	for i, r := range rows {
		base := i * 18
		placeholders := make([]string, 18)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		values = append(values, "("+strings.Join(placeholders, ", ")+")")
		args = append(args,
			r.PositionID, r.OwnerID, r.CollateralAsset, r.FinancedAsset,
			r.CollateralAmount, r.CollateralUsdValue, r.FinancedAmount, r.DeferredPaymentAmount,
			r.InitialLtvBps, r.MaxLtvBps, r.LiquidationThreshold,
			r.LastCollateralPrice, r.LastPriceUpdateSlot, r.Status, r.Version,
			r.TermStart, r.TermEnd, r.UpdatedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (position_id) DO UPDATE SET
		collateral_amount = EXCLUDED.collateral_amount,
		collateral_usd_value = EXCLUDED.collateral_usd_value,
		deferred_payment_amount = EXCLUDED.deferred_payment_amount,
		last_collateral_price = EXCLUDED.last_collateral_price,
		last_price_update_slot = EXCLUDED.last_price_update_slot,
		status = EXCLUDED.status,
		version = EXCLUDED.version,
		updated_at = EXCLUDED.updated_at
		WHERE finledger.positions.version < EXCLUDED.version`

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}

// WriteLiquidations appends liquidation history rows.
func (w *Writer) WriteLiquidations(ctx context.Context, rows []LiquidationRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO finledger.liquidation_history
		(idempotency_key, position_id, debt_repaid, collateral_seized, bonus_paid,
		 remaining_debt, status, slot, timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*9)

	for i, r := range rows {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			r.IdempotencyKey, r.PositionID, r.DebtRepaid, r.CollateralSeized, r.BonusPaid,
			r.RemainingDebt, r.Status, r.Slot, r.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (idempotency_key) DO NOTHING"

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}

// WritePriceUpdates appends accepted price updates to the audit log.
func (w *Writer) WritePriceUpdates(ctx context.Context, rows []PriceUpdateRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO finledger.price_updates
		(idempotency_key, position_id, price, slot, authority, timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*6)

	for i, r := range rows {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args, r.IdempotencyKey, r.PositionID, r.Price, r.Slot, r.Authority, r.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (idempotency_key) DO NOTHING"

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}
