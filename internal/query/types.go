package query

import "time"

// PositionResponse is the HTTP/JSON shape of one position record.
type PositionResponse struct {
	PositionID            string    `json:"position_id"`
	OwnerID               string    `json:"owner_id"`
	CollateralAsset       string    `json:"collateral_asset"`
	FinancedAsset         string    `json:"financed_asset"`
	CollateralAmount      int64     `json:"collateral_amount"`
	CollateralUsdValue    int64     `json:"collateral_usd_value"`
	FinancedAmount        int64     `json:"financed_amount"`
	DeferredPaymentAmount int64     `json:"deferred_payment_amount"`
	InitialLtvBps         int64     `json:"initial_ltv_bps"`
	MaxLtvBps             int64     `json:"max_ltv_bps"`
	LiquidationThreshold  int64     `json:"liquidation_threshold_bps"`
	CurrentLtvBps         int64     `json:"current_ltv_bps"`
	LastCollateralPrice   int64     `json:"last_collateral_price"`
	LastPriceUpdateSlot   int64     `json:"last_price_update_slot"`
	Status                string    `json:"status"`
	Version               int64     `json:"version"`
	TermStart             int64     `json:"term_start"`
	TermEnd               int64     `json:"term_end"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// LiquidationResponse is one liquidation history row.
type LiquidationResponse struct {
	PositionID       string    `json:"position_id"`
	DebtRepaid       int64     `json:"debt_repaid"`
	CollateralSeized int64     `json:"collateral_seized"`
	BonusPaid        int64     `json:"bonus_paid"`
	RemainingDebt    int64     `json:"remaining_debt"`
	Status           string    `json:"status"`
	Slot             int64     `json:"slot"`
	Timestamp        time.Time `json:"timestamp"`
}
