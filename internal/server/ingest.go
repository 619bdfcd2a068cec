package server

import (
	"errors"
	"net/http"

	"FinLedger/internal/core"
	"FinLedger/internal/liquidation"
	"FinLedger/internal/oracle"
	"FinLedger/internal/position"
	"FinLedger/internal/settlement"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
)

// openPositionRequest is the wire shape for POST /v1/positions.
type openPositionRequest struct {
	OwnerID                 uuid.UUID   `json:"owner_id"`
	CollateralAsset         string      `json:"collateral_asset"`
	FinancedAsset           string      `json:"financed_asset"`
	CollateralAmount        int64       `json:"collateral_amount"`
	CollateralDecimals      int         `json:"collateral_decimals"`
	CollateralUsdValue      int64       `json:"collateral_usd_value"`
	FinancingAmount         int64       `json:"financing_amount"`
	InitialLtvBps           int64       `json:"initial_ltv_bps"`
	MaxLtvBps               int64       `json:"max_ltv_bps"`
	LiquidationThresholdBps int64       `json:"liquidation_threshold_bps"`
	FeeScheduleBps          int64       `json:"fee_schedule_bps"`
	CarryEnabled            bool        `json:"carry_enabled"`
	TermStart               int64       `json:"term_start"`
	TermEnd                 int64       `json:"term_end"`
	OracleSources           []uuid.UUID `json:"oracle_sources"`
}

type liquidateRequest struct {
	Pct int64 `json:"pct"`
}

type closeEarlyRequest struct {
	Repayment int64 `json:"repayment"`
}

type assignDelegatesRequest struct {
	Caller     uuid.UUID `json:"caller"`
	Settler    uuid.UUID `json:"settler"`
	Liquidator uuid.UUID `json:"liquidator"`
}

func (s *Server) registerIngestRoutes(mux *runtime.ServeMux, c *core.Core) error {
	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{"POST", "/v1/positions", s.instrument("open_position", func(w http.ResponseWriter, r *http.Request, params map[string]string) (any, error) {
			var req openPositionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				return nil, badRequest(err)
			}
			id, err := c.OpenPosition(position.OpenParams{
				OwnerID:                 req.OwnerID,
				CollateralAsset:         req.CollateralAsset,
				FinancedAsset:           req.FinancedAsset,
				CollateralAmount:        req.CollateralAmount,
				CollateralDecimals:      req.CollateralDecimals,
				CollateralUsdValue:      req.CollateralUsdValue,
				FinancingAmount:         req.FinancingAmount,
				InitialLtvBps:           req.InitialLtvBps,
				MaxLtvBps:               req.MaxLtvBps,
				LiquidationThresholdBps: req.LiquidationThresholdBps,
				FeeScheduleBps:          req.FeeScheduleBps,
				CarryEnabled:            req.CarryEnabled,
				TermStart:               req.TermStart,
				TermEnd:                 req.TermEnd,
				OracleSources:           req.OracleSources,
			})
			if err != nil {
				return nil, domainError(err)
			}
			return map[string]string{"position_id": id.String()}, nil
		})},
		{"POST", "/v1/positions/{position_id}/liquidate", s.instrument("liquidate", func(w http.ResponseWriter, r *http.Request, params map[string]string) (any, error) {
			id, err := uuid.Parse(params["position_id"])
			if err != nil {
				return nil, badRequest(err)
			}
			var req liquidateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				return nil, badRequest(err)
			}
			res, err := c.Liquidate(r.Context(), id, req.Pct)
			if err != nil {
				return nil, domainError(err)
			}
			return map[string]any{
				"debt_repaid":       res.DebtRepaid,
				"collateral_seized": res.CollateralSeized,
				"bonus_paid":        res.BonusPaid,
				"remaining_debt":    res.RemainingDebt,
				"status":            res.Status.String(),
			}, nil
		})},
		{"POST", "/v1/positions/{position_id}/settle", s.instrument("settle", func(w http.ResponseWriter, r *http.Request, params map[string]string) (any, error) {
			id, err := uuid.Parse(params["position_id"])
			if err != nil {
				return nil, badRequest(err)
			}
			res, err := c.SettleAtMaturity(r.Context(), id)
			if err != nil {
				return nil, domainError(err)
			}
			return settleResponse(res), nil
		})},
		{"POST", "/v1/positions/{position_id}/close", s.instrument("close_early", func(w http.ResponseWriter, r *http.Request, params map[string]string) (any, error) {
			id, err := uuid.Parse(params["position_id"])
			if err != nil {
				return nil, badRequest(err)
			}
			var req closeEarlyRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				return nil, badRequest(err)
			}
			res, err := c.CloseEarly(r.Context(), id, req.Repayment)
			if err != nil {
				return nil, domainError(err)
			}
			return settleResponse(res), nil
		})},
		{"POST", "/v1/positions/{position_id}/delegates", s.instrument("assign_delegates", func(w http.ResponseWriter, r *http.Request, params map[string]string) (any, error) {
			id, err := uuid.Parse(params["position_id"])
			if err != nil {
				return nil, badRequest(err)
			}
			var req assignDelegatesRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				return nil, badRequest(err)
			}
			if err := c.Ledger().AssignDelegates(id, req.Caller, req.Settler, req.Liquidator); err != nil {
				return nil, domainError(err)
			}
			return map[string]string{"status": "ok"}, nil
		})},
	}

	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, rt.handler); err != nil {
			return err
		}
	}
	return nil
}

// domainError maps ledger and protocol sentinels onto HTTP codes.
func domainError(err error) error {
	switch {
	case errors.Is(err, position.ErrPositionNotFound):
		return httpError{code: http.StatusNotFound, err: err}
	case errors.Is(err, position.ErrUnauthorized):
		return httpError{code: http.StatusForbidden, err: err}
	case errors.Is(err, position.ErrLiquidationInProgress):
		return httpError{code: http.StatusConflict, err: err}
	case errors.Is(err, position.ErrZeroCollateral),
		errors.Is(err, position.ErrInvalidTerm),
		errors.Is(err, position.ErrInvalidLtvOrdering),
		errors.Is(err, position.ErrMinimumPositionSize),
		errors.Is(err, position.ErrPositionLimitExceeded),
		errors.Is(err, position.ErrTooManyOracleSources),
		errors.Is(err, position.ErrNegativeEquity),
		errors.Is(err, position.ErrInvalidDelegate),
		errors.Is(err, oracle.ErrPriceDeviationTooHigh),
		errors.Is(err, liquidation.ErrInvalidPercentage),
		errors.Is(err, liquidation.ErrLiquidationAmountTooSmall),
		errors.Is(err, liquidation.ErrPositionTooSmallToPartialLiquidate),
		errors.Is(err, settlement.ErrNotMatured),
		errors.Is(err, settlement.ErrRepaymentTooLow):
		return httpError{code: http.StatusUnprocessableEntity, err: err}
	case errors.Is(err, liquidation.ErrLiquidationNotTriggered),
		errors.Is(err, liquidation.ErrPriceUpdateTooRecent),
		errors.Is(err, liquidation.ErrSnapshotExpired),
		errors.Is(err, liquidation.ErrSnapshotStillFresh):
		return httpError{code: http.StatusConflict, err: err}
	default:
		return err
	}
}

func settleResponse(res settlement.Result) map[string]int64 {
	return map[string]int64{
		"final_obligations":      res.FinalObligations,
		"final_collateral_value": res.FinalCollateralValue,
		"carry":                  res.Carry,
		"protocol_share":         res.ProtocolShare,
		"treasury_share":         res.TreasuryShare,
		"user_share":             res.UserShare,
	}
}
