package fpmath

// LTV and financing-curve helpers. All USD inputs use UsdConfig scale
// (8 decimals); debt inputs use DebtConfig scale (6 decimals).

// DebtToUsd converts a 6-decimal debt amount to an 8-decimal USD value.
func DebtToUsd(debt int64) (int64, error) {
	return CheckedMul(debt, UsdConfig.Scale/DebtConfig.Scale)
}

// ComputeLtvBps returns obligations / collateral_value in basis points.
// Both arguments are 8-decimal USD values.
func ComputeLtvBps(obligationsUsd, collateralValueUsd int64) (int64, error) {
	if collateralValueUsd <= 0 {
		return 0, ErrDivideByZero
	}
	return MulDiv(obligationsUsd, BpsDenominator, collateralValueUsd)
}

// FinancingFromCollateral derives the financing amount from collateral
// value at a target margin: F = C * m / (10_000 - m), m in basis points.
func FinancingFromCollateral(collateralValueUsd, marginBps int64) (int64, error) {
	if marginBps <= 0 || marginBps >= BpsDenominator {
		return 0, ErrDivideByZero
	}
	return MulDiv(collateralValueUsd, marginBps, BpsDenominator-marginBps)
}

// DynamicLiquidationThreshold models a volatility-adjusted threshold:
// threshold(t) = base - beta * sigma(t). Saturates instead of wrapping.
func DynamicLiquidationThreshold(baseBps, beta, sigma int64) int64 {
	adj, err := CheckedMul(beta, sigma)
	if err != nil {
		return 0
	}
	if adj >= baseBps {
		return 0
	}
	return baseBps - adj
}

// PctChange returns floor(|newVal - oldVal| * 100 / oldVal).
func PctChange(oldVal, newVal int64) (int64, error) {
	if oldVal <= 0 {
		return 0, ErrDivideByZero
	}
	diff := newVal - oldVal
	if diff < 0 {
		diff = -diff
	}
	return MulDiv(diff, 100, oldVal)
}

// UsdToTokenUnits converts an 8-decimal USD amount into native token
// units at the given 8-decimal unit price. The token's own decimal
// precision is aligned explicitly so assets of differing precision
// produce correct unit counts.
func UsdToTokenUnits(amountUsd, priceUsd int64, tokenDecimals int) (int64, error) {
	if priceUsd <= 0 {
		return 0, ErrDivideByZero
	}
	tokenScale, err := Pow10(tokenDecimals)
	if err != nil {
		return 0, err
	}
	return MulDiv(amountUsd, tokenScale, priceUsd)
}
