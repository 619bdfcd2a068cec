package fpmath

import (
	"errors"
	"testing"
)

func TestDebtToUsd(t *testing.T) {
	// 50,000.00 debt (6dp) -> 50,000.00000000 USD (8dp)
	got, err := DebtToUsd(50_000_000_000)
	if err != nil {
		t.Fatalf("DebtToUsd: %v", err)
	}
	if want := int64(5_000_000_000_000); got != want {
		t.Errorf("DebtToUsd = %d, want %d", got, want)
	}
}

func TestComputeLtvBps(t *testing.T) {
	tests := []struct {
		name        string
		obligations int64 // 8dp
		collateral  int64 // 8dp
		want        int64
		wantErr     error
	}{
		{"half", 50_000 * UsdConfig.Scale, 100_000 * UsdConfig.Scale, 5000, nil},
		{"exact threshold", 85_000 * UsdConfig.Scale, 100_000 * UsdConfig.Scale, 8500, nil},
		{"over-collateralized debt", 120_000 * UsdConfig.Scale, 100_000 * UsdConfig.Scale, 12000, nil},
		{"truncation, never rounding up", 1, 3 * UsdConfig.Scale, 0, nil},
		{"zero collateral", 1, 0, 0, ErrDivideByZero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeLtvBps(tt.obligations, tt.collateral)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ComputeLtvBps = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFinancingFromCollateral(t *testing.T) {
	tests := []struct {
		name       string
		collateral int64 // 8dp
		marginBps  int64
		want       int64
		wantErr    bool
	}{
		// F = 100,000 * 5000 / 5000 = 100,000
		{"fifty percent margin", 100_000 * UsdConfig.Scale, 5000, 100_000 * UsdConfig.Scale, false},
		// F = 100,000 * 2000 / 8000 = 25,000
		{"twenty percent margin", 100_000 * UsdConfig.Scale, 2000, 25_000 * UsdConfig.Scale, false},
		{"zero margin", 100_000 * UsdConfig.Scale, 0, 0, true},
		{"full margin", 100_000 * UsdConfig.Scale, 10_000, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FinancingFromCollateral(tt.collateral, tt.marginBps)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("FinancingFromCollateral = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDynamicLiquidationThreshold(t *testing.T) {
	tests := []struct {
		name              string
		base, beta, sigma int64
		want              int64
	}{
		{"calm market", 8500, 10, 20, 8300},
		{"saturates at zero", 8500, 100, 100, 0},
		{"zero volatility", 8500, 10, 0, 8500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DynamicLiquidationThreshold(tt.base, tt.beta, tt.sigma); got != tt.want {
				t.Errorf("DynamicLiquidationThreshold = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPctChange(t *testing.T) {
	tests := []struct {
		name     string
		old, new int64
		want     int64
		wantErr  error
	}{
		{"nine percent up", 100 * UsdConfig.Scale, 109 * UsdConfig.Scale, 9, nil},
		{"eleven percent up", 100 * UsdConfig.Scale, 111 * UsdConfig.Scale, 11, nil},
		{"ten percent down", 100 * UsdConfig.Scale, 90 * UsdConfig.Scale, 10, nil},
		{"fractional change floors", 100 * UsdConfig.Scale, 110*UsdConfig.Scale - 1, 9, nil},
		{"no change", 42, 42, 0, nil},
		{"zero base", 0, 10, 0, ErrDivideByZero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PctChange(tt.old, tt.new)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("PctChange(%d, %d) = %d, want %d", tt.old, tt.new, got, tt.want)
			}
		})
	}
}

func TestUsdToTokenUnits(t *testing.T) {
	tests := []struct {
		name     string
		usd      int64 // 8dp
		price    int64 // 8dp
		decimals int
		want     int64
	}{
		// $25,625 at $50/token with 9dp tokens = 512.5 tokens
		{"nine decimal token", 25_625 * UsdConfig.Scale, 50 * UsdConfig.Scale, 9, 512_500_000_000},
		// $100 at $2,500/token with 6dp tokens = 0.04 tokens
		{"six decimal token", 100 * UsdConfig.Scale, 2_500 * UsdConfig.Scale, 6, 40_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UsdToTokenUnits(tt.usd, tt.price, tt.decimals)
			if err != nil {
				t.Fatalf("UsdToTokenUnits: %v", err)
			}
			if got != tt.want {
				t.Errorf("UsdToTokenUnits = %d, want %d", got, tt.want)
			}
		})
	}

	if _, err := UsdToTokenUnits(1, 0, 6); !errors.Is(err, ErrDivideByZero) {
		t.Errorf("zero price err = %v, want ErrDivideByZero", err)
	}
}
