package fpmath

import (
	"errors"
	"math"
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision for one value class
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs
	UsdConfig   = DecimalConfig{DecimalPrecision: 8, Scale: 100_000_000} // USD values and oracle prices
	DebtConfig  = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}   // deferred payment / debt amounts
	TokenConfig = DecimalConfig{DecimalPrecision: 9, Scale: 1_000_000_000}
)

// BpsDenominator is the basis-point scale: 10_000 bps = 100%.
const BpsDenominator int64 = 10_000

// Arithmetic failures. Every checked operation returns one of these
// instead of wrapping silently; callers must treat them as fatal to
// the enclosing mutation.
var (
	ErrMathOverflow  = errors.New("math overflow")
	ErrDivideByZero  = errors.New("divide by zero")
	ErrNegativeValue = errors.New("negative value")
)

// Int128 pool for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// CheckedAdd returns a + b, failing on overflow. Inputs must be non-negative.
func CheckedAdd(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, ErrNegativeValue
	}
	if a > math.MaxInt64-b {
		return 0, ErrMathOverflow
	}
	return a + b, nil
}

// CheckedSub returns a - b for non-negative quantities. Underflow
// (b > a) is an error, never a clamp.
func CheckedSub(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, ErrNegativeValue
	}
	if b > a {
		return 0, ErrMathOverflow
	}
	return a - b, nil
}

// CheckedMul returns a * b, failing on int64 overflow.
func CheckedMul(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, ErrNegativeValue
	}
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxInt64/b {
		return 0, ErrMathOverflow
	}
	return a * b, nil
}

// MulDiv computes a * b / c with a widened intermediate so the product
// cannot overflow before the division. Truncates toward zero.
func MulDiv(a, b, c int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, ErrNegativeValue
	}
	if c <= 0 {
		return 0, ErrDivideByZero
	}

	num := getInt128()
	num.Mul(big.NewInt(a), big.NewInt(b))
	num.Quo(num, big.NewInt(c))

	if !num.IsInt64() {
		putInt128(num)
		return 0, ErrMathOverflow
	}
	result := num.Int64()
	putInt128(num)
	return result, nil
}

// MulBps applies a basis-point fraction to an amount: amount * bps / 10_000.
func MulBps(amount, bps int64) (int64, error) {
	return MulDiv(amount, bps, BpsDenominator)
}

// Pow10 returns 10^n as int64. n must be in [0, 18].
func Pow10(n int) (int64, error) {
	if n < 0 || n > 18 {
		return 0, ErrMathOverflow
	}
	result := int64(1)
	for i := 0; i < n; i++ {
		result *= 10
	}
	return result, nil
}
