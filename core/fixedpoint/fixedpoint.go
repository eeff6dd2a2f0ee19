// Package fixedpoint implements the shared 18-decimal fixed-point arithmetic
// used by every protocol engine. All monetary values are big integers scaled
// by 1e18; multiplication and division truncate toward zero so results are
// deterministic across components.
package fixedpoint

import (
	"fmt"
	"math/big"
	"strings"
)

// Decimals is the number of fractional digits carried by every value.
const Decimals = 18

var unit = mustBigInt("1000000000000000000")

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// Unit returns a fresh copy of the scale factor (1e18).
func Unit() *big.Int {
	return new(big.Int).Set(unit)
}

// Mul returns a*b at the shared scale, truncating toward zero.
func Mul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, unit)
}

// Div returns a/b at the shared scale, truncating toward zero. A zero divisor
// yields zero rather than a fault; callers that need to treat it as an error
// must guard before dividing.
func Div(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(a, unit)
	return numerator.Quo(numerator, b)
}

// FromInt lifts a whole number onto the shared scale.
func FromInt(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), unit)
}

// ParseDecimal converts a decimal string such as "0.125" into its scaled
// representation. Fractional digits beyond the supported precision are
// rejected rather than silently truncated.
func ParseDecimal(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("fixedpoint: empty decimal")
	}
	negative := false
	switch trimmed[0] {
	case '-':
		negative = true
		trimmed = trimmed[1:]
	case '+':
		trimmed = trimmed[1:]
	}
	whole := trimmed
	frac := ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		whole = trimmed[:idx]
		frac = trimmed[idx+1:]
	}
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("fixedpoint: invalid decimal %q", value)
	}
	if len(frac) > Decimals {
		return nil, fmt.Errorf("fixedpoint: %q exceeds %d fractional digits", value, Decimals)
	}
	digits := strings.TrimLeft(whole+frac+strings.Repeat("0", Decimals-len(frac)), "0")
	if digits == "" {
		digits = "0"
	}
	parsed, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("fixedpoint: invalid decimal %q", value)
	}
	if negative {
		parsed.Neg(parsed)
	}
	return parsed, nil
}

// FormatDecimal renders a scaled value as a decimal string without trailing
// zero padding, e.g. 125e15 -> "0.125".
func FormatDecimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Abs(v)
	if v.Sign() < 0 {
		sign = "-"
	}
	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(abs, unit, frac)
	if frac.Sign() == 0 {
		return sign + whole.String()
	}
	fracDigits := fmt.Sprintf("%018s", frac.String())
	fracDigits = strings.TrimRight(fracDigits, "0")
	return sign + whole.String() + "." + fracDigits
}
