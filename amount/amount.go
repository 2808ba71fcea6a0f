// Package amount converts between human-entered decimal amounts and integer
// minor units for a token of a given precision.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrMalformedAmount   = errors.New("malformed amount")
	ErrNegativeAmount    = errors.New("amount cannot be negative")
	ErrPrecisionExceeded = errors.New("amount has more fractional digits than the token supports")
)

var plainDecimal = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)

// ToMinorUnits converts a decimal string to minor units at the given precision.
//
// It is deliberately lenient and lossy: non-digit characters are dropped from the
// integer and fractional parts independently, an empty integer part counts as 0,
// and fractional digits beyond decimals are truncated, never rounded. Input that
// cannot be interpreted yields 0. The conversion cannot be reversed exactly when
// digits were truncated. Use ParseMinorUnits to reject such input instead.
func ToMinorUnits(amount string, decimals uint8) *big.Int {
	parts := strings.Split(amount, ".")

	whole := digitsOnly(parts[0])
	if whole == "" {
		whole = "0"
	}

	frac := ""
	if len(parts) > 1 {
		frac = digitsOnly(parts[1])
	}
	width := int(decimals)
	if len(frac) > width {
		frac = frac[:width]
	} else {
		frac += strings.Repeat("0", width-len(frac))
	}

	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// ParseMinorUnits is the strict counterpart of ToMinorUnits. It accepts only plain
// non-negative decimal notation whose fractional part fits in decimals digits.
func ParseMinorUnits(amount string, decimals uint8) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformedAmount)
	}
	if strings.HasPrefix(s, "-") {
		return nil, ErrNegativeAmount
	}
	if !plainDecimal.MatchString(s) {
		return nil, fmt.Errorf("%w: %q", ErrMalformedAmount, amount)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAmount, err)
	}

	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %s at %d decimals", ErrPrecisionExceeded, s, decimals)
	}
	return shifted.BigInt(), nil
}

// FormatMinorUnits renders minor units as a decimal string without trailing zeros.
func FormatMinorUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

// ToUint64 narrows a minor-unit amount to the on-chain integer width.
func ToUint64(v *big.Int) (uint64, bool) {
	if v == nil || v.Sign() < 0 || !v.IsUint64() {
		return 0, false
	}
	return v.Uint64(), true
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
