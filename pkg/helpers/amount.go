package helpers

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatUnits formats a raw on-chain amount as a decimal string using the
// token's decimals. FormatUnits(1500000000000000000, 18) returns "1.5".
// Trailing zeros in the fractional part are trimmed.
func FormatUnits(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	if decimals == 0 {
		return raw.String()
	}

	neg := raw.Sign() < 0
	abs := new(big.Int).Abs(raw)
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)

	whole := new(big.Int).Div(abs, divisor)
	frac := new(big.Int).Mod(abs, divisor)

	s := whole.String()
	if frac.Sign() != 0 {
		fracStr := fmt.Sprintf("%0*d", int(decimals), frac)
		for len(fracStr) > 0 && fracStr[len(fracStr)-1] == '0' {
			fracStr = fracStr[:len(fracStr)-1]
		}
		s = s + "." + fracStr
	}
	if neg {
		s = "-" + s
	}
	return s
}

// ParseUnits parses a human-unit decimal string into a raw on-chain amount.
// ParseUnits("1.5", 18) returns 1500000000000000000. The fractional part is
// truncated beyond the token's decimals.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount string")
	}

	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}

	wholeStr := s
	fracStr := ""
	for i, c := range s {
		if c == '.' {
			wholeStr = s[:i]
			fracStr = s[i+1:]
			break
		}
	}
	if wholeStr == "" {
		wholeStr = "0"
	}

	for _, c := range wholeStr {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("invalid character in amount: %c", c)
		}
	}
	for _, c := range fracStr {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("invalid character in amount: %c", c)
		}
	}

	for len(fracStr) < int(decimals) {
		fracStr += "0"
	}
	if len(fracStr) > int(decimals) {
		fracStr = fracStr[:decimals]
	}

	combined := wholeStr + fracStr
	amount, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", s)
	}
	if neg {
		amount.Neg(amount)
	}
	return amount, nil
}

// DecimalFromRaw converts a raw on-chain amount to a human-unit decimal.
func DecimalFromRaw(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// RawFromDecimal converts a human-unit decimal to a raw on-chain amount,
// truncating anything beyond the token's decimals.
func RawFromDecimal(d decimal.Decimal, decimals uint8) *big.Int {
	return d.Shift(int32(decimals)).Truncate(0).BigInt()
}
