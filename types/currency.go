// Package types defines the root and owned records the rest of the
// coordinator operates on, and the HBD currency they denominate
// rewards in.
package types

import (
	"github.com/shopspring/decimal"
)

// HBD is a fixed-precision decimal amount denominated in Hive-Backed
// Dollars. Rewards round to four decimal places and payout amounts to
// three, both with ties-to-even, so HBD wraps shopspring/decimal rather
// than a float or an integer counter of a smallest unit.
type HBD struct {
	d decimal.Decimal
}

// ZeroHBD is the additive identity.
var ZeroHBD = HBD{d: decimal.Zero}

// BaseReward is the per-proof reward paid before the rarity multiplier
// is applied.
var BaseReward = NewHBDFromString("0.001")

// NewHBDFromString parses a decimal string into an HBD amount. It
// panics on malformed input; the only callers pass compile-time-known
// literals.
func NewHBDFromString(s string) HBD {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("types: invalid HBD literal " + s + ": " + err.Error())
	}
	return HBD{d: d}
}

// NewHBDFromFloat builds an HBD amount from a float64. Used only for
// values already computed in floating point upstream (e.g. a rarity
// multiplier); exact decimal math should prefer NewHBDFromString.
func NewHBDFromFloat(f float64) HBD {
	return HBD{d: decimal.NewFromFloat(f)}
}

// Add returns h + other.
func (h HBD) Add(other HBD) HBD {
	return HBD{d: h.d.Add(other.d)}
}

// Mul returns h * factor, rounded to 4 decimal places with ties-to-even
// (banker's rounding), the reward-computation precision.
func (h HBD) Mul(factor float64) HBD {
	product := h.d.Mul(decimal.NewFromFloat(factor))
	return HBD{d: product.RoundBank(4)}
}

// RoundBank rounds h to the given number of decimal places using
// ties-to-even.
func (h HBD) RoundBank(places int32) HBD {
	return HBD{d: h.d.RoundBank(places)}
}

// String renders the amount with exactly three decimal places, the
// payout line-item format (no thousands separator, "." as the decimal
// point).
func (h HBD) String() string {
	return h.d.StringFixedBank(3)
}

// String4 renders the amount with exactly four decimal places, the
// settlement-event reward format. Ties round to even: 0.001 x 0.25
// lands exactly on the 0.0002/0.0003 tie and rounds down to the even
// 0.0002.
func (h HBD) String4() string {
	return h.d.StringFixedBank(4)
}

// Equal reports whether h and other represent the same decimal value.
func (h HBD) Equal(other HBD) bool {
	return h.d.Equal(other.d)
}

// Float64 returns the nearest float64 representation of h.
func (h HBD) Float64() float64 {
	f, _ := h.d.Float64()
	return f
}

// MarshalJSON encodes the amount as a JSON string with three decimal
// places, matching the portable payout export format.
func (h HBD) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}

// UnmarshalJSON decodes a JSON string or number into an HBD amount.
func (h *HBD) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	h.d = d
	return nil
}
