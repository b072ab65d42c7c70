package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorUnits is the number of fraction digits carried by an Amount.
const MinorUnits = 2

// Amount is a monetary value stored as an integer count of minor units
// (paise). Arithmetic on Amount never drifts; conversions to and from
// decimal text go through shopspring/decimal.
type Amount int64

// AmountFromDecimal rounds d to two fraction digits.
func AmountFromDecimal(d decimal.Decimal) Amount {
	return Amount(d.Shift(MinorUnits).Round(0).IntPart())
}

// ParseAmount parses a decimal string such as "1500.50".
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return AmountFromDecimal(d), nil
}

// Rupees builds an Amount from a whole-unit value.
func Rupees(units int64) Amount {
	return Amount(units * 100)
}

// Decimal returns the value as a decimal in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -MinorUnits)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(MinorUnits)
}

// IsPositive reports whether a > 0.
func (a Amount) IsPositive() bool {
	return a > 0
}

// MarshalJSON renders the amount as a JSON number with two decimals.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and numeric strings.
func (a *Amount) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = 0
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	*a = AmountFromDecimal(d)
	return nil
}
