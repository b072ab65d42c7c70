package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// BillingType says how freight is charged to the party.
type BillingType string

const (
	BillingFixed    BillingType = "Fixed"
	BillingPerTonne BillingType = "PerTonne"
	BillingPerKg    BillingType = "PerKg"
	BillingPerTrip  BillingType = "PerTrip"
	BillingPerDay   BillingType = "PerDay"
	BillingPerHour  BillingType = "PerHour"
	BillingPerLitre BillingType = "PerLitre"
	BillingPerBag   BillingType = "PerBag"
)

// BillingTypes lists every supported billing type.
var BillingTypes = []BillingType{
	BillingFixed, BillingPerTonne, BillingPerKg, BillingPerTrip,
	BillingPerDay, BillingPerHour, BillingPerLitre, BillingPerBag,
}

// Valid reports whether b is a supported billing type.
func (b BillingType) Valid() bool {
	for _, t := range BillingTypes {
		if b == t {
			return true
		}
	}
	return false
}

// FreightTerms are the billing terms of a trip. Only FixedFreight and
// UnitFreight implement it.
type FreightTerms interface {
	Freight() (Amount, error)
	apply(t *Trip)
}

// FixedFreight is a lump-sum freight amount.
type FixedFreight struct {
	Amount Amount
}

// UnitFreight is freight charged as rate × units.
type UnitFreight struct {
	Type  BillingType
	Rate  Amount
	Units float64
}

var (
	ErrInvalidBillingType = errors.New("invalid billing type")
	ErrNegativeFreight    = errors.New("freight amount cannot be negative")
)

// Freight returns the fixed amount.
func (f FixedFreight) Freight() (Amount, error) {
	if f.Amount < 0 {
		return 0, ErrNegativeFreight
	}
	return f.Amount, nil
}

func (f FixedFreight) apply(t *Trip) {
	t.BillingType = BillingFixed
	t.PerUnitRate = 0
	t.TotalUnits = 0
	t.FreightAmount = f.Amount
}

// Freight returns rate × units rounded to minor units.
func (f UnitFreight) Freight() (Amount, error) {
	if !f.Type.Valid() || f.Type == BillingFixed {
		return 0, fmt.Errorf("%w: %q", ErrInvalidBillingType, f.Type)
	}
	if f.Rate < 0 || f.Units < 0 {
		return 0, ErrNegativeFreight
	}
	return AmountFromDecimal(f.Rate.Decimal().Mul(decimal.NewFromFloat(f.Units))), nil
}

func (f UnitFreight) apply(t *Trip) {
	t.BillingType = f.Type
	t.PerUnitRate = f.Rate
	t.TotalUnits = f.Units
}

// NewFreightTerms picks the variant for billingType. amount is only read
// for Fixed billing, rate and units only for the per-unit types.
func NewFreightTerms(billingType BillingType, amount, rate Amount, units float64) (FreightTerms, error) {
	if !billingType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBillingType, billingType)
	}
	if billingType == BillingFixed {
		return FixedFreight{Amount: amount}, nil
	}
	return UnitFreight{Type: billingType, Rate: rate, Units: units}, nil
}

// ApplyFreight sets the billing fields and freight amount of t from terms.
func (t *Trip) ApplyFreight(terms FreightTerms) error {
	amount, err := terms.Freight()
	if err != nil {
		return err
	}
	terms.apply(t)
	t.FreightAmount = amount
	return nil
}
