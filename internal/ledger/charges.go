package ledger

import (
	"time"

	"github.com/ukydev/trip-ledger/internal/models"
)

// ChargePatch replaces the editable fields of a charge.
type ChargePatch struct {
	Amount      models.Amount
	Date        time.Time
	ExpenseType string
	PartyBill   bool
	Notes       string
}

// AddCharge appends charge to the trip. A partyBill charge raises the party
// balance by its amount, a deduction lowers it.
func AddCharge(trip models.Trip, charge models.Charge) (models.Trip, models.Charge, error) {
	if err := EnsureMutable(&trip); err != nil {
		return trip, charge, err
	}
	if err := requirePositive(charge.Amount); err != nil {
		return trip, charge, err
	}
	stamp(&charge.ID, &charge.CreatedAt)
	out := trip.Clone()
	out.Charges = append(out.Charges, charge)
	return out, charge, nil
}

// EditCharge replaces the fields of an existing charge. Balances are
// derived, so a change of amount or partyBill shows up in the next
// PartyBalance call.
func EditCharge(trip models.Trip, chargeID string, patch ChargePatch) (models.Trip, models.Charge, error) {
	if err := EnsureMutable(&trip); err != nil {
		return trip, models.Charge{}, err
	}
	idx := findCharge(trip.Charges, chargeID)
	if idx < 0 {
		return trip, models.Charge{}, &NotFoundError{Kind: "charge", ID: chargeID}
	}
	if err := requirePositive(patch.Amount); err != nil {
		return trip, models.Charge{}, err
	}
	out := trip.Clone()
	c := &out.Charges[idx]
	c.Amount = patch.Amount
	c.Date = patch.Date
	c.ExpenseType = patch.ExpenseType
	c.PartyBill = patch.PartyBill
	c.Notes = patch.Notes
	return out, *c, nil
}

// DeleteCharge removes a charge, reversing its balance contribution.
func DeleteCharge(trip models.Trip, chargeID string) (models.Trip, error) {
	if err := EnsureMutable(&trip); err != nil {
		return trip, err
	}
	idx := findCharge(trip.Charges, chargeID)
	if idx < 0 {
		return trip, &NotFoundError{Kind: "charge", ID: chargeID}
	}
	out := trip.Clone()
	out.Charges = append(out.Charges[:idx], out.Charges[idx+1:]...)
	return out, nil
}

func findCharge(charges []models.Charge, id string) int {
	for i := range charges {
		if charges[i].ID == id {
			return i
		}
	}
	return -1
}
