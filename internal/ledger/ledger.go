// Package ledger derives the balances of a trip from its charges, ledger
// entries and expenses, and validates every change to those collections.
//
// Functions here never touch the caller's Trip: mutations work on a clone
// and return it for the caller to persist.
package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/ukydev/trip-ledger/internal/models"
)

// Summary holds the derived figures of a trip.
type Summary struct {
	PartyBalance    models.Amount `json:"partyBalance"`
	SupplierBalance models.Amount `json:"supplierBalance"`
	NetProfit       models.Amount `json:"netProfit"`
	TotalCharges    models.Amount `json:"totalCharges"`
	TotalDeductions models.Amount `json:"totalDeductions"`
	TotalAdvances   models.Amount `json:"totalAdvances"`
	TotalPayments   models.Amount `json:"totalPayments"`
	TotalExpenses   models.Amount `json:"totalExpenses"`
}

// Summarize computes every derived figure in one pass over the collections.
func Summarize(trip *models.Trip) Summary {
	var s Summary
	for _, c := range trip.Charges {
		if c.PartyBill {
			s.TotalCharges += c.Amount
		} else {
			s.TotalDeductions += c.Amount
		}
	}
	for _, e := range trip.LedgerEntries {
		switch e.AccountType {
		case models.AccountAdvances:
			s.TotalAdvances += e.Amount
		case models.AccountPayments:
			s.TotalPayments += e.Amount
		}
	}
	for _, e := range trip.Expenses {
		s.TotalExpenses += e.Amount
	}
	billed := trip.FreightAmount + s.TotalCharges - s.TotalDeductions
	s.PartyBalance = billed - s.TotalAdvances
	s.SupplierBalance = trip.TruckHireCost - s.TotalPayments
	s.NetProfit = billed - s.TotalExpenses - trip.TruckHireCost
	return s
}

// PartyBalance is what the party still owes on the trip.
func PartyBalance(trip *models.Trip) models.Amount {
	return Summarize(trip).PartyBalance
}

// SupplierBalance is the truck-hire cost not yet paid to the supplier.
func SupplierBalance(trip *models.Trip) models.Amount {
	return Summarize(trip).SupplierBalance
}

// NetProfit is the billed freight less expenses and truck-hire cost.
func NetProfit(trip *models.Trip) models.Amount {
	return Summarize(trip).NetProfit
}

// EnsureMutable rejects changes to a settled trip.
func EnsureMutable(trip *models.Trip) error {
	if trip.Status >= models.StatusSettled {
		return tripSettled(trip.Status)
	}
	return nil
}

func requirePositive(amount models.Amount) error {
	if !amount.IsPositive() {
		return Validationf("amount must be greater than zero")
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}

func stamp(id *string, createdAt *time.Time) {
	if *id == "" {
		*id = newID()
	}
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
}
