package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status is the stage of a trip. Stages only move one step at a time.
type Status int

const (
	StatusStarted Status = iota
	StatusCompleted
	StatusPODReceived
	StatusPODSubmitted
	StatusSettled
)

// StatusCount is the number of trip stages.
const StatusCount = 5

var statusNames = [StatusCount]string{"Started", "Completed", "POD Received", "POD Submitted", "Settled"}

func (s Status) String() string {
	if !s.Valid() {
		return "Unknown"
	}
	return statusNames[s]
}

// Valid reports whether s is one of the five stages.
func (s Status) Valid() bool {
	return s >= StatusStarted && s <= StatusSettled
}

// AccountType tells advances received from the party apart from payments
// made to the supplier.
type AccountType string

const (
	AccountAdvances AccountType = "Advances"
	AccountPayments AccountType = "Payments"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	return t == AccountAdvances || t == AccountPayments
}

// Route is the origin and destination of a trip.
type Route struct {
	Origin      string `json:"origin" bson:"origin"`
	Destination string `json:"destination" bson:"destination"`
}

// Trip is the aggregate root: one document per trip embedding its charges,
// ledger entries and expenses.
type Trip struct {
	ID         primitive.ObjectID `json:"-" bson:"_id,omitempty"`
	TripID     string             `json:"tripId" bson:"tripId"`
	PartyID    string             `json:"partyId" bson:"partyId"`
	TruckID    string             `json:"truckId" bson:"truckId"`
	DriverID   string             `json:"driverId" bson:"driverId"`
	SupplierID string             `json:"supplierId,omitempty" bson:"supplierId,omitempty"`
	Route      Route              `json:"route" bson:"route"`
	LRNumber   string             `json:"lrNumber,omitempty" bson:"lrNumber,omitempty"`
	FMNumber   string             `json:"fmNumber,omitempty" bson:"fmNumber,omitempty"`

	BillingType   BillingType `json:"billingType" bson:"billingType"`
	PerUnitRate   Amount      `json:"perUnitRate" bson:"perUnitRate"`
	TotalUnits    float64     `json:"totalUnits" bson:"totalUnits"`
	FreightAmount Amount      `json:"amount" bson:"amount"`
	TruckHireCost Amount      `json:"truckHireCost" bson:"truckHireCost"`

	Status          Status                  `json:"status" bson:"status"`
	Dates           [StatusCount]*time.Time `json:"dates" bson:"dates"`
	ProofOfDelivery string                  `json:"proofOfDelivery,omitempty" bson:"proofOfDelivery,omitempty"`

	Charges       []Charge      `json:"charges" bson:"charges"`
	LedgerEntries []LedgerEntry `json:"tripAccounts" bson:"tripAccounts"`
	Expenses      []Expense     `json:"expenses" bson:"expenses"`

	Version   int64     `json:"version" bson:"version"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Charge is billed to the party (PartyBill) or deducted from the party bill.
type Charge struct {
	ID          string    `json:"id" bson:"id"`
	Amount      Amount    `json:"amount" bson:"amount"`
	Date        time.Time `json:"date" bson:"date"`
	ExpenseType string    `json:"expenseType" bson:"expenseType"`
	PartyBill   bool      `json:"partyBill" bson:"partyBill"`
	Notes       string    `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// LedgerEntry is a payment-book record: an advance received from the party
// or a payment made to the supplier.
type LedgerEntry struct {
	ID               string      `json:"id" bson:"id"`
	AccountType      AccountType `json:"accountType" bson:"accountType"`
	Amount           Amount      `json:"amount" bson:"amount"`
	PaymentType      string      `json:"paymentType" bson:"paymentType"`
	ReceivedByDriver bool        `json:"receivedByDriver" bson:"receivedByDriver"`
	Date             time.Time   `json:"date" bson:"date"`
	Notes            string      `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt        time.Time   `json:"createdAt" bson:"createdAt"`
}

// Expense is a truck/trip cost. It lowers profit but not the party balance.
type Expense struct {
	ID          string    `json:"id" bson:"id"`
	Amount      Amount    `json:"amount" bson:"amount"`
	Date        time.Time `json:"date" bson:"date"`
	ExpenseType string    `json:"expenseType" bson:"expenseType"` // "fuel", "toll", "driver_bhatta", "repair", ...
	PaymentMode string    `json:"paymentMode,omitempty" bson:"paymentMode,omitempty"`
	Notes       string    `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// Clone returns a deep copy of the sub-collections and dates so that
// mutations on the copy never reach t.
func (t Trip) Clone() Trip {
	out := t
	out.Charges = cloneSlice(t.Charges)
	out.LedgerEntries = cloneSlice(t.LedgerEntries)
	out.Expenses = cloneSlice(t.Expenses)
	for i, d := range t.Dates {
		if d != nil {
			v := *d
			out.Dates[i] = &v
		}
	}
	return out
}

// HasSupplier reports whether the trip runs on a hired (market) truck.
func (t *Trip) HasSupplier() bool {
	return t.SupplierID != ""
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}
