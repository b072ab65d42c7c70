// Package status moves a trip through its five stages:
//
//	Started → Completed → POD Received → POD Submitted → Settled
//
// Each forward request carries only the fields its step needs. Advance and
// Undo are pure: they return the next trip and the side effects that other
// systems must perform, and leave the input untouched.
package status

import (
	"time"

	"github.com/ukydev/trip-ledger/internal/ledger"
	"github.com/ukydev/trip-ledger/internal/models"
)

// Request is a forward transition. Implemented by CompleteTrip, ReceivePOD,
// SubmitPOD and Settle.
type Request interface {
	Target() models.Status
	date() time.Time
	apply(trip *models.Trip) error
}

// CompleteTrip moves a started trip to Completed (0→1).
type CompleteTrip struct {
	Date     time.Time
	PODImage string
}

// ReceivePOD records receipt of the proof of delivery (1→2).
type ReceivePOD struct {
	Date time.Time
}

// SubmitPOD records submission of the proof of delivery to the party (2→3).
type SubmitPOD struct {
	Date time.Time
}

// SettlementPayment is the supplier payment recorded when settling a trip
// that still has a party balance.
type SettlementPayment struct {
	Amount           models.Amount
	PaymentType      string
	ReceivedByDriver bool
	Notes            string
}

// Settle closes the trip (3→4).
type Settle struct {
	Date    time.Time
	Payment *SettlementPayment
}

func (CompleteTrip) Target() models.Status { return models.StatusCompleted }
func (ReceivePOD) Target() models.Status   { return models.StatusPODReceived }
func (SubmitPOD) Target() models.Status    { return models.StatusPODSubmitted }
func (Settle) Target() models.Status       { return models.StatusSettled }

func (r CompleteTrip) date() time.Time { return r.Date }
func (r ReceivePOD) date() time.Time   { return r.Date }
func (r SubmitPOD) date() time.Time    { return r.Date }
func (r Settle) date() time.Time       { return r.Date }

func (r CompleteTrip) apply(trip *models.Trip) error {
	if r.PODImage != "" {
		trip.ProofOfDelivery = r.PODImage
	}
	return nil
}

func (ReceivePOD) apply(*models.Trip) error { return nil }
func (SubmitPOD) apply(*models.Trip) error  { return nil }

func (r Settle) apply(trip *models.Trip) error {
	if ledger.PartyBalance(trip) <= 0 {
		return nil
	}
	if r.Payment == nil {
		return ledger.Validationf("payment details are required to settle a trip with a pending balance")
	}
	amount := r.Payment.Amount
	if amount == 0 {
		amount = ledger.SupplierBalance(trip)
		if amount <= 0 {
			return ledger.Validationf("no supplier balance is pending; give the settlement payment amount explicitly")
		}
	}
	next, _, err := ledger.AddLedgerEntry(*trip, models.LedgerEntry{
		AccountType:      models.AccountPayments,
		Amount:           amount,
		PaymentType:      r.Payment.PaymentType,
		ReceivedByDriver: r.Payment.ReceivedByDriver,
		Date:             r.Date,
		Notes:            r.Payment.Notes,
	})
	if err != nil {
		return err
	}
	*trip = next
	return nil
}

// ResourceKind names an external resource whose availability a transition
// changes.
type ResourceKind string

const (
	ResourceDriver ResourceKind = "driver"
	ResourceTruck  ResourceKind = "truck"
)

// ResourceAvailable is emitted when a trip frees its driver or truck.
type ResourceAvailable struct {
	Kind   ResourceKind `json:"kind"`
	ID     string       `json:"id"`
	TripID string       `json:"tripId"`
}

// Outcome is the result of a transition.
type Outcome struct {
	Trip    models.Trip
	From    models.Status
	Effects []ResourceAvailable
}

// Advance applies req to trip. The request must target exactly the next
// stage; every check runs before anything is changed.
func Advance(trip models.Trip, req Request) (Outcome, error) {
	from := trip.Status
	to := req.Target()
	if !from.Valid() || to != from+1 {
		return Outcome{}, &ledger.InvalidTransitionError{From: from, To: to}
	}
	if req.date().IsZero() {
		return Outcome{}, ledger.Validationf("%s date is required", to)
	}

	next := trip.Clone()
	if err := req.apply(&next); err != nil {
		return Outcome{}, err
	}
	d := req.date()
	next.Dates[to] = &d
	next.Status = to

	out := Outcome{Trip: next, From: from}
	if to == models.StatusCompleted {
		out.Effects = releaseResources(&next)
	}
	return out, nil
}

// Undo steps the trip back one stage, clearing the date of the current
// stage and every later one.
func Undo(trip models.Trip) (Outcome, error) {
	from := trip.Status
	if from <= models.StatusStarted || !from.Valid() {
		return Outcome{}, &ledger.InvalidTransitionError{From: from, To: from - 1}
	}
	next := trip.Clone()
	for i := int(from); i < models.StatusCount; i++ {
		next.Dates[i] = nil
	}
	next.Status = from - 1
	return Outcome{Trip: next, From: from}, nil
}

// To builds the request that moves trip to target, or reports that target
// is the undo step. It is the bridge for callers that only know the wanted
// status number.
func To(trip *models.Trip, target models.Status, date time.Time, podImage string, payment *SettlementPayment) (req Request, undo bool, err error) {
	switch {
	case target == trip.Status-1 && trip.Status > models.StatusStarted:
		return nil, true, nil
	case target != trip.Status+1:
		return nil, false, &ledger.InvalidTransitionError{From: trip.Status, To: target}
	}
	switch target {
	case models.StatusCompleted:
		return CompleteTrip{Date: date, PODImage: podImage}, false, nil
	case models.StatusPODReceived:
		return ReceivePOD{Date: date}, false, nil
	case models.StatusPODSubmitted:
		return SubmitPOD{Date: date}, false, nil
	case models.StatusSettled:
		return Settle{Date: date, Payment: payment}, false, nil
	default:
		return nil, false, &ledger.InvalidTransitionError{From: trip.Status, To: target}
	}
}

func releaseResources(trip *models.Trip) []ResourceAvailable {
	var effects []ResourceAvailable
	if trip.DriverID != "" {
		effects = append(effects, ResourceAvailable{Kind: ResourceDriver, ID: trip.DriverID, TripID: trip.TripID})
	}
	if trip.TruckID != "" {
		effects = append(effects, ResourceAvailable{Kind: ResourceTruck, ID: trip.TruckID, TripID: trip.TripID})
	}
	return effects
}
