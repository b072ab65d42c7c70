package ledger

import (
	"time"

	"github.com/ukydev/trip-ledger/internal/models"
)

// EntryPatch replaces the editable fields of a ledger entry. The account
// type of an entry never changes.
type EntryPatch struct {
	Amount           models.Amount
	PaymentType      string
	ReceivedByDriver bool
	Date             time.Time
	Notes            string
}

// AddLedgerEntry records an advance from the party or a payment to the
// supplier. Advances may not exceed the current party balance.
func AddLedgerEntry(trip models.Trip, entry models.LedgerEntry) (models.Trip, models.LedgerEntry, error) {
	if err := EnsureMutable(&trip); err != nil {
		return trip, entry, err
	}
	if !entry.AccountType.Valid() {
		return trip, entry, Validationf("unknown account type %q", entry.AccountType)
	}
	if err := requirePositive(entry.Amount); err != nil {
		return trip, entry, err
	}
	if entry.AccountType == models.AccountAdvances && entry.Amount > PartyBalance(&trip) {
		return trip, entry, ErrAmountExceedsBalance
	}
	stamp(&entry.ID, &entry.CreatedAt)
	out := trip.Clone()
	out.LedgerEntries = append(out.LedgerEntries, entry)
	return out, entry, nil
}

// EditLedgerEntry replaces the fields of an entry. For advances the edited
// amount must keep balance + old − new ≥ 0.
func EditLedgerEntry(trip models.Trip, entryID string, patch EntryPatch) (models.Trip, models.LedgerEntry, error) {
	if err := EnsureMutable(&trip); err != nil {
		return trip, models.LedgerEntry{}, err
	}
	idx := FindLedgerEntry(&trip, entryID)
	if idx < 0 {
		return trip, models.LedgerEntry{}, &NotFoundError{Kind: "payment", ID: entryID}
	}
	if err := requirePositive(patch.Amount); err != nil {
		return trip, models.LedgerEntry{}, err
	}
	old := trip.LedgerEntries[idx]
	if old.AccountType == models.AccountAdvances && PartyBalance(&trip)+old.Amount-patch.Amount < 0 {
		return trip, models.LedgerEntry{}, ErrAmountExceedsBalance
	}
	out := trip.Clone()
	e := &out.LedgerEntries[idx]
	e.Amount = patch.Amount
	e.PaymentType = patch.PaymentType
	e.ReceivedByDriver = patch.ReceivedByDriver
	e.Date = patch.Date
	e.Notes = patch.Notes
	return out, *e, nil
}

// DeleteLedgerEntry removes an entry, restoring the balance it consumed.
func DeleteLedgerEntry(trip models.Trip, entryID string) (models.Trip, models.LedgerEntry, error) {
	if err := EnsureMutable(&trip); err != nil {
		return trip, models.LedgerEntry{}, err
	}
	idx := FindLedgerEntry(&trip, entryID)
	if idx < 0 {
		return trip, models.LedgerEntry{}, &NotFoundError{Kind: "payment", ID: entryID}
	}
	removed := trip.LedgerEntries[idx]
	out := trip.Clone()
	out.LedgerEntries = append(out.LedgerEntries[:idx], out.LedgerEntries[idx+1:]...)
	return out, removed, nil
}

// FindLedgerEntry returns the index of the entry with id, or -1.
func FindLedgerEntry(trip *models.Trip, id string) int {
	for i := range trip.LedgerEntries {
		if trip.LedgerEntries[i].ID == id {
			return i
		}
	}
	return -1
}
