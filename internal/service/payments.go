package service

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/trip-ledger/internal/ledger"
	"github.com/ukydev/trip-ledger/internal/models"
)

// SupplierPayment is one item of a supplier payment batch.
type SupplierPayment struct {
	TripID string
	Entry  models.LedgerEntry
}

// account ties a ledger entry to the party or supplier named in the route.
type account struct {
	kind    models.AccountType
	ownerID string
}

func partyAccount(partyID string) account {
	return account{kind: models.AccountAdvances, ownerID: partyID}
}

func supplierAccount(supplierID string) account {
	return account{kind: models.AccountPayments, ownerID: supplierID}
}

func (a account) owner(trip *models.Trip) string {
	if a.kind == models.AccountAdvances {
		return trip.PartyID
	}
	return trip.SupplierID
}

func (a account) label() string {
	if a.kind == models.AccountAdvances {
		return "party"
	}
	return "supplier"
}

func (a account) checkTrip(trip *models.Trip) error {
	if a.owner(trip) != a.ownerID {
		return ledger.Validationf("trip %s does not belong to %s %s", trip.TripID, a.label(), a.ownerID)
	}
	return nil
}

func (a account) checkEntry(trip *models.Trip, entryID string) error {
	if err := a.checkTrip(trip); err != nil {
		return err
	}
	idx := ledger.FindLedgerEntry(trip, entryID)
	if idx < 0 || trip.LedgerEntries[idx].AccountType != a.kind {
		return &ledger.NotFoundError{Kind: "payment", ID: entryID}
	}
	return nil
}

func (a account) entry(e models.LedgerEntry) (models.LedgerEntry, error) {
	if e.AccountType == "" {
		e.AccountType = a.kind
	}
	if e.AccountType != a.kind {
		return e, ledger.Validationf("%s payments must use account type %s", a.label(), a.kind)
	}
	if e.ID == "" {
		e.ID = newRecordID()
	}
	return e, nil
}

// AddPartyPayment records an advance received from the party against a trip.
// The advance may not exceed the party balance.
func (s *Service) AddPartyPayment(ctx context.Context, partyID, tripID string, entry models.LedgerEntry) (models.LedgerEntry, error) {
	return s.addEntry(ctx, "add_party_payment", partyAccount(partyID), tripID, entry)
}

// EditPartyPayment edits an advance, looked up by its own id.
func (s *Service) EditPartyPayment(ctx context.Context, partyID, entryID string, patch ledger.EntryPatch) (models.LedgerEntry, error) {
	return s.editEntry(ctx, "edit_party_payment", partyAccount(partyID), entryID, patch)
}

// DeletePartyPayment removes an advance, looked up by its own id.
func (s *Service) DeletePartyPayment(ctx context.Context, partyID, entryID string) (models.LedgerEntry, error) {
	return s.deleteEntry(ctx, "delete_party_payment", partyAccount(partyID), entryID)
}

// AddSupplierPayments records a batch of supplier payments, possibly across
// several trips. Either every payment is recorded or, after a failure, the
// ones already written are removed again.
func (s *Service) AddSupplierPayments(ctx context.Context, supplierID string, payments []SupplierPayment) ([]models.LedgerEntry, error) {
	if len(payments) == 0 {
		return nil, ledger.Validationf("at least one payment is required")
	}
	acct := supplierAccount(supplierID)
	added := make([]models.LedgerEntry, 0, len(payments))
	for _, p := range payments {
		entry, err := s.addEntry(ctx, "add_supplier_payment", acct, p.TripID, p.Entry)
		if err != nil {
			s.rollbackEntries(ctx, added)
			return nil, err
		}
		added = append(added, entry)
	}
	return added, nil
}

// EditSupplierPayment edits a supplier payment, looked up by its own id.
func (s *Service) EditSupplierPayment(ctx context.Context, supplierID, entryID string, patch ledger.EntryPatch) (models.LedgerEntry, error) {
	return s.editEntry(ctx, "edit_supplier_payment", supplierAccount(supplierID), entryID, patch)
}

// DeleteSupplierPayment removes a supplier payment, looked up by its own id.
func (s *Service) DeleteSupplierPayment(ctx context.Context, supplierID, entryID string) (models.LedgerEntry, error) {
	return s.deleteEntry(ctx, "delete_supplier_payment", supplierAccount(supplierID), entryID)
}

func (s *Service) addEntry(ctx context.Context, op string, acct account, tripID string, entry models.LedgerEntry) (models.LedgerEntry, error) {
	entry, err := acct.entry(entry)
	if err != nil {
		s.metrics.ObserveMutation(op, err)
		return models.LedgerEntry{}, err
	}
	var added models.LedgerEntry
	_, _, err = s.mutate(ctx, op, s.byTrip(tripID), func(trip models.Trip) (models.Trip, error) {
		if err := acct.checkTrip(&trip); err != nil {
			return trip, err
		}
		next, e, err := ledger.AddLedgerEntry(trip, entry)
		added = e
		return next, err
	})
	if err != nil {
		return models.LedgerEntry{}, err
	}
	s.logger.WithFields(log.Fields{
		"trip_id":      tripID,
		"entry_id":     added.ID,
		"account_type": added.AccountType,
		"amount":       added.Amount.String(),
	}).Info("payment recorded")
	return added, nil
}

func (s *Service) editEntry(ctx context.Context, op string, acct account, entryID string, patch ledger.EntryPatch) (models.LedgerEntry, error) {
	var edited models.LedgerEntry
	_, _, err := s.mutate(ctx, op, s.byEntry(entryID), func(trip models.Trip) (models.Trip, error) {
		if err := acct.checkEntry(&trip, entryID); err != nil {
			return trip, err
		}
		next, e, err := ledger.EditLedgerEntry(trip, entryID, patch)
		edited = e
		return next, err
	})
	if err != nil {
		return models.LedgerEntry{}, err
	}
	return edited, nil
}

func (s *Service) deleteEntry(ctx context.Context, op string, acct account, entryID string) (models.LedgerEntry, error) {
	var removed models.LedgerEntry
	_, _, err := s.mutate(ctx, op, s.byEntry(entryID), func(trip models.Trip) (models.Trip, error) {
		if err := acct.checkEntry(&trip, entryID); err != nil {
			return trip, err
		}
		next, e, err := ledger.DeleteLedgerEntry(trip, entryID)
		removed = e
		return next, err
	})
	if err != nil {
		return models.LedgerEntry{}, err
	}
	return removed, nil
}

// rollbackEntries removes entries written earlier in a failed batch. It
// outlives a cancelled request, since a cancelled ctx is a common reason the
// batch failed.
func (s *Service) rollbackEntries(ctx context.Context, entries []models.LedgerEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()
	for i := len(entries) - 1; i >= 0; i-- {
		id := entries[i].ID
		_, _, err := s.mutate(ctx, "rollback_payment", s.byEntry(id), func(trip models.Trip) (models.Trip, error) {
			next, _, err := ledger.DeleteLedgerEntry(trip, id)
			return next, err
		})
		if err != nil {
			s.logger.WithError(err).WithField("entry_id", id).Error("failed to roll back supplier payment")
		}
	}
}
