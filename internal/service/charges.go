package service

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/trip-ledger/internal/ledger"
	"github.com/ukydev/trip-ledger/internal/models"
)

// AddCharge adds a party bill or deduction to a trip.
func (s *Service) AddCharge(ctx context.Context, tripID string, charge models.Charge) (models.Charge, error) {
	if charge.ID == "" {
		charge.ID = newRecordID()
	}
	var added models.Charge
	_, _, err := s.mutate(ctx, "add_charge", s.byTrip(tripID), func(trip models.Trip) (models.Trip, error) {
		next, c, err := ledger.AddCharge(trip, charge)
		added = c
		return next, err
	})
	if err != nil {
		return models.Charge{}, err
	}
	s.logger.WithFields(log.Fields{"trip_id": tripID, "charge_id": added.ID, "amount": added.Amount.String()}).Info("charge added")
	return added, nil
}

// EditCharge replaces the fields of an existing charge.
func (s *Service) EditCharge(ctx context.Context, tripID, chargeID string, patch ledger.ChargePatch) (models.Charge, error) {
	var edited models.Charge
	_, _, err := s.mutate(ctx, "edit_charge", s.byTrip(tripID), func(trip models.Trip) (models.Trip, error) {
		next, c, err := ledger.EditCharge(trip, chargeID, patch)
		edited = c
		return next, err
	})
	if err != nil {
		return models.Charge{}, err
	}
	return edited, nil
}

// DeleteCharge removes a charge; its contribution to the balance reverses.
func (s *Service) DeleteCharge(ctx context.Context, tripID, chargeID string) error {
	_, _, err := s.mutate(ctx, "delete_charge", s.byTrip(tripID), func(trip models.Trip) (models.Trip, error) {
		return ledger.DeleteCharge(trip, chargeID)
	})
	return err
}

// AddExpense records a trip expense.
func (s *Service) AddExpense(ctx context.Context, tripID string, expense models.Expense) (models.Expense, error) {
	if expense.ID == "" {
		expense.ID = newRecordID()
	}
	var added models.Expense
	_, _, err := s.mutate(ctx, "add_expense", s.byTrip(tripID), func(trip models.Trip) (models.Trip, error) {
		next, e, err := ledger.AddExpense(trip, expense)
		added = e
		return next, err
	})
	if err != nil {
		return models.Expense{}, err
	}
	return added, nil
}

// EditExpense replaces the fields of an existing expense.
func (s *Service) EditExpense(ctx context.Context, tripID, expenseID string, patch ledger.ExpensePatch) (models.Expense, error) {
	var edited models.Expense
	_, _, err := s.mutate(ctx, "edit_expense", s.byTrip(tripID), func(trip models.Trip) (models.Trip, error) {
		next, e, err := ledger.EditExpense(trip, expenseID, patch)
		edited = e
		return next, err
	})
	if err != nil {
		return models.Expense{}, err
	}
	return edited, nil
}

// DeleteExpense removes an expense.
func (s *Service) DeleteExpense(ctx context.Context, tripID, expenseID string) error {
	_, _, err := s.mutate(ctx, "delete_expense", s.byTrip(tripID), func(trip models.Trip) (models.Trip, error) {
		return ledger.DeleteExpense(trip, expenseID)
	})
	return err
}
