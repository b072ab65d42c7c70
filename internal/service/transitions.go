package service

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/trip-ledger/internal/ledger"
	"github.com/ukydev/trip-ledger/internal/models"
	"github.com/ukydev/trip-ledger/internal/status"
)

// compensateTimeout bounds the undo work after a failed status change or
// payment batch. It runs even when the request context is already done.
const compensateTimeout = 5 * time.Second

// StatusChange is a request to move a trip to Status. Moving to the
// previous status is an undo; the other fields are read only by the forward
// step that needs them.
type StatusChange struct {
	Status   models.Status
	Date     time.Time
	PODImage string
	Payment  *status.SettlementPayment
}

// ChangeStatus advances or undoes a trip. A transition whose side effects
// cannot be delivered is rolled back, so callers see all or nothing.
func (s *Service) ChangeStatus(ctx context.Context, tripID string, change StatusChange) (TripView, error) {
	return s.transition(ctx, tripID, func(trip models.Trip) (status.Outcome, error) {
		req, undo, err := status.To(&trip, change.Status, change.Date, change.PODImage, change.Payment)
		if err != nil {
			return status.Outcome{}, err
		}
		if undo {
			return status.Undo(trip)
		}
		return status.Advance(trip, req)
	})
}

// UndoStatus steps a trip back one status, whatever it currently is.
func (s *Service) UndoStatus(ctx context.Context, tripID string) (TripView, error) {
	return s.transition(ctx, tripID, status.Undo)
}

func (s *Service) transition(ctx context.Context, tripID string, step func(models.Trip) (status.Outcome, error)) (TripView, error) {
	var outcome status.Outcome
	before, after, err := s.mutate(ctx, "change_status", s.byTrip(tripID), func(trip models.Trip) (models.Trip, error) {
		var err error
		outcome, err = step(trip)
		if err != nil {
			return trip, err
		}
		return outcome.Trip, nil
	})
	if err != nil {
		return TripView{}, err
	}

	if len(outcome.Effects) > 0 {
		if err := s.dispatch(ctx, outcome.Effects); err != nil {
			s.compensate(before, after)
			return TripView{}, &ledger.PersistenceError{Op: "release resources", Err: err}
		}
	}

	s.metrics.ObserveTransition(outcome.From.String(), after.Status.String())
	s.logger.WithFields(log.Fields{
		"trip_id": tripID,
		"from":    outcome.From.String(),
		"to":      after.Status.String(),
		"effects": len(outcome.Effects),
	}).Info("trip status changed")
	return viewOf(after), nil
}

func (s *Service) dispatch(ctx context.Context, effects []status.ResourceAvailable) error {
	err := s.publisher.Publish(ctx, effects)
	for _, ev := range effects {
		s.metrics.ObserveEffect(string(ev.Kind), err)
	}
	return err
}

// compensate puts back the document that was replaced by after, provided
// nobody has written since.
func (s *Service) compensate(before, after models.Trip) {
	ctx, cancel := context.WithTimeout(context.Background(), compensateTimeout)
	defer cancel()
	logger := s.logger.WithFields(log.Fields{"trip_id": after.TripID, "version": after.Version})
	if _, err := s.store.ReplaceTrip(ctx, before, after.Version); err != nil {
		logger.WithError(err).Error("failed to restore trip after resource release failure")
		return
	}
	logger.Warn("status change rolled back")
}
