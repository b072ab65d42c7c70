package db

import (
	"context"
	"errors"

	"github.com/ukydev/trip-ledger/internal/models"
)

var (
	// ErrTripNotFound is returned when no trip matches the lookup.
	ErrTripNotFound = errors.New("trip not found")
	// ErrVersionConflict is returned when the stored trip changed since it was read.
	ErrVersionConflict = errors.New("trip was modified concurrently")
	// ErrDuplicateTrip is returned when a tripId is already taken.
	ErrDuplicateTrip = errors.New("trip already exists")
)

// TripFilter narrows FindTrips. Zero fields are ignored.
type TripFilter struct {
	PartyID    string
	SupplierID string
	TruckID    string
	Status     *models.Status
	Limit      int64
}

// TripCollection defines the interface for trip document operations.
type TripCollection interface {
	InsertTrip(ctx context.Context, trip models.Trip) error
	FindTripByID(ctx context.Context, tripID string) (*models.Trip, error)
	FindTripByLedgerEntry(ctx context.Context, entryID string) (*models.Trip, error)
	FindTrips(ctx context.Context, filter TripFilter) ([]models.Trip, error)
	// ReplaceTrip stores trip only if the stored version still equals
	// expectedVersion, and bumps the version on success.
	ReplaceTrip(ctx context.Context, trip models.Trip, expectedVersion int64) (models.Trip, error)
}
