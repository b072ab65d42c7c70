// Package service runs ledger and status operations against the trip store.
//
// Every mutation is a read-modify-write of one trip document. The write is
// conditional on the version that was read, so a concurrent writer forces a
// fresh read and a fresh validation instead of a lost update.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/trip-ledger/internal/db"
	"github.com/ukydev/trip-ledger/internal/events"
	"github.com/ukydev/trip-ledger/internal/ledger"
	"github.com/ukydev/trip-ledger/internal/metrics"
	"github.com/ukydev/trip-ledger/internal/models"
)

const defaultConflictRetries = 3

// newRecordID assigns ids to sub-records before the first attempt so that
// retries reuse them.
var newRecordID = uuid.NewString

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Publisher       events.Publisher
	Metrics         *metrics.Metrics
	Logger          log.FieldLogger
	ConflictRetries int
}

// Service is the trip ledger API used by the HTTP handlers.
type Service struct {
	store     db.TripCollection
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    log.FieldLogger
	retries   int
	now       func() time.Time
}

// New builds a Service over store.
func New(store db.TripCollection, opts Options) *Service {
	s := &Service{
		store:     store,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		retries:   opts.ConflictRetries,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if s.logger == nil {
		s.logger = log.StandardLogger()
	}
	if s.publisher == nil {
		s.publisher = events.LogPublisher{Logger: s.logger}
	}
	if s.retries <= 0 {
		s.retries = defaultConflictRetries
	}
	return s
}

// TripView is a trip together with its derived figures.
type TripView struct {
	Trip    models.Trip    `json:"trip"`
	Summary ledger.Summary `json:"summary"`
}

func viewOf(trip models.Trip) TripView {
	return TripView{Trip: trip, Summary: ledger.Summarize(&trip)}
}

// NewTrip holds the fields needed to open a trip.
type NewTrip struct {
	TripID        string
	PartyID       string
	TruckID       string
	DriverID      string
	SupplierID    string
	Route         models.Route
	LRNumber      string
	FMNumber      string
	Terms         models.FreightTerms
	TruckHireCost models.Amount
	StartDate     time.Time
}

// CreateTrip opens a trip at Started with empty collections.
func (s *Service) CreateTrip(ctx context.Context, in NewTrip) (TripView, error) {
	trip, err := s.buildTrip(in)
	if err != nil {
		s.metrics.ObserveMutation("create_trip", err)
		return TripView{}, err
	}
	err = s.store.InsertTrip(ctx, trip)
	switch {
	case errors.Is(err, db.ErrDuplicateTrip):
		err = fmt.Errorf("%w: trip %q already exists", ledger.ErrConflict, trip.TripID)
	case err != nil:
		err = &ledger.PersistenceError{Op: "insert trip", Err: err}
	}
	s.metrics.ObserveMutation("create_trip", err)
	if err != nil {
		return TripView{}, err
	}
	s.logger.WithFields(log.Fields{
		"trip_id":  trip.TripID,
		"party_id": trip.PartyID,
		"freight":  trip.FreightAmount.String(),
	}).Info("trip created")
	return viewOf(trip), nil
}

func (s *Service) buildTrip(in NewTrip) (models.Trip, error) {
	if strings.TrimSpace(in.PartyID) == "" {
		return models.Trip{}, ledger.Validationf("partyId is required")
	}
	if in.Terms == nil {
		return models.Trip{}, ledger.Validationf("billing terms are required")
	}
	if in.TruckHireCost < 0 {
		return models.Trip{}, ledger.Validationf("truckHireCost cannot be negative")
	}
	now := s.now()
	start := in.StartDate
	if start.IsZero() {
		start = now
	}
	trip := models.Trip{
		TripID:        in.TripID,
		PartyID:       in.PartyID,
		TruckID:       in.TruckID,
		DriverID:      in.DriverID,
		SupplierID:    in.SupplierID,
		Route:         in.Route,
		LRNumber:      in.LRNumber,
		FMNumber:      in.FMNumber,
		TruckHireCost: in.TruckHireCost,
		Status:        models.StatusStarted,
		Charges:       []models.Charge{},
		LedgerEntries: []models.LedgerEntry{},
		Expenses:      []models.Expense{},
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if !trip.HasSupplier() && trip.TruckHireCost != 0 {
		return models.Trip{}, ledger.Validationf("truckHireCost requires a supplier")
	}
	trip.Dates[models.StatusStarted] = &start
	if trip.TripID == "" {
		trip.TripID = newRecordID()
	}
	if err := trip.ApplyFreight(in.Terms); err != nil {
		return models.Trip{}, ledger.Validationf("%v", err)
	}
	return trip, nil
}

// GetTrip returns the trip and its summary.
func (s *Service) GetTrip(ctx context.Context, tripID string) (TripView, error) {
	trip, err := s.loadTrip(ctx, tripID)
	if err != nil {
		return TripView{}, err
	}
	return viewOf(*trip), nil
}

// ListTrips returns matching trips, newest first.
func (s *Service) ListTrips(ctx context.Context, filter db.TripFilter) ([]TripView, error) {
	trips, err := s.store.FindTrips(ctx, filter)
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "list trips", Err: err}
	}
	views := make([]TripView, 0, len(trips))
	for _, t := range trips {
		views = append(views, viewOf(t))
	}
	return views, nil
}

func (s *Service) loadTrip(ctx context.Context, tripID string) (*models.Trip, error) {
	trip, err := s.store.FindTripByID(ctx, tripID)
	if err != nil {
		return nil, storeError("load trip", "trip", tripID, err)
	}
	return trip, nil
}

func (s *Service) loadByEntry(ctx context.Context, entryID string) (*models.Trip, error) {
	trip, err := s.store.FindTripByLedgerEntry(ctx, entryID)
	if err != nil {
		return nil, storeError("load trip", "payment", entryID, err)
	}
	return trip, nil
}

func storeError(op, kind, id string, err error) error {
	if errors.Is(err, db.ErrTripNotFound) {
		return &ledger.NotFoundError{Kind: kind, ID: id}
	}
	return &ledger.PersistenceError{Op: op, Err: err}
}

type loader func(ctx context.Context) (*models.Trip, error)

// mutate applies change to the latest stored trip and writes it back. A
// version conflict re-reads and re-runs change; domain errors are returned
// as they are.
func (s *Service) mutate(ctx context.Context, op string, load loader, change func(models.Trip) (models.Trip, error)) (before, after models.Trip, err error) {
	defer func() { s.metrics.ObserveMutation(op, err) }()

	for attempt := 0; attempt <= s.retries; attempt++ {
		current, err := load(ctx)
		if err != nil {
			return models.Trip{}, models.Trip{}, err
		}
		next, err := change(*current)
		if err != nil {
			return models.Trip{}, models.Trip{}, err
		}
		saved, err := s.store.ReplaceTrip(ctx, next, current.Version)
		switch {
		case err == nil:
			return *current, saved, nil
		case errors.Is(err, db.ErrVersionConflict):
			s.metrics.ObserveConflict()
			s.logger.WithFields(log.Fields{
				"trip_id": current.TripID,
				"op":      op,
				"attempt": attempt + 1,
			}).Warn("version conflict, retrying")
			continue
		default:
			return models.Trip{}, models.Trip{}, storeError(op, "trip", current.TripID, err)
		}
	}
	return models.Trip{}, models.Trip{}, fmt.Errorf("%w: %s gave up after %d attempts", ledger.ErrConflict, op, s.retries+1)
}

func (s *Service) byTrip(tripID string) loader {
	return func(ctx context.Context) (*models.Trip, error) { return s.loadTrip(ctx, tripID) }
}

func (s *Service) byEntry(entryID string) loader {
	return func(ctx context.Context) (*models.Trip, error) { return s.loadByEntry(ctx, entryID) }
}
