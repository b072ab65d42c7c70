package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/trip-ledger/internal/db"
	"github.com/ukydev/trip-ledger/internal/ledger"
	"github.com/ukydev/trip-ledger/internal/models"
	"github.com/ukydev/trip-ledger/internal/service"
	"github.com/ukydev/trip-ledger/internal/status"
)

// TripService is the service behaviour the HTTP layer depends on.
// Implemented by *service.Service.
type TripService interface {
	CreateTrip(ctx context.Context, in service.NewTrip) (service.TripView, error)
	GetTrip(ctx context.Context, tripID string) (service.TripView, error)
	ListTrips(ctx context.Context, filter db.TripFilter) ([]service.TripView, error)
	ChangeStatus(ctx context.Context, tripID string, change service.StatusChange) (service.TripView, error)
	UndoStatus(ctx context.Context, tripID string) (service.TripView, error)

	AddCharge(ctx context.Context, tripID string, charge models.Charge) (models.Charge, error)
	EditCharge(ctx context.Context, tripID, chargeID string, patch ledger.ChargePatch) (models.Charge, error)
	DeleteCharge(ctx context.Context, tripID, chargeID string) error
	AddExpense(ctx context.Context, tripID string, expense models.Expense) (models.Expense, error)
	EditExpense(ctx context.Context, tripID, expenseID string, patch ledger.ExpensePatch) (models.Expense, error)
	DeleteExpense(ctx context.Context, tripID, expenseID string) error

	AddPartyPayment(ctx context.Context, partyID, tripID string, entry models.LedgerEntry) (models.LedgerEntry, error)
	EditPartyPayment(ctx context.Context, partyID, entryID string, patch ledger.EntryPatch) (models.LedgerEntry, error)
	DeletePartyPayment(ctx context.Context, partyID, entryID string) (models.LedgerEntry, error)
	AddSupplierPayments(ctx context.Context, supplierID string, payments []service.SupplierPayment) ([]models.LedgerEntry, error)
	EditSupplierPayment(ctx context.Context, supplierID, entryID string, patch ledger.EntryPatch) (models.LedgerEntry, error)
	DeleteSupplierPayment(ctx context.Context, supplierID, entryID string) (models.LedgerEntry, error)
}

// TripHandler serves the trip, charge, expense and payment routes.
type TripHandler struct {
	svc      TripService
	validate *validator.Validate
	logger   log.FieldLogger
}

// NewTripHandler creates a new trip handler
func NewTripHandler(svc TripService, logger log.FieldLogger) *TripHandler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &TripHandler{svc: svc, validate: newValidator(), logger: logger}
}

// CreateTripRequest opens a trip. Amount is read for Fixed billing only,
// perUnitRate and totalUnits for the per-unit billing types.
type CreateTripRequest struct {
	TripID        string             `json:"tripId"`
	PartyID       string             `json:"partyId" validate:"required"`
	TruckID       string             `json:"truckId" validate:"required"`
	DriverID      string             `json:"driverId"`
	SupplierID    string             `json:"supplierId"`
	Route         models.Route       `json:"route"`
	LRNumber      string             `json:"lrNumber"`
	FMNumber      string             `json:"fmNumber"`
	BillingType   models.BillingType `json:"billingType" validate:"required"`
	Amount        models.Amount      `json:"amount" validate:"gte=0"`
	PerUnitRate   models.Amount      `json:"perUnitRate" validate:"gte=0"`
	TotalUnits    float64            `json:"totalUnits" validate:"gte=0"`
	TruckHireCost models.Amount      `json:"truckHireCost" validate:"gte=0"`
	StartDate     Date               `json:"startDate"`
}

// CreateTrip handles POST /api/trips
func (h *TripHandler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var req CreateTripRequest
	if !h.decode(w, r, &req) {
		return
	}
	terms, err := models.NewFreightTerms(req.BillingType, req.Amount, req.PerUnitRate, req.TotalUnits)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := h.svc.CreateTrip(r.Context(), service.NewTrip{
		TripID:        req.TripID,
		PartyID:       req.PartyID,
		TruckID:       req.TruckID,
		DriverID:      req.DriverID,
		SupplierID:    req.SupplierID,
		Route:         req.Route,
		LRNumber:      req.LRNumber,
		FMNumber:      req.FMNumber,
		Terms:         terms,
		TruckHireCost: req.TruckHireCost,
		StartDate:     req.StartDate.Time,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// GetTrip handles GET /api/trips/{tripId}
func (h *TripHandler) GetTrip(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetTrip(r.Context(), chi.URLParam(r, "tripId"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListTrips handles GET /api/trips?partyId=&supplierId=&truckId=&status=&limit=
func (h *TripHandler) ListTrips(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := db.TripFilter{
		PartyID:    q.Get("partyId"),
		SupplierID: q.Get("supplierId"),
		TruckID:    q.Get("truckId"),
	}
	if raw := q.Get("status"); raw != "" {
		n, err := strconv.Atoi(raw)
		st := models.Status(n)
		if err != nil || !st.Valid() {
			writeError(w, http.StatusBadRequest, "status must be between 0 and 4")
			return
		}
		filter.Status = &st
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	views, err := h.svc.ListTrips(r.Context(), filter)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trips": views})
}

// StatusData is the body of a status change. Date wins over
// Dates[status] when both are sent. The payment fields are read only when
// settling.
type StatusData struct {
	Status           *int          `json:"status" validate:"required"`
	Date             Date          `json:"date"`
	Dates            []Date        `json:"dates"`
	PODImage         string        `json:"podImage"`
	Amount           models.Amount `json:"amount" validate:"gte=0"`
	PaymentType      string        `json:"paymentType"`
	ReceivedByDriver bool          `json:"receivedByDriver"`
	Notes            string        `json:"notes"`
}

// UpdateStatusRequest wraps StatusData the way the client sends it.
type UpdateStatusRequest struct {
	Data StatusData `json:"data"`
}

func (d StatusData) change() service.StatusChange {
	target := models.Status(*d.Status)
	date := d.Date.Time
	if date.IsZero() && target.Valid() && int(target) < len(d.Dates) {
		date = d.Dates[target].Time
	}
	change := service.StatusChange{Status: target, Date: date, PODImage: d.PODImage}
	if d.PaymentType != "" || d.Amount > 0 {
		change.Payment = &status.SettlementPayment{
			Amount:           d.Amount,
			PaymentType:      d.PaymentType,
			ReceivedByDriver: d.ReceivedByDriver,
			Notes:            d.Notes,
		}
	}
	return change
}

// UpdateStatus handles PATCH /api/trips/{tripId}, used for every forward
// transition and for undo.
func (h *TripHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.svc.ChangeStatus(r.Context(), chi.URLParam(r, "tripId"), req.Data.change())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trip": view.Trip, "summary": view.Summary})
}

// UndoStatus handles POST /api/trips/{tripId}/undo, stepping the trip back
// from whatever status it is in now.
func (h *TripHandler) UndoStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.UndoStatus(r.Context(), chi.URLParam(r, "tripId"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trip": view.Trip, "summary": view.Summary})
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *TripHandler) decode(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if err := decodeJSON(r, target); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}
