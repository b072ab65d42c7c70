package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/trip-ledger/internal/auth"
	"github.com/ukydev/trip-ledger/internal/db"
	"github.com/ukydev/trip-ledger/internal/ledger"
	"github.com/ukydev/trip-ledger/internal/models"
	"github.com/ukydev/trip-ledger/internal/service"
)

// MockTripService is a mock implementation of TripService
type MockTripService struct {
	mock.Mock
}

func (m *MockTripService) CreateTrip(ctx context.Context, in service.NewTrip) (service.TripView, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(service.TripView), args.Error(1)
}

func (m *MockTripService) GetTrip(ctx context.Context, tripID string) (service.TripView, error) {
	args := m.Called(ctx, tripID)
	return args.Get(0).(service.TripView), args.Error(1)
}

func (m *MockTripService) ListTrips(ctx context.Context, filter db.TripFilter) ([]service.TripView, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]service.TripView), args.Error(1)
}

func (m *MockTripService) ChangeStatus(ctx context.Context, tripID string, change service.StatusChange) (service.TripView, error) {
	args := m.Called(ctx, tripID, change)
	return args.Get(0).(service.TripView), args.Error(1)
}

func (m *MockTripService) UndoStatus(ctx context.Context, tripID string) (service.TripView, error) {
	args := m.Called(ctx, tripID)
	return args.Get(0).(service.TripView), args.Error(1)
}

func (m *MockTripService) AddCharge(ctx context.Context, tripID string, charge models.Charge) (models.Charge, error) {
	args := m.Called(ctx, tripID, charge)
	return args.Get(0).(models.Charge), args.Error(1)
}

func (m *MockTripService) EditCharge(ctx context.Context, tripID, chargeID string, patch ledger.ChargePatch) (models.Charge, error) {
	args := m.Called(ctx, tripID, chargeID, patch)
	return args.Get(0).(models.Charge), args.Error(1)
}

func (m *MockTripService) DeleteCharge(ctx context.Context, tripID, chargeID string) error {
	return m.Called(ctx, tripID, chargeID).Error(0)
}

func (m *MockTripService) AddExpense(ctx context.Context, tripID string, expense models.Expense) (models.Expense, error) {
	args := m.Called(ctx, tripID, expense)
	return args.Get(0).(models.Expense), args.Error(1)
}

func (m *MockTripService) EditExpense(ctx context.Context, tripID, expenseID string, patch ledger.ExpensePatch) (models.Expense, error) {
	args := m.Called(ctx, tripID, expenseID, patch)
	return args.Get(0).(models.Expense), args.Error(1)
}

func (m *MockTripService) DeleteExpense(ctx context.Context, tripID, expenseID string) error {
	return m.Called(ctx, tripID, expenseID).Error(0)
}

func (m *MockTripService) AddPartyPayment(ctx context.Context, partyID, tripID string, entry models.LedgerEntry) (models.LedgerEntry, error) {
	args := m.Called(ctx, partyID, tripID, entry)
	return args.Get(0).(models.LedgerEntry), args.Error(1)
}

func (m *MockTripService) EditPartyPayment(ctx context.Context, partyID, entryID string, patch ledger.EntryPatch) (models.LedgerEntry, error) {
	args := m.Called(ctx, partyID, entryID, patch)
	return args.Get(0).(models.LedgerEntry), args.Error(1)
}

func (m *MockTripService) DeletePartyPayment(ctx context.Context, partyID, entryID string) (models.LedgerEntry, error) {
	args := m.Called(ctx, partyID, entryID)
	return args.Get(0).(models.LedgerEntry), args.Error(1)
}

func (m *MockTripService) AddSupplierPayments(ctx context.Context, supplierID string, payments []service.SupplierPayment) ([]models.LedgerEntry, error) {
	args := m.Called(ctx, supplierID, payments)
	return args.Get(0).([]models.LedgerEntry), args.Error(1)
}

func (m *MockTripService) EditSupplierPayment(ctx context.Context, supplierID, entryID string, patch ledger.EntryPatch) (models.LedgerEntry, error) {
	args := m.Called(ctx, supplierID, entryID, patch)
	return args.Get(0).(models.LedgerEntry), args.Error(1)
}

func (m *MockTripService) DeleteSupplierPayment(ctx context.Context, supplierID, entryID string) (models.LedgerEntry, error) {
	args := m.Called(ctx, supplierID, entryID)
	return args.Get(0).(models.LedgerEntry), args.Error(1)
}

type testServer struct {
	handler http.Handler
	svc     *MockTripService
	auth    *auth.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	authService, err := auth.NewService("handlers-test-secret", time.Hour)
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	svc := new(MockTripService)
	return &testServer{
		handler: NewRouter(RouterParams{Trips: svc, Auth: authService, Logger: logger}),
		svc:     svc,
		auth:    authService,
	}
}

func (s *testServer) do(t *testing.T, role models.Role, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		token, err := s.auth.GenerateToken("u-1", "ops", role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func sampleView() service.TripView {
	trip := models.Trip{
		TripID:        "T-1",
		PartyID:       "P-1",
		TruckID:       "TR-1",
		BillingType:   models.BillingFixed,
		FreightAmount: models.Rupees(10000),
	}
	return service.TripView{Trip: trip, Summary: ledger.Summarize(&trip)}
}

func TestHealthAndAuth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "", "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])

	// served outside /api without a token; no registry is wired here
	w = s.do(t, "", "GET", "/metrics", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(t, "", "GET", "/api/trips/T-1", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, models.RoleViewer, "GET", "/api/me", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "viewer", decodeBody(t, w)["role"])

	s.svc.AssertNotCalled(t, "GetTrip", mock.Anything, mock.Anything)
}

func TestHealth_Unavailable(t *testing.T) {
	authService, err := auth.NewService("handlers-test-secret", time.Hour)
	require.NoError(t, err)
	logger, hook := test.NewNullLogger()
	router := NewRouter(RouterParams{
		Trips:  new(MockTripService),
		Auth:   authService,
		Logger: logger,
		Health: func(ctx context.Context) error { return errors.New("mongo down") },
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotEmpty(t, hook.AllEntries())
}

func TestCreateTrip(t *testing.T) {
	s := newTestServer(t)

	s.svc.On("CreateTrip", mock.Anything, mock.MatchedBy(func(in service.NewTrip) bool {
		freight, err := in.Terms.Freight()
		return in.PartyID == "P-1" && in.TruckID == "TR-1" && err == nil && freight == models.Rupees(10000)
	})).Return(sampleView(), nil).Once()

	w := s.do(t, models.RoleManager, "POST", "/api/trips",
		`{"partyId":"P-1","truckId":"TR-1","billingType":"Fixed","amount":10000}`)
	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "T-1", body["trip"].(map[string]interface{})["tripId"])
	assert.Equal(t, 10000.0, body["summary"].(map[string]interface{})["partyBalance"])

	t.Run("missing party", func(t *testing.T) {
		w := s.do(t, models.RoleManager, "POST", "/api/trips", `{"truckId":"TR-1","billingType":"Fixed"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "partyId is required", decodeBody(t, w)["message"])
	})

	t.Run("accountant may not create", func(t *testing.T) {
		w := s.do(t, models.RoleAccountant, "POST", "/api/trips",
			`{"partyId":"P-1","truckId":"TR-1","billingType":"Fixed","amount":10000}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	s.svc.AssertExpectations(t)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"not found", &ledger.NotFoundError{Kind: "trip", ID: "T-1"}, http.StatusNotFound, ""},
		{"validation", ledger.Validationf("amount must be positive"), http.StatusBadRequest, "amount must be positive"},
		{"conflict", ledger.ErrConflict, http.StatusConflict, ledger.ErrConflict.Error()},
		{"persistence", &ledger.PersistenceError{Op: "load trip", Err: errors.New("socket closed")}, http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.svc.On("GetTrip", mock.Anything, "T-1").Return(service.TripView{}, tt.err).Once()

			w := s.do(t, models.RoleViewer, "GET", "/api/trips/T-1", "")
			assert.Equal(t, tt.code, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, float64(tt.code), body["status"])
			if tt.message != "" {
				assert.Equal(t, tt.message, body["message"])
			}
		})
	}
}

func TestListTrips(t *testing.T) {
	s := newTestServer(t)
	settled := models.StatusSettled
	s.svc.On("ListTrips", mock.Anything, db.TripFilter{PartyID: "P-1", Status: &settled, Limit: 5}).
		Return([]service.TripView{sampleView()}, nil).Once()

	w := s.do(t, models.RoleViewer, "GET", "/api/trips?partyId=P-1&status=4&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["trips"], 1)

	w = s.do(t, models.RoleViewer, "GET", "/api/trips?status=9", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.svc.AssertExpectations(t)
}

func TestUpdateStatus(t *testing.T) {
	s := newTestServer(t)
	delivered := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	s.svc.On("ChangeStatus", mock.Anything, "T-1", mock.MatchedBy(func(c service.StatusChange) bool {
		return c.Status == models.StatusCompleted && c.Date.Equal(delivered) && c.Payment == nil
	})).Return(sampleView(), nil).Once()

	w := s.do(t, models.RoleManager, "PATCH", "/api/trips/T-1",
		`{"data":{"status":1,"dates":[null,"2026-10-01"]}}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body, "trip")
	assert.Contains(t, body, "summary")

	t.Run("settle carries payment", func(t *testing.T) {
		s.svc.On("ChangeStatus", mock.Anything, "T-2", mock.MatchedBy(func(c service.StatusChange) bool {
			return c.Status == models.StatusSettled && c.Payment != nil &&
				c.Payment.Amount == models.Rupees(2500) && c.Payment.PaymentType == "NEFT"
		})).Return(sampleView(), nil).Once()

		w := s.do(t, models.RoleManager, "PATCH", "/api/trips/T-2",
			`{"data":{"status":4,"amount":2500,"paymentType":"NEFT"}}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("invalid transition", func(t *testing.T) {
		s.svc.On("ChangeStatus", mock.Anything, "T-3", mock.Anything).
			Return(service.TripView{}, &ledger.InvalidTransitionError{From: models.StatusStarted, To: models.StatusPODSubmitted}).Once()

		w := s.do(t, models.RoleManager, "PATCH", "/api/trips/T-3", `{"data":{"status":3}}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("status required", func(t *testing.T) {
		w := s.do(t, models.RoleManager, "PATCH", "/api/trips/T-1", `{"data":{}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("viewer may not change status", func(t *testing.T) {
		w := s.do(t, models.RoleViewer, "PATCH", "/api/trips/T-1", `{"data":{"status":1}}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	s.svc.AssertExpectations(t)
}

func TestUndoStatus(t *testing.T) {
	s := newTestServer(t)
	s.svc.On("UndoStatus", mock.Anything, "T-1").Return(sampleView(), nil).Once()
	s.svc.On("UndoStatus", mock.Anything, "T-9").
		Return(service.TripView{}, &ledger.NotFoundError{Kind: "trip", ID: "T-9"}).Once()

	w := s.do(t, models.RoleManager, "POST", "/api/trips/T-1/undo", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, models.RoleAdmin, "POST", "/api/trips/T-9/undo", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, models.RoleAccountant, "POST", "/api/trips/T-1/undo", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	s.svc.AssertExpectations(t)
}

func TestCharges(t *testing.T) {
	s := newTestServer(t)

	s.svc.On("AddCharge", mock.Anything, "T-1", mock.MatchedBy(func(c models.Charge) bool {
		return c.Amount == models.Rupees(500) && c.PartyBill && c.ExpenseType == "loading" && !c.Date.IsZero()
	})).Return(models.Charge{ID: "c-1", Amount: models.Rupees(500), PartyBill: true}, nil).Once()

	w := s.do(t, models.RoleAccountant, "POST", "/api/trips/T-1/charges",
		`{"amount":500,"expenseType":"loading","partyBill":true}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "c-1", decodeBody(t, w)["newCharge"].(map[string]interface{})["id"])

	s.svc.On("EditCharge", mock.Anything, "T-1", "c-1", mock.AnythingOfType("ledger.ChargePatch")).
		Return(models.Charge{ID: "c-1", Amount: models.Rupees(700)}, nil).Once()
	w = s.do(t, models.RoleAccountant, "PATCH", "/api/trips/T-1/charges",
		`{"id":"c-1","amount":700,"expenseType":"loading","partyBill":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decodeBody(t, w), "charge")

	s.svc.On("DeleteCharge", mock.Anything, "T-1", "c-1").Return(nil).Once()
	w = s.do(t, models.RoleAccountant, "DELETE", "/api/trips/T-1/charges", `{"id":"c-1"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, models.RoleAccountant, "POST", "/api/trips/T-1/charges", `{"amount":0,"expenseType":"loading"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, models.RoleViewer, "DELETE", "/api/trips/T-1/charges", `{"id":"c-1"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	s.svc.AssertExpectations(t)
}

func TestExpenses(t *testing.T) {
	s := newTestServer(t)

	s.svc.On("AddExpense", mock.Anything, "T-1", mock.MatchedBy(func(e models.Expense) bool {
		return e.Amount == models.Rupees(1200) && e.ExpenseType == "fuel" &&
			e.Date.Equal(time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC))
	})).Return(models.Expense{ID: "e-1"}, nil).Once()

	w := s.do(t, models.RoleAccountant, "POST", "/api/trips/T-1/expenses",
		`{"amount":"1200.00","expenseType":"fuel","date":"2026-09-30"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	s.svc.On("DeleteExpense", mock.Anything, "T-1", "e-404").
		Return(&ledger.NotFoundError{Kind: "expense", ID: "e-404"}).Once()
	w = s.do(t, models.RoleAccountant, "DELETE", "/api/trips/T-1/expenses", `{"id":"e-404"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	s.svc.AssertExpectations(t)
}

func TestPartyPayments(t *testing.T) {
	s := newTestServer(t)

	s.svc.On("AddPartyPayment", mock.Anything, "P-1", "T-1", mock.MatchedBy(func(e models.LedgerEntry) bool {
		return e.AccountType == models.AccountAdvances && e.Amount == models.Rupees(3000) && e.ReceivedByDriver
	})).Return(models.LedgerEntry{ID: "a-1", AccountType: models.AccountAdvances}, nil).Once()

	w := s.do(t, models.RoleAccountant, "POST", "/api/parties/P-1/payments",
		`{"trip_id":"T-1","accountType":"Advances","amount":3000,"paymentType":"Cash","receivedByDriver":true}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "a-1", decodeBody(t, w)["payment"].(map[string]interface{})["id"])

	t.Run("missing trip", func(t *testing.T) {
		w := s.do(t, models.RoleAccountant, "POST", "/api/parties/P-1/payments", `{"amount":3000}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "trip_id is required", decodeBody(t, w)["message"])
	})

	t.Run("over balance", func(t *testing.T) {
		s.svc.On("AddPartyPayment", mock.Anything, "P-1", "T-2", mock.Anything).
			Return(models.LedgerEntry{}, ledger.Validationf("advance exceeds party balance")).Once()
		w := s.do(t, models.RoleAccountant, "POST", "/api/parties/P-1/payments", `{"trip_id":"T-2","amount":99999}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "advance exceeds party balance", decodeBody(t, w)["message"])
	})

	s.svc.On("EditPartyPayment", mock.Anything, "P-1", "a-1", mock.MatchedBy(func(p ledger.EntryPatch) bool {
		return p.Amount == models.Rupees(2000)
	})).Return(models.LedgerEntry{ID: "a-1"}, nil).Once()
	w = s.do(t, models.RoleAccountant, "PUT", "/api/parties/P-1/payments/a-1", `{"amount":2000}`)
	assert.Equal(t, http.StatusOK, w.Code)

	s.svc.On("DeletePartyPayment", mock.Anything, "P-1", "a-1").Return(models.LedgerEntry{ID: "a-1"}, nil).Once()
	w = s.do(t, models.RoleAccountant, "DELETE", "/api/parties/P-1/payments/a-1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	s.svc.AssertExpectations(t)
}

func TestSupplierPayments(t *testing.T) {
	s := newTestServer(t)

	s.svc.On("AddSupplierPayments", mock.Anything, "S-1", mock.MatchedBy(func(batch []service.SupplierPayment) bool {
		return len(batch) == 2 && batch[0].TripID == "T-1" && batch[1].TripID == "T-2" &&
			batch[1].Entry.Amount == models.Rupees(400)
	})).Return([]models.LedgerEntry{{ID: "p-1"}, {ID: "p-2"}}, nil).Once()

	w := s.do(t, models.RoleAccountant, "POST", "/api/suppliers/S-1/payments",
		`[{"trip_id":"T-1","amount":100},{"trip_id":"T-2","amount":400}]`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, decodeBody(t, w)["payments"], 2)

	w = s.do(t, models.RoleAccountant, "POST", "/api/suppliers/S-1/payments", `[]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, models.RoleAccountant, "POST", "/api/suppliers/S-1/payments", `[{"trip_id":"T-1","amount":-5}]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.svc.On("DeleteSupplierPayment", mock.Anything, "S-1", "p-1").
		Return(models.LedgerEntry{}, &ledger.InvalidTransitionError{From: models.StatusSettled, To: models.StatusSettled}).Once()
	w = s.do(t, models.RoleAccountant, "DELETE", "/api/suppliers/S-1/payments/p-1", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	s.svc.AssertExpectations(t)
}

func TestDate_UnmarshalJSON(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2026-10-01"`), &d))
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), d.Time)

	require.NoError(t, json.Unmarshal([]byte(`"2026-10-01T10:30:00+05:30"`), &d))
	assert.Equal(t, time.Date(2026, 10, 1, 5, 0, 0, 0, time.UTC), d.Time)

	require.NoError(t, json.Unmarshal([]byte(`""`), &d))
	assert.True(t, d.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &d))
}
