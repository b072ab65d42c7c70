package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ukydev/trip-ledger/internal/ledger"
	"github.com/ukydev/trip-ledger/internal/models"
	"github.com/ukydev/trip-ledger/internal/service"
)

// ChargeRequest is a party bill (partyBill=true) or a deduction.
type ChargeRequest struct {
	ID          string        `json:"id"`
	Amount      models.Amount `json:"amount" validate:"gt=0"`
	Date        Date          `json:"date"`
	ExpenseType string        `json:"expenseType" validate:"required"`
	PartyBill   bool          `json:"partyBill"`
	Notes       string        `json:"notes"`
}

// ExpenseRequest is a trip expense.
type ExpenseRequest struct {
	ID          string        `json:"id"`
	Amount      models.Amount `json:"amount" validate:"gt=0"`
	Date        Date          `json:"date"`
	ExpenseType string        `json:"expenseType" validate:"required"`
	PaymentMode string        `json:"paymentMode"`
	Notes       string        `json:"notes"`
}

// DeleteRequest names the sub-record to remove.
type DeleteRequest struct {
	ID string `json:"id" validate:"required"`
}

// AddCharge handles POST /api/trips/{tripId}/charges
func (h *TripHandler) AddCharge(w http.ResponseWriter, r *http.Request) {
	var req ChargeRequest
	if !h.decode(w, r, &req) {
		return
	}
	charge, err := h.svc.AddCharge(r.Context(), chi.URLParam(r, "tripId"), models.Charge{
		Amount:      req.Amount,
		Date:        req.Date.orNow(),
		ExpenseType: req.ExpenseType,
		PartyBill:   req.PartyBill,
		Notes:       req.Notes,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"newCharge": charge})
}

// EditCharge handles PATCH /api/trips/{tripId}/charges with the full charge.
func (h *TripHandler) EditCharge(w http.ResponseWriter, r *http.Request) {
	var req ChargeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	charge, err := h.svc.EditCharge(r.Context(), chi.URLParam(r, "tripId"), req.ID, ledger.ChargePatch{
		Amount:      req.Amount,
		Date:        req.Date.orNow(),
		ExpenseType: req.ExpenseType,
		PartyBill:   req.PartyBill,
		Notes:       req.Notes,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"charge": charge})
}

// DeleteCharge handles DELETE /api/trips/{tripId}/charges with body {id}.
func (h *TripHandler) DeleteCharge(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.DeleteCharge(r.Context(), chi.URLParam(r, "tripId"), req.ID); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Charge deleted", "id": req.ID})
}

// AddExpense handles POST /api/trips/{tripId}/expenses
func (h *TripHandler) AddExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}
	expense, err := h.svc.AddExpense(r.Context(), chi.URLParam(r, "tripId"), models.Expense{
		Amount:      req.Amount,
		Date:        req.Date.orNow(),
		ExpenseType: req.ExpenseType,
		PaymentMode: req.PaymentMode,
		Notes:       req.Notes,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"expense": expense})
}

// EditExpense handles PATCH /api/trips/{tripId}/expenses with the full expense.
func (h *TripHandler) EditExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	expense, err := h.svc.EditExpense(r.Context(), chi.URLParam(r, "tripId"), req.ID, ledger.ExpensePatch{
		Amount:      req.Amount,
		Date:        req.Date.orNow(),
		ExpenseType: req.ExpenseType,
		PaymentMode: req.PaymentMode,
		Notes:       req.Notes,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"expense": expense})
}

// DeleteExpense handles DELETE /api/trips/{tripId}/expenses with body {id}.
func (h *TripHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.DeleteExpense(r.Context(), chi.URLParam(r, "tripId"), req.ID); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Expense deleted", "id": req.ID})
}

// PaymentRequest is an advance or supplier payment against a trip.
type PaymentRequest struct {
	TripID           string             `json:"trip_id" validate:"required"`
	AccountType      models.AccountType `json:"accountType" validate:"omitempty,oneof=Advances Payments"`
	Amount           models.Amount      `json:"amount" validate:"gt=0"`
	PaymentType      string             `json:"paymentType"`
	ReceivedByDriver bool               `json:"receivedByDriver"`
	Date             Date               `json:"date"`
	Notes            string             `json:"notes"`
}

func (p PaymentRequest) entry() models.LedgerEntry {
	return models.LedgerEntry{
		AccountType:      p.AccountType,
		Amount:           p.Amount,
		PaymentType:      p.PaymentType,
		ReceivedByDriver: p.ReceivedByDriver,
		Date:             p.Date.orNow(),
		Notes:            p.Notes,
	}
}

// PaymentPatch edits an existing advance or supplier payment.
type PaymentPatch struct {
	Amount           models.Amount `json:"amount" validate:"gt=0"`
	PaymentType      string        `json:"paymentType"`
	ReceivedByDriver bool          `json:"receivedByDriver"`
	Date             Date          `json:"date"`
	Notes            string        `json:"notes"`
}

func (p PaymentPatch) patch() ledger.EntryPatch {
	return ledger.EntryPatch{
		Amount:           p.Amount,
		PaymentType:      p.PaymentType,
		ReceivedByDriver: p.ReceivedByDriver,
		Date:             p.Date.orNow(),
		Notes:            p.Notes,
	}
}

// AddPartyPayment handles POST /api/parties/{partyId}/payments
func (h *TripHandler) AddPartyPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	payment, err := h.svc.AddPartyPayment(r.Context(), chi.URLParam(r, "partyId"), req.TripID, req.entry())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"payment": payment})
}

// EditPartyPayment handles PUT /api/parties/{partyId}/payments/{paymentId}
func (h *TripHandler) EditPartyPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentPatch
	if !h.decode(w, r, &req) {
		return
	}
	payment, err := h.svc.EditPartyPayment(r.Context(), chi.URLParam(r, "partyId"), chi.URLParam(r, "paymentId"), req.patch())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payment": payment})
}

// DeletePartyPayment handles DELETE /api/parties/{partyId}/payments/{paymentId}
func (h *TripHandler) DeletePartyPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.svc.DeletePartyPayment(r.Context(), chi.URLParam(r, "partyId"), chi.URLParam(r, "paymentId"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payment": payment})
}

// AddSupplierPayments handles POST /api/suppliers/{supplierId}/payments
// with an array of payments.
func (h *TripHandler) AddSupplierPayments(w http.ResponseWriter, r *http.Request) {
	var req []PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Var(req, "min=1,dive"); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	batch := make([]service.SupplierPayment, 0, len(req))
	for _, p := range req {
		batch = append(batch, service.SupplierPayment{TripID: p.TripID, Entry: p.entry()})
	}
	payments, err := h.svc.AddSupplierPayments(r.Context(), chi.URLParam(r, "supplierId"), batch)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"payments": payments})
}

// EditSupplierPayment handles PUT /api/suppliers/{supplierId}/payments/{paymentId}
func (h *TripHandler) EditSupplierPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentPatch
	if !h.decode(w, r, &req) {
		return
	}
	payment, err := h.svc.EditSupplierPayment(r.Context(), chi.URLParam(r, "supplierId"), chi.URLParam(r, "paymentId"), req.patch())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payment": payment})
}

// DeleteSupplierPayment handles DELETE /api/suppliers/{supplierId}/payments/{paymentId}
func (h *TripHandler) DeleteSupplierPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.svc.DeleteSupplierPayment(r.Context(), chi.URLParam(r, "supplierId"), chi.URLParam(r, "paymentId"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payment": payment})
}
