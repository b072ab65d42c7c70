package ledger

import (
	"time"

	"github.com/ukydev/trip-ledger/internal/models"
)

// ExpensePatch replaces the editable fields of an expense.
type ExpensePatch struct {
	Amount      models.Amount
	Date        time.Time
	ExpenseType string
	PaymentMode string
	Notes       string
}

// AddExpense appends an expense. Expenses reduce profit only.
func AddExpense(trip models.Trip, expense models.Expense) (models.Trip, models.Expense, error) {
	if err := EnsureMutable(&trip); err != nil {
		return trip, expense, err
	}
	if err := requirePositive(expense.Amount); err != nil {
		return trip, expense, err
	}
	stamp(&expense.ID, &expense.CreatedAt)
	out := trip.Clone()
	out.Expenses = append(out.Expenses, expense)
	return out, expense, nil
}

// EditExpense replaces the fields of an expense. Expenses never touch the
// party or supplier balance.
func EditExpense(trip models.Trip, expenseID string, patch ExpensePatch) (models.Trip, models.Expense, error) {
	if err := EnsureMutable(&trip); err != nil {
		return trip, models.Expense{}, err
	}
	idx := findExpense(trip.Expenses, expenseID)
	if idx < 0 {
		return trip, models.Expense{}, &NotFoundError{Kind: "expense", ID: expenseID}
	}
	if err := requirePositive(patch.Amount); err != nil {
		return trip, models.Expense{}, err
	}
	out := trip.Clone()
	e := &out.Expenses[idx]
	e.Amount = patch.Amount
	e.Date = patch.Date
	e.ExpenseType = patch.ExpenseType
	e.PaymentMode = patch.PaymentMode
	e.Notes = patch.Notes
	return out, *e, nil
}

// DeleteExpense removes an expense from the trip.
func DeleteExpense(trip models.Trip, expenseID string) (models.Trip, error) {
	if err := EnsureMutable(&trip); err != nil {
		return trip, err
	}
	idx := findExpense(trip.Expenses, expenseID)
	if idx < 0 {
		return trip, &NotFoundError{Kind: "expense", ID: expenseID}
	}
	out := trip.Clone()
	out.Expenses = append(out.Expenses[:idx], out.Expenses[idx+1:]...)
	return out, nil
}

func findExpense(expenses []models.Expense, id string) int {
	for i := range expenses {
		if expenses[i].ID == id {
			return i
		}
	}
	return -1
}
