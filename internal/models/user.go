package models

// Role represents user roles in the system
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleAccountant Role = "accountant"
	RoleViewer     Role = "viewer"
)

// Actions checked by the permission middleware.
const (
	ActionViewTrips        = "view_trips"
	ActionCreateTrip       = "create_trip"
	ActionUpdateTripStatus = "update_trip_status"
	ActionManageCharges    = "manage_charges"
	ActionManageExpenses   = "manage_expenses"
	ActionManagePayments   = "manage_payments"
)

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Exp      int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleAccountant, RoleViewer:
		return true
	default:
		return false
	}
}

// HasPermission checks if the caller may perform a specific action
func (c *Claims) HasPermission(action string) bool {
	switch c.Role {
	case RoleAdmin, RoleManager:
		return true
	case RoleAccountant:
		return action == ActionViewTrips || action == ActionManageCharges ||
			action == ActionManageExpenses || action == ActionManagePayments
	case RoleViewer:
		return action == ActionViewTrips
	default:
		return false
	}
}
