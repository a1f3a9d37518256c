package model

type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
	// RoleSystem is used for internally driven transitions such as payment coupling.
	RoleSystem Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleVendor, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSystem
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID int64  `json:"user_id"`
	Role   Role   `json:"role"`
	Email  string `json:"email,omitempty"`
}
