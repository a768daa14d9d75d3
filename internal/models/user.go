package models

import "time"

// Role gates which lifecycle actions a user may take.
type Role string

const (
	RoleDeveloper Role = "developer"
	RoleLead      Role = "lead"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleDeveloper || r == RoleLead
}

// User is a provisioned account. Users are immutable once created.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
