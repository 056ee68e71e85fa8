// internal/domain/user.go
package domain

import "time"

// Role values carried in access tokens and on the users table.
const (
	RoleUser    = "USER"
	RoleAdmin   = "ADMIN"
	RoleService = "SERVICE" // payment gateway confirming top-ups
)

// User is the subset of a marketplace account the ledger needs.
type User struct {
	ID          string    `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	DisplayName string    `db:"display_name" json:"displayName"`
	Role        string    `db:"role" json:"role"`
	IsActive    bool      `db:"is_active" json:"isActive"`
	IsBlocked   bool      `db:"is_blocked" json:"isBlocked"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// CanReceiveFunds reports whether the account may be credited by a transfer.
func (u *User) CanReceiveFunds() bool {
	return u.IsActive && !u.IsBlocked
}
