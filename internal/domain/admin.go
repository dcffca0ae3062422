package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AdminUser is a back-office operator. Buyers never have accounts; they
// reach their purchase through a signed link token instead.
type AdminUser struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"` // viewer, admin or superadmin
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CanSignIn reports whether the account exists and is enabled.
func (u *AdminUser) CanSignIn() bool {
	return u != nil && u.Active
}

// NormalizeEmail is the form admin emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
