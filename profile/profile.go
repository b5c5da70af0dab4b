// Package profile holds the people known to the fleet: admins and drivers.
package profile

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDriver Role = "driver"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleDriver
}

type Profile struct {
	ID uuid.UUID `db:"id" json:"id"`
	// UserID is the account identifier issued by the upstream identity provider.
	UserID      string    `db:"user_id" json:"user_id"`
	Role        Role      `db:"role" json:"role"`
	FirstName   *string   `db:"first_name" json:"first_name,omitempty"`
	LastName    *string   `db:"last_name" json:"last_name,omitempty"`
	Email       *string   `db:"email" json:"email,omitempty"`
	PhoneNumber *string   `db:"phone_number" json:"phone_number,omitempty"`
	AddressLine *string   `db:"address_line" json:"address_line,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Name is the display name used in listings and notifications.
func (p Profile) Name() string {
	var parts []string
	if p.FirstName != nil && *p.FirstName != "" {
		parts = append(parts, *p.FirstName)
	}
	if p.LastName != nil && *p.LastName != "" {
		parts = append(parts, *p.LastName)
	}
	if len(parts) == 0 {
		return p.UserID
	}
	return strings.Join(parts, " ")
}
