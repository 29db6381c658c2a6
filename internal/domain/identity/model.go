package identity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of account roles.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// ParseRole validates a raw role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePatient, RoleDoctor:
		return Role(s), nil
	}
	return "", fmt.Errorf("invalid role: %q", s)
}

// User maps to the users table. Credential columns never serialize.
type User struct {
	ID               uuid.UUID `db:"id" json:"id"`
	Email            string    `db:"email" json:"email"`
	PasswordHash     *string   `db:"password_hash" json:"-"`
	FirstName        string    `db:"first_name" json:"firstName"`
	LastName         string    `db:"last_name" json:"lastName"`
	Role             Role      `db:"role" json:"role"`
	GoogleID         *string   `db:"google_id" json:"-"`
	RefreshTokenHash *string   `db:"refresh_token_hash" json:"-"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`

	// Populated for doctors when the profile is loaded.
	Specialties []Specialty `db:"-" json:"specialties,omitempty"`
}

// FullName is used when rendering notification templates.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Specialty is a category a doctor has attached to their profile.
type Specialty struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
}

// Doctor is the directory view of a doctor account.
type Doctor struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	FirstName   string      `db:"first_name" json:"firstName"`
	LastName    string      `db:"last_name" json:"lastName"`
	Email       string      `db:"email" json:"email"`
	Specialties []Specialty `db:"-" json:"specialties"`
}
