package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Category maps to the categories table. Categories double as the doctor
// specialties patients browse when booking.
type Category struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}
