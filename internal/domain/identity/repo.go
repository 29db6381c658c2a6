package identity

import (
	"context"

	"github.com/google/uuid"
)

// DoctorFilter narrows the doctor directory query.
type DoctorFilter struct {
	CategoryID *uuid.UUID
	SearchTerm string
}

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*User, error)
	LinkGoogleID(ctx context.Context, id uuid.UUID, googleID string) error
	UpdateRefreshTokenHash(ctx context.Context, id uuid.UUID, hash *string) error
	ListDoctors(ctx context.Context, filter DoctorFilter, limit, offset int) ([]*Doctor, int, error)
	SpecialtiesByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Specialty, error)
	ReplaceSpecialties(ctx context.Context, doctorID uuid.UUID, categoryIDs []uuid.UUID) error
}
