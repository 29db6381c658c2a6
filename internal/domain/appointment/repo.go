package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows appointment listings.
type Filter struct {
	Status     *Status
	CategoryID *uuid.UUID
}

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetByIDForDoctor scopes the lookup to the owning doctor; a foreign
	// appointment behaves exactly like a missing one.
	GetByIDForDoctor(ctx context.Context, id, doctorID uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment, doctorID uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, f Filter, limit, offset int) ([]*Appointment, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, f Filter, limit, offset int) ([]*Appointment, int, error)
	// BusyDoctorIDs returns the subset of doctorIDs holding a pending or
	// accepted appointment inside [from, to].
	BusyDoctorIDs(ctx context.Context, doctorIDs []uuid.UUID, from, to time.Time) ([]uuid.UUID, error)
}
