package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the closed set of appointment states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ParseStatus validates a raw status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusAccepted, StatusCompleted, StatusCancelled:
		return Status(s), nil
	}
	return "", fmt.Errorf("invalid appointment status: %q", s)
}

// PersonSummary is the slice of a user account embedded in an appointment.
type PersonSummary struct {
	ID        uuid.UUID `db:"id" json:"id"`
	FirstName string    `db:"first_name" json:"firstName"`
	LastName  string    `db:"last_name" json:"lastName"`
	Email     string    `db:"email" json:"email"`
}

// FullName is used when rendering notification templates.
func (p PersonSummary) FullName() string {
	return p.FirstName + " " + p.LastName
}

// CategorySummary is the category slice embedded in an appointment.
type CategorySummary struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
}

// Appointment maps to the appointments table. Reads always hydrate the
// patient, doctor and category summaries with explicit joins.
type Appointment struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patientId"`
	DoctorID        uuid.UUID  `db:"doctor_id" json:"doctorId"`
	CategoryID      uuid.UUID  `db:"category_id" json:"categoryId"`
	Status          Status     `db:"status" json:"status"`
	AppointmentDate *time.Time `db:"appointment_date" json:"appointmentDate"`
	Prescription    *string    `db:"prescription" json:"prescription"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`

	Patient  PersonSummary   `db:"-" json:"patient"`
	Doctor   PersonSummary   `db:"-" json:"doctor"`
	Category CategorySummary `db:"-" json:"category"`
}

// DateLabel renders the appointment date for notification templates.
func (a *Appointment) DateLabel() string {
	if a.AppointmentDate == nil {
		return "a date to be scheduled"
	}
	return a.AppointmentDate.Format("January 2, 2006 at 15:04")
}
