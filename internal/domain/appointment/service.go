package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/medbook/medbook/internal/platform/apperror"
	"github.com/medbook/medbook/internal/platform/notification"
	"github.com/medbook/medbook/internal/platform/websocket"
)

// DoctorChecker verifies that an account exists and holds the doctor role.
type DoctorChecker interface {
	IsDoctor(ctx context.Context, id uuid.UUID) (bool, error)
}

// CategoryChecker verifies category ids against the catalog.
type CategoryChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	appointments Repository
	doctors      DoctorChecker
	categories   CategoryChecker
	queue        notification.Queue
	sender       notification.EmailSender
	templates    *notification.TemplateEngine
	feed         websocket.EventPublisher
	logger       zerolog.Logger
}

func NewService(
	appointments Repository,
	doctors DoctorChecker,
	categories CategoryChecker,
	queue notification.Queue,
	sender notification.EmailSender,
	templates *notification.TemplateEngine,
	feed websocket.EventPublisher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		appointments: appointments,
		doctors:      doctors,
		categories:   categories,
		queue:        queue,
		sender:       sender,
		templates:    templates,
		feed:         feed,
		logger:       logger,
	}
}

// CreateInput carries a booking request.
type CreateInput struct {
	DoctorID        uuid.UUID
	CategoryID      uuid.UUID
	AppointmentDate *time.Time
}

func (s *Service) Create(ctx context.Context, patientID uuid.UUID, in CreateInput) (*Appointment, error) {
	isDoctor, err := s.doctors.IsDoctor(ctx, in.DoctorID)
	if err != nil {
		return nil, err
	}
	if !isDoctor {
		return nil, apperror.NotFound("Doctor not found")
	}

	exists, err := s.categories.Exists(ctx, in.CategoryID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperror.NotFound("Category not found")
	}

	a := &Appointment{
		PatientID:       patientID,
		DoctorID:        in.DoctorID,
		CategoryID:      in.CategoryID,
		Status:          StatusPending,
		AppointmentDate: in.AppointmentDate,
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, err
	}

	created, err := s.appointments.GetByID(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	// Fire-and-forget: a full queue must not fail the booking.
	if err := s.queue.Publish(ctx, notification.Event{
		Type:          notification.EventNewAppointment,
		AppointmentID: created.ID.String(),
		DoctorID:      created.DoctorID.String(),
		PatientID:     created.PatientID.String(),
	}); err != nil {
		s.logger.Warn().Err(err).
			Str("appointment_id", created.ID.String()).
			Msg("lifecycle event dropped")
	}

	s.publishFeed(ctx, created, websocket.EventAppointmentCreated)
	return created, nil
}

// UpdateInput carries a partial appointment update. Nil fields stay
// untouched.
type UpdateInput struct {
	Status          *Status
	AppointmentDate *time.Time
}

// Update applies the doctor's changes. Any status from the closed set is
// accepted regardless of the current one.
func (s *Service) Update(ctx context.Context, doctorID, id uuid.UUID, in UpdateInput) (*Appointment, error) {
	a, err := s.getOwned(ctx, id, doctorID)
	if err != nil {
		return nil, err
	}

	if in.Status != nil {
		a.Status = *in.Status
	}
	if in.AppointmentDate != nil {
		a.AppointmentDate = in.AppointmentDate
	}
	if err := s.appointments.Update(ctx, a, doctorID); err != nil {
		return nil, err
	}

	if in.Status != nil {
		s.sendEmail(ctx, notification.TemplateAppointmentStatus, a.Patient.Email, map[string]string{
			"patient_name": a.Patient.FullName(),
			"date":         a.DateLabel(),
			"status":       string(a.Status),
		})
		s.publishFeed(ctx, a, websocket.EventAppointmentStatus)
	}
	return a, nil
}

// AddPrescription stores the prescription and completes the appointment.
func (s *Service) AddPrescription(ctx context.Context, doctorID, id uuid.UUID, prescription string) (*Appointment, error) {
	if prescription == "" {
		return nil, apperror.BadRequest("Prescription is required")
	}

	a, err := s.getOwned(ctx, id, doctorID)
	if err != nil {
		return nil, err
	}

	a.Prescription = &prescription
	a.Status = StatusCompleted
	if err := s.appointments.Update(ctx, a, doctorID); err != nil {
		return nil, err
	}

	s.sendEmail(ctx, notification.TemplatePrescriptionAdded, a.Patient.Email, map[string]string{
		"patient_name": a.Patient.FullName(),
		"date":         a.DateLabel(),
	})
	s.publishFeed(ctx, a, websocket.EventPrescriptionAdded)
	return a, nil
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, f Filter, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.ListByPatient(ctx, patientID, f, limit, offset)
}

func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID, f Filter, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.ListByDoctor(ctx, doctorID, f, limit, offset)
}

// Get loads a hydrated appointment by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("Appointment not found")
		}
		return nil, err
	}
	return a, nil
}

// BusyDoctorIDs reports which of the given doctors hold a pending or
// accepted appointment on the given local day.
func (s *Service) BusyDoctorIDs(ctx context.Context, doctorIDs []uuid.UUID, day time.Time) (map[uuid.UUID]bool, error) {
	if len(doctorIDs) == 0 {
		return map[uuid.UUID]bool{}, nil
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := from.Add(24*time.Hour - time.Nanosecond)

	ids, err := s.appointments.BusyDoctorIDs(ctx, doctorIDs, from, to)
	if err != nil {
		return nil, err
	}
	busy := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		busy[id] = true
	}
	return busy, nil
}

func (s *Service) getOwned(ctx context.Context, id, doctorID uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByIDForDoctor(ctx, id, doctorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("Appointment not found")
		}
		return nil, err
	}
	return a, nil
}

// sendEmail delivers best-effort. Failures are logged and never surface to
// the request.
func (s *Service) sendEmail(ctx context.Context, templateID, to string, data map[string]string) {
	subject, body, err := s.templates.Render(templateID, data)
	if err != nil {
		s.logger.Error().Err(err).Str("template", templateID).Msg("render notification")
		return
	}
	if err := s.sender.SendEmail(ctx, to, subject, body); err != nil {
		s.logger.Error().Err(err).Str("to", to).Str("template", templateID).Msg("send notification")
	}
}

func (s *Service) publishFeed(ctx context.Context, a *Appointment, eventType string) {
	event := websocket.Event{
		Type:          eventType,
		AppointmentID: a.ID.String(),
		Status:        string(a.Status),
	}
	for _, userID := range []uuid.UUID{a.PatientID, a.DoctorID} {
		if err := s.feed.Publish(ctx, userID.String(), event); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("feed publish")
		}
	}
}
