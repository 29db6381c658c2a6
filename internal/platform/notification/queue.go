package notification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// EventNewAppointment is published when a patient books an appointment.
const EventNewAppointment = "NEW_APPOINTMENT"

// Event is a message describing something the dispatcher should deliver
// notifications for.
type Event struct {
	Type          string `json:"type"`
	AppointmentID string `json:"appointmentId"`
	DoctorID      string `json:"doctorId"`
	PatientID     string `json:"patientId"`
}

// Queue is the publish side of the notification pipeline. Publishing never
// blocks the caller: a full queue returns an error instead of stalling the
// request that triggered it.
type Queue interface {
	Publish(ctx context.Context, evt Event) error
	Events() <-chan Event
	Close()
}

type memoryQueue struct {
	ch chan Event
}

// NewQueue returns an in-memory Queue with the given buffer size.
func NewQueue(size int) Queue {
	return &memoryQueue{ch: make(chan Event, size)}
}

func (q *memoryQueue) Publish(ctx context.Context, evt Event) error {
	select {
	case q.ch <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("notification queue full, dropping event %s", evt.Type)
	}
}

func (q *memoryQueue) Events() <-chan Event {
	return q.ch
}

func (q *memoryQueue) Close() {
	close(q.ch)
}

// Recipient is the resolved delivery target for an event.
type Recipient struct {
	Email string
	Name  string
}

// RecipientResolver looks up delivery details for a user ID. The identity
// domain provides the implementation.
type RecipientResolver interface {
	RecipientByUserID(ctx context.Context, userID string) (Recipient, error)
}

// Dispatcher consumes queued events and sends the corresponding emails.
// Delivery failures are logged and dropped, never propagated.
type Dispatcher struct {
	queue      Queue
	sender     EmailSender
	templates  *TemplateEngine
	recipients RecipientResolver
	logger     zerolog.Logger
}

func NewDispatcher(queue Queue, sender EmailSender, templates *TemplateEngine, recipients RecipientResolver, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:      queue,
		sender:     sender,
		templates:  templates,
		recipients: recipients,
		logger:     logger,
	}
}

// Run consumes events until the context is cancelled or the queue is closed.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-d.queue.Events():
			if !ok {
				return
			}
			d.handle(ctx, evt)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, evt Event) {
	switch evt.Type {
	case EventNewAppointment:
		d.handleNewAppointment(ctx, evt)
	default:
		d.logger.Warn().
			Str("event_type", evt.Type).
			Str("appointment_id", evt.AppointmentID).
			Msg("dropping event of unknown type")
	}
}

func (d *Dispatcher) handleNewAppointment(ctx context.Context, evt Event) {
	doctor, err := d.recipients.RecipientByUserID(ctx, evt.DoctorID)
	if err != nil {
		d.logger.Error().Err(err).
			Str("doctor_id", evt.DoctorID).
			Str("appointment_id", evt.AppointmentID).
			Msg("resolve doctor for new appointment event")
		return
	}

	patientName := ""
	if patient, err := d.recipients.RecipientByUserID(ctx, evt.PatientID); err == nil {
		patientName = patient.Name
	}

	subject, body, err := d.templates.Render(TemplateNewAppointment, map[string]string{
		"doctor_name":  doctor.Name,
		"patient_name": patientName,
	})
	if err != nil {
		d.logger.Error().Err(err).Msg("render new appointment template")
		return
	}

	if err := d.sender.SendEmail(ctx, doctor.Email, subject, body); err != nil {
		d.logger.Error().Err(err).
			Str("to", doctor.Email).
			Str("appointment_id", evt.AppointmentID).
			Msg("send new appointment email")
		return
	}

	d.logger.Info().
		Str("to", doctor.Email).
		Str("appointment_id", evt.AppointmentID).
		Msg("new appointment email sent")
}
