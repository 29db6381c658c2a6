package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/medbook/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const apptCols = `a.id, a.patient_id, a.doctor_id, a.category_id, a.status,
	a.appointment_date, a.prescription, a.created_at, a.updated_at,
	p.id, p.first_name, p.last_name, p.email,
	d.id, d.first_name, d.last_name, d.email,
	c.id, c.name`

const apptFrom = ` FROM appointments a
	JOIN users p ON p.id = a.patient_id
	JOIN users d ON d.id = a.doctor_id
	JOIN categories c ON c.id = a.category_id`

func (r *repoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.CategoryID, &a.Status,
		&a.AppointmentDate, &a.Prescription, &a.CreatedAt, &a.UpdatedAt,
		&a.Patient.ID, &a.Patient.FirstName, &a.Patient.LastName, &a.Patient.Email,
		&a.Doctor.ID, &a.Doctor.FirstName, &a.Doctor.LastName, &a.Doctor.Email,
		&a.Category.ID, &a.Category.Name)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, category_id, status, appointment_date)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.CategoryID, a.Status, a.AppointmentDate).
		Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+apptFrom+` WHERE a.id = $1`, id))
}

func (r *repoPG) GetByIDForDoctor(ctx context.Context, id, doctorID uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+apptFrom+` WHERE a.id = $1 AND a.doctor_id = $2`, id, doctorID))
}

func (r *repoPG) Update(ctx context.Context, a *Appointment, doctorID uuid.UUID) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments
		SET status = $3, appointment_date = $4, prescription = $5, updated_at = NOW()
		WHERE id = $1 AND doctor_id = $2
		RETURNING updated_at`,
		a.ID, doctorID, a.Status, a.AppointmentDate, a.Prescription).Scan(&a.UpdatedAt)
	return err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, f Filter, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, `a.patient_id`, patientID, f, limit, offset)
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, f Filter, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, `a.doctor_id`, doctorID, f, limit, offset)
}

func (r *repoPG) list(ctx context.Context, ownerCol string, ownerID uuid.UUID, f Filter, limit, offset int) ([]*Appointment, int, error) {
	where := fmt.Sprintf(` WHERE %s = $1`, ownerCol)
	args := []interface{}{ownerID}
	idx := 2

	if f.Status != nil {
		where += fmt.Sprintf(` AND a.status = $%d`, idx)
		args = append(args, *f.Status)
		idx++
	}
	if f.CategoryID != nil {
		where += fmt.Sprintf(` AND a.category_id = $%d`, idx)
		args = append(args, *f.CategoryID)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + apptCols + apptFrom + where +
		fmt.Sprintf(` ORDER BY a.created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	appointments := []*Appointment{}
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		appointments = append(appointments, a)
	}
	return appointments, total, rows.Err()
}

func (r *repoPG) BusyDoctorIDs(ctx context.Context, doctorIDs []uuid.UUID, from, to time.Time) ([]uuid.UUID, error) {
	if len(doctorIDs) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT doctor_id FROM appointments
		WHERE doctor_id = ANY($1)
		  AND appointment_date BETWEEN $2 AND $3
		  AND status IN ('pending', 'accepted')`,
		doctorIDs, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var busy []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		busy = append(busy, id)
	}
	return busy, rows.Err()
}
