package identity

import (
	"context"
	"fmt"

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

const userCols = `id, email, password_hash, first_name, last_name, role,
	google_id, refresh_token_hash, created_at, updated_at`

func (r *repoPG) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role,
		&u.GoogleID, &u.RefreshTokenHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repoPG) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, role, google_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.GoogleID).
		Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email))
}

func (r *repoPG) GetByGoogleID(ctx context.Context, googleID string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE google_id = $1`, googleID))
}

func (r *repoPG) LinkGoogleID(ctx context.Context, id uuid.UUID, googleID string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE users SET google_id = $2, updated_at = NOW() WHERE id = $1`, id, googleID)
	return err
}

func (r *repoPG) UpdateRefreshTokenHash(ctx context.Context, id uuid.UUID, hash *string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE users SET refresh_token_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	return err
}

func (r *repoPG) ListDoctors(ctx context.Context, filter DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	query := `SELECT u.id, u.first_name, u.last_name, u.email FROM users u`
	countQuery := `SELECT COUNT(*) FROM users u`
	where := ` WHERE u.role = 'doctor'`
	var args []interface{}
	idx := 1

	if filter.CategoryID != nil {
		join := ` JOIN doctor_specialties ds ON ds.doctor_id = u.id`
		query += join
		countQuery += join
		where += fmt.Sprintf(` AND ds.category_id = $%d`, idx)
		args = append(args, *filter.CategoryID)
		idx++
	}
	if filter.SearchTerm != "" {
		where += fmt.Sprintf(` AND (u.first_name ILIKE $%d OR u.last_name ILIKE $%d)`, idx, idx)
		args = append(args, "%"+filter.SearchTerm+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += where + fmt.Sprintf(` ORDER BY u.last_name ASC, u.first_name ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var doctors []*Doctor
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.FirstName, &d.LastName, &d.Email); err != nil {
			return nil, 0, err
		}
		d.Specialties = []Specialty{}
		doctors = append(doctors, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := r.hydrateSpecialties(ctx, doctors); err != nil {
		return nil, 0, err
	}
	return doctors, total, nil
}

// hydrateSpecialties attaches each doctor's specialties with one query for
// the whole page.
func (r *repoPG) hydrateSpecialties(ctx context.Context, doctors []*Doctor) error {
	if len(doctors) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(doctors))
	byID := make(map[uuid.UUID]*Doctor, len(doctors))
	for i, d := range doctors {
		ids[i] = d.ID
		byID[d.ID] = d
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT ds.doctor_id, c.id, c.name
		FROM doctor_specialties ds
		JOIN categories c ON c.id = ds.category_id
		WHERE ds.doctor_id = ANY($1)
		ORDER BY c.name ASC`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var doctorID uuid.UUID
		var sp Specialty
		if err := rows.Scan(&doctorID, &sp.ID, &sp.Name); err != nil {
			return err
		}
		if d, ok := byID[doctorID]; ok {
			d.Specialties = append(d.Specialties, sp)
		}
	}
	return rows.Err()
}

func (r *repoPG) SpecialtiesByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Specialty, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT c.id, c.name
		FROM doctor_specialties ds
		JOIN categories c ON c.id = ds.category_id
		WHERE ds.doctor_id = $1
		ORDER BY c.name ASC`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	specialties := []Specialty{}
	for rows.Next() {
		var sp Specialty
		if err := rows.Scan(&sp.ID, &sp.Name); err != nil {
			return nil, err
		}
		specialties = append(specialties, sp)
	}
	return specialties, rows.Err()
}

func (r *repoPG) ReplaceSpecialties(ctx context.Context, doctorID uuid.UUID, categoryIDs []uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if _, err := r.conn(ctx).Exec(ctx,
			`DELETE FROM doctor_specialties WHERE doctor_id = $1`, doctorID); err != nil {
			return err
		}
		for _, categoryID := range categoryIDs {
			if _, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO doctor_specialties (doctor_id, category_id)
				VALUES ($1, $2) ON CONFLICT DO NOTHING`, doctorID, categoryID); err != nil {
				return err
			}
		}
		return nil
	})
}
