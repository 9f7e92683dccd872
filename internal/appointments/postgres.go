package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in the relational database. Slot
// uniqueness is enforced by a partial unique index on (doctor_id, date_time)
// restricted to blocking statuses, so the conflict check and the insert are
// one atomic operation even across concurrent turns.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgx.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const appointmentColumns = `id, patient_id, doctor_id, date_time, status, reason, source, created_at`

// ListForDoctor returns ordered appointments in [from, to).
func (r *PostgresRepository) ListForDoctor(ctx context.Context, doctorID string, from, to time.Time, statuses []Status) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE doctor_id = $1 AND date_time >= $2 AND date_time < $3
	`
	args := []any{doctorID, from, to}
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, s := range statuses {
			values[i] = string(s)
		}
		args = append(args, values)
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	query += " ORDER BY date_time ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list failed: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.DateTime, &a.Status, &a.Reason, &a.Source, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("appointments: scan failed: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: rows failed: %w", err)
	}
	return out, nil
}

// Create inserts an appointment; a unique-index violation maps to
// ErrSlotTaken.
func (r *PostgresRepository) Create(ctx context.Context, appt *Appointment) (*Appointment, error) {
	id := appt.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := appt.Status
	if status == "" {
		status = StatusScheduled
	}
	query := `
		INSERT INTO appointments (id, patient_id, doctor_id, date_time, status, reason, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	var createdAt time.Time
	err := r.pool.QueryRow(ctx, query, id, appt.PatientID, appt.DoctorID, appt.DateTime, status, appt.Reason, appt.Source).Scan(&createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("appointments: insert failed: %w", err)
	}

	created := *appt
	created.ID = id
	created.Status = status
	created.CreatedAt = createdAt
	return &created, nil
}

// Update applies the patch; datetime changes hit the same unique index.
func (r *PostgresRepository) Update(ctx context.Context, id string, patch Patch) (*Appointment, error) {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.DateTime != nil {
		add("date_time", *patch.DateTime)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Reason != nil {
		add("reason", *patch.Reason)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("appointments: empty patch")
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE appointments SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), appointmentColumns)

	var a Appointment
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&a.ID, &a.PatientID, &a.DoctorID, &a.DateTime, &a.Status, &a.Reason, &a.Source, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("appointments: update failed: %w", err)
	}
	return &a, nil
}

// FindActive returns the patient's next blocking appointment.
func (r *PostgresRepository) FindActive(ctx context.Context, patientID string, after time.Time) (*Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE patient_id = $1 AND date_time > $2 AND status = ANY($3)
		ORDER BY date_time ASC
		LIMIT 1
	`
	values := make([]string, 0, 3)
	for _, s := range BlockingStatuses() {
		values = append(values, string(s))
	}

	var a Appointment
	err := r.pool.QueryRow(ctx, query, patientID, after, values).Scan(
		&a.ID, &a.PatientID, &a.DoctorID, &a.DateTime, &a.Status, &a.Reason, &a.Source, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select failed: %w", err)
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
