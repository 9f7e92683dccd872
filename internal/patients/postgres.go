package patients

import (
	"context"
	"encoding/json"
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
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores patients in the relational database.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgx.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const patientColumns = `
	id, phone, full_name, dni, birth_date, address, insurance, consult_reason,
	needs_dni, needs_name, needs_birth_date, needs_address, needs_insurance, needs_reason,
	pending_slot_iso, pending_slot_label, pending_slot_expires_at, pending_slot_reason,
	preferred_day_iso, preferred_hour,
	conversation_state, conversation_state_data, created_at`

// FindByPhone fetches the patient registered under the phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (*Patient, error) {
	query := `SELECT` + patientColumns + ` FROM patients WHERE phone = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, phone))
}

// FindByDNI fetches the earliest-created patient with the document number,
// excluding excludeID.
func (r *PostgresRepository) FindByDNI(ctx context.Context, dni, excludeID string) (*Patient, error) {
	if strings.TrimSpace(dni) == "" {
		return nil, ErrNotFound
	}
	query := `SELECT` + patientColumns + `
		FROM patients
		WHERE dni = $1 AND ($2 = '' OR id::text <> $2)
		ORDER BY created_at ASC
		LIMIT 1`
	return r.scanOne(r.pool.QueryRow(ctx, query, dni, excludeID))
}

// Create inserts a new patient row.
func (r *PostgresRepository) Create(ctx context.Context, p *Patient) (*Patient, error) {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	query := `
		INSERT INTO patients (
			id, phone, full_name, dni, birth_date, address, insurance, consult_reason,
			needs_dni, needs_name, needs_birth_date, needs_address, needs_insurance, needs_reason,
			conversation_state, conversation_state_data
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at
	`
	stateData := p.ConversationStateData
	if len(stateData) == 0 {
		stateData = json.RawMessage("{}")
	}
	var createdAt time.Time
	err := r.pool.QueryRow(ctx, query,
		id, p.Phone, p.FullName, p.DNI, p.BirthDate, p.Address, p.Insurance, p.Reason,
		p.NeedsDNI, p.NeedsName, p.NeedsBirthDate, p.NeedsAddress, p.NeedsInsurance, p.NeedsReason,
		p.ConversationState, stateData,
	).Scan(&createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicatePhone
		}
		return nil, fmt.Errorf("patients: insert failed: %w", err)
	}

	created := *p
	created.ID = id
	created.CreatedAt = createdAt
	return &created, nil
}

// Update applies the patch and returns the updated row.
func (r *PostgresRepository) Update(ctx context.Context, id string, patch Patch) (*Patient, error) {
	sets := make([]string, 0, 8)
	args := make([]any, 0, 8)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Phone != nil {
		add("phone", *patch.Phone)
	}
	if patch.FullName != nil {
		add("full_name", *patch.FullName)
	}
	if patch.DNI != nil {
		add("dni", *patch.DNI)
	}
	if patch.BirthDate != nil {
		add("birth_date", *patch.BirthDate)
	}
	if patch.Address != nil {
		add("address", *patch.Address)
	}
	if patch.Insurance != nil {
		add("insurance", *patch.Insurance)
	}
	if patch.Reason != nil {
		add("consult_reason", *patch.Reason)
	}
	if patch.NeedsDNI != nil {
		add("needs_dni", *patch.NeedsDNI)
	}
	if patch.NeedsName != nil {
		add("needs_name", *patch.NeedsName)
	}
	if patch.NeedsBirthDate != nil {
		add("needs_birth_date", *patch.NeedsBirthDate)
	}
	if patch.NeedsAddress != nil {
		add("needs_address", *patch.NeedsAddress)
	}
	if patch.NeedsInsurance != nil {
		add("needs_insurance", *patch.NeedsInsurance)
	}
	if patch.NeedsReason != nil {
		add("needs_reason", *patch.NeedsReason)
	}
	if patch.PendingSlotISO != nil {
		add("pending_slot_iso", *patch.PendingSlotISO)
	}
	if patch.PendingSlotLabel != nil {
		add("pending_slot_label", *patch.PendingSlotLabel)
	}
	if patch.PendingSlotExpiresAt != nil {
		add("pending_slot_expires_at", *patch.PendingSlotExpiresAt)
	}
	if patch.PendingSlotReason != nil {
		add("pending_slot_reason", *patch.PendingSlotReason)
	}
	if patch.PreferredDayISO != nil {
		add("preferred_day_iso", *patch.PreferredDayISO)
	}
	if patch.PreferredHour != nil {
		add("preferred_hour", *patch.PreferredHour)
	}
	if patch.ConversationState != nil {
		add("conversation_state", *patch.ConversationState)
	}
	if patch.ConversationStateData != nil {
		data := *patch.ConversationStateData
		if len(data) == 0 {
			data = json.RawMessage("{}")
		}
		add("conversation_state_data", data)
	}

	if len(sets) == 0 {
		query := `SELECT` + patientColumns + ` FROM patients WHERE id = $1`
		return r.scanOne(r.pool.QueryRow(ctx, query, id))
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE patients SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), patientColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, args...))
}

// Merge reassigns all dependent records from sourceID to targetID and
// deletes the source patient inside a single transaction.
func (r *PostgresRepository) Merge(ctx context.Context, sourceID, targetID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("patients: begin merge: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	reassign := []string{
		`UPDATE messages SET patient_id = $1 WHERE patient_id = $2`,
		`UPDATE appointments SET patient_id = $1 WHERE patient_id = $2`,
		`UPDATE notes SET patient_id = $1 WHERE patient_id = $2`,
		`UPDATE documents SET patient_id = $1 WHERE patient_id = $2`,
		`UPDATE patient_tags SET patient_id = $1 WHERE patient_id = $2`,
	}
	for _, stmt := range reassign {
		if _, err := tx.Exec(ctx, stmt, targetID, sourceID); err != nil {
			return fmt.Errorf("patients: merge reassign: %w", err)
		}
	}

	ct, err := tx.Exec(ctx, `DELETE FROM patients WHERE id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("patients: merge delete source: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("patients: commit merge: %w", err)
	}
	return nil
}

func (r *PostgresRepository) scanOne(row pgx.Row) (*Patient, error) {
	var p Patient
	var stateData []byte
	err := row.Scan(
		&p.ID, &p.Phone, &p.FullName, &p.DNI, &p.BirthDate, &p.Address, &p.Insurance, &p.Reason,
		&p.NeedsDNI, &p.NeedsName, &p.NeedsBirthDate, &p.NeedsAddress, &p.NeedsInsurance, &p.NeedsReason,
		&p.PendingSlotISO, &p.PendingSlotLabel, &p.PendingSlotExpiresAt, &p.PendingSlotReason,
		&p.PreferredDayISO, &p.PreferredHour,
		&p.ConversationState, &stateData, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("patients: select failed: %w", err)
	}
	p.ConversationStateData = stateData
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
