package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it
// in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Message is one row of the durable conversation transcript.
type Message struct {
	ID                string
	PatientID         string
	Phone             string
	Direction         string // "in" or "out"
	ProviderMessageID string
	Body              string
	CreatedAt         time.Time
}

// Store persists the WhatsApp transcript to Postgres. It implements
// conversation.MessageRecorder.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		panic("messaging: pgx pool required")
	}
	return &Store{pool: pool}
}

// RecordInbound appends a patient message to the transcript.
func (s *Store) RecordInbound(ctx context.Context, patientID, phone, providerMessageID, body string) error {
	query := `
		INSERT INTO messages (id, patient_id, phone, direction, provider_message_id, body, created_at)
		VALUES ($1, $2, $3, 'in', $4, $5, now())
	`
	if _, err := s.pool.Exec(ctx, query, uuid.NewString(), patientID, phone, providerMessageID, body); err != nil {
		return fmt.Errorf("messaging: record inbound: %w", err)
	}
	return nil
}

// RecordOutbound appends an assistant reply to the transcript.
func (s *Store) RecordOutbound(ctx context.Context, patientID, phone, body string) error {
	query := `
		INSERT INTO messages (id, patient_id, phone, direction, provider_message_id, body, created_at)
		VALUES ($1, $2, $3, 'out', '', $4, now())
	`
	if _, err := s.pool.Exec(ctx, query, uuid.NewString(), patientID, phone, body); err != nil {
		return fmt.Errorf("messaging: record outbound: %w", err)
	}
	return nil
}

// ListForPatient returns the most recent transcript rows for a patient,
// newest first.
func (s *Store) ListForPatient(ctx context.Context, patientID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, patient_id, phone, direction, provider_message_id, body, created_at
		FROM messages
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("messaging: list messages: %w", err)
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.PatientID, &m.Phone, &m.Direction, &m.ProviderMessageID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("messaging: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messaging: iterate messages: %w", err)
	}
	return out, nil
}
