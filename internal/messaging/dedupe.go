package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type dedupeQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DedupeStore records WhatsApp message ids so redelivered webhooks are
// dropped instead of producing duplicate turns.
type DedupeStore struct {
	pool dedupeQuerier
}

func NewDedupeStore(pool *pgxpool.Pool) *DedupeStore {
	if pool == nil {
		panic("messaging: pgx pool required")
	}
	return &DedupeStore{pool: pool}
}

func newDedupeStoreWithExec(exec dedupeQuerier) *DedupeStore {
	if exec == nil {
		panic("messaging: exec required")
	}
	return &DedupeStore{pool: exec}
}

// Claim atomically records a message id. It returns false when another
// delivery already claimed it.
func (s *DedupeStore) Claim(ctx context.Context, messageID string) (bool, error) {
	query := `
		INSERT INTO processed_messages (message_id)
		VALUES ($1)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, messageID)
	if err != nil {
		return false, fmt.Errorf("messaging: claim message: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// Seen reports whether a message id was already claimed.
func (s *DedupeStore) Seen(ctx context.Context, messageID string) (bool, error) {
	query := `SELECT 1 FROM processed_messages WHERE message_id = $1`
	var exists int
	if err := s.pool.QueryRow(ctx, query, messageID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("messaging: check message: %w", err)
	}
	return true, nil
}
