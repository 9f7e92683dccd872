package patients

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestPostgresMergeRunsInOneTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewPostgresRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE messages SET patient_id").WithArgs("target", "source").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mock.ExpectExec("UPDATE appointments SET patient_id").WithArgs("target", "source").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE notes SET patient_id").WithArgs("target", "source").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("UPDATE documents SET patient_id").WithArgs("target", "source").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("UPDATE patient_tags SET patient_id").WithArgs("target", "source").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec("DELETE FROM patients WHERE id").WithArgs("source").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	if err := repo.Merge(context.Background(), "source", "target"); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresMergeMissingSourceRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewPostgresRepository(mock)

	mock.ExpectBegin()
	for _, table := range []string{"messages", "appointments", "notes", "documents", "patient_tags"} {
		mock.ExpectExec("UPDATE " + table + " SET patient_id").WithArgs("target", "gone").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	}
	mock.ExpectExec("DELETE FROM patients WHERE id").WithArgs("gone").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	if err := repo.Merge(context.Background(), "gone", "target"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
