package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmarconi/consultorio-ai-platform/internal/appointments"
	"github.com/fmarconi/consultorio-ai-platform/internal/patients"
)

func TestExecutorSlotConflictCountsAndReplies(t *testing.T) {
	ctx := context.Background()
	apptRepo := appointments.NewInMemoryRepository()
	patientRepo := patients.NewInMemoryRepository()
	m, reg := newTestMetrics(t)

	e := NewExecutor(apptRepo, patientRepo, "doc-1", time.UTC, nil).WithMetrics(m)

	first, err := patientRepo.Create(ctx, patients.New("+5491100000001"))
	require.NoError(t, err)
	second, err := patientRepo.Create(ctx, patients.New("+5491100000002"))
	require.NoError(t, err)

	slot := slotAt(7, 15, 30)
	reply, err := e.Book(ctx, first, slot.ISO(), slot.Label, "Control")
	require.NoError(t, err)
	assert.Contains(t, reply, "Turno confirmado")

	// The same slot a moment later: a friendly retry, never an error.
	reply, err = e.Book(ctx, second, slot.ISO(), slot.Label, "Control")
	require.NoError(t, err)
	assert.Contains(t, reply, "se acaba de ocupar")
	assert.Equal(t, 1.0, counterValue(t, reg, "consultorio_conversation_slot_conflicts_total"))

	_, err = apptRepo.FindActive(ctx, second.ID, slot.Start.Add(-time.Hour))
	assert.ErrorIs(t, err, appointments.ErrNotFound)
}
