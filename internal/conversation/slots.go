package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/fmarconi/consultorio-ai-platform/internal/appointments"
	"github.com/fmarconi/consultorio-ai-platform/internal/schedule"
)

// SlotProvider computes the live free-slot list for the provider's calendar.
// Every slot offered to or accepted from a patient must come from here.
type SlotProvider struct {
	calendar    *schedule.Calendar
	appts       appointments.Repository
	doctorID    string
	horizonDays int
}

// NewSlotProvider wires the calendar to the appointment store.
func NewSlotProvider(calendar *schedule.Calendar, appts appointments.Repository, doctorID string, horizonDays int) *SlotProvider {
	if calendar == nil {
		panic("conversation: calendar cannot be nil")
	}
	if appts == nil {
		panic("conversation: appointment repository cannot be nil")
	}
	if horizonDays <= 0 {
		horizonDays = 14
	}
	return &SlotProvider{
		calendar:    calendar,
		appts:       appts,
		doctorID:    doctorID,
		horizonDays: horizonDays,
	}
}

// FreeSlots returns the ordered bookable slots from now through the horizon,
// with every datetime already taken by a blocking appointment removed.
func (p *SlotProvider) FreeSlots(ctx context.Context, now time.Time) ([]schedule.Slot, error) {
	to := now.AddDate(0, 0, p.horizonDays+1)
	existing, err := p.appts.ListForDoctor(ctx, p.doctorID, now, to, appointments.BlockingStatuses())
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to list appointments: %w", err)
	}
	taken := make([]time.Time, 0, len(existing))
	for _, a := range existing {
		taken = append(taken, a.DateTime)
	}
	return p.calendar.FreeSlots(now, p.horizonDays, taken), nil
}

// Location exposes the provider timezone for preference scoring.
func (p *SlotProvider) Location() *time.Location {
	return p.calendar.Location()
}

// DoctorID identifies the single provider this calendar belongs to.
func (p *SlotProvider) DoctorID() string {
	return p.doctorID
}
