package conversation

import (
	"context"
	"time"
)

// Notifier is told about confirmed schedule changes so the office inbox stays
// in sync. Implementations must return quickly; the turn does not wait for
// delivery.
type Notifier interface {
	AppointmentBooked(ctx context.Context, notice BookingNotice)
	AppointmentRescheduled(ctx context.Context, notice BookingNotice)
	AppointmentCancelled(ctx context.Context, notice BookingNotice)
}

// BookingNotice carries everything the secretary needs to see about a change.
type BookingNotice struct {
	PatientID   string
	PatientName string
	Phone       string
	DNI         string
	Insurance   string
	Reason      string
	SlotLabel   string
	StartsAt    time.Time
}
