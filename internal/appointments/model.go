package appointments

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the appointment does not exist.
	ErrNotFound = errors.New("appointments: appointment not found")
	// ErrSlotTaken indicates another blocking appointment already occupies
	// the datetime for that provider.
	ErrSlotTaken = errors.New("appointments: slot already taken")
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled          Status = "scheduled"
	StatusConfirmed          Status = "confirmed"
	StatusWaiting            Status = "waiting"
	StatusCompleted          Status = "completed"
	StatusCancelled          Status = "cancelled"
	StatusCancelledByPatient Status = "cancelled_by_patient"
	StatusCancelledByClinic  Status = "cancelled_by_clinic"
	StatusNoShow             Status = "no_show"
)

// BlockingStatuses are the statuses that occupy a calendar slot: everything
// that is neither cancelled nor completed.
func BlockingStatuses() []Status {
	return []Status{StatusScheduled, StatusConfirmed, StatusWaiting}
}

// IsBlocking reports whether the status occupies a calendar slot.
func (s Status) IsBlocking() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusWaiting:
		return true
	}
	return false
}

// Appointment is a booked visit at a concrete datetime.
type Appointment struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patient_id"`
	DoctorID  string    `json:"doctor_id"`
	DateTime  time.Time `json:"date_time"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Patch is a partial appointment update; nil fields are left untouched.
type Patch struct {
	DateTime *time.Time
	Status   *Status
	Reason   *string
}
