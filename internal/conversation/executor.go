package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fmarconi/consultorio-ai-platform/internal/appointments"
	"github.com/fmarconi/consultorio-ai-platform/internal/observability/metrics"
	"github.com/fmarconi/consultorio-ai-platform/internal/patients"
	"github.com/fmarconi/consultorio-ai-platform/pkg/logging"
)

const bookingSource = "whatsapp"

// Executor applies validated booking, reschedule and cancel requests against
// the appointment store. Slot conflicts surface as a polite retry reply, never
// as a conversation failure.
type Executor struct {
	appts    appointments.Repository
	patients patients.Repository
	doctorID string
	loc      *time.Location
	notifier Notifier
	metrics  *metrics.ConversationMetrics
	logger   *logging.Logger
}

// NewExecutor wires the boundary component.
func NewExecutor(apptRepo appointments.Repository, patientRepo patients.Repository, doctorID string, loc *time.Location, logger *logging.Logger) *Executor {
	if apptRepo == nil {
		panic("conversation: appointment repository cannot be nil")
	}
	if patientRepo == nil {
		panic("conversation: patient repository cannot be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Executor{
		appts:    apptRepo,
		patients: patientRepo,
		doctorID: doctorID,
		loc:      loc,
		logger:   logger,
	}
}

// WithNotifier attaches a change notifier. Safe to skip when the office inbox
// is not configured.
func (e *Executor) WithNotifier(n Notifier) *Executor {
	e.notifier = n
	return e
}

// WithMetrics attaches the conversation counters.
func (e *Executor) WithMetrics(m *metrics.ConversationMetrics) *Executor {
	e.metrics = m
	return e
}

func (e *Executor) notice(patient *patients.Patient, slotLabel string, startsAt time.Time, reason string) BookingNotice {
	if reason == "" {
		reason = patient.Reason
	}
	return BookingNotice{
		PatientID:   patient.ID,
		PatientName: patient.FullName,
		Phone:       patient.Phone,
		DNI:         patient.DNI,
		Insurance:   patient.Insurance,
		Reason:      reason,
		SlotLabel:   slotLabel,
		StartsAt:    startsAt,
	}
}

// Book creates the appointment for an already-grounded slot and clears the
// patient's pending-slot marker. A conflict means the slot was taken between
// offer and confirmation.
func (e *Executor) Book(ctx context.Context, patient *patients.Patient, slotISO, slotLabel, reason string) (string, error) {
	start, err := time.Parse(time.RFC3339, slotISO)
	if err != nil {
		return "", fmt.Errorf("conversation: invalid slot timestamp %q: %w", slotISO, err)
	}

	_, err = e.appts.Create(ctx, &appointments.Appointment{
		PatientID: patient.ID,
		DoctorID:  e.doctorID,
		DateTime:  start,
		Status:    appointments.StatusScheduled,
		Reason:    reason,
		Source:    bookingSource,
	})
	if err != nil {
		if errors.Is(err, appointments.ErrSlotTaken) {
			e.metrics.CountSlotConflict()
			e.logger.Info("slot conflict on booking", "patient_id", patient.ID, "slot", slotISO)
			return slotJustTakenReply(), nil
		}
		return "", err
	}

	e.clearPending(ctx, patient)
	e.logger.Info("appointment booked", "patient_id", patient.ID, "slot", slotISO)
	if e.notifier != nil {
		e.notifier.AppointmentBooked(ctx, e.notice(patient, slotLabel, start, reason))
	}
	return bookedReply(slotLabel), nil
}

// Reschedule moves an existing appointment to the new grounded slot.
func (e *Executor) Reschedule(ctx context.Context, patient *patients.Patient, appointmentID, slotISO, slotLabel string) (string, error) {
	start, err := time.Parse(time.RFC3339, slotISO)
	if err != nil {
		return "", fmt.Errorf("conversation: invalid slot timestamp %q: %w", slotISO, err)
	}

	_, err = e.appts.Update(ctx, appointmentID, appointments.Patch{DateTime: &start})
	if err != nil {
		if errors.Is(err, appointments.ErrSlotTaken) {
			e.metrics.CountSlotConflict()
			e.logger.Info("slot conflict on reschedule", "patient_id", patient.ID, "slot", slotISO)
			return slotJustTakenReply(), nil
		}
		if errors.Is(err, appointments.ErrNotFound) {
			return noAppointmentToRescheduleReply(), nil
		}
		return "", err
	}

	e.clearPending(ctx, patient)
	e.logger.Info("appointment rescheduled", "patient_id", patient.ID, "appointment_id", appointmentID, "slot", slotISO)
	if e.notifier != nil {
		e.notifier.AppointmentRescheduled(ctx, e.notice(patient, slotLabel, start, ""))
	}
	return rescheduledReply(slotLabel), nil
}

// Cancel marks the appointment as cancelled by the patient.
func (e *Executor) Cancel(ctx context.Context, patient *patients.Patient, appointmentID, slotLabel string) (string, error) {
	status := appointments.StatusCancelledByPatient
	_, err := e.appts.Update(ctx, appointmentID, appointments.Patch{Status: &status})
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			return noAppointmentToCancelReply(), nil
		}
		return "", err
	}

	e.clearPending(ctx, patient)
	e.logger.Info("appointment cancelled", "patient_id", patient.ID, "appointment_id", appointmentID)
	if e.notifier != nil {
		e.notifier.AppointmentCancelled(ctx, e.notice(patient, slotLabel, time.Time{}, ""))
	}
	return cancelledReply(slotLabel), nil
}

// clearPending wipes the pending-slot marker; a failure here only logs, the
// booking already happened.
func (e *Executor) clearPending(ctx context.Context, patient *patients.Patient) {
	patch := patients.Patch{}
	clearPendingSlot(&patch)
	if _, err := e.patients.Update(ctx, patient.ID, patch); err != nil {
		e.logger.Warn("failed to clear pending slot", "patient_id", patient.ID, "error", err)
	} else {
		patient.Apply(patch)
	}
}
