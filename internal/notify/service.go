package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fmarconi/consultorio-ai-platform/internal/conversation"
	"github.com/fmarconi/consultorio-ai-platform/pkg/logging"
)

const sendTimeout = 15 * time.Second

// Service emails the office inbox when the assistant changes the schedule.
// It implements conversation.Notifier; delivery runs on its own goroutine so
// the patient's turn never waits on SendGrid.
type Service struct {
	email      EmailSender
	inboxEmail string
	clinicName string
	loc        *time.Location
	logger     *logging.Logger

	// send is swapped in tests to run synchronously.
	send func(msg EmailMessage)
}

func NewService(email EmailSender, inboxEmail, clinicName string, loc *time.Location, logger *logging.Logger) *Service {
	if email == nil {
		panic("notify: email sender cannot be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		email:      email,
		inboxEmail: inboxEmail,
		clinicName: clinicName,
		loc:        loc,
		logger:     logger,
	}
	s.send = s.sendAsync
	return s
}

var _ conversation.Notifier = (*Service)(nil)

// AppointmentBooked emails the inbox about a new appointment.
func (s *Service) AppointmentBooked(_ context.Context, notice conversation.BookingNotice) {
	if s.inboxEmail == "" {
		return
	}
	s.send(EmailMessage{
		To:      s.inboxEmail,
		ToName:  s.clinicName,
		Subject: fmt.Sprintf("Nuevo turno: %s - %s", notice.PatientName, s.slotText(notice)),
		Body:    s.bodyFor("Se agendó un turno nuevo por WhatsApp.", notice),
	})
}

// AppointmentRescheduled emails the inbox about a moved appointment.
func (s *Service) AppointmentRescheduled(_ context.Context, notice conversation.BookingNotice) {
	if s.inboxEmail == "" {
		return
	}
	s.send(EmailMessage{
		To:      s.inboxEmail,
		ToName:  s.clinicName,
		Subject: fmt.Sprintf("Turno reprogramado: %s - %s", notice.PatientName, s.slotText(notice)),
		Body:    s.bodyFor("Un paciente reprogramó su turno por WhatsApp.", notice),
	})
}

// AppointmentCancelled emails the inbox about a cancellation.
func (s *Service) AppointmentCancelled(_ context.Context, notice conversation.BookingNotice) {
	if s.inboxEmail == "" {
		return
	}
	s.send(EmailMessage{
		To:      s.inboxEmail,
		ToName:  s.clinicName,
		Subject: fmt.Sprintf("Turno cancelado: %s", notice.PatientName),
		Body:    s.bodyFor("Un paciente canceló su turno por WhatsApp.", notice),
	})
}

func (s *Service) slotText(notice conversation.BookingNotice) string {
	if notice.SlotLabel != "" {
		return notice.SlotLabel
	}
	if notice.StartsAt.IsZero() {
		return "sin horario"
	}
	return notice.StartsAt.In(s.loc).Format("02/01/2006 15:04")
}

func (s *Service) bodyFor(headline string, notice conversation.BookingNotice) string {
	lines := []string{
		headline,
		"",
		"Paciente: " + orDash(notice.PatientName),
		"Teléfono: " + orDash(notice.Phone),
		"DNI: " + orDash(notice.DNI),
		"Obra social: " + orDash(notice.Insurance),
		"Motivo: " + orDash(notice.Reason),
		"Horario: " + s.slotText(notice),
	}
	return strings.Join(lines, "\n")
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

func (s *Service) sendAsync(msg EmailMessage) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("inbox notification failed", "subject", msg.Subject, "error", err)
		}
	}()
}
