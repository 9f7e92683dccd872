package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fmarconi/consultorio-ai-platform/internal/observability/metrics"
	"github.com/fmarconi/consultorio-ai-platform/internal/patients"
	"github.com/fmarconi/consultorio-ai-platform/pkg/logging"
)

// Service is the conversation engine contract the transport layer depends on.
type Service interface {
	ProcessMessage(ctx context.Context, req MessageRequest) (*Response, error)
}

// MessageRequest is one inbound WhatsApp message.
type MessageRequest struct {
	From       string // E.164 phone
	MessageID  string
	Text       string
	ReceivedAt time.Time
}

// Response is the reply to send back to the patient.
type Response struct {
	PatientID string
	Reply     string
	Timestamp time.Time
}

// MessageRecorder persists the durable transcript. Failures are logged, never
// surfaced as conversation failures.
type MessageRecorder interface {
	RecordInbound(ctx context.Context, patientID, phone, providerMessageID, body string) error
	RecordOutbound(ctx context.Context, patientID, phone, body string) error
}

// Engine runs one full conversation turn: resolve the patient, try the
// deterministic machine, then the bypass detector, then the model-backed
// reconciler, and finally execute whatever survived validation.
type Engine struct {
	patients   patients.Repository
	machine    *Machine
	slots      *SlotProvider
	reconciler *Reconciler
	executor   *Executor
	agent      *Agent // nil runs heuristics only
	faq        *FAQ
	history    *HistoryStore // nil disables transcript context
	recorder   MessageRecorder
	metrics    *metrics.ConversationMetrics
	logger     *logging.Logger
}

var _ Service = (*Engine)(nil)

// EngineDeps bundles the engine's collaborators.
type EngineDeps struct {
	Patients   patients.Repository
	Machine    *Machine
	Slots      *SlotProvider
	Reconciler *Reconciler
	Executor   *Executor
	Agent      *Agent
	FAQ        *FAQ
	History    *HistoryStore
	Recorder   MessageRecorder
	Metrics    *metrics.ConversationMetrics
	Logger     *logging.Logger
}

// NewEngine validates the required collaborators and assembles the engine.
func NewEngine(deps EngineDeps) *Engine {
	if deps.Patients == nil {
		panic("conversation: patient repository cannot be nil")
	}
	if deps.Machine == nil {
		panic("conversation: machine cannot be nil")
	}
	if deps.Slots == nil {
		panic("conversation: slot provider cannot be nil")
	}
	if deps.Reconciler == nil {
		panic("conversation: reconciler cannot be nil")
	}
	if deps.Executor == nil {
		panic("conversation: executor cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Engine{
		patients:   deps.Patients,
		machine:    deps.Machine,
		slots:      deps.Slots,
		reconciler: deps.Reconciler,
		executor:   deps.Executor,
		agent:      deps.Agent,
		faq:        deps.FAQ,
		history:    deps.History,
		recorder:   deps.Recorder,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
}

// ProcessMessage handles one turn end to end. Every error path still produces
// a user-facing reply; only infrastructure failures propagate.
func (e *Engine) ProcessMessage(ctx context.Context, req MessageRequest) (*Response, error) {
	started := time.Now()
	now := req.ReceivedAt
	if now.IsZero() {
		now = time.Now()
	}

	patient, isNew, err := e.findOrCreatePatient(ctx, req.From)
	if err != nil {
		return nil, err
	}

	e.recordInbound(ctx, patient, req)

	data := DecodeStateData(patient.ConversationStateData)
	turn := Turn{Patient: patient, IsNew: isNew, Message: req.Text, Now: now, Data: data}

	reply, path, err := e.runTurn(ctx, turn)
	if err != nil {
		return nil, err
	}
	if reply == "" {
		reply = clarifyReply()
	}

	e.recordOutbound(ctx, patient, req.From, reply)
	e.appendHistory(ctx, req.From, req.Text, reply)
	e.metrics.ObserveTurn(path, time.Since(started))

	return &Response{
		PatientID: patient.ID,
		Reply:     reply,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (e *Engine) runTurn(ctx context.Context, turn Turn) (string, string, error) {
	res, err := e.machine.Handle(ctx, turn)
	if err != nil {
		return "", "", err
	}
	if res.Handled {
		reply, err := e.applyMachineResult(ctx, turn, res)
		return reply, "machine", err
	}

	free, err := e.slots.FreeSlots(ctx, turn.Now)
	if err != nil {
		return "", "", err
	}
	in := ReconcileInput{
		Patient:   turn.Patient,
		Message:   turn.Message,
		FreeSlots: free,
		Now:       turn.Now,
	}

	if out := e.reconciler.Bypass(in); out != nil {
		reply, err := e.applyOutcome(ctx, turn, out)
		return reply, "bypass", err
	}

	if e.faq != nil {
		if answer, ok := e.faq.Answer(turn.Message); ok {
			return answer, "faq", nil
		}
	}

	if e.agent != nil {
		in.Action = e.agent.ProposeAction(ctx, AgentContext{
			Patient:   turn.Patient,
			Message:   turn.Message,
			History:   e.loadHistory(ctx, turn.Patient.Phone),
			FreeSlots: free,
			Now:       turn.Now,
		})
	}

	out := e.reconciler.Reconcile(in)
	reply, err := e.applyOutcome(ctx, turn, out)
	return reply, "agent", err
}

// applyMachineResult persists the machine's patch, performs a duplicate-DNI
// merge when instructed, and executes any emitted booking or cancellation.
func (e *Engine) applyMachineResult(ctx context.Context, turn Turn, res *TurnResult) (string, error) {
	patient := turn.Patient
	patch := res.PatientPatch

	if res.MergeWithPatientID != "" {
		if err := e.patients.Merge(ctx, patient.ID, res.MergeWithPatientID); err != nil {
			return "", fmt.Errorf("conversation: merge failed: %w", err)
		}
		e.metrics.CountMerge()
		e.logger.Info("merged duplicate patient", "source_id", patient.ID, "target_id", res.MergeWithPatientID)
		// The surviving record takes over the active phone number.
		phone := patient.Phone
		patch.Phone = &phone
		patient.ID = res.MergeWithPatientID
	}

	updated, err := e.patients.Update(ctx, patient.ID, patch)
	if err != nil {
		return "", fmt.Errorf("conversation: patient update failed: %w", err)
	}
	*patient = *updated

	reply := res.Reply
	switch {
	case res.Booking != nil && res.Booking.Type == "reschedule":
		reply, err = e.executor.Reschedule(ctx, patient, res.Booking.AppointmentID, res.Booking.SlotISO, res.Booking.SlotLabel)
		if err == nil {
			e.metrics.CountBooking("reschedule")
		}
	case res.Booking != nil:
		reply, err = e.executor.Book(ctx, patient, res.Booking.SlotISO, res.Booking.SlotLabel, res.Booking.Reason)
		if err == nil {
			e.metrics.CountBooking("book")
		}
	case res.Cancel != nil:
		reply, err = e.executor.Cancel(ctx, patient, res.Cancel.AppointmentID, res.Cancel.SlotLabel)
		if err == nil {
			e.metrics.CountBooking("cancel")
		}
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (e *Engine) applyOutcome(ctx context.Context, turn Turn, out *Outcome) (string, error) {
	patient := turn.Patient

	if !patchIsEmpty(out.PatientPatch) {
		updated, err := e.patients.Update(ctx, patient.ID, out.PatientPatch)
		if err != nil {
			return "", fmt.Errorf("conversation: patient update failed: %w", err)
		}
		*patient = *updated
	}

	if out.Kind == OutcomeCreateAppointment && out.Slot != nil {
		reply, err := e.executor.Book(ctx, patient, out.Slot.ISO(), out.Slot.Label, out.Reason)
		if err != nil {
			return "", err
		}
		e.metrics.CountBooking("book")
		return reply, nil
	}
	return out.Reply, nil
}

func (e *Engine) findOrCreatePatient(ctx context.Context, phone string) (*patients.Patient, bool, error) {
	patient, err := e.patients.FindByPhone(ctx, phone)
	if err == nil {
		return patient, false, nil
	}
	if !errors.Is(err, patients.ErrNotFound) {
		return nil, false, fmt.Errorf("conversation: patient lookup failed: %w", err)
	}

	created, err := e.patients.Create(ctx, patients.New(phone))
	if err != nil {
		if errors.Is(err, patients.ErrDuplicatePhone) {
			// Lost a create race with a concurrent turn for the same phone.
			if existing, lookupErr := e.patients.FindByPhone(ctx, phone); lookupErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("conversation: patient create failed: %w", err)
	}
	e.metrics.CountNewPatient()
	return created, true, nil
}

func (e *Engine) recordInbound(ctx context.Context, p *patients.Patient, req MessageRequest) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordInbound(ctx, p.ID, req.From, req.MessageID, req.Text); err != nil {
		e.logger.Warn("failed to record inbound message", "error", err)
	}
}

func (e *Engine) recordOutbound(ctx context.Context, p *patients.Patient, phone, body string) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordOutbound(ctx, p.ID, phone, body); err != nil {
		e.logger.Warn("failed to record outbound message", "error", err)
	}
}

func (e *Engine) loadHistory(ctx context.Context, phone string) []ChatMessage {
	if e.history == nil {
		return nil
	}
	history, err := e.history.Load(ctx, phone)
	if err != nil {
		e.logger.Warn("failed to load conversation history", "error", err)
		return nil
	}
	return history
}

func (e *Engine) appendHistory(ctx context.Context, phone, userText, assistantText string) {
	if e.history == nil {
		return
	}
	err := e.history.Append(ctx, phone,
		ChatMessage{Role: ChatRoleUser, Content: userText},
		ChatMessage{Role: ChatRoleAssistant, Content: assistantText},
	)
	if err != nil {
		e.logger.Warn("failed to append conversation history", "error", err)
	}
}

func patchIsEmpty(p patients.Patch) bool {
	return p == patients.Patch{}
}
