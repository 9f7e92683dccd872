package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fmarconi/consultorio-ai-platform/internal/observability/metrics"
	"github.com/fmarconi/consultorio-ai-platform/internal/patients"
	"github.com/fmarconi/consultorio-ai-platform/internal/schedule"
	"github.com/fmarconi/consultorio-ai-platform/pkg/logging"
)

const (
	defaultAgentTimeout = 20 * time.Second
	agentMaxTokens      = 600
)

// Agent wraps the language model call. Latency and failure live here: the
// call carries a hard timeout and fails closed, returning nil so the caller
// degrades to the deterministic path.
type Agent struct {
	llm     LLMClient
	clinic  ClinicInfo
	timeout time.Duration
	metrics *metrics.ConversationMetrics
	logger  *logging.Logger
}

// NewAgent builds the model-backed proposer.
func NewAgent(llm LLMClient, clinic ClinicInfo, timeout time.Duration, logger *logging.Logger) *Agent {
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if timeout <= 0 {
		timeout = defaultAgentTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Agent{
		llm:     llm,
		clinic:  clinic,
		timeout: timeout,
		logger:  logger,
	}
}

// WithMetrics attaches the conversation counters.
func (a *Agent) WithMetrics(m *metrics.ConversationMetrics) *Agent {
	a.metrics = m
	return a
}

// AgentContext is everything the model may see for one turn.
type AgentContext struct {
	Patient   *patients.Patient
	Message   string
	History   []ChatMessage
	FreeSlots []schedule.Slot
	Now       time.Time
}

// ProposeAction asks the model for an action proposal. A nil result means the
// model gave nothing usable; it is never an error the conversation propagates.
func (a *Agent) ProposeAction(ctx context.Context, ac AgentContext) *AgentAction {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req := LLMRequest{
		System:      []string{a.systemPrompt(ac)},
		Messages:    append(trimHistory(ac.History), ChatMessage{Role: ChatRoleUser, Content: ac.Message}),
		MaxTokens:   agentMaxTokens,
		Temperature: 0.2,
	}

	resp, err := a.llm.Complete(ctx, req)
	if err != nil {
		a.metrics.CountLLMFailure()
		a.logger.Warn("agent proposal failed, using deterministic path", "error", err)
		return nil
	}

	action, err := NormalizeAction(resp.Text)
	if err != nil {
		a.metrics.CountLLMFailure()
		a.logger.Warn("agent returned undecodable action", "error", err, "raw", truncate(resp.Text, 300))
		return nil
	}
	return action
}

func trimHistory(history []ChatMessage) []ChatMessage {
	const window = 10
	if len(history) <= window {
		return history
	}
	return history[len(history)-window:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (a *Agent) systemPrompt(ac AgentContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Sos la asistente por WhatsApp del consultorio de %s (%s). Hablás en español rioplatense, con tono cordial y breve.\n\n", a.clinic.DoctorName, a.clinic.Name)
	fmt.Fprintf(&b, "Datos del consultorio: dirección %s, teléfono %s, horarios %s.\n\n", a.clinic.Address, a.clinic.Phone, a.clinic.HoursLabel)

	b.WriteString("Respondé SIEMPRE con un único objeto JSON, sin texto adicional, con esta forma:\n")
	b.WriteString(`{"action": "offer_slots|confirm_slot|ask_clarification|general", "reply": "...", "slots": [{"iso": "...", "label": "..."}], "slot": {"iso": "...", "label": "..."}, "reason": "...", "profileUpdates": {"name": "...", "dni": "...", "birthDate": "...", "address": "...", "insurance": "...", "consultReason": "..."}}`)
	b.WriteString("\n\nReglas duras:\n")
	b.WriteString("- Solo podés ofrecer o confirmar horarios que estén en la lista de horarios disponibles de abajo. Nunca inventes uno.\n")
	b.WriteString("- Si el paciente no dijo nada accionable, usá \"general\". Si no entendés qué quiere, usá \"ask_clarification\".\n")
	b.WriteString("- Si el paciente menciona datos personales (nombre, DNI, fecha de nacimiento, dirección, obra social, motivo) cargalos en profileUpdates.\n\n")

	p := ac.Patient
	b.WriteString("Ficha del paciente:\n")
	fmt.Fprintf(&b, "- nombre: %s\n- dni: %s\n- obra social: %s\n- motivo de consulta: %s\n", orPending(p.FullName), orPending(p.DNI), orPending(p.Insurance), orPending(p.Reason))
	fmt.Fprintf(&b, "- datos faltantes: %s\n", strings.Join(missingFields(p), ", "))
	if p.HasPendingSlot(ac.Now) {
		fmt.Fprintf(&b, "- turno ofrecido pendiente de confirmación: %s (%s)\n", p.PendingSlotLabel, p.PendingSlotISO)
	}
	if p.PreferredDayISO != "" {
		fmt.Fprintf(&b, "- preferencia recordada: día %s", p.PreferredDayISO)
		if p.PreferredHour != nil {
			fmt.Fprintf(&b, ", hora %.1f", *p.PreferredHour)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nHorarios disponibles (iso | etiqueta):\n")
	if len(ac.FreeSlots) == 0 {
		b.WriteString("(ninguno)\n")
	}
	for i, slot := range ac.FreeSlots {
		if i == 12 {
			break
		}
		fmt.Fprintf(&b, "- %s | %s\n", slot.ISO(), slot.Label)
	}

	return b.String()
}

func orPending(v string) string {
	if strings.TrimSpace(v) == "" {
		return "(pendiente)"
	}
	return v
}

func missingFields(p *patients.Patient) []string {
	var out []string
	if p.NeedsDNI {
		out = append(out, "dni")
	}
	if p.NeedsName {
		out = append(out, "nombre")
	}
	if p.NeedsBirthDate {
		out = append(out, "fecha de nacimiento")
	}
	if p.NeedsAddress {
		out = append(out, "dirección")
	}
	if p.NeedsInsurance {
		out = append(out, "obra social")
	}
	if p.NeedsReason {
		out = append(out, "motivo de consulta")
	}
	if len(out) == 0 {
		out = append(out, "ninguno")
	}
	return out
}
