package conversation

import (
	"strings"
	"time"

	"github.com/fmarconi/consultorio-ai-platform/internal/observability/metrics"
	"github.com/fmarconi/consultorio-ai-platform/internal/patients"
	"github.com/fmarconi/consultorio-ai-platform/internal/schedule"
	"github.com/fmarconi/consultorio-ai-platform/pkg/logging"
)

// OutcomeKind is the downstream effect of a reconciled turn.
type OutcomeKind string

const (
	OutcomeListSlots         OutcomeKind = "LIST_SLOTS"
	OutcomeCreateAppointment OutcomeKind = "CREATE_APPOINTMENT"
	OutcomeAskClarification  OutcomeKind = "ASK_CLARIFICATION"
	OutcomeNone              OutcomeKind = "NONE"
)

// Outcome is a fully validated result: any slot it carries is guaranteed to
// exist in the live calendar snapshot of the same turn.
type Outcome struct {
	Kind         OutcomeKind
	Slots        []schedule.Slot
	Slot         *schedule.Slot
	Reason       string
	Reply        string
	PatientPatch patients.Patch
}

// ReconcileInput is one assistant-path turn plus its ground truth.
type ReconcileInput struct {
	Patient   *patients.Patient
	Message   string
	FreeSlots []schedule.Slot
	Action    *AgentAction // nil when the model call failed or was bypassed
	Now       time.Time
}

// Reconciler forces model proposals to agree with calendar ground truth and
// with the profile-collection order before anything executes.
type Reconciler struct {
	loc     *time.Location
	metrics *metrics.ConversationMetrics
	logger  *logging.Logger
}

// NewReconciler builds the validator for the given provider timezone.
func NewReconciler(loc *time.Location, logger *logging.Logger) *Reconciler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{loc: loc, logger: logger}
}

// WithMetrics attaches the conversation counters.
func (r *Reconciler) WithMetrics(m *metrics.ConversationMetrics) *Reconciler {
	r.metrics = m
	return r
}

const offeredSlotTTL = 2 * time.Hour

// Bypass handles the turns that never need the model: explicit yes/no against
// a pending offered slot, and bare greetings or thanks. Returns nil when the
// model path should run.
func (r *Reconciler) Bypass(in ReconcileInput) *Outcome {
	p := in.Patient

	if p.HasPendingSlot(in.Now) {
		if IsAffirmative(in.Message) {
			slot, ok := pendingAsSlot(p)
			if !ok {
				return r.clarify(in, clarifyReply())
			}
			reason := p.PendingSlotReason
			if reason == "" {
				reason = p.Reason
			}
			out := &Outcome{
				Kind:   OutcomeCreateAppointment,
				Slot:   &slot,
				Reason: reason,
			}
			clearPendingSlot(&out.PatientPatch)
			return out
		}
		if IsNegative(in.Message) {
			// Rejecting the slot keeps the intent: the new offer carries
			// the reason attached to the rejected one.
			out := r.offer(in, in.FreeSlots, "No hay problema. Te paso otras opciones:", p.PendingSlotReason)
			if out.Kind != OutcomeListSlots {
				clearPendingSlot(&out.PatientPatch)
			}
			return out
		}
	}

	if IsGreeting(in.Message) || IsAcknowledgement(in.Message) {
		return &Outcome{Kind: OutcomeNone, Reply: ackReply()}
	}

	return nil
}

// Reconcile validates the model's proposal. A nil Action means the model gave
// nothing; the deterministic heuristic path runs instead.
func (r *Reconciler) Reconcile(in ReconcileInput) *Outcome {
	if in.Action == nil {
		return r.heuristic(in)
	}

	action := *in.Action
	profilePatch, resolvedFields := r.profilePatch(in, action.Profile)

	// Profile gate: booking cannot outrun the collection order, even on the
	// model path.
	if gateField, open := firstOpenGate(in.Patient, resolvedFields); open && action.Kind != ActionGeneral && action.Kind != ActionAskClarification {
		reply := action.Reply
		if !replyMentionsField(reply, gateField) {
			if reply != "" {
				reply += "\n\n"
			}
			reply += profilePrompts[gateField]
		}
		return &Outcome{Kind: OutcomeNone, Reply: reply, PatientPatch: profilePatch}
	}

	var out *Outcome
	switch action.Kind {
	case ActionOfferSlots:
		out = r.reconcileOffer(in, action)
	case ActionConfirmSlot:
		out = r.reconcileConfirm(in, action)
	case ActionAskClarification:
		out = r.clarify(in, replyOr(action.Reply, clarifyReply()))
	default:
		out = &Outcome{Kind: OutcomeNone, Reply: replyOr(action.Reply, clarifyReply())}
	}

	mergePatch(&out.PatientPatch, profilePatch)
	return out
}

// heuristic is the no-model path: a parseable time preference earns a ranked
// offer, anything else a clarification.
func (r *Reconciler) heuristic(in ReconcileInput) *Outcome {
	pref := schedule.ParsePreference(in.Message)
	if pref != nil && len(in.FreeSlots) > 0 {
		ranked := schedule.Rank(in.FreeSlots, pref, r.anchorFor(in.Patient), in.Now, r.loc, maxMenuSlots)
		slots := make([]schedule.Slot, 0, len(ranked))
		for _, s := range ranked {
			slots = append(slots, s.Slot)
		}
		out := r.offer(in, slots, "Te paso los horarios que mejor pegan con lo que me pediste:", "")
		r.rememberPreference(&out.PatientPatch, pref, slots)
		return out
	}
	return r.clarify(in, clarifyReply())
}

// reconcileOffer grounds every proposed slot; unmatched claims are dropped and
// an empty survivor set falls back to the calendar's own top slots.
func (r *Reconciler) reconcileOffer(in ReconcileInput, action AgentAction) *Outcome {
	var grounded []schedule.Slot
	for _, proposed := range action.Slots {
		if slot, ok := groundSlot(proposed, in.FreeSlots); ok {
			grounded = append(grounded, slot)
		} else {
			r.metrics.CountDroppedSlot()
			r.logger.Warn("dropping hallucinated slot from model offer", "iso", proposed.ISO, "label", proposed.Label)
		}
	}
	if len(grounded) == 0 {
		grounded = topSlots(in.FreeSlots, maxMenuSlots)
	}
	if len(grounded) == 0 {
		return r.clarify(in, "Por ahora no veo horarios válidos en la agenda. 😕 Probá de nuevo más tarde.")
	}
	out := r.offer(in, grounded, replyOr(action.Reply, "Te paso los horarios que tengo disponibles:"), firstNonEmpty(action.Reason, action.Profile.ConsultReason))
	out.Reason = action.Reason
	if pref := schedule.ParsePreference(in.Message); pref != nil {
		r.rememberPreference(&out.PatientPatch, pref, grounded)
	}
	return out
}

// reconcileConfirm picks the slot to book. The raw message text wins over the
// model's claim, which wins over the remembered pending slot.
func (r *Reconciler) reconcileConfirm(in ReconcileInput, action AgentAction) *Outcome {
	var chosen *schedule.Slot

	if pref := schedule.ParsePreference(in.Message); pref != nil && len(in.FreeSlots) > 0 {
		if best, score, ok := schedule.BestMatch(in.FreeSlots, pref, r.anchorFor(in.Patient), in.Now, r.loc); ok && schedule.WithinConfirmThreshold(score, pref) {
			chosen = &best
		}
	}

	if chosen == nil && action.Slot != nil {
		if slot, ok := groundSlot(*action.Slot, in.FreeSlots); ok {
			chosen = &slot
		} else if slot, ok := matchPending(*action.Slot, in.Patient, in.Now); ok {
			chosen = &slot
		} else {
			r.metrics.CountDroppedSlot()
			r.logger.Warn("model confirmed a slot not in the calendar", "iso", action.Slot.ISO, "label", action.Slot.Label)
		}
	}

	if chosen == nil {
		if slot, ok := pendingAsSlot(in.Patient); ok && in.Patient.HasPendingSlot(in.Now) {
			chosen = &slot
		}
	}

	if chosen == nil {
		return r.clarify(in, "No me queda claro qué horario querés confirmar. Decime cuál de los que te pasé te sirve.")
	}

	reason := firstNonEmpty(action.Reason, action.Profile.ConsultReason, in.Patient.PendingSlotReason, in.Patient.Reason)
	out := &Outcome{
		Kind:   OutcomeCreateAppointment,
		Slot:   chosen,
		Reason: reason,
		Reply:  action.Reply,
	}
	clearPendingSlot(&out.PatientPatch)
	return out
}

// offer builds a LIST_SLOTS outcome and remembers the first slot as the
// pending confirmation hint. The reason given with the offer sticks to the
// hint so a later bare confirmation books with it; empty falls back to the
// profile reason.
func (r *Reconciler) offer(in ReconcileInput, slots []schedule.Slot, intro, reason string) *Outcome {
	slots = topSlots(slots, maxMenuSlots)
	if len(slots) == 0 {
		return r.clarify(in, "Por ahora no veo horarios válidos en la agenda. 😕 Probá de nuevo más tarde.")
	}

	var lines []string
	for _, s := range slots {
		lines = append(lines, "• "+s.Label)
	}
	reply := intro + "\n" + strings.Join(lines, "\n") + "\n\n¿Alguno te sirve?"

	out := &Outcome{
		Kind:  OutcomeListSlots,
		Slots: slots,
		Reply: reply,
	}

	first := slots[0]
	iso, label := first.ISO(), first.Label
	if reason == "" {
		reason = in.Patient.Reason
	}
	expires := in.Now.Add(offeredSlotTTL)
	expiresPtr := &expires
	out.PatientPatch.PendingSlotISO = &iso
	out.PatientPatch.PendingSlotLabel = &label
	out.PatientPatch.PendingSlotReason = &reason
	out.PatientPatch.PendingSlotExpiresAt = &expiresPtr
	return out
}

func (r *Reconciler) clarify(in ReconcileInput, reply string) *Outcome {
	return &Outcome{Kind: OutcomeAskClarification, Reply: reply}
}

// profilePatch validates model-extracted profile fields through the same
// parsers the deterministic flow uses and reports which gates they close.
func (r *Reconciler) profilePatch(in ReconcileInput, updates ProfileUpdates) (patients.Patch, map[State]bool) {
	patch := patients.Patch{}
	resolved := map[State]bool{}
	f := false

	if updates.DNI != "" {
		if v, ok := ParseDNI(updates.DNI); ok {
			patch.DNI, patch.NeedsDNI = &v, &f
			resolved[StateProfileDNI] = true
		}
	}
	if updates.Name != "" {
		if v, ok := ParseFullName(updates.Name); ok {
			patch.FullName, patch.NeedsName = &v, &f
			resolved[StateProfileName] = true
		}
	}
	if updates.BirthDate != "" {
		if v, ok := ParseBirthDate(updates.BirthDate, in.Now); ok {
			patch.BirthDate, patch.NeedsBirthDate = &v, &f
			resolved[StateProfileBirthDate] = true
		}
	}
	if updates.Address != "" {
		if v, ok := ParseAddress(updates.Address); ok {
			patch.Address, patch.NeedsAddress = &v, &f
			resolved[StateProfileAddress] = true
		}
	}
	if updates.Insurance != "" {
		if v, ok := NormalizeInsurance(updates.Insurance); ok {
			patch.Insurance, patch.NeedsInsurance = &v, &f
			resolved[StateProfileInsurance] = true
		}
	}
	if updates.ConsultReason != "" {
		if v, ok := FormatConsultReason(updates.ConsultReason); ok {
			patch.Reason, patch.NeedsReason = &v, &f
			resolved[StateProfileReason] = true
		}
	}
	return patch, resolved
}

// anchorFor returns the remembered day focus: the pending slot's day, or the
// last persisted preferred day. An explicit day in this turn's message takes
// precedence inside the scorer.
func (r *Reconciler) anchorFor(p *patients.Patient) *time.Time {
	if p.PendingSlotISO != "" {
		if t, err := time.Parse(time.RFC3339, p.PendingSlotISO); err == nil {
			day := t.In(r.loc)
			anchor := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, r.loc)
			return &anchor
		}
	}
	if p.PreferredDayISO != "" {
		if t, err := time.ParseInLocation("2006-01-02", p.PreferredDayISO, r.loc); err == nil {
			return &t
		}
	}
	return nil
}

// rememberPreference persists the day/hour the patient just expressed so the
// focus sticks across turns.
func (r *Reconciler) rememberPreference(patch *patients.Patch, pref *schedule.Preference, ranked []schedule.Slot) {
	if pref.HasExplicitDay() && len(ranked) > 0 {
		day := ranked[0].Start.In(r.loc).Format("2006-01-02")
		patch.PreferredDayISO = &day
	}
	if pref.Hour != nil {
		hour := *pref.Hour
		hourPtr := &hour
		patch.PreferredHour = &hourPtr
	}
}

// --- grounding helpers ----------------------------------------------------

// groundSlot matches a proposed slot against the live calendar, by exact ISO
// instant first and case-insensitive label second.
func groundSlot(proposed ProposedSlot, live []schedule.Slot) (schedule.Slot, bool) {
	if proposed.ISO != "" {
		if t, err := time.Parse(time.RFC3339, proposed.ISO); err == nil {
			for _, slot := range live {
				if slot.Start.Equal(t) {
					return slot, true
				}
			}
		}
	}
	if proposed.Label != "" {
		want := strings.TrimSpace(proposed.Label)
		for _, slot := range live {
			if strings.EqualFold(strings.TrimSpace(slot.Label), want) {
				return slot, true
			}
		}
	}
	return schedule.Slot{}, false
}

// matchPending lets a confirm claim match the slot already offered to the
// patient even though it no longer appears in the free list.
func matchPending(proposed ProposedSlot, p *patients.Patient, now time.Time) (schedule.Slot, bool) {
	if !p.HasPendingSlot(now) {
		return schedule.Slot{}, false
	}
	pending, ok := pendingAsSlot(p)
	if !ok {
		return schedule.Slot{}, false
	}
	if proposed.ISO != "" {
		if t, err := time.Parse(time.RFC3339, proposed.ISO); err == nil && pending.Start.Equal(t) {
			return pending, true
		}
	}
	if proposed.Label != "" && strings.EqualFold(strings.TrimSpace(proposed.Label), strings.TrimSpace(pending.Label)) {
		return pending, true
	}
	return schedule.Slot{}, false
}

func pendingAsSlot(p *patients.Patient) (schedule.Slot, bool) {
	if p.PendingSlotISO == "" {
		return schedule.Slot{}, false
	}
	t, err := time.Parse(time.RFC3339, p.PendingSlotISO)
	if err != nil {
		return schedule.Slot{}, false
	}
	return schedule.Slot{Start: t, Label: p.PendingSlotLabel}, true
}

func clearPendingSlot(patch *patients.Patch) {
	empty := ""
	var noExpiry *time.Time
	patch.PendingSlotISO = &empty
	patch.PendingSlotLabel = &empty
	patch.PendingSlotReason = &empty
	patch.PendingSlotExpiresAt = &noExpiry
}

func topSlots(slots []schedule.Slot, n int) []schedule.Slot {
	if len(slots) <= n {
		return slots
	}
	return slots[:n]
}

// firstOpenGate returns the first profile state whose gate is still open and
// not closed by this turn's extracted updates.
func firstOpenGate(p *patients.Patient, resolved map[State]bool) (State, bool) {
	order := []struct {
		state State
		needs bool
	}{
		{StateProfileDNI, p.NeedsDNI},
		{StateProfileName, p.NeedsName},
		{StateProfileBirthDate, p.NeedsBirthDate},
		{StateProfileAddress, p.NeedsAddress},
		{StateProfileInsurance, p.NeedsInsurance},
		{StateProfileReason, p.NeedsReason},
	}
	for _, entry := range order {
		if entry.needs && !resolved[entry.state] {
			return entry.state, true
		}
	}
	return "", false
}

var gateFieldKeywords = map[State][]string{
	StateProfileDNI:       {"dni", "documento"},
	StateProfileName:      {"nombre", "apellido"},
	StateProfileBirthDate: {"nacimiento", "fecha"},
	StateProfileAddress:   {"direccion", "domicilio"},
	StateProfileInsurance: {"obra social", "prepaga", "particular"},
	StateProfileReason:    {"motivo", "consulta"},
}

// replyMentionsField checks whether the model already asked for the gated
// field, in which case its own wording is kept.
func replyMentionsField(reply string, field State) bool {
	norm := normalize(reply)
	for _, kw := range gateFieldKeywords[field] {
		if strings.Contains(norm, kw) {
			return true
		}
	}
	return false
}

func replyOr(reply, fallback string) string {
	if strings.TrimSpace(reply) == "" {
		return fallback
	}
	return reply
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
