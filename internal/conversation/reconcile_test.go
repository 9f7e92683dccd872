package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmarconi/consultorio-ai-platform/internal/schedule"
)

func slotAt(day, hour, minute int) schedule.Slot {
	start := time.Date(2026, 9, day, hour, minute, 0, 0, time.UTC)
	return schedule.Slot{Start: start, Label: schedule.FormatSlotLabel(start)}
}

// Monday 07/09 15:30 and 16:00, Tuesday 08/09 10:00.
func testFreeSlots() []schedule.Slot {
	return []schedule.Slot{slotAt(7, 15, 30), slotAt(7, 16, 0), slotAt(8, 10, 0)}
}

func testReconciler() *Reconciler {
	return NewReconciler(time.UTC, nil)
}

func TestBypassConfirmsPendingSlot(t *testing.T) {
	r := testReconciler()
	p := completePatient("+5491122334455")
	pending := slotAt(7, 15, 30)
	p.PendingSlotISO = pending.ISO()
	p.PendingSlotLabel = pending.Label
	p.PendingSlotReason = "Dolor de espalda"

	out := r.Bypass(ReconcileInput{Patient: p, Message: "dale ese", FreeSlots: testFreeSlots(), Now: testNow})
	require.NotNil(t, out)
	assert.Equal(t, OutcomeCreateAppointment, out.Kind)
	require.NotNil(t, out.Slot)
	assert.Equal(t, pending.ISO(), out.Slot.ISO(), "must book exactly the offered slot")
	assert.Equal(t, "Dolor de espalda", out.Reason)
	require.NotNil(t, out.PatientPatch.PendingSlotISO)
	assert.Empty(t, *out.PatientPatch.PendingSlotISO)
}

func TestBypassRejectedPendingSlotOffersAlternatives(t *testing.T) {
	r := testReconciler()
	p := completePatient("+5491122334455")
	pending := slotAt(7, 15, 30)
	p.PendingSlotISO = pending.ISO()
	p.PendingSlotLabel = pending.Label
	p.PendingSlotReason = "Dolor de espalda"

	out := r.Bypass(ReconcileInput{Patient: p, Message: "otro horario", FreeSlots: testFreeSlots(), Now: testNow})
	require.NotNil(t, out)
	assert.Equal(t, OutcomeListSlots, out.Kind)
	require.NotEmpty(t, out.Slots)
	// The first alternative becomes the new pending hint, keeping the reason
	// attached to the rejected one.
	require.NotNil(t, out.PatientPatch.PendingSlotISO)
	assert.Equal(t, out.Slots[0].ISO(), *out.PatientPatch.PendingSlotISO)
	require.NotNil(t, out.PatientPatch.PendingSlotReason)
	assert.Equal(t, "Dolor de espalda", *out.PatientPatch.PendingSlotReason)
}

func TestBypassExpiredPendingSlotIsIgnored(t *testing.T) {
	r := testReconciler()
	p := completePatient("+5491122334455")
	pending := slotAt(7, 15, 30)
	expired := testNow.Add(-time.Minute)
	p.PendingSlotISO = pending.ISO()
	p.PendingSlotLabel = pending.Label
	p.PendingSlotExpiresAt = &expired

	out := r.Bypass(ReconcileInput{Patient: p, Message: "dale", FreeSlots: testFreeSlots(), Now: testNow})
	// "dale" alone is an acknowledgement once no live pending slot exists.
	require.NotNil(t, out)
	assert.Equal(t, OutcomeNone, out.Kind)
}

func TestBypassGreetingAndPassThrough(t *testing.T) {
	r := testReconciler()
	p := completePatient("+5491122334455")

	out := r.Bypass(ReconcileInput{Patient: p, Message: "hola!", FreeSlots: testFreeSlots(), Now: testNow})
	require.NotNil(t, out)
	assert.Equal(t, OutcomeNone, out.Kind)

	out = r.Bypass(ReconcileInput{Patient: p, Message: "puede ser el martes?", FreeSlots: testFreeSlots(), Now: testNow})
	assert.Nil(t, out, "scheduling talk must reach the model path")
}

func TestReconcileNilActionUsesHeuristic(t *testing.T) {
	r := testReconciler()
	p := completePatient("+5491122334455")

	out := r.Reconcile(ReconcileInput{Patient: p, Message: "puede ser el martes a la mañana", FreeSlots: testFreeSlots(), Now: testNow})
	require.NotNil(t, out)
	assert.Equal(t, OutcomeListSlots, out.Kind)
	require.NotEmpty(t, out.Slots)
	assert.Equal(t, slotAt(8, 10, 0).ISO(), out.Slots[0].ISO(), "tuesday morning slot must rank first")
	require.NotNil(t, out.PatientPatch.PreferredDayISO)
	assert.Equal(t, "2026-09-08", *out.PatientPatch.PreferredDayISO)

	out = r.Reconcile(ReconcileInput{Patient: p, Message: "asdfgh", FreeSlots: testFreeSlots(), Now: testNow})
	require.NotNil(t, out)
	assert.Equal(t, OutcomeAskClarification, out.Kind)
}

func TestReconcileOfferDropsHallucinatedSlots(t *testing.T) {
	m, reg := newTestMetrics(t)
	r := testReconciler().WithMetrics(m)
	p := completePatient("+5491122334455")
	real := slotAt(7, 16, 0)

	action := &AgentAction{Kind: ActionOfferSlots, Reply: "Tengo estos:", Slots: []ProposedSlot{
		{ISO: real.ISO(), Label: real.Label},
		{ISO: "2026-09-06T03:00:00Z", Label: "domingo 06/09 03:00"}, // not in the calendar
	}}

	out := r.Reconcile(ReconcileInput{Patient: p, Message: "que tenes?", FreeSlots: testFreeSlots(), Action: action, Now: testNow})
	require.NotNil(t, out)
	assert.Equal(t, OutcomeListSlots, out.Kind)
	require.Len(t, out.Slots, 1)
	assert.Equal(t, real.ISO(), out.Slots[0].ISO())
	assert.Equal(t, 1.0, counterValue(t, reg, "consultorio_conversation_hallucinated_slots_dropped_total"))
}

func TestReconcileOfferReasonSticksToPendingSlot(t *testing.T) {
	r := testReconciler()
	p := completePatient("+5491122334455")
	p.Reason = "Control anual"
	real := slotAt(7, 15, 30)

	action := &AgentAction{
		Kind:   ActionOfferSlots,
		Reason: "Dolor de muelas",
		Slots:  []ProposedSlot{{ISO: real.ISO(), Label: real.Label}},
	}
	out := r.Reconcile(ReconcileInput{Patient: p, Message: "me duele una muela, ¿qué horarios tenés?", FreeSlots: testFreeSlots(), Action: action, Now: testNow})
	require.NotNil(t, out)
	assert.Equal(t, OutcomeListSlots, out.Kind)
	require.NotNil(t, out.PatientPatch.PendingSlotReason)
	assert.Equal(t, "Dolor de muelas", *out.PatientPatch.PendingSlotReason)

	// A bare confirmation books with the reason given at offer time, not the
	// older profile reason.
	p.Apply(out.PatientPatch)
	confirm := r.Bypass(ReconcileInput{Patient: p, Message: "dale ese", FreeSlots: testFreeSlots(), Now: testNow})
	require.NotNil(t, confirm)
	assert.Equal(t, OutcomeCreateAppointment, confirm.Kind)
	assert.Equal(t, "Dolor de muelas", confirm.Reason)
}

func TestHeuristicOfferDefaultsPendingReasonToProfile(t *testing.T) {
	r := testReconciler()
	p := completePatient("+5491122334455")

	out := r.Reconcile(ReconcileInput{Patient: p, Message: "puede ser el martes a la mañana", FreeSlots: testFreeSlots(), Now: testNow})
	require.NotNil(t, out)
	require.Equal(t, OutcomeListSlots, out.Kind)
	require.NotNil(t, out.PatientPatch.PendingSlotReason)
	assert.Equal(t, p.Reason, *out.PatientPatch.PendingSlotReason)
}

func TestReconcileOfferAllHallucinatedFallsBackToCalendar(t *testing.T) {
	r := testReconciler()
	p := completePatient("+5491122334455")

	action := &AgentAction{Kind: ActionOfferSlots, Slots: []ProposedSlot{
		{ISO: "2026-09-06T03:00:00Z"},
	}}

	out := r.Reconcile(ReconcileInput{Patient: p, Message: "que tenes?", FreeSlots: testFreeSlots(), Action: action, Now: testNow})
	require.NotNil(t, out)
	assert.Equal(t, OutcomeListSlots, out.Kind)
	assert.Len(t, out.Slots, len(testFreeSlots()))
}

func TestReconcileOfferEmptyCalendar(t *testing.T) {
	r := testReconciler()
	p := completePatient("+5491122334455")

	action := &AgentAction{Kind: ActionOfferSlots, Slots: []ProposedSlot{{ISO: "2026-09-06T03:00:00Z"}}}
	out := r.Reconcile(ReconcileInput{Patient: p, Message: "que tenes?", FreeSlots: nil, Action: action, Now: testNow})
	require.NotNil(t, out)
	assert.Equal(t, OutcomeAskClarification, out.Kind)
	assert.Contains(t, out.Reply, "no veo horarios válidos")
}

func TestReconcileConfirmMessageOverridesModelSlot(t *testing.T) {
	r := testReconciler()
	p := completePatient("+5491122334455")
	modelSlot := slotAt(7, 15, 30)

	action := &AgentAction{Kind: ActionConfirmSlot, Slot: &ProposedSlot{ISO: modelSlot.ISO(), Label: modelSlot.Label}}
	out := r.Reconcile(ReconcileInput{Patient: p, Message: "mejor el martes a las 10", FreeSlots: testFreeSlots(), Action: action, Now: testNow})
	require.NotNil(t, out)
	assert.Equal(t, OutcomeCreateAppointment, out.Kind)
	require.NotNil(t, out.Slot)
	assert.Equal(t, slotAt(8, 10, 0).ISO(), out.Slot.ISO(), "the explicit restatement wins over the model's claim")
}

func TestReconcileConfirmUngroundedSlotAsksAgain(t *testing.T) {
	r := testReconciler()
	p := completePatient("+5491122334455")

	action := &AgentAction{Kind: ActionConfirmSlot, Slot: &ProposedSlot{ISO: "2026-09-06T03:00:00Z", Label: "domingo 06/09 03:00"}}
	out := r.Reconcile(ReconcileInput{Patient: p, Message: "bueno", FreeSlots: testFreeSlots(), Action: action, Now: testNow})
	require.NotNil(t, out)
	assert.Equal(t, OutcomeAskClarification, out.Kind)
	assert.Nil(t, out.Slot)
}

func TestReconcileConfirmFallsBackToPendingSlot(t *testing.T) {
	r := testReconciler()
	p := completePatient("+5491122334455")
	pending := slotAt(7, 15, 30)
	p.PendingSlotISO = pending.ISO()
	p.PendingSlotLabel = pending.Label

	action := &AgentAction{Kind: ActionConfirmSlot}
	out := r.Reconcile(ReconcileInput{Patient: p, Message: "bueno, confirmame", FreeSlots: testFreeSlots(), Action: action, Now: testNow})
	require.NotNil(t, out)
	assert.Equal(t, OutcomeCreateAppointment, out.Kind)
	require.NotNil(t, out.Slot)
	assert.Equal(t, pending.ISO(), out.Slot.ISO())
	assert.Equal(t, p.Reason, out.Reason)
}

func TestReconcileProfileGateOverridesBooking(t *testing.T) {
	r := testReconciler()
	p := completePatient("+5491122334455")
	p.Insurance = ""
	p.SyncNeedsFlags()

	action := &AgentAction{Kind: ActionOfferSlots, Reply: "Tengo estos horarios", Slots: []ProposedSlot{{ISO: testFreeSlots()[0].ISO()}}}
	out := r.Reconcile(ReconcileInput{Patient: p, Message: "quiero turno", FreeSlots: testFreeSlots(), Action: action, Now: testNow})
	require.NotNil(t, out)
	assert.Equal(t, OutcomeNone, out.Kind, "booking cannot outrun the profile gate")
	assert.Contains(t, out.Reply, "obra social")
	assert.Empty(t, out.Slots)
}

func TestReconcileProfileGateClosedByExtractedUpdate(t *testing.T) {
	r := testReconciler()
	p := completePatient("+5491122334455")
	p.Insurance = ""
	p.SyncNeedsFlags()

	action := &AgentAction{
		Kind:    ActionOfferSlots,
		Reply:   "Tengo estos horarios",
		Slots:   []ProposedSlot{{ISO: testFreeSlots()[0].ISO()}},
		Profile: ProfileUpdates{Insurance: "OSDE"},
	}
	out := r.Reconcile(ReconcileInput{Patient: p, Message: "tengo OSDE, quiero turno", FreeSlots: testFreeSlots(), Action: action, Now: testNow})
	require.NotNil(t, out)
	assert.Equal(t, OutcomeListSlots, out.Kind)
	require.NotNil(t, out.PatientPatch.Insurance)
	assert.Equal(t, "OSDE", *out.PatientPatch.Insurance)
}

func TestReconcileGateKeepsModelReplyMentioningField(t *testing.T) {
	r := testReconciler()
	p := completePatient("+5491122334455")
	p.Insurance = ""
	p.SyncNeedsFlags()

	action := &AgentAction{Kind: ActionConfirmSlot, Reply: "Antes de confirmar, ¿qué obra social tenés?"}
	out := r.Reconcile(ReconcileInput{Patient: p, Message: "confirmame el lunes", FreeSlots: testFreeSlots(), Action: action, Now: testNow})
	require.NotNil(t, out)
	assert.Equal(t, OutcomeNone, out.Kind)
	assert.Equal(t, "Antes de confirmar, ¿qué obra social tenés?", out.Reply)
}

func TestReconcileGeneralPassesReplyThrough(t *testing.T) {
	r := testReconciler()
	p := completePatient("+5491122334455")

	action := &AgentAction{Kind: ActionGeneral, Reply: "Atendemos de lunes a viernes de 9 a 19."}
	out := r.Reconcile(ReconcileInput{Patient: p, Message: "atienden los sabados?", FreeSlots: testFreeSlots(), Action: action, Now: testNow})
	require.NotNil(t, out)
	assert.Equal(t, OutcomeNone, out.Kind)
	assert.Equal(t, "Atendemos de lunes a viernes de 9 a 19.", out.Reply)
}
