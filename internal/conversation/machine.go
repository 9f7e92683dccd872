package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fmarconi/consultorio-ai-platform/internal/appointments"
	"github.com/fmarconi/consultorio-ai-platform/internal/patients"
	"github.com/fmarconi/consultorio-ai-platform/internal/schedule"
	"github.com/fmarconi/consultorio-ai-platform/pkg/logging"
)

// Turn is one inbound message plus the patient context it arrived in.
type Turn struct {
	Patient *patients.Patient
	IsNew   bool
	Message string
	Now     time.Time
	Data    StateData
}

// BookingRequest is the validated outcome of a completed booking flow; the
// executor applies it against the appointment store.
type BookingRequest struct {
	Type          string // "book" or "reschedule"
	SlotISO       string
	SlotLabel     string
	Reason        string
	AppointmentID string
}

// CancelRequest asks the executor to cancel an existing appointment.
type CancelRequest struct {
	AppointmentID string
	SlotLabel     string
}

// TurnResult is everything a handled turn produced. When Handled is false the
// caller must fall through to the assistant path; nothing else is set.
type TurnResult struct {
	Handled   bool
	Reply     string
	NextState State
	Data      StateData

	PatientPatch       patients.Patch
	Booking            *BookingRequest
	Cancel             *CancelRequest
	MergeWithPatientID string
}

// Machine is the deterministic per-patient protocol for onboarding and
// menu-driven booking. It never invents a slot: every option it shows comes
// from the live SlotProvider output of the same turn.
type Machine struct {
	patients patients.Repository
	appts    appointments.Repository
	slots    *SlotProvider
	clinic   ClinicInfo
	logger   *logging.Logger
}

// NewMachine wires the state machine to its collaborators.
func NewMachine(patientRepo patients.Repository, apptRepo appointments.Repository, slots *SlotProvider, clinic ClinicInfo, logger *logging.Logger) *Machine {
	if patientRepo == nil {
		panic("conversation: patient repository cannot be nil")
	}
	if apptRepo == nil {
		panic("conversation: appointment repository cannot be nil")
	}
	if slots == nil {
		panic("conversation: slot provider cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Machine{
		patients: patientRepo,
		appts:    apptRepo,
		slots:    slots,
		clinic:   clinic,
		logger:   logger,
	}
}

// Handle resolves the effective state and dispatches the turn. Parse failures
// always re-prompt in the same state; no transition happens on bad input.
func (m *Machine) Handle(ctx context.Context, turn Turn) (*TurnResult, error) {
	state := ResolveState(turn.Patient, turn.Data, turn.IsNew)

	// Courtesy closers at the menu get a canned reply and change nothing.
	if state == StateBookingMenu && IsAcknowledgement(turn.Message) && !turn.Patient.HasPendingSlot(turn.Now) {
		return m.stay(turn, state, ackReply()), nil
	}

	if state.isProfile() {
		return m.handleProfile(ctx, turn, state)
	}

	// Informational questions go to the assistant, menu answers do not.
	if LooksLikeQuestion(turn.Message) {
		return &TurnResult{Handled: false}, nil
	}

	switch state {
	case StateWelcome:
		return m.transition(turn, StateBookingMenu, StateData{}, welcomeReply(m.clinic)), nil
	case StateUploadWaiting:
		return m.transition(turn, StateBookingMenu, StateData{}, uploadReceivedReply()), nil
	case StateBookingMenu:
		return m.handleMenu(ctx, turn)
	case StateChooseDay:
		return m.handleChooseDay(ctx, turn)
	case StateChooseSlot:
		return m.handleChooseSlot(ctx, turn)
	case StateBookingConfirm:
		return m.handleConfirm(ctx, turn)
	}

	return m.transition(turn, StateBookingMenu, StateData{}, menuReply(m.clinic)), nil
}

// stay keeps the state and scratch data untouched.
func (m *Machine) stay(turn Turn, state State, reply string) *TurnResult {
	return m.result(turn, state, turn.Data, reply, patients.Patch{})
}

// transition moves to a new state with fresh scratch data.
func (m *Machine) transition(turn Turn, next State, data StateData, reply string) *TurnResult {
	return m.result(turn, next, data, reply, patients.Patch{})
}

func (m *Machine) result(turn Turn, next State, data StateData, reply string, patch patients.Patch) *TurnResult {
	stateStr := string(next)
	raw := EncodeStateData(data)
	patch.ConversationState = &stateStr
	patch.ConversationStateData = &raw
	return &TurnResult{
		Handled:      true,
		Reply:        reply,
		NextState:    next,
		Data:         data,
		PatientPatch: patch,
	}
}

// --- onboarding -----------------------------------------------------------

func (m *Machine) handleProfile(ctx context.Context, turn Turn, state State) (*TurnResult, error) {
	// "menu" restarts onboarding from scratch, keeping only the DNI.
	if DetectQuickIntent(turn.Message) == IntentMenu {
		return m.restartOnboarding(turn), nil
	}
	// A stray menu letter means the patient answered the wrong question.
	if IsMenuToken(turn.Message) {
		return m.stay(turn, state, outOfTurnReply(state)), nil
	}

	switch state {
	case StateProfileDNI:
		return m.handleDNI(ctx, turn)
	case StateProfileName:
		value, ok := ParseFullName(turn.Message)
		return m.profileStep(ctx, turn, state, value, ok, func(patch *patients.Patch, v string) {
			f := false
			patch.FullName, patch.NeedsName = &v, &f
		})
	case StateProfileBirthDate:
		value, ok := ParseBirthDate(turn.Message, turn.Now)
		return m.profileStep(ctx, turn, state, value, ok, func(patch *patients.Patch, v string) {
			f := false
			patch.BirthDate, patch.NeedsBirthDate = &v, &f
		})
	case StateProfileAddress:
		value, ok := ParseAddress(turn.Message)
		return m.profileStep(ctx, turn, state, value, ok, func(patch *patients.Patch, v string) {
			f := false
			patch.Address, patch.NeedsAddress = &v, &f
		})
	case StateProfileInsurance:
		value, ok := NormalizeInsurance(turn.Message)
		return m.profileStep(ctx, turn, state, value, ok, func(patch *patients.Patch, v string) {
			f := false
			patch.Insurance, patch.NeedsInsurance = &v, &f
		})
	case StateProfileReason:
		return m.handleReason(ctx, turn)
	}
	return m.stay(turn, state, profileRetries[state]), nil
}

func (m *Machine) restartOnboarding(turn Turn) *TurnResult {
	t, empty := true, ""
	patch := patients.Patch{
		FullName: &empty, BirthDate: &empty, Address: &empty, Insurance: &empty, Reason: &empty,
		NeedsName: &t, NeedsBirthDate: &t, NeedsAddress: &t, NeedsInsurance: &t, NeedsReason: &t,
	}
	return m.result(turn, StateBookingMenu, StateData{}, menuReply(m.clinic), patch)
}

// profileStep applies one successful field capture and advances to the next
// open gate, or resumes the remembered booking intent when the profile is done.
func (m *Machine) profileStep(ctx context.Context, turn Turn, state State, value string, ok bool, set func(*patients.Patch, string)) (*TurnResult, error) {
	if !ok {
		return m.stay(turn, state, profileRetries[state]), nil
	}

	patch := patients.Patch{}
	set(&patch, value)

	after := *turn.Patient
	after.Apply(patch)

	if next, needed := firstNeededState(&after); needed {
		res := m.result(turn, next, turn.Data, profilePrompts[next], patch)
		return res, nil
	}
	return m.finishOnboarding(ctx, turn, patch, &after)
}

// finishOnboarding routes a now-complete profile back into the flow that
// triggered the collection.
func (m *Machine) finishOnboarding(ctx context.Context, turn Turn, patch patients.Patch, after *patients.Patient) (*TurnResult, error) {
	if turn.Data.Intent == "book" || turn.Data.Intent == "reschedule" {
		res, err := m.listDays(ctx, turn, turn.Data.Intent, turn.Data.RescheduleAppointmentID)
		if err != nil {
			return nil, err
		}
		mergePatch(&res.PatientPatch, patch)
		return res, nil
	}
	return m.result(turn, StateBookingMenu, StateData{}, "¡Gracias! Ya tengo todos tus datos. 🙌\n\n"+menuBody, patch), nil
}

func (m *Machine) handleDNI(ctx context.Context, turn Turn) (*TurnResult, error) {
	dni, ok := ParseDNI(turn.Message)
	if !ok {
		return m.stay(turn, StateProfileDNI, profileRetries[StateProfileDNI]), nil
	}

	existing, err := m.patients.FindByDNI(ctx, dni, turn.Patient.ID)
	if err != nil && !errors.Is(err, patients.ErrNotFound) {
		return nil, fmt.Errorf("conversation: dni lookup failed: %w", err)
	}
	if existing != nil {
		// Same person, older record. The caller merges into the earlier
		// profile and the flow continues from whatever it still needs.
		next := StateBookingMenu
		reply := mergedProfileReply(existing.FullName) + "\n\n" + menuBody
		if s, needed := firstNeededState(existing); needed {
			next = s
			reply = mergedProfileReply(existing.FullName) + "\n\n" + profilePrompts[s]
		}
		res := m.transition(turn, next, turn.Data, reply)
		res.MergeWithPatientID = existing.ID
		return res, nil
	}

	f := false
	patch := patients.Patch{DNI: &dni, NeedsDNI: &f}
	after := *turn.Patient
	after.Apply(patch)
	if next, needed := firstNeededState(&after); needed {
		return m.result(turn, next, turn.Data, profilePrompts[next], patch), nil
	}
	return m.finishOnboarding(ctx, turn, patch, &after)
}

// handleReason closes the consult-reason gate and, when the question was a
// detour from slot selection, emits the booking for the slot that waited.
func (m *Machine) handleReason(ctx context.Context, turn Turn) (*TurnResult, error) {
	reason, ok := FormatConsultReason(turn.Message)
	if !ok {
		return m.stay(turn, StateProfileReason, profileRetries[StateProfileReason]), nil
	}

	f := false
	patch := patients.Patch{Reason: &reason, NeedsReason: &f}

	if slot := turn.Data.PendingReasonSlot; slot != nil {
		res := m.result(turn, StateBookingMenu, StateData{}, "", patch)
		res.Booking = &BookingRequest{
			Type:      "book",
			SlotISO:   slot.StartISO,
			SlotLabel: slot.Label,
			Reason:    reason,
		}
		return res, nil
	}

	data := turn.Data
	data.OnboardingReasonSatisfied = true

	after := *turn.Patient
	after.Apply(patch)
	if next, needed := firstNeededState(&after); needed {
		return m.result(turn, next, data, profilePrompts[next], patch), nil
	}
	turnWithData := turn
	turnWithData.Data = data
	return m.finishOnboarding(ctx, turnWithData, patch, &after)
}

// --- booking menu ---------------------------------------------------------

func (m *Machine) handleMenu(ctx context.Context, turn Turn) (*TurnResult, error) {
	// A yes/no aimed at a pending offered slot belongs to the confirmation
	// bypass, not the menu.
	if turn.Patient.HasPendingSlot(turn.Now) && (IsAffirmative(turn.Message) || IsNegative(turn.Message)) {
		return &TurnResult{Handled: false}, nil
	}

	choice := menuChoice(turn.Message)

	switch choice {
	case "A":
		return m.startBooking(ctx, turn)
	case "B":
		return m.startReschedule(ctx, turn)
	case "C":
		return m.startCancel(ctx, turn)
	case "D":
		return m.startUpload(turn)
	}
	return m.stay(turn, StateBookingMenu, menuReply(m.clinic)), nil
}

// menuChoice maps the reply onto a menu letter, accepting keywords as well.
func menuChoice(message string) string {
	token := normalizeToken(message)
	token = trimPrefixAll(token, "opcion ")
	switch token {
	case "a", "1":
		return "A"
	case "b", "2":
		return "B"
	case "c", "3":
		return "C"
	case "d", "4":
		return "D"
	}
	switch DetectQuickIntent(message) {
	case IntentBook:
		return "A"
	case IntentReschedule:
		return "B"
	case IntentCancel:
		return "C"
	}
	return ""
}

func trimPrefixAll(s, prefix string) string {
	for len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		s = s[len(prefix):]
	}
	return s
}

func (m *Machine) startBooking(ctx context.Context, turn Turn) (*TurnResult, error) {
	if res, gated := m.gate(turn, "book", ""); gated {
		return res, nil
	}
	return m.listDays(ctx, turn, "book", "")
}

func (m *Machine) startReschedule(ctx context.Context, turn Turn) (*TurnResult, error) {
	active, err := m.appts.FindActive(ctx, turn.Patient.ID, turn.Now)
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			return m.stay(turn, StateBookingMenu, noAppointmentToRescheduleReply()), nil
		}
		return nil, fmt.Errorf("conversation: active appointment lookup failed: %w", err)
	}
	if res, gated := m.gate(turn, "reschedule", active.ID); gated {
		return res, nil
	}
	return m.listDays(ctx, turn, "reschedule", active.ID)
}

func (m *Machine) startCancel(ctx context.Context, turn Turn) (*TurnResult, error) {
	active, err := m.appts.FindActive(ctx, turn.Patient.ID, turn.Now)
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			return m.stay(turn, StateBookingMenu, noAppointmentToCancelReply()), nil
		}
		return nil, fmt.Errorf("conversation: active appointment lookup failed: %w", err)
	}
	label := schedule.FormatSlotLabel(active.DateTime.In(m.slots.Location()))
	data := StateData{Intent: "cancel", CancelAppointmentID: active.ID}
	return m.transition(turn, StateBookingConfirm, data, confirmCancelReply(label)), nil
}

func (m *Machine) startUpload(turn Turn) (*TurnResult, error) {
	if res, gated := m.gate(turn, "", ""); gated {
		return res, nil
	}
	return m.transition(turn, StateUploadWaiting, StateData{}, uploadWaitingReply(m.clinic)), nil
}

// gate redirects into the first open profile state, remembering the intent so
// the flow resumes once the profile is complete.
func (m *Machine) gate(turn Turn, intent, rescheduleID string) (*TurnResult, bool) {
	next, needed := firstNeededState(turn.Patient)
	if !needed {
		return nil, false
	}
	data := StateData{Intent: intent, RescheduleAppointmentID: rescheduleID}
	return m.transition(turn, next, data, profilePrompts[next]), true
}

// listDays shows the day menu built from the live calendar.
func (m *Machine) listDays(ctx context.Context, turn Turn, intent, rescheduleID string) (*TurnResult, error) {
	free, err := m.slots.FreeSlots(ctx, turn.Now)
	if err != nil {
		return nil, err
	}
	days := BuildDayMenu(free)
	if len(days) == 0 {
		return m.transition(turn, StateBookingMenu, StateData{}, noSlotsReply()), nil
	}
	data := StateData{
		Intent:                    intent,
		RescheduleAppointmentID:   rescheduleID,
		PendingDays:               days,
		OnboardingReasonSatisfied: turn.Data.OnboardingReasonSatisfied,
	}
	return m.transition(turn, StateChooseDay, data, chooseDayReply(days)), nil
}

// --- day and slot selection -----------------------------------------------

func (m *Machine) handleChooseDay(ctx context.Context, turn Turn) (*TurnResult, error) {
	if res, rerouted, err := m.quickIntentReroute(ctx, turn); rerouted {
		return res, err
	}

	opt := MatchOption(turn.Message, turn.Data.PendingDays)
	if opt == nil {
		return m.stay(turn, StateChooseDay, "No encontré esa opción. "+chooseDayReply(turn.Data.PendingDays)), nil
	}

	free, err := m.slots.FreeSlots(ctx, turn.Now)
	if err != nil {
		return nil, err
	}
	slotOpts := BuildSlotMenu(free, opt.DateISO)
	if len(slotOpts) == 0 {
		// The day filled up since it was offered.
		return m.listDays(ctx, turn, turn.Data.Intent, turn.Data.RescheduleAppointmentID)
	}

	data := turn.Data
	data.SelectedDayISO = opt.DateISO
	data.PendingSlots = slotOpts
	return m.transition(turn, StateChooseSlot, data, chooseSlotReply(opt.Label, slotOpts)), nil
}

func (m *Machine) handleChooseSlot(ctx context.Context, turn Turn) (*TurnResult, error) {
	if res, rerouted, err := m.quickIntentReroute(ctx, turn); rerouted {
		return res, err
	}

	opt := MatchOption(turn.Message, turn.Data.PendingSlots)
	if opt == nil {
		return m.stay(turn, StateChooseSlot, "No encontré ese horario. "+chooseSlotReply(dayLabelFor(turn.Data), turn.Data.PendingSlots)), nil
	}

	if turn.Data.Intent == "reschedule" {
		res := m.transition(turn, StateBookingMenu, StateData{}, "")
		res.Booking = &BookingRequest{
			Type:          "reschedule",
			SlotISO:       opt.StartISO,
			SlotLabel:     opt.Label,
			AppointmentID: turn.Data.RescheduleAppointmentID,
		}
		return res, nil
	}

	// Fresh bookings need a consult reason confirmed within this flow.
	if !turn.Data.OnboardingReasonSatisfied || turn.Data.RequireFreshReason {
		data := turn.Data
		data.PendingReasonSlot = opt
		return m.transition(turn, StateProfileReason, data, askReasonForSlotReply(opt.Label)), nil
	}

	res := m.transition(turn, StateBookingMenu, StateData{}, "")
	res.Booking = &BookingRequest{
		Type:      "book",
		SlotISO:   opt.StartISO,
		SlotLabel: opt.Label,
		Reason:    turn.Patient.Reason,
	}
	return res, nil
}

func dayLabelFor(data StateData) string {
	for _, d := range data.PendingDays {
		if d.DateISO == data.SelectedDayISO {
			return d.Label
		}
	}
	if t, err := time.Parse("2006-01-02", data.SelectedDayISO); err == nil {
		return schedule.FormatDayLabel(t)
	}
	return data.SelectedDayISO
}

// quickIntentReroute lets explicit keywords jump out of a selection flow.
func (m *Machine) quickIntentReroute(ctx context.Context, turn Turn) (*TurnResult, bool, error) {
	switch DetectQuickIntent(turn.Message) {
	case IntentMenu:
		res := m.transition(turn, StateBookingMenu, StateData{}, menuReply(m.clinic))
		return res, true, nil
	case IntentCancel:
		res, err := m.startCancel(ctx, turn)
		return res, true, err
	case IntentReschedule:
		res, err := m.startReschedule(ctx, turn)
		return res, true, err
	case IntentBook:
		if turn.Data.Intent != "book" {
			res, err := m.startBooking(ctx, turn)
			return res, true, err
		}
	}
	return nil, false, nil
}

// --- cancellation confirm -------------------------------------------------

func (m *Machine) handleConfirm(ctx context.Context, turn Turn) (*TurnResult, error) {
	if IsAffirmative(turn.Message) {
		label := ""
		if active, err := m.appts.FindActive(ctx, turn.Patient.ID, turn.Now); err == nil {
			label = schedule.FormatSlotLabel(active.DateTime.In(m.slots.Location()))
		}
		res := m.transition(turn, StateBookingMenu, StateData{}, "")
		res.Cancel = &CancelRequest{
			AppointmentID: turn.Data.CancelAppointmentID,
			SlotLabel:     label,
		}
		return res, nil
	}
	if IsNegative(turn.Message) || DetectQuickIntent(turn.Message) == IntentMenu {
		return m.transition(turn, StateBookingMenu, StateData{}, cancelAbortedReply()), nil
	}
	return m.stay(turn, StateBookingConfirm, askYesNoReply()), nil
}

// mergePatch overlays src's set fields onto dst.
func mergePatch(dst *patients.Patch, src patients.Patch) {
	if src.FullName != nil {
		dst.FullName = src.FullName
	}
	if src.DNI != nil {
		dst.DNI = src.DNI
	}
	if src.BirthDate != nil {
		dst.BirthDate = src.BirthDate
	}
	if src.Address != nil {
		dst.Address = src.Address
	}
	if src.Insurance != nil {
		dst.Insurance = src.Insurance
	}
	if src.Reason != nil {
		dst.Reason = src.Reason
	}
	if src.NeedsDNI != nil {
		dst.NeedsDNI = src.NeedsDNI
	}
	if src.NeedsName != nil {
		dst.NeedsName = src.NeedsName
	}
	if src.NeedsBirthDate != nil {
		dst.NeedsBirthDate = src.NeedsBirthDate
	}
	if src.NeedsAddress != nil {
		dst.NeedsAddress = src.NeedsAddress
	}
	if src.NeedsInsurance != nil {
		dst.NeedsInsurance = src.NeedsInsurance
	}
	if src.NeedsReason != nil {
		dst.NeedsReason = src.NeedsReason
	}
}
