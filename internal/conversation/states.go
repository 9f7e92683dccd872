package conversation

import (
	"encoding/json"

	"github.com/fmarconi/consultorio-ai-platform/internal/patients"
)

// State identifies where a patient is in the onboarding/booking protocol.
type State string

const (
	StateWelcome          State = "WELCOME"
	StateProfileDNI       State = "PROFILE_DNI"
	StateProfileName      State = "PROFILE_NAME"
	StateProfileBirthDate State = "PROFILE_BIRTHDATE"
	StateProfileAddress   State = "PROFILE_ADDRESS"
	StateProfileInsurance State = "PROFILE_INSURANCE"
	StateProfileReason    State = "PROFILE_REASON"
	StateBookingMenu      State = "BOOKING_MENU"
	StateChooseDay        State = "BOOKING_CHOOSE_DAY"
	StateChooseSlot       State = "BOOKING_CHOOSE_SLOT"
	StateBookingConfirm   State = "BOOKING_CONFIRM"
	StateUploadWaiting    State = "UPLOAD_WAITING"
)

func (s State) isKnown() bool {
	switch s {
	case StateWelcome, StateProfileDNI, StateProfileName, StateProfileBirthDate,
		StateProfileAddress, StateProfileInsurance, StateProfileReason,
		StateBookingMenu, StateChooseDay, StateChooseSlot,
		StateBookingConfirm, StateUploadWaiting:
		return true
	}
	return false
}

func (s State) isProfile() bool {
	switch s {
	case StateProfileDNI, StateProfileName, StateProfileBirthDate,
		StateProfileAddress, StateProfileInsurance, StateProfileReason:
		return true
	}
	return false
}

// MenuOption is one entry of a displayed day or slot menu. Aliases let the
// patient answer with the letter, the full label, or fragments of it.
type MenuOption struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Aliases  []string `json:"aliases,omitempty"`
	DateISO  string   `json:"dateIso,omitempty"`
	StartISO string   `json:"startIso,omitempty"`
}

// StateData is the transient per-conversation scratch pad persisted alongside
// the state. It never holds business data, only menu context for the turn in
// flight.
type StateData struct {
	Intent                    string       `json:"intent,omitempty"`
	PendingDays               []MenuOption `json:"pendingDays,omitempty"`
	PendingSlots              []MenuOption `json:"pendingSlots,omitempty"`
	SelectedDayISO            string       `json:"selectedDayIso,omitempty"`
	RescheduleAppointmentID   string       `json:"rescheduleAppointmentId,omitempty"`
	CancelAppointmentID       string       `json:"cancelAppointmentId,omitempty"`
	PendingReasonSlot         *MenuOption  `json:"pendingReasonSlot,omitempty"`
	RequireFreshReason        bool         `json:"requireFreshReason,omitempty"`
	OnboardingReasonSatisfied bool         `json:"onboardingReasonSatisfied,omitempty"`
}

// DecodeStateData treats missing or malformed scratch data as an empty pad;
// a bad blob must never break a turn.
func DecodeStateData(raw json.RawMessage) StateData {
	if len(raw) == 0 {
		return StateData{}
	}
	var data StateData
	if err := json.Unmarshal(raw, &data); err != nil {
		return StateData{}
	}
	return data
}

// EncodeStateData serializes the scratch pad for persistence.
func EncodeStateData(data StateData) json.RawMessage {
	out, err := json.Marshal(data)
	if err != nil {
		return json.RawMessage("{}")
	}
	return out
}

// ResolveState recomputes the effective state from the persisted profile
// gates. The stored state is only trusted once every gate is closed, so the
// machine self-heals when a profile is edited outside the conversation.
func ResolveState(p *patients.Patient, data StateData, isNew bool) State {
	if isNew {
		return StateWelcome
	}
	if s, ok := firstNeededState(p); ok {
		return s
	}
	stored := State(p.ConversationState)
	if !stored.isKnown() || stored == StateWelcome {
		return StateBookingMenu
	}
	if stored.isProfile() {
		// A reason detour from slot selection is still live even though
		// every gate is closed.
		if stored == StateProfileReason && data.PendingReasonSlot != nil {
			return stored
		}
		// Otherwise a stale profile state means the edit landed out of
		// band.
		return StateBookingMenu
	}
	if stored == StateChooseSlot && len(data.PendingSlots) == 0 {
		return StateBookingMenu
	}
	if stored == StateChooseDay && len(data.PendingDays) == 0 {
		return StateBookingMenu
	}
	return stored
}

// firstNeededState returns the profile state for the first open gate, in the
// fixed collection order.
func firstNeededState(p *patients.Patient) (State, bool) {
	switch {
	case p.NeedsDNI:
		return StateProfileDNI, true
	case p.NeedsName:
		return StateProfileName, true
	case p.NeedsBirthDate:
		return StateProfileBirthDate, true
	case p.NeedsAddress:
		return StateProfileAddress, true
	case p.NeedsInsurance:
		return StateProfileInsurance, true
	case p.NeedsReason:
		return StateProfileReason, true
	}
	return "", false
}
