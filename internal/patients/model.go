package patients

import (
	"encoding/json"
	"strings"
	"time"
)

// Patient is the onboarding profile plus per-conversation bookkeeping for a
// single WhatsApp phone number.
type Patient struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	FullName  string    `json:"full_name"`
	DNI       string    `json:"dni"`
	BirthDate string    `json:"birth_date"` // DD/MM/YYYY
	Address   string    `json:"address"`
	Insurance string    `json:"insurance"`
	Reason    string    `json:"consult_reason"`
	CreatedAt time.Time `json:"created_at"`

	// Onboarding gates. A flag stays true until the matching field is
	// non-empty; the booking flow is blocked while any flag is true.
	NeedsDNI       bool `json:"needs_dni"`
	NeedsName      bool `json:"needs_name"`
	NeedsBirthDate bool `json:"needs_birth_date"`
	NeedsAddress   bool `json:"needs_address"`
	NeedsInsurance bool `json:"needs_insurance"`
	NeedsReason    bool `json:"needs_reason"`

	// Last slot offered to the patient, awaiting explicit confirmation.
	PendingSlotISO       string     `json:"pending_slot_iso"`
	PendingSlotLabel     string     `json:"pending_slot_label"`
	PendingSlotExpiresAt *time.Time `json:"pending_slot_expires_at,omitempty"`
	PendingSlotReason    string     `json:"pending_slot_reason"`

	// Last expressed scheduling preference, persisted across turns.
	PreferredDayISO string   `json:"preferred_day_iso"`
	PreferredHour   *float64 `json:"preferred_hour,omitempty"`

	ConversationState     string          `json:"conversation_state"`
	ConversationStateData json.RawMessage `json:"conversation_state_data,omitempty"`
}

// New returns a blank patient for a first-contact phone number with every
// onboarding gate open.
func New(phone string) *Patient {
	return &Patient{
		Phone:          phone,
		NeedsDNI:       true,
		NeedsName:      true,
		NeedsBirthDate: true,
		NeedsAddress:   true,
		NeedsInsurance: true,
		NeedsReason:    true,
	}
}

// SyncNeedsFlags recomputes every needs* flag from the profile fields. The
// flags are derived state; this keeps them honest after external edits.
func (p *Patient) SyncNeedsFlags() {
	p.NeedsDNI = strings.TrimSpace(p.DNI) == ""
	p.NeedsName = strings.TrimSpace(p.FullName) == ""
	p.NeedsBirthDate = strings.TrimSpace(p.BirthDate) == ""
	p.NeedsAddress = strings.TrimSpace(p.Address) == ""
	p.NeedsInsurance = strings.TrimSpace(p.Insurance) == ""
	p.NeedsReason = strings.TrimSpace(p.Reason) == ""
}

// ProfileComplete reports whether every onboarding gate is closed.
func (p *Patient) ProfileComplete() bool {
	return !p.NeedsDNI && !p.NeedsName && !p.NeedsBirthDate &&
		!p.NeedsAddress && !p.NeedsInsurance && !p.NeedsReason
}

// HasPendingSlot reports whether a non-expired pending slot exists.
func (p *Patient) HasPendingSlot(now time.Time) bool {
	if p.PendingSlotISO == "" {
		return false
	}
	if p.PendingSlotExpiresAt != nil && now.After(*p.PendingSlotExpiresAt) {
		return false
	}
	return true
}

// Patch is a partial patient update; nil fields are left untouched.
type Patch struct {
	Phone     *string
	FullName  *string
	DNI       *string
	BirthDate *string
	Address   *string
	Insurance *string
	Reason    *string

	NeedsDNI       *bool
	NeedsName      *bool
	NeedsBirthDate *bool
	NeedsAddress   *bool
	NeedsInsurance *bool
	NeedsReason    *bool

	PendingSlotISO       *string
	PendingSlotLabel     *string
	PendingSlotExpiresAt **time.Time
	PendingSlotReason    *string

	PreferredDayISO *string
	PreferredHour   **float64

	ConversationState     *string
	ConversationStateData *json.RawMessage
}

// Apply copies the patch's set fields onto the patient.
func (p *Patient) Apply(patch Patch) {
	if patch.Phone != nil {
		p.Phone = *patch.Phone
	}
	if patch.FullName != nil {
		p.FullName = *patch.FullName
	}
	if patch.DNI != nil {
		p.DNI = *patch.DNI
	}
	if patch.BirthDate != nil {
		p.BirthDate = *patch.BirthDate
	}
	if patch.Address != nil {
		p.Address = *patch.Address
	}
	if patch.Insurance != nil {
		p.Insurance = *patch.Insurance
	}
	if patch.Reason != nil {
		p.Reason = *patch.Reason
	}
	if patch.NeedsDNI != nil {
		p.NeedsDNI = *patch.NeedsDNI
	}
	if patch.NeedsName != nil {
		p.NeedsName = *patch.NeedsName
	}
	if patch.NeedsBirthDate != nil {
		p.NeedsBirthDate = *patch.NeedsBirthDate
	}
	if patch.NeedsAddress != nil {
		p.NeedsAddress = *patch.NeedsAddress
	}
	if patch.NeedsInsurance != nil {
		p.NeedsInsurance = *patch.NeedsInsurance
	}
	if patch.NeedsReason != nil {
		p.NeedsReason = *patch.NeedsReason
	}
	if patch.PendingSlotISO != nil {
		p.PendingSlotISO = *patch.PendingSlotISO
	}
	if patch.PendingSlotLabel != nil {
		p.PendingSlotLabel = *patch.PendingSlotLabel
	}
	if patch.PendingSlotExpiresAt != nil {
		p.PendingSlotExpiresAt = *patch.PendingSlotExpiresAt
	}
	if patch.PendingSlotReason != nil {
		p.PendingSlotReason = *patch.PendingSlotReason
	}
	if patch.PreferredDayISO != nil {
		p.PreferredDayISO = *patch.PreferredDayISO
	}
	if patch.PreferredHour != nil {
		p.PreferredHour = *patch.PreferredHour
	}
	if patch.ConversationState != nil {
		p.ConversationState = *patch.ConversationState
	}
	if patch.ConversationStateData != nil {
		p.ConversationStateData = *patch.ConversationStateData
	}
}
