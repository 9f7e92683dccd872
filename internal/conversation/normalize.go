package conversation

import (
	"encoding/json"
	"errors"
	"strings"
)

// ActionKind is one of the four canonical assistant actions.
type ActionKind string

const (
	ActionOfferSlots       ActionKind = "offer_slots"
	ActionConfirmSlot      ActionKind = "confirm_slot"
	ActionAskClarification ActionKind = "ask_clarification"
	ActionGeneral          ActionKind = "general"
)

// ProposedSlot is a slot claim from the model, untrusted until grounded.
type ProposedSlot struct {
	ISO   string
	Label string
}

// ProfileUpdates are profile fields the model extracted from the message.
type ProfileUpdates struct {
	Name          string
	DNI           string
	BirthDate     string
	Address       string
	Insurance     string
	ConsultReason string
}

// Empty reports whether no field was extracted.
func (u ProfileUpdates) Empty() bool {
	return u == ProfileUpdates{}
}

// AgentAction is the canonical, decoded form of whatever the model returned.
// Everything downstream of NormalizeAction only ever sees this shape.
type AgentAction struct {
	Kind    ActionKind
	Slots   []ProposedSlot
	Slot    *ProposedSlot
	Reason  string
	Reply   string
	Profile ProfileUpdates
}

// ErrUnrecognizedAction indicates the payload held nothing actionable.
var ErrUnrecognizedAction = errors.New("conversation: unrecognized agent action")

// NormalizeAction decodes the model's JSON into a canonical action, tolerating
// alternate casings, nested payload wrappers, and several field-name aliases.
// Model output is untrusted input; anything undecodable is an error and the
// caller falls back to the deterministic path.
func NormalizeAction(raw string) (*AgentAction, error) {
	cleaned := stripCodeFences(raw)
	if cleaned == "" {
		return nil, ErrUnrecognizedAction
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, ErrUnrecognizedAction
	}

	// The interesting keys sometimes live one level down.
	body := doc
	if nested := lookupMap(doc, "payload", "details", "data"); nested != nil {
		body = merged(doc, nested)
	}

	kind := canonicalKind(lookupString(body, "action", "type", "kind", "intent"))
	if kind == "" {
		return nil, ErrUnrecognizedAction
	}

	action := &AgentAction{
		Kind:    kind,
		Reason:  lookupString(body, "reason", "motivo", "consult_reason", "consultReason"),
		Reply:   lookupString(body, "reply", "message", "text", "respuesta"),
		Profile: decodeProfileUpdates(body),
	}

	switch kind {
	case ActionOfferSlots:
		action.Slots = decodeSlots(lookupAny(body, "slots", "Slots", "options", "horarios"))
	case ActionConfirmSlot:
		if slot := decodeSlot(lookupAny(body, "slot", "Slot", "horario", "selected_slot", "selectedSlot")); slot != nil {
			action.Slot = slot
		}
	}

	return action, nil
}

func stripCodeFences(raw string) string {
	out := strings.TrimSpace(raw)
	if strings.HasPrefix(out, "```") {
		out = strings.TrimPrefix(out, "```json")
		out = strings.TrimPrefix(out, "```")
		if idx := strings.LastIndex(out, "```"); idx >= 0 {
			out = out[:idx]
		}
	}
	out = strings.TrimSpace(out)
	// Some models wrap the JSON in prose; cut to the outermost object.
	if !strings.HasPrefix(out, "{") {
		start := strings.Index(out, "{")
		end := strings.LastIndex(out, "}")
		if start < 0 || end <= start {
			return ""
		}
		out = out[start : end+1]
	}
	return out
}

func canonicalKind(raw string) ActionKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "offer_slots", "offerslots", "offer", "list_slots", "ofrecer_horarios":
		return ActionOfferSlots
	case "confirm_slot", "confirmslot", "confirm", "book", "confirmar":
		return ActionConfirmSlot
	case "ask_clarification", "askclarification", "clarify", "aclarar":
		return ActionAskClarification
	case "general", "none", "chat", "responder":
		return ActionGeneral
	}
	return ""
}

func decodeSlots(value any) []ProposedSlot {
	list, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]ProposedSlot, 0, len(list))
	for _, item := range list {
		if slot := decodeSlot(item); slot != nil {
			out = append(out, *slot)
		}
	}
	return out
}

func decodeSlot(value any) *ProposedSlot {
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		// A bare string may be an ISO timestamp or a human label.
		if looksLikeISO(v) {
			return &ProposedSlot{ISO: strings.TrimSpace(v)}
		}
		return &ProposedSlot{Label: strings.TrimSpace(v)}
	case map[string]any:
		slot := ProposedSlot{
			ISO:   lookupString(v, "iso", "startIso", "start_iso", "startISO", "dateTimeIso", "date_time_iso", "start", "datetime"),
			Label: lookupString(v, "label", "humanLabel", "human_label", "text", "display"),
		}
		if slot.ISO == "" && slot.Label == "" {
			return nil
		}
		return &slot
	}
	return nil
}

func looksLikeISO(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) >= 10 && s[4] == '-' && s[7] == '-'
}

func decodeProfileUpdates(body map[string]any) ProfileUpdates {
	raw := lookupAny(body, "profileUpdates", "profile_updates", "profile", "updates", "patientUpdates", "patient_updates")
	if raw == nil {
		return ProfileUpdates{}
	}

	fields := map[string]string{}
	switch v := raw.(type) {
	case map[string]any:
		for key, val := range v {
			if s, ok := val.(string); ok {
				fields[strings.ToLower(key)] = s
			}
		}
	case []any:
		// Array-of-{field,value} form.
		for _, item := range v {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name := lookupString(entry, "field", "name", "key")
			value := lookupString(entry, "value", "val")
			if name != "" && value != "" {
				fields[strings.ToLower(name)] = value
			}
		}
	}

	pick := func(names ...string) string {
		for _, n := range names {
			if v, ok := fields[n]; ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	return ProfileUpdates{
		Name:          pick("name", "fullname", "full_name", "nombre"),
		DNI:           pick("dni", "document", "documento"),
		BirthDate:     pick("birthdate", "birth_date", "fechanacimiento", "fecha_nacimiento"),
		Address:       pick("address", "direccion", "domicilio"),
		Insurance:     pick("insurance", "obrasocial", "obra_social", "prepaga"),
		ConsultReason: pick("consultreason", "consult_reason", "reason", "motivo"),
	}
}

func lookupAny(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			return v
		}
	}
	// Case-insensitive second pass.
	for k, v := range m {
		for _, key := range keys {
			if strings.EqualFold(k, key) {
				return v
			}
		}
	}
	return nil
}

func lookupString(m map[string]any, keys ...string) string {
	if v, ok := lookupAny(m, keys...).(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func lookupMap(m map[string]any, keys ...string) map[string]any {
	if v, ok := lookupAny(m, keys...).(map[string]any); ok {
		return v
	}
	return nil
}

func merged(outer, inner map[string]any) map[string]any {
	out := make(map[string]any, len(outer)+len(inner))
	for k, v := range outer {
		out[k] = v
	}
	for k, v := range inner {
		out[k] = v
	}
	return out
}
