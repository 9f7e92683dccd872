package messaging

import "strings"

// NormalizeE164 turns a WhatsApp wa_id or a user-entered phone into the +E.164
// form that keys the patient record. Bare local Argentine numbers get the
// 54 9 mobile prefix, since every inbound WhatsApp contact is a mobile line.
func NormalizeE164(value string) string {
	digits := sanitizePhone(value)
	if digits == "" {
		return ""
	}
	// International dialing prefix written out instead of +.
	digits = strings.TrimPrefix(digits, "00")
	switch {
	case strings.HasPrefix(digits, "549"):
		return "+" + digits
	case strings.HasPrefix(digits, "54"):
		// Argentine number missing the mobile 9 marker.
		return "+549" + digits[2:]
	case len(digits) >= 11:
		// Already carries some other country code.
		return "+" + digits
	case len(digits) == 10:
		// Local area code + number, e.g. 11 3000 1111.
		return "+549" + digits
	default:
		return "+" + digits
	}
}

func sanitizePhone(value string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
