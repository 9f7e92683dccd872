package conversation

import (
	"regexp"
	"strings"
)

var textAccentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ü", "u", "Ñ", "n",
)

// normalize lowercases, strips accents and collapses whitespace so keyword
// checks and menu matching ignore how the patient typed the answer.
func normalize(text string) string {
	out := textAccentReplacer.Replace(strings.ToLower(text))
	return strings.Join(strings.Fields(out), " ")
}

var nonAlnumRE = regexp.MustCompile(`[^a-z0-9 ]+`)

// normalizeToken additionally drops punctuation, for option matching where
// "opción B." must equal "opcion b".
func normalizeToken(text string) string {
	out := nonAlnumRE.ReplaceAllString(normalize(text), "")
	return strings.Join(strings.Fields(out), " ")
}

// QuickIntent is a high-level action the patient can jump to from anywhere
// mid-flow via an explicit keyword.
type QuickIntent string

const (
	IntentNone       QuickIntent = ""
	IntentMenu       QuickIntent = "menu"
	IntentBook       QuickIntent = "book"
	IntentReschedule QuickIntent = "reschedule"
	IntentCancel     QuickIntent = "cancel"
)

var (
	menuIntentRE       = regexp.MustCompile(`\b(menu|inicio|volver|empezar de nuevo)\b`)
	rescheduleIntentRE = regexp.MustCompile(`\b(reprogramar|reagendar|cambiar (el |mi )?turno|mover (el |mi )?turno|cambiar (el |mi )?horario)\b`)
	cancelIntentRE     = regexp.MustCompile(`\b(cancelar|anular|dar de baja)\b`)
	bookIntentRE       = regexp.MustCompile(`\b(sacar (un )?turno|pedir (un )?turno|nuevo turno|reservar|agendar)\b`)
)

// DetectQuickIntent scans for explicit flow keywords. Reschedule is checked
// before cancel: "cambiar el turno" must not be eaten by "turno".
func DetectQuickIntent(text string) QuickIntent {
	norm := normalize(text)
	switch {
	case menuIntentRE.MatchString(norm):
		return IntentMenu
	case rescheduleIntentRE.MatchString(norm):
		return IntentReschedule
	case cancelIntentRE.MatchString(norm):
		return IntentCancel
	case bookIntentRE.MatchString(norm):
		return IntentBook
	}
	return IntentNone
}

var ackRE = regexp.MustCompile(`^(gracias|muchas gracias|mil gracias|ok|oka|okey|dale|listo|perfecto|genial|barbaro|buenisimo|joya|de nada|igualmente)[.! ]*$`)

// IsAcknowledgement reports a courtesy closer with no actionable content.
func IsAcknowledgement(text string) bool {
	norm := normalize(text)
	if norm == "" {
		return false
	}
	if strings.HasPrefix(norm, "👍") || strings.Contains(text, "👍") {
		return true
	}
	return ackRE.MatchString(norm)
}

var greetingRE = regexp.MustCompile(`^(hola|buenas tardes|buenas noches|buen dia|buenos dias|buenas|que tal|como estas|como andas|hey|hello)[,.! ]*`)

// IsGreeting reports a salutation with no scheduling keywords attached.
func IsGreeting(text string) bool {
	norm := normalize(text)
	if !greetingRE.MatchString(norm) {
		return false
	}
	rest := strings.TrimSpace(greetingRE.ReplaceAllString(norm, ""))
	return rest == "" || greetingRE.MatchString(rest) && strings.TrimSpace(greetingRE.ReplaceAllString(rest, "")) == ""
}

var questionKeywordRE = regexp.MustCompile(`\b(precio|precios|cuanto sale|cuanto cuesta|cuanto cobra|valor|horario|horarios|atiende|direccion|donde queda|donde esta|como llego|ubicacion|telefono|especialidad|especialista|obra social|obras sociales|prepaga|cobertura|acepta)\b`)

// LooksLikeQuestion reports an informational question that should go to the
// assistant instead of the deterministic flow. Menu selection tokens are
// excluded: "B?" is still a menu answer.
func LooksLikeQuestion(text string) bool {
	if IsMenuToken(text) {
		return false
	}
	norm := normalize(text)
	return strings.Contains(text, "?") || questionKeywordRE.MatchString(norm)
}

var menuTokenRE = regexp.MustCompile(`^(?:opcion\s+)?([a-f]|[1-6])$`)

// IsMenuToken reports a bare option selection such as "A", "opción B" or "3".
func IsMenuToken(text string) bool {
	return menuTokenRE.MatchString(normalizeToken(text))
}

var (
	affirmativeRE = regexp.MustCompile(`^(si|sii+|sip|dale|dale ese|ese|esa|confirmo|confirmar|claro|obvio|ok|okey|listo|perfecto|de acuerdo|me sirve|esta bien|bueno)[.! ]*$`)
	negativeRE    = regexp.MustCompile(`^(no|nop|mejor no|no gracias|otro|otra|otro horario|otro dia|cambiar|ninguno|ninguna)[.! ]*$`)
)

// IsAffirmative reports an explicit yes.
func IsAffirmative(text string) bool {
	return affirmativeRE.MatchString(normalize(text))
}

// IsNegative reports an explicit no or a request for a different option.
func IsNegative(text string) bool {
	return negativeRE.MatchString(normalize(text))
}
