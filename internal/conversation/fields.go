package conversation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

var dniDigitsRE = regexp.MustCompile(`^\d{7,10}$`)

// ParseDNI accepts 7 to 10 digits, tolerating dots and spaces as grouping.
func ParseDNI(text string) (string, bool) {
	cleaned := strings.NewReplacer(".", "", " ", "", "-", "").Replace(strings.TrimSpace(text))
	if !dniDigitsRE.MatchString(cleaned) {
		return "", false
	}
	return cleaned, true
}

var nameWordRE = regexp.MustCompile(`^[a-záéíóúüñ'-]+$`)

// ParseFullName requires at least two alphabetic words and title-cases them.
func ParseFullName(text string) (string, bool) {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(words) < 2 {
		return "", false
	}
	out := make([]string, 0, len(words))
	for _, w := range words {
		if !nameWordRE.MatchString(w) {
			return "", false
		}
		out = append(out, titleCase(w))
	}
	return strings.Join(out, " "), true
}

func titleCase(word string) string {
	runes := []rune(word)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

var birthDateRE = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4})$`)

// ParseBirthDate validates a DD/MM/YYYY date that is not in the future and
// returns it normalized to DD/MM/YYYY.
func ParseBirthDate(text string, now time.Time) (string, bool) {
	m := birthDateRE.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false
	}
	day := atoiSafe(m[1])
	month := atoiSafe(m[2])
	year := atoiSafe(m[3])
	if day < 1 || day > 31 || month < 1 || month > 12 || year < 1900 {
		return "", false
	}
	parsed := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes 31/02 into March; reject anything that rolled over.
	if parsed.Day() != day || int(parsed.Month()) != month || parsed.Year() != year {
		return "", false
	}
	if parsed.After(now) {
		return "", false
	}
	return fmt.Sprintf("%02d/%02d/%04d", day, month, year), true
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

// ParseAddress accepts any free text of at least five characters.
func ParseAddress(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if len([]rune(trimmed)) < 5 {
		return "", false
	}
	return trimmed, true
}

var noInsuranceRE = regexp.MustCompile(`\b(no tengo|sin obra|particular|ninguna|no poseo|nada)\b`)

// NormalizeInsurance maps "no tengo"/"particular" style answers onto the
// canonical no-coverage value and passes anything else through.
func NormalizeInsurance(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}
	if noInsuranceRE.MatchString(normalize(trimmed)) {
		return "Sin obra social", true
	}
	return trimmed, true
}

var painRE = regexp.MustCompile(`me duelen?\s+(?:la |el |los |las )?(.+)`)

// FormatConsultReason tidies a free-text consult reason, rewriting pain
// phrases like "me duele la espalda" into "Dolor de espalda".
func FormatConsultReason(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}
	if m := painRE.FindStringSubmatch(normalize(trimmed)); m != nil {
		subject := strings.TrimRight(strings.TrimSpace(m[1]), ".!")
		if subject != "" {
			return "Dolor de " + subject, true
		}
	}
	runes := []rune(trimmed)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes), true
}
