package schedule

import (
	"regexp"
	"strconv"
	"strings"
)

// Period is a coarse time-of-day preference.
type Period string

const (
	PeriodNone      Period = ""
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
	PeriodEvening   Period = "evening"
)

// Preference is a parsed, partial description of when a patient wants an
// appointment. A nil *Preference means the message carried no scheduling
// information at all.
type Preference struct {
	// DayOffset is days from today (0=hoy, 1=mañana, 2=pasado mañana).
	DayOffset *int `json:"day_offset,omitempty"`
	// Weekday is 0=Sunday..6=Saturday.
	Weekday *int `json:"weekday,omitempty"`
	// Hour is the requested wall-clock hour, fractional (17.5 = 17:30).
	Hour *float64 `json:"hour,omitempty"`
	// Period is set when only a coarse time of day was given.
	Period Period `json:"period,omitempty"`
}

// Empty reports whether no preference field is set.
func (p *Preference) Empty() bool {
	return p == nil || (p.DayOffset == nil && p.Weekday == nil && p.Hour == nil && p.Period == PeriodNone)
}

// HasExplicitDay reports whether the preference restates a concrete day.
func (p *Preference) HasExplicitDay() bool {
	return p != nil && (p.DayOffset != nil || p.Weekday != nil)
}

var accentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
)

// greetingRE strips courtesy phrases so "buenas tardes" alone does not read
// as an afternoon preference.
var greetingRE = regexp.MustCompile(`\bbuen(?:os|as)?\s+(?:dia|dias|tardes|noches)\b`)

func normalizeText(text string) string {
	norm := accentReplacer.Replace(strings.ToLower(text))
	return greetingRE.ReplaceAllString(norm, " ")
}

var weekdayNames = map[string]int{
	"domingo":   0,
	"lunes":     1,
	"martes":    2,
	"miercoles": 3,
	"jueves":    4,
	"viernes":   5,
	"sabado":    6,
}

// weekdayRE matches the first weekday name mentioned.
var weekdayRE = regexp.MustCompile(`\b(domingo|lunes|martes|miercoles|jueves|viernes|sabado)\b`)

// timeRE matches an explicit time expression like "17", "17:30", "5 pm",
// "17hs". The suffix is optional; 24-hour normalization happens afterwards.
var timeRE = regexp.MustCompile(`\b(\d{1,2})(?::(\d{1,2}))?\s*(am|pm|hs|h|horas)?\b`)

// morningSenseRE detects "mañana" used as time-of-day rather than as
// tomorrow ("por la mañana", "de la mañana", "a la mañana", "esta mañana").
var morningSenseRE = regexp.MustCompile(`\b(?:por|de|a|en)\s+la\s+manana\b|\besta\s+manana\b`)

// ParsePreference extracts a coarse scheduling preference from a raw
// utterance. It returns nil when the text carries no day or time information;
// callers must treat nil as "no information", never as "now".
func ParsePreference(text string) *Preference {
	norm := normalizeText(text)
	if strings.TrimSpace(norm) == "" {
		return nil
	}

	pref := &Preference{}

	// Relative-day markers, most specific first. "mañana" only counts as
	// tomorrow when it is not a time-of-day phrase.
	dayText := morningSenseRE.ReplaceAllString(norm, " ")
	switch {
	case strings.Contains(dayText, "pasado manana"):
		pref.DayOffset = intPtr(2)
	case regexp.MustCompile(`\bmanana\b`).MatchString(dayText):
		pref.DayOffset = intPtr(1)
	case regexp.MustCompile(`\bhoy\b`).MatchString(dayText):
		pref.DayOffset = intPtr(0)
	}

	// Explicit weekday, only when no relative day matched.
	if pref.DayOffset == nil {
		if m := weekdayRE.FindStringSubmatch(norm); m != nil {
			pref.Weekday = intPtr(weekdayNames[m[1]])
		}
	}

	if hour, ok := parseExplicitHour(norm); ok {
		pref.Hour = &hour
	} else if period := parsePeriod(norm); period != PeriodNone {
		pref.Period = period
	}

	if pref.Empty() {
		return nil
	}
	return pref
}

// parseExplicitHour finds a time expression and normalizes it to 24h.
func parseExplicitHour(norm string) (float64, bool) {
	matches := timeRE.FindAllStringSubmatch(norm, -1)
	for _, m := range matches {
		h, err := strconv.Atoi(m[1])
		if err != nil || h > 23 {
			continue
		}
		minutes := 0
		if m[2] != "" {
			minutes, err = strconv.Atoi(m[2])
			if err != nil || minutes > 59 {
				continue
			}
		}
		suffix := m[3]

		// A bare 1-2 digit number with no suffix, no minutes and no "a
		// la(s)" lead-in is too ambiguous to treat as an hour.
		if suffix == "" && m[2] == "" && !hasHourLeadIn(norm, m[1]) {
			continue
		}

		switch suffix {
		case "pm":
			if h < 12 {
				h += 12
			}
		case "am":
			if h == 12 {
				h = 0
			}
		default:
			// "a las 5 de la tarde" / "5hs de la noche": small hours
			// combined with an evening word mean the 24h afternoon value.
			if h <= 6 && (strings.Contains(norm, "tarde") || strings.Contains(norm, "noche")) {
				h += 12
			}
		}
		if h > 23 {
			continue
		}
		return float64(h) + float64(minutes)/60, true
	}
	return 0, false
}

// hasHourLeadIn reports whether the number appears after "a la(s)".
func hasHourLeadIn(norm, hourDigits string) bool {
	re := regexp.MustCompile(`\ba\s+las?\s+` + regexp.QuoteMeta(hourDigits) + `\b`)
	return re.MatchString(norm)
}

func parsePeriod(norm string) Period {
	switch {
	case strings.Contains(norm, "tarde"):
		return PeriodAfternoon
	case strings.Contains(norm, "noche"):
		return PeriodEvening
	case morningSenseRE.MatchString(norm) || strings.Contains(norm, "temprano"):
		return PeriodMorning
	}
	return PeriodNone
}

func intPtr(n int) *int { return &n }
