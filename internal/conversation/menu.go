package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/fmarconi/consultorio-ai-platform/internal/schedule"
)

const (
	maxMenuDays  = 4
	maxMenuSlots = 5
)

var optionLetters = [...]string{"A", "B", "C", "D", "E", "F"}

// BuildDayMenu turns the distinct days of the free-slot list into lettered
// options the patient can answer by letter, date or weekday name.
func BuildDayMenu(slots []schedule.Slot) []MenuOption {
	seen := make(map[string]bool)
	var opts []MenuOption
	for _, slot := range slots {
		dayISO := slot.Start.Format("2006-01-02")
		if seen[dayISO] {
			continue
		}
		seen[dayISO] = true

		letter := optionLetters[len(opts)]
		label := schedule.FormatDayLabel(slot.Start)
		opts = append(opts, MenuOption{
			ID:    letter,
			Label: label,
			Aliases: []string{
				label,
				schedule.WeekdayName(slot.Start.Weekday()),
				slot.Start.Format("02/01"),
				slot.Start.Format("2/1"),
			},
			DateISO: dayISO,
		})
		if len(opts) == maxMenuDays {
			break
		}
	}
	return opts
}

// BuildSlotMenu letters the slots of one day.
func BuildSlotMenu(slots []schedule.Slot, dayISO string) []MenuOption {
	var opts []MenuOption
	for _, slot := range slots {
		if slot.Start.Format("2006-01-02") != dayISO {
			continue
		}
		letter := optionLetters[len(opts)]
		clock := slot.Start.Format("15:04")
		opts = append(opts, MenuOption{
			ID:       letter,
			Label:    slot.Label,
			Aliases:  []string{slot.Label, clock, strings.TrimPrefix(clock, "0")},
			DateISO:  dayISO,
			StartISO: slot.ISO(),
		})
		if len(opts) == maxMenuSlots {
			break
		}
	}
	return opts
}

// MatchOption resolves the patient's reply against the displayed options by
// letter, position number or alias, ignoring case, accents and punctuation.
func MatchOption(input string, opts []MenuOption) *MenuOption {
	token := normalizeToken(input)
	if token == "" {
		return nil
	}
	token = strings.TrimPrefix(token, "opcion ")

	for i := range opts {
		opt := &opts[i]
		if token == normalizeToken(opt.ID) || token == fmt.Sprintf("%d", i+1) {
			return opt
		}
		if token == normalizeToken(opt.Label) {
			return opt
		}
		for _, alias := range opt.Aliases {
			if token == normalizeToken(alias) {
				return opt
			}
		}
	}
	return nil
}

// RenderOptions formats a lettered option list for a WhatsApp reply.
func RenderOptions(opts []MenuOption) string {
	var b strings.Builder
	for _, opt := range opts {
		fmt.Fprintf(&b, "%s) %s\n", opt.ID, opt.Label)
	}
	return strings.TrimRight(b.String(), "\n")
}

// SlotFromOption rebuilds the schedule slot a menu option points at.
func SlotFromOption(opt MenuOption) (schedule.Slot, error) {
	start, err := time.Parse(time.RFC3339, opt.StartISO)
	if err != nil {
		return schedule.Slot{}, fmt.Errorf("conversation: bad slot option %q: %w", opt.StartISO, err)
	}
	return schedule.Slot{Start: start, Label: opt.Label}, nil
}
