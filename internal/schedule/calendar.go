package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Slot is a single bookable time point. Slots are never persisted; they are
// recomputed from the calendar on every turn.
type Slot struct {
	Start time.Time `json:"start"`
	Label string    `json:"label"`
}

// ISO returns the slot start formatted as RFC3339 in its own location.
func (s Slot) ISO() string {
	return s.Start.Format(time.RFC3339)
}

// HourWindow is an office-hours range expressed in minutes from midnight.
type HourWindow struct {
	StartMinute int
	EndMinute   int
}

// CalendarConfig describes the provider's working calendar.
type CalendarConfig struct {
	OfficeDays  map[time.Weekday]bool
	Windows     []HourWindow
	SlotMinutes int
	Timezone    string
	Location    *time.Location
}

var validGranularities = map[int]bool{15: true, 30: true, 60: true, 120: true}

// ParseCalendarConfig builds a CalendarConfig from the raw configuration
// strings: daysCSV is comma-separated weekday numbers (0=Sunday) and hoursCSV
// is comma-separated HH:MM-HH:MM windows.
func ParseCalendarConfig(daysCSV, hoursCSV string, slotMinutes int, timezone string) (CalendarConfig, error) {
	if !validGranularities[slotMinutes] {
		return CalendarConfig{}, fmt.Errorf("schedule: invalid slot granularity %d (want 15, 30, 60 or 120)", slotMinutes)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return CalendarConfig{}, fmt.Errorf("schedule: invalid timezone %q: %w", timezone, err)
	}

	days := make(map[time.Weekday]bool)
	for _, part := range strings.Split(daysCSV, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 6 {
			return CalendarConfig{}, fmt.Errorf("schedule: invalid office day %q", part)
		}
		days[time.Weekday(n)] = true
	}
	if len(days) == 0 {
		return CalendarConfig{}, fmt.Errorf("schedule: no office days configured")
	}

	var windows []HourWindow
	for _, part := range strings.Split(hoursCSV, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.SplitN(part, "-", 2)
		if len(bounds) != 2 {
			return CalendarConfig{}, fmt.Errorf("schedule: invalid office hours window %q", part)
		}
		start, err := parseClockMinutes(bounds[0])
		if err != nil {
			return CalendarConfig{}, err
		}
		end, err := parseClockMinutes(bounds[1])
		if err != nil {
			return CalendarConfig{}, err
		}
		if end <= start {
			return CalendarConfig{}, fmt.Errorf("schedule: window %q ends before it starts", part)
		}
		windows = append(windows, HourWindow{StartMinute: start, EndMinute: end})
	}
	if len(windows) == 0 {
		return CalendarConfig{}, fmt.Errorf("schedule: no office hours configured")
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].StartMinute < windows[j].StartMinute })

	return CalendarConfig{
		OfficeDays:  days,
		Windows:     windows,
		SlotMinutes: slotMinutes,
		Timezone:    timezone,
		Location:    loc,
	}, nil
}

func parseClockMinutes(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.SplitN(raw, ":", 2)
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("schedule: invalid clock value %q", raw)
	}
	m := 0
	if len(parts) == 2 {
		m, err = strconv.Atoi(parts[1])
		if err != nil || m < 0 || m > 59 {
			return 0, fmt.Errorf("schedule: invalid clock value %q", raw)
		}
	}
	return h*60 + m, nil
}

// Calendar computes free slots from the provider calendar and the set of
// already-taken datetimes.
type Calendar struct {
	cfg CalendarConfig
}

// NewCalendar creates a Calendar for the given configuration.
func NewCalendar(cfg CalendarConfig) *Calendar {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Calendar{cfg: cfg}
}

// Config returns the underlying calendar configuration.
func (c *Calendar) Config() CalendarConfig {
	return c.cfg
}

// Location returns the provider timezone location.
func (c *Calendar) Location() *time.Location {
	return c.cfg.Location
}

// FreeSlots returns the ordered free slots for the next horizonDays days,
// strictly after now, excluding every datetime present in taken. taken values
// may be in any location; comparison is instant-based.
func (c *Calendar) FreeSlots(now time.Time, horizonDays int, taken []time.Time) []Slot {
	if horizonDays <= 0 {
		horizonDays = 14
	}

	blocked := make(map[int64]bool, len(taken))
	for _, t := range taken {
		blocked[t.Unix()] = true
	}

	local := now.In(c.cfg.Location)
	var slots []Slot
	for day := 0; day < horizonDays; day++ {
		date := local.AddDate(0, 0, day)
		if !c.cfg.OfficeDays[date.Weekday()] {
			continue
		}
		midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, c.cfg.Location)
		for _, w := range c.cfg.Windows {
			for minute := w.StartMinute; minute+c.cfg.SlotMinutes <= w.EndMinute; minute += c.cfg.SlotMinutes {
				start := midnight.Add(time.Duration(minute) * time.Minute)
				if !start.After(now) {
					continue
				}
				if blocked[start.Unix()] {
					continue
				}
				slots = append(slots, Slot{Start: start, Label: FormatSlotLabel(start)})
			}
		}
	}
	return slots
}

var spanishWeekdays = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}

// WeekdayName returns the Spanish name for a weekday.
func WeekdayName(d time.Weekday) string {
	return spanishWeekdays[int(d)]
}

// FormatSlotLabel renders a slot start as the patient-facing label, e.g.
// "lunes 02/03 10:30".
func FormatSlotLabel(t time.Time) string {
	return fmt.Sprintf("%s %02d/%02d %02d:%02d", WeekdayName(t.Weekday()), t.Day(), int(t.Month()), t.Hour(), t.Minute())
}

// FormatDayLabel renders a calendar day, e.g. "lunes 02/03".
func FormatDayLabel(t time.Time) string {
	return fmt.Sprintf("%s %02d/%02d", WeekdayName(t.Weekday()), t.Day(), int(t.Month()))
}
