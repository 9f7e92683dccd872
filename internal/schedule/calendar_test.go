package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) CalendarConfig {
	t.Helper()
	cfg, err := ParseCalendarConfig("1,2,3,4,5", "09:00-12:00,15:00-18:00", 30, "America/Argentina/Buenos_Aires")
	require.NoError(t, err)
	return cfg
}

func TestParseCalendarConfig(t *testing.T) {
	cfg := testConfig(t)
	assert.True(t, cfg.OfficeDays[time.Monday])
	assert.False(t, cfg.OfficeDays[time.Sunday])
	require.Len(t, cfg.Windows, 2)
	assert.Equal(t, 9*60, cfg.Windows[0].StartMinute)
	assert.Equal(t, 18*60, cfg.Windows[1].EndMinute)
	assert.NotNil(t, cfg.Location)
}

func TestParseCalendarConfigRejectsBadInput(t *testing.T) {
	_, err := ParseCalendarConfig("1,2", "09:00-12:00", 45, "America/Argentina/Buenos_Aires")
	assert.Error(t, err, "slot granularity must be 15/30/60/120")

	_, err = ParseCalendarConfig("", "09:00-12:00", 30, "America/Argentina/Buenos_Aires")
	assert.Error(t, err, "at least one office day required")

	_, err = ParseCalendarConfig("1", "12:00-09:00", 30, "America/Argentina/Buenos_Aires")
	assert.Error(t, err, "window must end after it starts")

	_, err = ParseCalendarConfig("1", "09:00-12:00", 30, "Not/AZone")
	assert.Error(t, err)
}

func TestFreeSlotsRespectsCalendar(t *testing.T) {
	cfg := testConfig(t)
	cal := NewCalendar(cfg)

	// Friday 2026-09-04 08:00 local.
	now := time.Date(2026, time.September, 4, 8, 0, 0, 0, cfg.Location)
	slots := cal.FreeSlots(now, 4, nil)
	require.NotEmpty(t, slots)

	for i, s := range slots {
		local := s.Start.In(cfg.Location)
		assert.True(t, cfg.OfficeDays[local.Weekday()], "slot on non-office day: %s", s.Label)
		assert.True(t, s.Start.After(now))
		minute := local.Hour()*60 + local.Minute()
		inWindow := false
		for _, w := range cfg.Windows {
			if minute >= w.StartMinute && minute+cfg.SlotMinutes <= w.EndMinute {
				inWindow = true
			}
		}
		assert.True(t, inWindow, "slot outside office hours: %s", s.Label)
		if i > 0 {
			assert.True(t, slots[i-1].Start.Before(s.Start), "slots must be ordered")
		}
	}

	// Friday itself plus Monday; Saturday/Sunday skipped.
	daysSeen := map[time.Weekday]bool{}
	for _, s := range slots {
		daysSeen[s.Start.In(cfg.Location).Weekday()] = true
	}
	assert.True(t, daysSeen[time.Friday])
	assert.True(t, daysSeen[time.Monday])
	assert.False(t, daysSeen[time.Saturday])
	assert.False(t, daysSeen[time.Sunday])
}

func TestFreeSlotsExcludesTaken(t *testing.T) {
	cfg := testConfig(t)
	cal := NewCalendar(cfg)
	now := time.Date(2026, time.September, 4, 8, 0, 0, 0, cfg.Location)

	taken := time.Date(2026, time.September, 4, 9, 30, 0, 0, cfg.Location)
	slots := cal.FreeSlots(now, 1, []time.Time{taken.UTC()})
	for _, s := range slots {
		assert.False(t, s.Start.Equal(taken), "taken slot must not be offered")
	}
}

func TestFreeSlotsSkipsPastTimes(t *testing.T) {
	cfg := testConfig(t)
	cal := NewCalendar(cfg)

	// Mid-morning: the 09:00 and 09:30 slots are already gone.
	now := time.Date(2026, time.September, 4, 10, 5, 0, 0, cfg.Location)
	slots := cal.FreeSlots(now, 1, nil)
	require.NotEmpty(t, slots)
	first := slots[0].Start.In(cfg.Location)
	assert.Equal(t, 10, first.Hour())
	assert.Equal(t, 30, first.Minute())
}

func TestFormatSlotLabel(t *testing.T) {
	cfg := testConfig(t)
	start := time.Date(2026, time.September, 7, 15, 30, 0, 0, cfg.Location)
	assert.Equal(t, "lunes 07/09 15:30", FormatSlotLabel(start))
	assert.Equal(t, "lunes 07/09", FormatDayLabel(start))
}
