package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Argentina/Buenos_Aires")
	require.NoError(t, err)
	return loc
}

func slotAt(loc *time.Location, year int, month time.Month, day, hour, minute int) Slot {
	start := time.Date(year, month, day, hour, minute, 0, 0, loc)
	return Slot{Start: start, Label: FormatSlotLabel(start)}
}

func TestScoreMonotonicityExplicitHour(t *testing.T) {
	loc := testLocation(t)
	// Wednesday.
	now := time.Date(2026, time.September, 2, 8, 0, 0, 0, loc)

	seventeen := 17.0
	thursday := 4
	pref := &Preference{Hour: &seventeen, Weekday: &thursday}

	onTime := slotAt(loc, 2026, time.September, 3, 17, 0)    // Thursday 17:00
	sameDayEarly := slotAt(loc, 2026, time.September, 3, 9, 0) // Thursday 09:00
	wrongWeek := slotAt(loc, 2026, time.September, 8, 17, 0)  // Tuesday next week

	s1 := Score(onTime, pref, nil, now, loc)
	s2 := Score(sameDayEarly, pref, nil, now, loc)
	s3 := Score(wrongWeek, pref, nil, now, loc)

	assert.Less(t, s1, s2, "exact hour on preferred day must beat morning slot")
	assert.Less(t, s2, s3, "preferred weekday must beat a non-matching weekday")
}

func TestScoreDayOffset(t *testing.T) {
	loc := testLocation(t)
	now := time.Date(2026, time.September, 2, 8, 0, 0, 0, loc)

	one := 1
	pref := &Preference{DayOffset: &one}

	tomorrow := slotAt(loc, 2026, time.September, 3, 10, 0)
	inThree := slotAt(loc, 2026, time.September, 5, 10, 0)

	assert.Equal(t, 0, Score(tomorrow, pref, nil, now, loc))
	assert.Equal(t, 2*1440, Score(inThree, pref, nil, now, loc))
}

func TestScorePeriodPenalty(t *testing.T) {
	loc := testLocation(t)
	now := time.Date(2026, time.September, 2, 8, 0, 0, 0, loc)
	pref := &Preference{Period: PeriodAfternoon}

	afternoon := slotAt(loc, 2026, time.September, 2, 15, 0)
	morning := slotAt(loc, 2026, time.September, 2, 9, 0)

	assert.Equal(t, 0, Score(afternoon, pref, nil, now, loc))
	assert.Equal(t, periodMismatchPenalty, Score(morning, pref, nil, now, loc))
}

func TestScoreAnchorSticksWithoutExplicitDay(t *testing.T) {
	loc := testLocation(t)
	now := time.Date(2026, time.September, 2, 8, 0, 0, 0, loc)
	anchorDay := time.Date(2026, time.September, 4, 0, 0, 0, 0, loc)

	ten := 10.0
	pref := &Preference{Hour: &ten}

	onAnchor := slotAt(loc, 2026, time.September, 4, 10, 0)
	offAnchor := slotAt(loc, 2026, time.September, 3, 10, 0)

	assert.Less(t,
		Score(onAnchor, pref, &anchorDay, now, loc),
		Score(offAnchor, pref, &anchorDay, now, loc),
		"remembered anchor day must dominate when day not restated")

	// Explicit restatement overrides the remembered anchor.
	one := 1
	restated := &Preference{Hour: &ten, DayOffset: &one}
	assert.Less(t,
		Score(offAnchor, restated, &anchorDay, now, loc),
		Score(onAnchor, restated, &anchorDay, now, loc))
}

func TestRankOrdersAndLimits(t *testing.T) {
	loc := testLocation(t)
	now := time.Date(2026, time.September, 2, 8, 0, 0, 0, loc)

	seventeen := 17.0
	pref := &Preference{Hour: &seventeen}

	slots := []Slot{
		slotAt(loc, 2026, time.September, 2, 9, 0),
		slotAt(loc, 2026, time.September, 2, 17, 0),
		slotAt(loc, 2026, time.September, 2, 16, 30),
		slotAt(loc, 2026, time.September, 2, 11, 0),
	}

	ranked := Rank(slots, pref, nil, now, loc, 3)
	require.Len(t, ranked, 3)
	assert.Equal(t, 17, ranked[0].Slot.Start.Hour())
	assert.Equal(t, 16, ranked[1].Slot.Start.Hour())
	assert.Equal(t, 11, ranked[2].Slot.Start.Hour())
}

func TestWithinConfirmThreshold(t *testing.T) {
	seventeen := 17.0
	explicit := &Preference{Hour: &seventeen}
	coarse := &Preference{Period: PeriodAfternoon}

	assert.True(t, WithinConfirmThreshold(180, explicit))
	assert.False(t, WithinConfirmThreshold(181, explicit))
	assert.True(t, WithinConfirmThreshold(1440, coarse))
	assert.False(t, WithinConfirmThreshold(1441, coarse))
	assert.False(t, WithinConfirmThreshold(0, nil))
}

func TestBestMatchEmpty(t *testing.T) {
	loc := testLocation(t)
	_, _, ok := BestMatch(nil, &Preference{}, nil, time.Now(), loc)
	assert.False(t, ok)
}
