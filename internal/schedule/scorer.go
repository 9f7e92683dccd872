package schedule

import (
	"sort"
	"time"
)

// Scoring penalties. Lower score = better match. All penalties are additive
// across independently-set preference fields.
const (
	dayOffsetPenaltyPerDay = 1440
	weekdayPenaltyPerStep  = 720
	periodMismatchPenalty  = 360
	anchorPenaltyPerDay    = 2880

	// ConfirmMaxScoreExplicitHour is the acceptance threshold for treating a
	// scored match as the slot the patient meant when an explicit hour was
	// given.
	ConfirmMaxScoreExplicitHour = 180
	// ConfirmMaxScoreCoarse requires a same-day match when only a coarse
	// preference exists.
	ConfirmMaxScoreCoarse = 1440
)

// ScoredSlot pairs a slot with its distance from a preference.
type ScoredSlot struct {
	Slot  Slot
	Score int
}

// Score computes the non-negative distance between a slot and a preference.
// anchor, when non-nil and when the preference does not explicitly restate a
// day, pulls the ranking toward a previously established day focus.
func Score(slot Slot, pref *Preference, anchor *time.Time, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	local := slot.Start.In(loc)
	score := 0

	if pref != nil {
		if pref.DayOffset != nil {
			delta := calendarDays(now.In(loc), local)
			score += abs(delta-*pref.DayOffset) * dayOffsetPenaltyPerDay
		}
		if pref.Weekday != nil {
			d := abs(int(local.Weekday()) - *pref.Weekday)
			if 7-d < d {
				d = 7 - d
			}
			score += d * weekdayPenaltyPerStep
		}
		if pref.Hour != nil {
			slotMinutes := local.Hour()*60 + local.Minute()
			prefMinutes := int(*pref.Hour * 60)
			score += abs(slotMinutes - prefMinutes)
		} else if pref.Period != PeriodNone && !inPeriod(local.Hour(), pref.Period) {
			score += periodMismatchPenalty
		}
	}

	// A remembered day anchor sticks across turns unless the preference
	// explicitly restates a day.
	if anchor != nil && !pref.HasExplicitDay() {
		score += abs(calendarDays(anchor.In(loc), local)) * anchorPenaltyPerDay
	}

	return score
}

// Rank sorts slots by ascending score (ties by time) and returns at most
// limit entries.
func Rank(slots []Slot, pref *Preference, anchor *time.Time, now time.Time, loc *time.Location, limit int) []ScoredSlot {
	scored := make([]ScoredSlot, 0, len(slots))
	for _, s := range slots {
		scored = append(scored, ScoredSlot{Slot: s, Score: Score(s, pref, anchor, now, loc)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score < scored[j].Score
		}
		return scored[i].Slot.Start.Before(scored[j].Slot.Start)
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// BestMatch returns the lowest-scoring slot, or ok=false when slots is empty.
func BestMatch(slots []Slot, pref *Preference, anchor *time.Time, now time.Time, loc *time.Location) (Slot, int, bool) {
	ranked := Rank(slots, pref, anchor, now, loc, 1)
	if len(ranked) == 0 {
		return Slot{}, 0, false
	}
	return ranked[0].Slot, ranked[0].Score, true
}

// WithinConfirmThreshold reports whether a score is tight enough to treat the
// matched slot as the one the patient meant, rather than merely an offer.
func WithinConfirmThreshold(score int, pref *Preference) bool {
	if pref == nil {
		return false
	}
	if pref.Hour != nil {
		return score <= ConfirmMaxScoreExplicitHour
	}
	return score <= ConfirmMaxScoreCoarse
}

// inPeriod checks a wall-clock hour against the coarse period windows:
// morning 6-12, afternoon 12-18, evening 18-23.
func inPeriod(hour int, p Period) bool {
	switch p {
	case PeriodMorning:
		return hour >= 6 && hour < 12
	case PeriodAfternoon:
		return hour >= 12 && hour < 18
	case PeriodEvening:
		return hour >= 18 && hour <= 23
	}
	return true
}

// calendarDays returns the whole-day difference between two local times.
func calendarDays(from, to time.Time) int {
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location())
	return int(toDay.Sub(fromDay).Hours() / 24)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
