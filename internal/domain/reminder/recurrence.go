package reminder

import (
	"time"
)

// RecurrenceKind discriminates the closed set of recurrence rules.
type RecurrenceKind string

const (
	RecurrenceNone      RecurrenceKind = "NONE"       // fire once, then complete
	RecurrenceInterval  RecurrenceKind = "INTERVAL"   // fixed duration between fires
	RecurrenceWeeklyOn  RecurrenceKind = "WEEKLY_ON"  // set of weekdays at a local time of day
	RecurrenceMonthlyOn RecurrenceKind = "MONTHLY_ON" // day of month at a local time of day
)

// Recurrence is a closed tagged variant describing how a reminder repeats.
// Wall-clock rules (WeeklyOn, MonthlyOn) store a local time of day, never a
// UTC offset, so each recompute re-derives the instant from the owner's
// calendar and survives daylight-saving shifts. A daily rule is WeeklyOn with
// all seven weekdays.
type Recurrence struct {
	Kind RecurrenceKind

	// Interval fields.
	Every time.Duration

	// WeeklyOn fields. Weekdays is a bitmask indexed by time.Weekday
	// (bit 0 = Sunday).
	Weekdays uint8

	// MonthlyOn fields. Days past the end of a month clamp to its last day.
	Day int

	// Local time of day shared by WeeklyOn and MonthlyOn.
	Hour   int
	Minute int
}

// None is the zero recurrence: fire once.
func None() Recurrence { return Recurrence{Kind: RecurrenceNone} }

// Interval repeats every d. Timezone-insensitive.
func Interval(d time.Duration) Recurrence {
	return Recurrence{Kind: RecurrenceInterval, Every: d}
}

// WeeklyOn repeats on the given weekdays at hour:minute local time.
func WeeklyOn(weekdays uint8, hour, minute int) Recurrence {
	return Recurrence{Kind: RecurrenceWeeklyOn, Weekdays: weekdays, Hour: hour, Minute: minute}
}

// Daily repeats every day at hour:minute local time.
func Daily(hour, minute int) Recurrence {
	return WeeklyOn(AllWeekdays, hour, minute)
}

// MonthlyOn repeats on the given day of month at hour:minute local time.
func MonthlyOn(day, hour, minute int) Recurrence {
	return Recurrence{Kind: RecurrenceMonthlyOn, Day: day, Hour: hour, Minute: minute}
}

// AllWeekdays has every weekday bit set.
const AllWeekdays uint8 = 0x7F

// WeekdayBit returns the bitmask bit for w.
func WeekdayBit(w time.Weekday) uint8 { return 1 << uint(w) }

// OnWeekday reports whether the rule includes w.
func (rec Recurrence) OnWeekday(w time.Weekday) bool {
	return rec.Weekdays&WeekdayBit(w) != 0
}

// IsRecurring reports whether the reminder re-schedules after firing.
func (rec Recurrence) IsRecurring() bool { return rec.Kind != RecurrenceNone }

// NextAfter computes the first instant strictly after the given instant at
// which the rule fires, evaluated against loc's local calendar. Instants that
// have already elapsed are never returned, regardless of how far in the past
// 'after' falls relative to the rule's nominal grid; this is what collapses
// any backlog of missed occurrences into a single future one.
//
// Returns the zero time for RecurrenceNone.
func (rec Recurrence) NextAfter(after time.Time, loc *time.Location) time.Time {
	switch rec.Kind {
	case RecurrenceInterval:
		return after.Add(rec.Every)

	case RecurrenceWeeklyOn:
		local := after.In(loc)
		// Scan at most eight days: today's occurrence may still be ahead,
		// and any weekday set repeats within seven days after that.
		for i := 0; i <= 7; i++ {
			day := local.AddDate(0, 0, i)
			if !rec.OnWeekday(day.Weekday()) {
				continue
			}
			candidate := time.Date(day.Year(), day.Month(), day.Day(), rec.Hour, rec.Minute, 0, 0, loc)
			if candidate.After(after) {
				return candidate.UTC()
			}
		}
		return time.Time{} // unreachable for a non-empty weekday set

	case RecurrenceMonthlyOn:
		local := after.In(loc)
		for i := 0; i <= 2; i++ {
			year, month := local.Year(), local.Month()+time.Month(i)
			day := rec.Day
			if last := lastDayOfMonth(year, month); day > last {
				day = last
			}
			candidate := time.Date(year, month, day, rec.Hour, rec.Minute, 0, 0, loc)
			if candidate.After(after) {
				return candidate.UTC()
			}
		}
		return time.Time{}

	default:
		return time.Time{}
	}
}

func lastDayOfMonth(year int, month time.Month) int {
	// Day 0 of the following month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
