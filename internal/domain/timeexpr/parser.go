// Package timeexpr turns free-form, timezone-relative time expressions into
// absolute fire instants and recurrence rules.
//
// Parsing is pure: the caller supplies the reference instant and the owner's
// timezone, and no state is created on failure. Relative expressions
// ("in 30 minutes") are computed from the reference instant and are never
// timezone-sensitive; everything else is resolved against the owner's local
// calendar and converted to UTC for the next qualifying occurrence strictly
// after the reference instant.
package timeexpr

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"reminder_assistant_bot/internal/domain/reminder"
)

var (
	// ErrUnrecognized means no grammar rule matched the input.
	ErrUnrecognized = errors.New("time expression not recognized")
	// ErrPastInstant means the expression resolved to an instant that is not
	// strictly in the future.
	ErrPastInstant = errors.New("time expression resolves to a past instant")
)

// Result is the parser's output: the first fire instant (UTC) and the
// recurrence rule (reminder.None() for one-time expressions).
type Result struct {
	FireAt     time.Time
	Recurrence reminder.Recurrence
}

const clockPat = `(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`

var (
	reRelative    = regexp.MustCompile(`^in\s+(\d+)\s+(minute|minutes|hour|hours|day|days)$`)
	reInterval    = regexp.MustCompile(`^every\s+(\d+)\s+(minute|minutes|hour|hours|day|days)$`)
	reDaily       = regexp.MustCompile(`^every\s+day\s+at\s+` + clockPat + `$`)
	reWeekly      = regexp.MustCompile(`^every\s+((?:mon|tues|wednes|thurs|fri|satur|sun)day(?:(?:,\s*|\s+and\s+)(?:mon|tues|wednes|thurs|fri|satur|sun)day)*)\s+at\s+` + clockPat + `$`)
	reMonthly     = regexp.MustCompile(`^every\s+month\s+on\s+(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)?\s+at\s+` + clockPat + `$`)
	reStandard    = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})\s+at\s+` + clockPat + `$`)
	reAbsolute    = regexp.MustCompile(`^(?:at\s+)?(\d{1,2}):(\d{2})\s*(am|pm)?(?:\s+(today|tomorrow))?$`)
	reAbsoluteNoM = regexp.MustCompile(`^(?:at\s+)?(\d{1,2})\s*(am|pm)(?:\s+(today|tomorrow))?$`)
	reNatural     = regexp.MustCompile(`^(tomorrow|next\s+\w+)\s+at\s+` + clockPat + `$`)
	reDateOnly    = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`)
	reDayOnly     = regexp.MustCompile(`^(tomorrow|next\s+\w+)$`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// defaultHour is the time of day used for date-only expressions.
const defaultHour = 9

// Parse resolves text against the reference instant and location.
func Parse(text string, ref time.Time, loc *time.Location) (Result, error) {
	expr := strings.ToLower(strings.TrimSpace(text))
	expr = strings.Join(strings.Fields(expr), " ")
	if expr == "" {
		return Result{}, ErrUnrecognized
	}
	now := ref.In(loc)

	if m := reRelative.FindStringSubmatch(expr); m != nil {
		d, err := unitDuration(m[1], m[2])
		if err != nil {
			return Result{}, err
		}
		return Result{FireAt: ref.Add(d).UTC(), Recurrence: reminder.None()}, nil
	}

	if m := reInterval.FindStringSubmatch(expr); m != nil {
		d, err := unitDuration(m[1], m[2])
		if err != nil {
			return Result{}, err
		}
		rec := reminder.Interval(d)
		return Result{FireAt: rec.NextAfter(ref, loc), Recurrence: rec}, nil
	}

	if m := reDaily.FindStringSubmatch(expr); m != nil {
		hour, minute, err := clock(m[1], m[2], m[3])
		if err != nil {
			return Result{}, err
		}
		rec := reminder.Daily(hour, minute)
		return Result{FireAt: rec.NextAfter(ref, loc), Recurrence: rec}, nil
	}

	if m := reWeekly.FindStringSubmatch(expr); m != nil {
		mask, err := weekdayMask(m[1])
		if err != nil {
			return Result{}, err
		}
		hour, minute, err := clock(m[2], m[3], m[4])
		if err != nil {
			return Result{}, err
		}
		rec := reminder.WeeklyOn(mask, hour, minute)
		return Result{FireAt: rec.NextAfter(ref, loc), Recurrence: rec}, nil
	}

	if m := reMonthly.FindStringSubmatch(expr); m != nil {
		day, _ := strconv.Atoi(m[1])
		if day < 1 || day > 31 {
			return Result{}, ErrUnrecognized
		}
		hour, minute, err := clock(m[2], m[3], m[4])
		if err != nil {
			return Result{}, err
		}
		rec := reminder.MonthlyOn(day, hour, minute)
		return Result{FireAt: rec.NextAfter(ref, loc), Recurrence: rec}, nil
	}

	if m := reStandard.FindStringSubmatch(expr); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		hour, minute, err := clock(m[4], m[5], m[6])
		if err != nil {
			return Result{}, err
		}
		at, err := calendarDate(year, month, day, hour, minute, loc)
		if err != nil {
			return Result{}, err
		}
		return oneTime(at, ref)
	}

	if m := reAbsolute.FindStringSubmatch(expr); m != nil {
		return parseAbsolute(m[1], m[2], m[3], m[4], now, ref, loc)
	}
	if m := reAbsoluteNoM.FindStringSubmatch(expr); m != nil {
		return parseAbsolute(m[1], "", m[2], m[3], now, ref, loc)
	}

	if m := reNatural.FindStringSubmatch(expr); m != nil {
		hour, minute, err := clock(m[2], m[3], m[4])
		if err != nil {
			return Result{}, err
		}
		day, err := naturalDay(m[1], now)
		if err != nil {
			return Result{}, err
		}
		at := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
		return oneTime(at, ref)
	}

	if m := reDateOnly.FindStringSubmatch(expr); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		at, err := calendarDate(year, month, day, defaultHour, 0, loc)
		if err != nil {
			return Result{}, err
		}
		return oneTime(at, ref)
	}

	if m := reDayOnly.FindStringSubmatch(expr); m != nil {
		day, err := naturalDay(m[1], now)
		if err != nil {
			return Result{}, err
		}
		at := time.Date(day.Year(), day.Month(), day.Day(), defaultHour, 0, 0, 0, loc)
		return oneTime(at, ref)
	}

	return Result{}, ErrUnrecognized
}

func oneTime(at, ref time.Time) (Result, error) {
	if !at.After(ref) {
		return Result{}, ErrPastInstant
	}
	return Result{FireAt: at.UTC(), Recurrence: reminder.None()}, nil
}

// parseAbsolute handles "14:30", "2:30 pm tomorrow", "at 9am". With no day
// qualifier an elapsed time rolls over to tomorrow, never to the past.
func parseAbsolute(h, m, ampm, day string, now, ref time.Time, loc *time.Location) (Result, error) {
	hour, minute, err := clock(h, m, ampm)
	if err != nil {
		return Result{}, err
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
	switch day {
	case "tomorrow":
		at = at.AddDate(0, 0, 1)
	case "today":
		// keep as resolved; a past instant is an error below
	default:
		if !at.After(ref) {
			at = at.AddDate(0, 0, 1)
		}
	}
	return oneTime(at, ref)
}

func naturalDay(phrase string, now time.Time) (time.Time, error) {
	if phrase == "tomorrow" {
		return now.AddDate(0, 0, 1), nil
	}
	name := strings.TrimSpace(strings.TrimPrefix(phrase, "next"))
	target, ok := weekdays[name]
	if !ok {
		return time.Time{}, ErrUnrecognized
	}
	ahead := (int(target) - int(now.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7 // "next monday" on a Monday means next week's
	}
	return now.AddDate(0, 0, ahead), nil
}

func weekdayMask(list string) (uint8, error) {
	list = strings.ReplaceAll(list, " and ", ",")
	var mask uint8
	for _, part := range strings.Split(list, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		w, ok := weekdays[name]
		if !ok {
			return 0, ErrUnrecognized
		}
		mask |= reminder.WeekdayBit(w)
	}
	if mask == 0 {
		return 0, ErrUnrecognized
	}
	return mask, nil
}

func clock(h, m, ampm string) (hour int, minute int, err error) {
	hour, err = strconv.Atoi(h)
	if err != nil {
		return 0, 0, ErrUnrecognized
	}
	if m != "" {
		minute, err = strconv.Atoi(m)
		if err != nil || minute > 59 {
			return 0, 0, ErrUnrecognized
		}
	}
	switch ampm {
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, 0, ErrUnrecognized
		}
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour < 1 || hour > 12 {
			return 0, 0, ErrUnrecognized
		}
		if hour == 12 {
			hour = 0
		}
	default:
		if hour > 23 {
			return 0, 0, ErrUnrecognized
		}
	}
	return hour, minute, nil
}

func unitDuration(count, unit string) (time.Duration, error) {
	n, err := strconv.Atoi(count)
	if err != nil || n <= 0 {
		return 0, ErrUnrecognized
	}
	switch {
	case strings.HasPrefix(unit, "minute"):
		return time.Duration(n) * time.Minute, nil
	case strings.HasPrefix(unit, "hour"):
		return time.Duration(n) * time.Hour, nil
	case strings.HasPrefix(unit, "day"):
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return 0, ErrUnrecognized
}

// calendarDate builds a local calendar instant, rejecting impossible dates
// (time.Date would silently normalize "31-02-2025" into March).
func calendarDate(year, month, day, hour, minute int, loc *time.Location) (time.Time, error) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, ErrUnrecognized
	}
	at := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	if at.Day() != day || at.Month() != time.Month(month) {
		return time.Time{}, fmt.Errorf("%w: no such date", ErrUnrecognized)
	}
	return at, nil
}
