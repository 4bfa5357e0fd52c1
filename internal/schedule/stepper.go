// Package schedule implements calendar arithmetic for recurring series.
//
// All functions are pure. Dates are treated as calendar days: results are
// normalized to midnight UTC of the input's calendar date.
package schedule

import (
	"time"

	"github.com/Veraticus/recurrent/internal/common"
	"github.com/Veraticus/recurrent/internal/model"
)

const (
	daysPerWeek      = 7
	daysPerFortnight = 14
	semiMonthlyDay   = 15
)

// Day returns t as midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextOccurrence returns the occurrence one cycle after ref.
//
// SEMI_MONTHLY ignores interval. IRREGULAR (and anything unknown) advances a
// single day, which is a conservative placeholder rather than a real schedule.
// Intervals are clamped to [1, freq.MaxInterval()].
func NextOccurrence(ref time.Time, freq model.Frequency, interval int, anchors model.Anchors) time.Time {
	ref = Day(ref)
	interval = clampInterval(freq, interval)

	switch freq {
	case model.FrequencyWeekly:
		return ref.AddDate(0, 0, daysPerWeek*interval)
	case model.FrequencyBiweekly:
		return ref.AddDate(0, 0, daysPerFortnight*interval)
	case model.FrequencySemiMonthly:
		if ref.Day() < semiMonthlyDay {
			return time.Date(ref.Year(), ref.Month(), semiMonthlyDay, 0, 0, 0, 0, time.UTC)
		}
		return time.Date(ref.Year(), ref.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	case model.FrequencyMonthly:
		return addMonths(ref, interval, anchors)
	case model.FrequencyAnnually:
		return addYears(ref, interval, anchors)
	default:
		return ref.AddDate(0, 0, 1)
	}
}

// AdvanceUntil steps from start by whole cycles until the result is on or after
// notBefore. A start already on or after notBefore is returned unchanged.
func AdvanceUntil(start time.Time, freq model.Frequency, interval int, anchors model.Anchors, notBefore time.Time) time.Time {
	current := Day(start)
	target := Day(notBefore)
	if !current.Before(target) {
		return current
	}
	interval = clampInterval(freq, interval)
	anchors = defaultAnchors(freq, current, anchors)

	// Fixed-length cycles jump straight to the last cycle before target.
	if step := fixedStepDays(freq, interval); step > 0 {
		gap := int(target.Sub(current).Hours() / 24)
		if skip := gap / step; skip > 1 {
			current = current.AddDate(0, 0, (skip-1)*step)
		}
	}

	for current.Before(target) {
		next := NextOccurrence(current, freq, interval, anchors)
		if !next.After(current) {
			break
		}
		current = next
	}
	return current
}

// Upcoming lists up to count occurrences starting at next, stopping after until
// when it is set.
func Upcoming(next time.Time, freq model.Frequency, interval int, anchors model.Anchors, count int, until *time.Time) []time.Time {
	if count <= 0 {
		return nil
	}

	current := Day(next)
	anchors = defaultAnchors(freq, current, anchors)

	dates := make([]time.Time, 0, count)
	for len(dates) < count {
		if until != nil && current.After(Day(*until)) {
			break
		}
		dates = append(dates, current)
		following := NextOccurrence(current, freq, interval, anchors)
		if !following.After(current) {
			break
		}
		current = following
	}
	return dates
}

// defaultAnchors pins unanchored monthly and annual series to the reference day,
// so a clamped short month (or Feb 29 in a common year) does not drag later
// occurrences earlier.
func defaultAnchors(freq model.Frequency, ref time.Time, anchors model.Anchors) model.Anchors {
	switch freq {
	case model.FrequencyMonthly:
		if anchors.DayOfMonth == nil && anchors.WeekOfMonth == nil {
			day := ref.Day()
			anchors.DayOfMonth = &day
		}
	case model.FrequencyAnnually:
		if anchors.DayOfMonth == nil {
			day := ref.Day()
			anchors.DayOfMonth = &day
		}
	}
	return anchors
}

func clampInterval(freq model.Frequency, interval int) int {
	if interval < 1 {
		return 1
	}
	return min(interval, freq.MaxInterval())
}

// fixedStepDays returns the cycle length in days for day-based frequencies and 0
// for calendar-based ones.
func fixedStepDays(freq model.Frequency, interval int) int {
	switch freq {
	case model.FrequencyWeekly:
		return daysPerWeek * interval
	case model.FrequencyBiweekly:
		return daysPerFortnight * interval
	case model.FrequencySemiMonthly, model.FrequencyMonthly, model.FrequencyAnnually:
		return 0
	default:
		return 1
	}
}

// addMonths moves ref forward by n months. A WeekOfMonth+DayOfWeek anchor pair
// selects the n-th weekday of the target month; otherwise the anchor day (or the
// reference day) is kept, clamped to the target month's length.
func addMonths(ref time.Time, n int, anchors model.Anchors) time.Time {
	first := time.Date(ref.Year(), ref.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)

	if anchors.WeekOfMonth != nil && anchors.DayOfWeek != nil {
		return nthWeekday(first.Year(), first.Month(), time.Weekday(*anchors.DayOfWeek), *anchors.WeekOfMonth)
	}

	day := ref.Day()
	if anchors.DayOfMonth != nil {
		day = *anchors.DayOfMonth
	}
	return clampDay(first.Year(), first.Month(), day)
}

// addYears moves ref forward by n years. MonthOfYear and DayOfMonth anchors pick
// the date within the target year; Feb 29 maps to Feb 28 in common years.
func addYears(ref time.Time, n int, anchors model.Anchors) time.Time {
	month, day := ref.Month(), ref.Day()
	if anchors.MonthOfYear != nil {
		month = time.Month(*anchors.MonthOfYear)
	}
	if anchors.DayOfMonth != nil {
		day = *anchors.DayOfMonth
	}
	return clampDay(ref.Year()+n, month, day)
}

func clampDay(year int, month time.Month, day int) time.Time {
	if last := DaysIn(year, month); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// nthWeekday returns the week-th weekday of the month; week -1 means the last one.
// A fifth occurrence that does not exist falls back to the last.
func nthWeekday(year int, month time.Month, weekday time.Weekday, week int) time.Time {
	if week == model.LastWeekOfMonth {
		last := time.Date(year, month, DaysIn(year, month), 0, 0, 0, 0, time.UTC)
		back := (int(last.Weekday()) - int(weekday) + daysPerWeek) % daysPerWeek
		return last.AddDate(0, 0, -back)
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(first.Weekday()) + daysPerWeek) % daysPerWeek
	day := 1 + offset + (week-1)*daysPerWeek
	if day > DaysIn(year, month) {
		return nthWeekday(year, month, weekday, model.LastWeekOfMonth)
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ValidateAnchors checks anchor ranges. Out-of-range anchors are validation errors.
func ValidateAnchors(anchors model.Anchors) error {
	if d := anchors.DayOfMonth; d != nil && (*d < 1 || *d > 31) {
		return common.Validationf("day of month %d out of range 1-31", *d)
	}
	if d := anchors.DayOfWeek; d != nil && (*d < 0 || *d > 6) {
		return common.Validationf("day of week %d out of range 0-6", *d)
	}
	if w := anchors.WeekOfMonth; w != nil && *w != model.LastWeekOfMonth && (*w < 1 || *w > 5) {
		return common.Validationf("week of month %d must be 1-5 or -1", *w)
	}
	if m := anchors.MonthOfYear; m != nil && (*m < 1 || *m > 12) {
		return common.Validationf("month of year %d out of range 1-12", *m)
	}
	return nil
}
