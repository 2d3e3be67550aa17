/*
arithmetic.go - Hour conversion and notice-period computation

PURPOSE:
  The small pure-arithmetic layer everything else builds on: converting a
  session's duration to billable hours, and measuring how much notice a
  cancellation gives before the session's scheduled start.

ROUNDING:
  Hours are rounded to 2 decimal places HALF-UP, not banker's rounding:
  70 min -> 1.17, 50 min -> 0.83. decimal.DivRound rounds half away from
  zero, which is half-up for the non-negative quantities handled here.

TIMEZONES:
  Session wall-clock times are ALWAYS interpreted in the business timezone
  (America/Santiago), regardless of caller locale. DisplayInZone exists for
  UI text only and must never feed a business computation.
*/
package hours

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BusinessTimeZone is the single administrative region all session
// wall-clock times are interpreted in.
const BusinessTimeZone = "America/Santiago"

var businessLocation = mustLoadLocation(BusinessTimeZone)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("load timezone %s: %v", name, err))
	}
	return loc
}

var sixty = decimal.NewFromInt(60)

// HoursFromMinutes converts a duration in minutes to hours, rounded to two
// decimal places half-up. Non-positive input yields zero.
func HoursFromMinutes(minutes int) decimal.Decimal {
	if minutes <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(minutes)).DivRound(sixty, 2)
}

// SessionStart resolves a session's local start instant from its date and
// start time, in the business timezone.
func SessionStart(sessionDate, startTime string) (time.Time, error) {
	h, m, err := parseClock(startTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse start time %q: %w", startTime, err)
	}
	day, err := time.ParseInLocation("2006-01-02", sessionDate, businessLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse session date %q: %w", sessionDate, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, businessLocation), nil
}

// NoticeHours returns the hours between now and the session's scheduled
// start, rounded to two decimal places. Never negative: a session already
// started yields zero. Unparseable schedules also yield zero, matching the
// most punitive notice bucket rather than failing the cancellation.
func NoticeHours(sessionDate, startTime string, now time.Time) decimal.Decimal {
	start, err := SessionStart(sessionDate, startTime)
	if err != nil {
		return decimal.Zero
	}
	diff := start.Sub(now)
	if diff <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(diff.Hours()).Round(2)
}

// DurationMinutes resolves the billable duration of a session: the stored
// scheduled duration when present, otherwise computed from start/end times.
// Returns 0 and false when no usable schedule exists.
func DurationMinutes(s *Session) (int, bool) {
	if s.ScheduledDurationMinutes > 0 {
		return s.ScheduledDurationMinutes, true
	}
	if s.StartTime == "" || s.EndTime == "" {
		return 0, false
	}
	sh, sm, err := parseClock(s.StartTime)
	if err != nil {
		return 0, false
	}
	eh, em, err := parseClock(s.EndTime)
	if err != nil {
		return 0, false
	}
	mins := (eh*60 + em) - (sh*60 + sm)
	if mins <= 0 {
		return 0, false
	}
	return mins, true
}

// DisplayInZone formats a session start for a consultant's personal
// timezone. UI text only: business computations (clause evaluation, notice
// thresholds) always use the business timezone above.
func DisplayInZone(sessionDate, startTime, tz string) (string, error) {
	start, err := SessionStart(sessionDate, startTime)
	if err != nil {
		return "", err
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", fmt.Errorf("load timezone %s: %w", tz, err)
	}
	return start.In(loc).Format("2006-01-02 15:04 MST"), nil
}

// parseClock parses "HH:MM" or "HH:MM:SS".
func parseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("malformed clock time %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("clock time out of range %q", s)
	}
	return hour, minute, nil
}
