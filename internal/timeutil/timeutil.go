// Package timeutil converts between clinic clock strings ("HH:MM" or
// "HH:MM:SS") and minute offsets since midnight, and provides the date
// helpers the scheduling engine runs on. All dates are day-precision
// values pinned to UTC midnight.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// Minutes parses "HH:MM" or "HH:MM:SS" into minutes since midnight.
// A bare "HH" is treated as "HH:00". Callers validate format at the edge;
// unparseable parts count as zero.
func Minutes(clock string) int {
	parts := strings.Split(strings.TrimSpace(clock), ":")
	h, _ := strconv.Atoi(parts[0])
	m := 0
	if len(parts) > 1 {
		m, _ = strconv.Atoi(parts[1])
	}
	return h*60 + m
}

// Clock renders a minute offset as "HH:MM:00".
func Clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d:00", minutes/60, minutes%60)
}

// AddMinutes shifts a clock string forward by n minutes, normalized to
// "HH:MM:00".
func AddMinutes(clock string, n int) string {
	return Clock(Minutes(clock) + n)
}

// ValidClock reports whether s is a well-formed "HH:MM" or "HH:MM:SS"
// time within a single day.
func ValidClock(s string) bool {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return false
	}
	if len(parts) == 3 {
		s, err := strconv.Atoi(parts[2])
		if err != nil || s < 0 || s > 59 {
			return false
		}
	}
	return true
}

// ParseDate parses a "YYYY-MM-DD" date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}

// Day truncates t to UTC midnight.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// IsBusinessDay reports whether d falls on a weekday.
func IsBusinessDay(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// NextBusinessDay returns the first weekday strictly after d.
func NextBusinessDay(d time.Time) time.Time {
	for {
		d = d.AddDate(0, 0, 1)
		if IsBusinessDay(d) {
			return d
		}
	}
}

// BusinessDays returns n consecutive weekdays starting at anchor.
// If anchor itself falls on a weekend the sequence starts on the
// following Monday.
func BusinessDays(anchor time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	d := Day(anchor)
	if !IsBusinessDay(d) {
		d = NextBusinessDay(d)
	}
	out := make([]time.Time, 0, n)
	for len(out) < n {
		out = append(out, d)
		d = NextBusinessDay(d)
	}
	return out
}
