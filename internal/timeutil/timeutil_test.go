package timeutil

import (
	"testing"
	"time"
)

func TestMinutes(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"09:00", 540},
		{"09:45", 585},
		{"09:45:30", 585},
		{"00:00", 0},
		{"18:00:00", 1080},
		{"7", 420},
	}
	for _, tc := range cases {
		if got := Minutes(tc.in); got != tc.want {
			t.Fatalf("Minutes(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestClockRoundTrip(t *testing.T) {
	if got := Clock(585); got != "09:45:00" {
		t.Fatalf("Clock(585) = %q", got)
	}
	if got := AddMinutes("09:00", 45); got != "09:45:00" {
		t.Fatalf("AddMinutes = %q", got)
	}
	if got := AddMinutes("23:30", 45); got != "24:15:00" {
		// Overflow past midnight is the caller's problem; arithmetic stays linear.
		t.Fatalf("AddMinutes overflow = %q", got)
	}
}

func TestValidClock(t *testing.T) {
	for _, ok := range []string{"08:00", "23:59", "09:45:30"} {
		if !ValidClock(ok) {
			t.Fatalf("ValidClock(%q) = false", ok)
		}
	}
	for _, bad := range []string{"", "25:00", "09:60", "9", "09:00:99", "a:b"} {
		if ValidClock(bad) {
			t.Fatalf("ValidClock(%q) = true", bad)
		}
	}
}

func TestBusinessDays_SkipsWeekend(t *testing.T) {
	// 2026-02-06 is a Friday.
	fri, err := ParseDate("2026-02-06")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	days := BusinessDays(fri, 5)
	want := []string{"2026-02-06", "2026-02-09", "2026-02-10", "2026-02-11", "2026-02-12"}
	if len(days) != len(want) {
		t.Fatalf("expected %d days, got %d", len(want), len(days))
	}
	for i, d := range days {
		if d.Format(DateLayout) != want[i] {
			t.Fatalf("day %d = %s, want %s", i, d.Format(DateLayout), want[i])
		}
		if !IsBusinessDay(d) {
			t.Fatalf("day %d falls on a weekend", i)
		}
	}
}

func TestBusinessDays_WeekendAnchor(t *testing.T) {
	sat, _ := ParseDate("2026-02-07")
	days := BusinessDays(sat, 1)
	if len(days) != 1 || days[0].Weekday() != time.Monday {
		t.Fatalf("expected Monday start, got %v", days)
	}
}
