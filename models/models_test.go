package models

import (
	"testing"
	"time"
)

func TestStringListRoundTrip(t *testing.T) {
	in := []string{"monday", "wednesday", "friday"}
	out := StringListJSON(in).StringList()
	if len(out) != len(in) {
		t.Fatalf("expected %d entries, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("entry %d: expected %q, got %q", i, in[i], out[i])
		}
	}
}

func TestStringListNull(t *testing.T) {
	var j JSON
	if got := j.StringList(); got != nil {
		t.Fatalf("expected nil for empty column, got %v", got)
	}
}

func TestWeekdayFromName(t *testing.T) {
	d, ok := WeekdayFromName("wednesday")
	if !ok || d != time.Wednesday {
		t.Fatalf("expected wednesday, got %v (ok=%v)", d, ok)
	}
	if _, ok := WeekdayFromName("Wednesday"); ok {
		t.Fatalf("expected lookup to be lowercase only")
	}
	if _, ok := WeekdayFromName("someday"); ok {
		t.Fatalf("expected unknown day to fail")
	}
}

func TestWeekdayNameRoundTrip(t *testing.T) {
	for name, day := range map[string]time.Weekday{
		"sunday":   time.Sunday,
		"thursday": time.Thursday,
	} {
		if got := WeekdayName(day); got != name {
			t.Fatalf("expected %q for %v, got %q", name, day, got)
		}
		if d, ok := WeekdayFromName(WeekdayName(day)); !ok || d != day {
			t.Fatalf("round trip failed for %v", day)
		}
	}
}

func TestScheduledWeekdaysSkipsUnknownNames(t *testing.T) {
	c := Class{ScheduledDays: StringListJSON([]string{"monday", "someday", "friday"})}
	days := c.ScheduledWeekdays()
	if len(days) != 2 {
		t.Fatalf("expected 2 valid days, got %d", len(days))
	}
	if days[0] != time.Monday || days[1] != time.Friday {
		t.Fatalf("unexpected days: %v", days)
	}
}

func TestQRTokenExpired(t *testing.T) {
	now := time.Now()
	token := QRToken{ExpiresAt: now.Add(10 * time.Minute)}
	if token.Expired(now) {
		t.Fatalf("token should not be expired before its deadline")
	}
	if token.Expired(now.Add(11 * time.Minute)) {
		return
	}
	t.Fatalf("token should be expired after its deadline")
}
