package services

import (
	"testing"
	"time"

	"qrattend_go/models"
)

func TestParseHourMinute(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		expHour    int
		expMinutes int
	}{
		{
			name:       "simple time",
			input:      "08:30",
			expHour:    8,
			expMinutes: 30,
		},
		{
			name:       "iso datetime",
			input:      "2025-01-06T00:00:00+07:00",
			expHour:    0,
			expMinutes: 0,
		},
		{
			name:       "mysql datetime",
			input:      "2025-01-06 13:45:00",
			expHour:    13,
			expMinutes: 45,
		},
		{
			name:       "time with trailing zone",
			input:      "09:15:00Z",
			expHour:    9,
			expMinutes: 15,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			h, m, err := parseHourMinute(tc.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if h != tc.expHour || m != tc.expMinutes {
				t.Fatalf("expected %02d:%02d, got %02d:%02d", tc.expHour, tc.expMinutes, h, m)
			}
		})
	}
}

func TestParseHourMinuteInvalid(t *testing.T) {
	if _, _, err := parseHourMinute("invalid"); err == nil {
		t.Fatalf("expected error for invalid input")
	}
	if _, _, err := parseHourMinute("25:00"); err == nil {
		t.Fatalf("expected error for out-of-range hour")
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGenerateClassSessions(t *testing.T) {
	class := &models.Class{
		StartDate:       date(2025, time.January, 6), // a Monday
		EndDate:         date(2025, time.January, 20),
		ScheduledDays:   models.StringListJSON([]string{"monday", "wednesday"}),
		ClassTime:       "09:00",
		DurationMinutes: 60,
	}

	sessions := GenerateClassSessions(class)
	if len(sessions) != 5 {
		t.Fatalf("expected 5 sessions, got %d", len(sessions))
	}

	expected := []time.Time{
		date(2025, time.January, 6),
		date(2025, time.January, 8),
		date(2025, time.January, 13),
		date(2025, time.January, 15),
		date(2025, time.January, 20),
	}
	for i, session := range sessions {
		if !session.SessionDate.Equal(expected[i]) {
			t.Fatalf("session %d: expected date %s, got %s", i, expected[i], session.SessionDate)
		}
		if session.SessionTime != "09:00" {
			t.Fatalf("session %d: expected time 09:00, got %s", i, session.SessionTime)
		}
	}
}

func TestGenerateClassSessionsNoMatchingDays(t *testing.T) {
	// Tue 2025-01-07 through Thu 2025-01-09 with only Sunday scheduled.
	class := &models.Class{
		StartDate:     date(2025, time.January, 7),
		EndDate:       date(2025, time.January, 9),
		ScheduledDays: models.StringListJSON([]string{"sunday"}),
		ClassTime:     "09:00",
	}

	if sessions := GenerateClassSessions(class); len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}
}

func TestGenerateClassSessionsDeterministic(t *testing.T) {
	class := &models.Class{
		StartDate:     date(2025, time.March, 1),
		EndDate:       date(2025, time.March, 31),
		ScheduledDays: models.StringListJSON([]string{"friday"}),
		ClassTime:     "14:00",
	}

	first := GenerateClassSessions(class)
	second := GenerateClassSessions(class)
	if len(first) != len(second) {
		t.Fatalf("expected identical runs, got %d and %d sessions", len(first), len(second))
	}
	for i := range first {
		if !first[i].SessionDate.Equal(second[i].SessionDate) {
			t.Fatalf("session %d differs between runs", i)
		}
	}
}

func TestIntervalsOverlap(t *testing.T) {
	base := date(2025, time.January, 6)
	at := func(h, m int) time.Time {
		return time.Date(base.Year(), base.Month(), base.Day(), h, m, 0, 0, time.UTC)
	}

	tests := []struct {
		name               string
		s1, e1, s2, e2     time.Time
		expOverlap         bool
	}{
		{
			name: "full overlap",
			s1:   at(9, 0), e1: at(10, 0),
			s2: at(9, 30), e2: at(10, 30),
			expOverlap: true,
		},
		{
			name: "containment",
			s1:   at(9, 0), e1: at(11, 0),
			s2: at(9, 30), e2: at(10, 0),
			expOverlap: true,
		},
		{
			name: "boundary touch is not overlap",
			s1:   at(9, 0), e1: at(10, 0),
			s2: at(10, 0), e2: at(11, 0),
			expOverlap: false,
		},
		{
			name: "disjoint",
			s1:   at(9, 0), e1: at(10, 0),
			s2: at(12, 0), e2: at(13, 0),
			expOverlap: false,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := intervalsOverlap(tc.s1, tc.e1, tc.s2, tc.e2); got != tc.expOverlap {
				t.Fatalf("expected overlap=%v, got %v", tc.expOverlap, got)
			}
			// Overlap is symmetric.
			if got := intervalsOverlap(tc.s2, tc.e2, tc.s1, tc.e1); got != tc.expOverlap {
				t.Fatalf("expected symmetric overlap=%v, got %v", tc.expOverlap, got)
			}
		})
	}
}

func TestClassTemplatesConflict(t *testing.T) {
	template := func(start, end time.Time, days []string, classTime string, duration int) *models.Class {
		return &models.Class{
			StartDate:       start,
			EndDate:         end,
			ScheduledDays:   models.StringListJSON(days),
			ClassTime:       classTime,
			DurationMinutes: duration,
		}
	}

	jan := date(2025, time.January, 6)
	feb := date(2025, time.February, 28)

	tests := []struct {
		name        string
		a, b        *models.Class
		expConflict bool
	}{
		{
			name:        "same slot conflicts",
			a:           template(jan, feb, []string{"monday"}, "09:00", 60),
			b:           template(jan, feb, []string{"monday"}, "09:30", 60),
			expConflict: true,
		},
		{
			name:        "disjoint weekdays never conflict",
			a:           template(jan, feb, []string{"monday"}, "09:00", 60),
			b:           template(jan, feb, []string{"tuesday"}, "09:00", 60),
			expConflict: false,
		},
		{
			name:        "disjoint date ranges never conflict",
			a:           template(jan, date(2025, time.January, 31), []string{"monday"}, "09:00", 60),
			b:           template(date(2025, time.February, 1), feb, []string{"monday"}, "09:00", 60),
			expConflict: false,
		},
		{
			name:        "back to back classes do not conflict",
			a:           template(jan, feb, []string{"monday"}, "09:00", 60),
			b:           template(jan, feb, []string{"monday"}, "10:00", 60),
			expConflict: false,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			conflict, err := classTemplatesConflict(tc.a, tc.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if conflict != tc.expConflict {
				t.Fatalf("expected conflict=%v, got %v", tc.expConflict, conflict)
			}
		})
	}
}

func TestSessionWindow(t *testing.T) {
	class := &models.Class{DurationMinutes: 90}
	session := &models.ClassSession{
		SessionDate: date(2025, time.January, 6),
		SessionTime: "09:00",
	}

	start, end, err := SessionWindow(session, class)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Hour() != 9 || start.Minute() != 0 {
		t.Fatalf("expected start 09:00, got %s", start)
	}
	if end.Sub(start) != 90*time.Minute {
		t.Fatalf("expected 90 minute window, got %s", end.Sub(start))
	}
}
