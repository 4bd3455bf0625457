package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"qrattend_go/database"
	"qrattend_go/models"

	"github.com/gofiber/fiber/v2"
)

// parseHourMinute extracts the hour and minute from a HH:MM or HH:MM:SS
// string, tolerating a trailing zone suffix.
func parseHourMinute(value string) (int, int, error) {
	v := strings.TrimSpace(value)
	// Strip a date prefix like "2007-11-30 " or "2007-11-30T"
	if idx := strings.IndexAny(v, "T "); idx >= 0 && strings.Contains(v[:idx], "-") {
		v = v[idx+1:]
	}
	// Strip zone suffixes
	v = strings.TrimSuffix(v, "Z")
	if idx := strings.IndexAny(v, "+"); idx >= 0 {
		v = v[:idx]
	}

	parts := strings.Split(v, ":")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("invalid time value: %s", value)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in time value: %s", value)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in time value: %s", value)
	}
	return h, m, nil
}

// combineDateTime stamps a HH:MM time-of-day onto a calendar date.
func combineDateTime(date time.Time, hhmm string) (time.Time, error) {
	h, m, err := parseHourMinute(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, 0, 0, date.Location()), nil
}

// SessionWindow returns the [start, end) interval of a session given its
// class's duration.
func SessionWindow(session *models.ClassSession, class *models.Class) (time.Time, time.Time, error) {
	start, err := combineDateTime(session.SessionDate, session.SessionTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.Add(time.Duration(class.DurationMinutes) * time.Minute), nil
}

// intervalsOverlap tests two half-open intervals [s1,e1) and [s2,e2).
// Intervals that merely touch at the boundary do not overlap.
func intervalsOverlap(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// dateRangesOverlap tests two inclusive calendar date ranges.
func dateRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !bStart.After(aEnd)
}

func weekdaysIntersect(a, b []time.Weekday) bool {
	for _, da := range a {
		for _, db := range b {
			if da == db {
				return true
			}
		}
	}
	return false
}

// timeWindowsOverlap tests two time-of-day windows given as HH:MM starts and
// durations in minutes, on a shared reference date.
func timeWindowsOverlap(time1 string, dur1 int, time2 string, dur2 int) (bool, error) {
	ref := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	s1, err := combineDateTime(ref, time1)
	if err != nil {
		return false, err
	}
	s2, err := combineDateTime(ref, time2)
	if err != nil {
		return false, err
	}
	e1 := s1.Add(time.Duration(dur1) * time.Minute)
	e2 := s2.Add(time.Duration(dur2) * time.Minute)
	return intervalsOverlap(s1, e1, s2, e2), nil
}

// GenerateClassSessions expands a class's recurrence rule into concrete
// session drafts, one per calendar day in [StartDate, EndDate] whose weekday
// is scheduled, in ascending date order. Deterministic; an empty result is
// not an error.
func GenerateClassSessions(class *models.Class) []models.ClassSession {
	scheduled := make(map[time.Weekday]bool)
	for _, d := range class.ScheduledWeekdays() {
		scheduled[d] = true
	}

	var sessions []models.ClassSession
	current := class.StartDate
	for !current.After(class.EndDate) {
		if scheduled[current.Weekday()] {
			sessions = append(sessions, models.ClassSession{
				ClassID:     class.ID,
				SessionDate: current,
				SessionTime: class.ClassTime,
			})
		}
		current = current.AddDate(0, 0, 1)
	}
	return sessions
}

// classTemplatesConflict tests whether two class recurrence templates can
// produce overlapping sessions: the date ranges overlap, the weekday sets
// intersect and the time-of-day windows overlap.
func classTemplatesConflict(a, b *models.Class) (bool, error) {
	if !dateRangesOverlap(a.StartDate, a.EndDate, b.StartDate, b.EndDate) {
		return false, nil
	}
	if !weekdaysIntersect(a.ScheduledWeekdays(), b.ScheduledWeekdays()) {
		return false, nil
	}
	return timeWindowsOverlap(a.ClassTime, a.DurationMinutes, b.ClassTime, b.DurationMinutes)
}

// CheckClassConflict verifies a new class template against every other class
// taught by the same teacher. Runs entirely before any write.
func CheckClassConflict(newClass *models.Class) error {
	var existingClasses []models.Class
	if err := database.DB.Where("teacher_id = ?", newClass.TeacherID).Find(&existingClasses).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to check schedule conflicts")
	}

	for i := range existingClasses {
		existing := &existingClasses[i]
		if existing.ID == newClass.ID {
			continue
		}
		conflict, err := classTemplatesConflict(newClass, existing)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if conflict {
			return fiber.NewError(fiber.StatusConflict,
				"Class schedule conflicts with an existing class: "+existing.Name)
		}
	}
	return nil
}

// CheckSessionConflicts verifies that moving a session to a new date/time
// does not double-book the teacher or any approved enrollee of the class.
func CheckSessionConflicts(session *models.ClassSession, class *models.Class, newDate time.Time, newTime string) error {
	newStart, err := combineDateTime(newDate, newTime)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	newEnd := newStart.Add(time.Duration(class.DurationMinutes) * time.Minute)

	// Teacher double-booking: other sessions the teacher runs that day.
	var teacherSessions []models.ClassSession
	err = database.DB.
		Joins("JOIN classes ON classes.id = class_sessions.class_id").
		Where("classes.teacher_id = ? AND DATE(class_sessions.session_date) = ? AND class_sessions.canceled = ?",
			class.TeacherID, newDate.Format("2006-01-02"), false).
		Preload("Class").
		Find(&teacherSessions).Error
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to check teacher schedule")
	}

	for i := range teacherSessions {
		other := &teacherSessions[i]
		if other.ID == session.ID {
			continue
		}
		otherStart, otherEnd, err := SessionWindow(other, &other.Class)
		if err != nil {
			continue
		}
		if intervalsOverlap(newStart, newEnd, otherStart, otherEnd) {
			return fiber.NewError(fiber.StatusConflict,
				"Conflict with another session you teach on the same day: "+other.Class.Name)
		}
	}

	// Student double-booking: every approved enrollee's sessions that day,
	// across all of their classes.
	var enrollments []models.Enrollment
	err = database.DB.Preload("Student").
		Where("class_id = ? AND approved = ?", class.ID, true).
		Find(&enrollments).Error
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to load class roster")
	}

	for i := range enrollments {
		student := &enrollments[i].Student
		var studentSessions []models.ClassSession
		err = database.DB.
			Joins("JOIN classes ON classes.id = class_sessions.class_id").
			Joins("JOIN enrollments ON enrollments.class_id = classes.id").
			Where("enrollments.student_id = ? AND enrollments.approved = ? AND DATE(class_sessions.session_date) = ? AND class_sessions.canceled = ?",
				student.ID, true, newDate.Format("2006-01-02"), false).
			Preload("Class").
			Find(&studentSessions).Error
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to check student schedules")
		}

		for j := range studentSessions {
			other := &studentSessions[j]
			if other.ID == session.ID {
				continue
			}
			otherStart, otherEnd, err := SessionWindow(other, &other.Class)
			if err != nil {
				continue
			}
			if intervalsOverlap(newStart, newEnd, otherStart, otherEnd) {
				return fiber.NewError(fiber.StatusConflict, fmt.Sprintf(
					"Conflict for student %s with class '%s' at %s",
					student.Name, other.Class.Name, other.SessionTime))
			}
		}
	}

	return nil
}
