package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSON field type for GORM
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if j.IsNull() {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	s, ok := value.([]byte)
	if !ok {
		return nil
	}
	*j = append((*j)[0:0], s...)
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

func (j JSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}

// StringList decodes a JSON column holding an array of strings.
func (j JSON) StringList() []string {
	if j.IsNull() {
		return nil
	}
	var out []string
	if err := json.Unmarshal(j, &out); err != nil {
		return nil
	}
	return out
}

// StringListJSON encodes a string slice into a JSON column value.
func StringListJSON(values []string) JSON {
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return data
}

// Attendance statuses
const (
	AttendancePending = "pending"
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
	AttendanceExcused = "excused"
)

// Attendance request statuses
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// User model
type User struct {
	BaseModel
	Username string `json:"username" gorm:"size:100;not null;uniqueIndex"`
	Password string `json:"-" gorm:"size:255;not null"`
	Email    string `json:"email" gorm:"size:255;uniqueIndex"`
	Name     string `json:"name" gorm:"size:200"`
	Role     string `json:"role" gorm:"size:50;not null;default:'student';type:enum('admin','teacher','student')"` // admin, teacher, student
	Status   string `json:"status" gorm:"size:50;not null;default:'active';type:enum('active','inactive','suspended')"`
}

// Class model. A class carries its own recurrence rule: a date range, a set
// of weekdays and a time-of-day. Sessions are generated from it once, at
// creation time.
type Class struct {
	BaseModel
	TeacherID              uint      `json:"teacher_id" gorm:"not null;index"`
	Name                   string    `json:"name" gorm:"size:255;not null"`
	Description            string    `json:"description" gorm:"type:text"`
	StartDate              time.Time `json:"start_date" gorm:"not null"`
	EndDate                time.Time `json:"end_date" gorm:"not null"`
	ScheduledDays          JSON      `json:"scheduled_days" gorm:"type:json"`   // e.g. ["monday","wednesday"]
	ClassTime              string    `json:"class_time" gorm:"size:5;not null"` // HH:MM
	DurationMinutes        int       `json:"duration_minutes" gorm:"not null"`
	MaxAbsencesAllowed     int       `json:"max_absences_allowed"`
	AcceptanceRadiusMeters float64   `json:"acceptance_radius_meters" gorm:"not null;default:5"`
	AllowedNetworks        JSON      `json:"allowed_networks" gorm:"type:json"` // SSID allowlist
	JoinCode               string    `json:"join_code" gorm:"size:20;not null;uniqueIndex"`

	// Relationships
	Teacher  User           `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
	Sessions []ClassSession `json:"sessions,omitempty" gorm:"foreignKey:ClassID;constraint:OnDelete:CASCADE"`
}

// ScheduledWeekdays returns the class recurrence weekdays.
func (c *Class) ScheduledWeekdays() []time.Weekday {
	names := c.ScheduledDays.StringList()
	days := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		if d, ok := WeekdayFromName(n); ok {
			days = append(days, d)
		}
	}
	return days
}

// AllowedNetworkList returns the SSID allowlist of the class.
func (c *Class) AllowedNetworkList() []string {
	return c.AllowedNetworks.StringList()
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// WeekdayFromName maps a lowercase day name to its time.Weekday.
func WeekdayFromName(name string) (time.Weekday, bool) {
	d, ok := weekdayNames[name]
	return d, ok
}

// WeekdayName maps a time.Weekday to the lowercase name stored in JSON columns.
func WeekdayName(d time.Weekday) string {
	for name, day := range weekdayNames {
		if day == d {
			return name
		}
	}
	return ""
}

// ClassSession model. One concrete occurrence of a class on a calendar date.
type ClassSession struct {
	BaseModel
	ClassID     uint      `json:"class_id" gorm:"not null;index"`
	SessionDate time.Time `json:"session_date" gorm:"not null;index"`
	SessionTime string    `json:"session_time" gorm:"size:5;not null"` // HH:MM, copied from the class at generation
	Topic       string    `json:"topic" gorm:"size:255"`
	Canceled    bool      `json:"canceled" gorm:"default:false"`
	Finalized   bool      `json:"finalized" gorm:"default:false;index"` // attendance reconciled after the window closed

	// Relationships
	Class Class `json:"class,omitempty" gorm:"foreignKey:ClassID"`
}

// Enrollment links a student to a class. Unapproved rows are join requests.
type Enrollment struct {
	BaseModel
	ClassID     uint      `json:"class_id" gorm:"not null;uniqueIndex:idx_enrollment_pair"`
	StudentID   uint      `json:"student_id" gorm:"not null;uniqueIndex:idx_enrollment_pair"`
	Approved    bool      `json:"approved" gorm:"default:false"`
	RequestedAt time.Time `json:"requested_at"`

	// Relationships
	Class   Class `json:"class,omitempty" gorm:"foreignKey:ClassID;constraint:OnDelete:CASCADE"`
	Student User  `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

// QRToken model. At most one live token per session; re-issuing replaces the
// existing row, so a new code invalidates the previous one even if unexpired.
type QRToken struct {
	BaseModel
	SessionID uint      `json:"session_id" gorm:"not null;uniqueIndex"`
	Payload   string    `json:"payload" gorm:"size:64;not null;uniqueIndex"`
	Latitude  float64   `json:"latitude" gorm:"not null"`
	Longitude float64   `json:"longitude" gorm:"not null"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// Relationships
	Session ClassSession `json:"session,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// Expired reports whether the token's lifetime has elapsed at the given time.
func (t *QRToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Attendance model. One logical record per (session, student) pair.
type Attendance struct {
	BaseModel
	SessionID  uint      `json:"session_id" gorm:"not null;uniqueIndex:idx_attendance_pair"`
	StudentID  uint      `json:"student_id" gorm:"not null;uniqueIndex:idx_attendance_pair"`
	Status     string    `json:"status" gorm:"size:20;not null;default:'pending';type:enum('pending','present','absent','excused')"`
	RecordedAt time.Time `json:"recorded_at"`

	// Relationships
	Session ClassSession `json:"session,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Student User         `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

// AttendanceRequest model. A pending claim of presence raised when the
// distance check fails but the network fallback succeeds. At most one row per
// (session, student); a later scan refreshes the row in place.
type AttendanceRequest struct {
	BaseModel
	SessionID   uint      `json:"session_id" gorm:"not null;uniqueIndex:idx_attendance_request_pair"`
	StudentID   uint      `json:"student_id" gorm:"not null;uniqueIndex:idx_attendance_request_pair"`
	Status      string    `json:"status" gorm:"size:20;not null;default:'pending';type:enum('pending','approved','rejected')"`
	RequestedAt time.Time `json:"requested_at"`

	// Relationships
	Session ClassSession `json:"session,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Student User         `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

// Log model for activity tracking
type ActivityLog struct {
	BaseModel
	UserID     uint   `json:"user_id"`
	Action     string `json:"action" gorm:"size:100;not null"`
	Resource   string `json:"resource" gorm:"size:100;not null"`
	ResourceID uint   `json:"resource_id"`
	Details    JSON   `json:"details" gorm:"type:json"`
	IPAddress  string `json:"ip_address" gorm:"size:45"`
	UserAgent  string `json:"user_agent" gorm:"size:500"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
