package services

import (
	"fmt"
	"strings"
	"time"

	"qrattend_go/config"
	"qrattend_go/database"
	"qrattend_go/models"
	"qrattend_go/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScanOutcome classifies what a scan did.
type ScanOutcome string

const (
	// ScanPresent means the distance check passed and attendance was marked.
	ScanPresent ScanOutcome = "present"
	// ScanRequested means the student was out of range but on an allowed
	// network, so an attendance request went to the teacher.
	ScanRequested ScanOutcome = "requested"
	// ScanDenied means both the distance and the network check failed.
	ScanDenied ScanOutcome = "denied"
)

// EvaluateScan decides the outcome of a scan from the distance and network
// checks alone. Pure; persistence effects happen in ScanQR.
func EvaluateScan(distanceMeters, radiusMeters float64, network string, allowedNetworks []string) ScanOutcome {
	if distanceMeters <= radiusMeters {
		return ScanPresent
	}
	for _, allowed := range allowedNetworks {
		if network == allowed {
			return ScanRequested
		}
	}
	return ScanDenied
}

// ScanResult is what a successful (non-denied) scan reports back.
type ScanResult struct {
	Outcome ScanOutcome `json:"outcome"`
	Message string      `json:"message"`
}

// AttendanceService owns the attendance state machine: scans, teacher edits,
// request adjudication and session cancellation all go through it.
type AttendanceService struct {
	db *gorm.DB
	qr *QRCodeService
}

// NewAttendanceService creates an AttendanceService backed by the shared
// database connection.
func NewAttendanceService(qr *QRCodeService) *AttendanceService {
	return &AttendanceService{
		db: database.DB,
		qr: qr,
	}
}

// ScanQR runs the scan-verification algorithm for a student. The whole
// check-then-transition runs in one transaction with the attendance row
// locked, so concurrent scans for the same pair serialize.
func (s *AttendanceService) ScanQR(student *models.User, payload string, lat, lon float64, network string) (*ScanResult, error) {
	if !utils.IsValidCoordinate(lat, lon) {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid coordinates")
	}
	if strings.TrimSpace(network) == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Missing network name")
	}

	var result *ScanResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		token, err := s.qr.resolveToken(tx, payload)
		if err != nil {
			return err
		}
		if config.AppConfig.EnforceQRExpiry && token.Expired(time.Now()) {
			return fiber.NewError(fiber.StatusBadRequest, "QR code has expired, ask your instructor for a new one")
		}

		session := &token.Session
		class := &session.Class
		if session.Canceled {
			return fiber.NewError(fiber.StatusConflict, "This session has been canceled")
		}

		var enrollment models.Enrollment
		err = tx.Where("class_id = ? AND student_id = ? AND approved = ?", class.ID, student.ID, true).
			First(&enrollment).Error
		if err != nil {
			return fiber.NewError(fiber.StatusForbidden, "You are not an approved member of this class")
		}

		// Lock the pair's attendance row for the rest of the transaction.
		var attendance models.Attendance
		found := true
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("session_id = ? AND student_id = ?", session.ID, student.ID).
			First(&attendance).Error
		if err == gorm.ErrRecordNotFound {
			found = false
		} else if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to load attendance")
		}

		// A terminal decision is never silently overwritten by a scan.
		if found && (attendance.Status == models.AttendancePresent || attendance.Status == models.AttendanceExcused) {
			return fiber.NewError(fiber.StatusConflict, "Attendance already marked for this session")
		}

		distance := utils.HaversineMeters(token.Latitude, token.Longitude, lat, lon)
		allowed := class.AllowedNetworkList()

		switch EvaluateScan(distance, class.AcceptanceRadiusMeters, network, allowed) {
		case ScanPresent:
			if err := s.markPresent(tx, session.ID, student.ID, &attendance, found); err != nil {
				return err
			}
			result = &ScanResult{Outcome: ScanPresent, Message: "Attendance marked successfully"}
			return nil

		case ScanRequested:
			msg, err := s.raiseRequest(tx, session.ID, student.ID, &attendance, found)
			if err != nil {
				return err
			}
			result = &ScanResult{Outcome: ScanRequested, Message: msg}
			return nil

		default:
			return fiber.NewError(fiber.StatusForbidden, fmt.Sprintf(
				"You're too far from the class and connected to an unapproved network: %s. Approved networks for this class are: %s",
				network, strings.Join(allowed, ", ")))
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// markPresent upserts the pair's attendance row to present and resolves any
// pending attendance request as superseded.
func (s *AttendanceService) markPresent(tx *gorm.DB, sessionID, studentID uint, attendance *models.Attendance, found bool) error {
	now := time.Now()
	if found {
		err := tx.Model(attendance).Updates(map[string]interface{}{
			"status":      models.AttendancePresent,
			"recorded_at": now,
		}).Error
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to record attendance")
		}
	} else {
		record := models.Attendance{
			SessionID:  sessionID,
			StudentID:  studentID,
			Status:     models.AttendancePresent,
			RecordedAt: now,
		}
		if err := tx.Create(&record).Error; err != nil {
			if isDuplicateKey(err) {
				return fiber.NewError(fiber.StatusConflict, "Attendance already marked for this session")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to record attendance")
		}
	}

	// A successful in-range scan supersedes any pending request.
	err := tx.Where("session_id = ? AND student_id = ? AND status = ?",
		sessionID, studentID, models.RequestPending).
		Delete(&models.AttendanceRequest{}).Error
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to resolve attendance request")
	}
	return nil
}

// raiseRequest creates or refreshes the pair's pending attendance request and
// reopens an absent attendance row for teacher review.
func (s *AttendanceService) raiseRequest(tx *gorm.DB, sessionID, studentID uint, attendance *models.Attendance, found bool) (string, error) {
	now := time.Now()

	var request models.AttendanceRequest
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("session_id = ? AND student_id = ?", sessionID, studentID).
		First(&request).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		request = models.AttendanceRequest{
			SessionID:   sessionID,
			StudentID:   studentID,
			Status:      models.RequestPending,
			RequestedAt: now,
		}
		if err := tx.Create(&request).Error; err != nil {
			return "", fiber.NewError(fiber.StatusInternalServerError, "Failed to create attendance request")
		}
	case err != nil:
		return "", fiber.NewError(fiber.StatusInternalServerError, "Failed to load attendance request")
	case request.Status == models.RequestPending:
		return "There is already a pending attendance request. Check with your instructor.", nil
	default:
		// A later scan supersedes the handled request in place.
		err := tx.Model(&request).Updates(map[string]interface{}{
			"status":       models.RequestPending,
			"requested_at": now,
		}).Error
		if err != nil {
			return "", fiber.NewError(fiber.StatusInternalServerError, "Failed to refresh attendance request")
		}
	}

	// Reopen an absent row so the sweep's verdict does not stand while the
	// claim awaits review.
	if found && attendance.Status == models.AttendanceAbsent {
		err := tx.Model(attendance).Updates(map[string]interface{}{
			"status":      models.AttendancePending,
			"recorded_at": now,
		}).Error
		if err != nil {
			return "", fiber.NewError(fiber.StatusInternalServerError, "Failed to reopen attendance")
		}
	}

	return "You're not near the class but connected to an approved network. An attendance request has been sent to the instructor.", nil
}

// EditAttendance lets the owning teacher set any status on an attendance row.
func (s *AttendanceService) EditAttendance(actor *models.User, sessionID, attendanceID uint, status string) (*models.Attendance, error) {
	if !utils.IsValidAttendanceStatus(status) {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid attendance status")
	}

	var attendance models.Attendance
	err := s.db.Preload("Session").Preload("Session.Class").First(&attendance, attendanceID).Error
	if err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Attendance not found")
	}
	if attendance.SessionID != sessionID {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Attendance does not belong to this session")
	}
	if err := requireClassOwner(&attendance.Session.Class, actor); err != nil {
		return nil, err
	}

	err = s.db.Model(&attendance).Updates(map[string]interface{}{
		"status":      status,
		"recorded_at": time.Now(),
	}).Error
	if err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Failed to update attendance")
	}
	return &attendance, nil
}

// ListPendingRequests returns the unresolved attendance requests of a session.
func (s *AttendanceService) ListPendingRequests(actor *models.User, sessionID uint) ([]models.AttendanceRequest, error) {
	var session models.ClassSession
	if err := s.db.Preload("Class").First(&session, sessionID).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Session not found")
	}
	if err := requireClassOwner(&session.Class, actor); err != nil {
		return nil, err
	}

	var requests []models.AttendanceRequest
	err := s.db.Preload("Student").
		Where("session_id = ? AND status = ?", sessionID, models.RequestPending).
		Order("requested_at asc").
		Find(&requests).Error
	if err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Failed to load attendance requests")
	}
	return requests, nil
}

// ApproveRequest grants a pending attendance request and marks the student
// present.
func (s *AttendanceService) ApproveRequest(actor *models.User, requestID uint) error {
	return s.adjudicateRequest(actor, requestID, true)
}

// RejectRequest denies a pending attendance request; the default negative
// outcome (absent) applies to the linked attendance row.
func (s *AttendanceService) RejectRequest(actor *models.User, requestID uint) error {
	return s.adjudicateRequest(actor, requestID, false)
}

func (s *AttendanceService) adjudicateRequest(actor *models.User, requestID uint, approve bool) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		// Unlocked read for the ownership check and the pair's keys.
		var request models.AttendanceRequest
		err := tx.Preload("Session").Preload("Session.Class").First(&request, requestID).Error
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Request not found")
		}
		if err := requireClassOwner(&request.Session.Class, actor); err != nil {
			return err
		}
		if request.Status != models.RequestPending {
			return fiber.NewError(fiber.StatusConflict, "Request already handled")
		}

		// Lock the attendance row before the request row, the same order the
		// scan path takes, so the two paths cannot deadlock each other.
		var attendance models.Attendance
		haveAttendance := true
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("session_id = ? AND student_id = ?", request.SessionID, request.StudentID).
			First(&attendance).Error
		if err == gorm.ErrRecordNotFound {
			haveAttendance = false
		} else if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to load attendance")
		}

		// Re-check the status under lock; a concurrent adjudication may have
		// settled the request after the unlocked read.
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&request, requestID).Error
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Request not found")
		}
		if request.Status != models.RequestPending {
			return fiber.NewError(fiber.StatusConflict, "Request already handled")
		}

		now := time.Now()
		newStatus := models.RequestRejected
		if approve {
			newStatus = models.RequestApproved
		}
		if err := tx.Model(&request).Update("status", newStatus).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to update request")
		}

		if !haveAttendance {
			if !approve {
				// Nothing recorded yet; the sweep will mark the absence.
				return nil
			}
			record := models.Attendance{
				SessionID:  request.SessionID,
				StudentID:  request.StudentID,
				Status:     models.AttendancePresent,
				RecordedAt: now,
			}
			if err := tx.Create(&record).Error; err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "Failed to record attendance")
			}
			return nil
		}

		status := models.AttendanceAbsent
		if approve {
			status = models.AttendancePresent
		}
		err = tx.Model(&attendance).Updates(map[string]interface{}{
			"status":      status,
			"recorded_at": now,
		}).Error
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to update attendance")
		}
		return nil
	})
}

// UpdateSession edits a session's topic, date/time or cancellation state.
// Date/time moves are gated by the conflict detector; cancellation excuses
// every attendance row of the session in the same transaction.
type SessionUpdate struct {
	Topic       *string    `json:"topic"`
	SessionDate *time.Time `json:"session_date"`
	SessionTime *string    `json:"session_time"`
	Canceled    *bool      `json:"canceled"`
}

func (s *AttendanceService) UpdateSession(actor *models.User, sessionID uint, update *SessionUpdate) (*models.ClassSession, error) {
	var session models.ClassSession
	if err := s.db.Preload("Class").First(&session, sessionID).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Session not found")
	}
	if err := requireClassOwner(&session.Class, actor); err != nil {
		return nil, err
	}

	if update.SessionDate != nil && update.SessionTime != nil {
		if err := CheckSessionConflicts(&session, &session.Class, *update.SessionDate, *update.SessionTime); err != nil {
			return nil, err
		}
	} else if update.SessionDate != nil || update.SessionTime != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Both session_date and session_time are required to reschedule")
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		changes := map[string]interface{}{}
		if update.Topic != nil {
			changes["topic"] = *update.Topic
		}
		if update.SessionDate != nil && update.SessionTime != nil {
			changes["session_date"] = *update.SessionDate
			changes["session_time"] = *update.SessionTime
			// A moved session gets a fresh window, so the sweep must visit
			// it again.
			changes["finalized"] = false
		}
		if update.Canceled != nil && *update.Canceled && !session.Canceled {
			changes["canceled"] = true

			// Cancellation never penalizes attendance.
			err := tx.Model(&models.Attendance{}).
				Where("session_id = ?", session.ID).
				Updates(map[string]interface{}{
					"status":      models.AttendanceExcused,
					"recorded_at": time.Now(),
				}).Error
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "Failed to excuse attendance")
			}
		}
		if len(changes) == 0 {
			return nil
		}
		if err := tx.Model(&session).Updates(changes).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to update session")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// isDuplicateKey reports whether an insert failed on a unique index.
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Duplicate entry")
}
