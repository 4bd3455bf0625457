package controllers

import (
	"time"

	"qrattend_go/database"
	"qrattend_go/middleware"
	"qrattend_go/models"
	"qrattend_go/services"

	"github.com/gofiber/fiber/v2"
)

// SessionController handles per-session teacher operations: edits, QR code
// issuance, the attendance sheet and attendance request adjudication.
type SessionController struct {
	Attendance *services.AttendanceService
	QR         *services.QRCodeService
}

func NewSessionController(attendance *services.AttendanceService, qr *services.QRCodeService) *SessionController {
	return &SessionController{Attendance: attendance, QR: qr}
}

// UpdateSessionRequest represents the session edit request body. Omitted
// fields are left unchanged; rescheduling requires both date and time.
type UpdateSessionRequest struct {
	Topic       *string `json:"topic"`
	SessionDate *string `json:"session_date"` // YYYY-MM-DD
	SessionTime *string `json:"session_time"` // HH:MM
	Canceled    *bool   `json:"canceled"`
}

// UpdateSession edits a session's topic, reschedules it (conflict-checked) or
// cancels it
func (sc *SessionController) UpdateSession(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	sessionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session ID"})
	}

	var req UpdateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	update := services.SessionUpdate{
		Topic:       req.Topic,
		SessionTime: req.SessionTime,
		Canceled:    req.Canceled,
	}
	if req.SessionDate != nil {
		date, err := time.Parse("2006-01-02", *req.SessionDate)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session_date, expected YYYY-MM-DD"})
		}
		update.SessionDate = &date
	}

	session, err := sc.Attendance.UpdateSession(user, uint(sessionID), &update)
	if err != nil {
		return err
	}

	middleware.LogActivity(c, "UPDATE", "class_sessions", session.ID, fiber.Map{
		"canceled": session.Canceled,
	})

	return c.JSON(fiber.Map{
		"message": "Session updated successfully",
		"session": session,
	})
}

// IssueQRCodeRequest carries the teacher's anchor coordinates
type IssueQRCodeRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IssueQRCode generates a fresh QR token for the session, replacing any
// previous one
func (sc *SessionController) IssueQRCode(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	sessionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session ID"})
	}

	var req IssueQRCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	issued, err := sc.QR.IssueToken(uint(sessionID), req.Latitude, req.Longitude, user)
	if err != nil {
		return err
	}

	middleware.LogActivity(c, "CREATE", "qr_tokens", issued.Token.ID, fiber.Map{
		"session_id": sessionID,
		"expires_at": issued.Token.ExpiresAt,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "QR code issued",
		"qr_image":   issued.ImagePNG,
		"payload":    issued.Token.Payload,
		"expires_at": issued.Token.ExpiresAt,
	})
}

// GetSessionAttendance returns the session's attendance sheet: one entry per
// approved enrollee, with "pending" for students who have no row yet
func (sc *SessionController) GetSessionAttendance(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	sessionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session ID"})
	}

	var session models.ClassSession
	if err := database.DB.Preload("Class").First(&session, sessionID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	}
	if user.Role != "admin" && session.Class.TeacherID != user.ID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You do not own this class"})
	}

	var roster []models.Enrollment
	err = database.DB.Preload("Student").
		Where("class_id = ? AND approved = ?", session.ClassID, true).
		Find(&roster).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch roster"})
	}

	var rows []models.Attendance
	if err := database.DB.Where("session_id = ?", session.ID).Find(&rows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch attendance"})
	}
	byStudent := make(map[uint]*models.Attendance, len(rows))
	for i := range rows {
		byStudent[rows[i].StudentID] = &rows[i]
	}

	sheet := make([]fiber.Map, 0, len(roster))
	for _, enrollment := range roster {
		entry := fiber.Map{
			"student": fiber.Map{
				"id":       enrollment.Student.ID,
				"username": enrollment.Student.Username,
				"name":     enrollment.Student.Name,
			},
			"status": models.AttendancePending,
		}
		if row, ok := byStudent[enrollment.StudentID]; ok {
			entry["attendance_id"] = row.ID
			entry["status"] = row.Status
			entry["recorded_at"] = row.RecordedAt
		}
		sheet = append(sheet, entry)
	}

	return c.JSON(fiber.Map{
		"session":    session,
		"attendance": sheet,
	})
}

// EditAttendanceRequest carries the status a teacher sets manually
type EditAttendanceRequest struct {
	Status string `json:"status"`
}

// EditAttendance lets the owning teacher override an attendance row
func (sc *SessionController) EditAttendance(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	sessionID, err := c.ParamsInt("sessionId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session ID"})
	}
	attendanceID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid attendance ID"})
	}

	var req EditAttendanceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	attendance, err := sc.Attendance.EditAttendance(user, uint(sessionID), uint(attendanceID), req.Status)
	if err != nil {
		return err
	}

	middleware.LogActivity(c, "UPDATE", "attendances", attendance.ID, fiber.Map{
		"session_id": sessionID,
		"status":     req.Status,
	})

	return c.JSON(fiber.Map{
		"message":    "Attendance updated successfully",
		"attendance": attendance,
	})
}

// GetPendingRequests lists the session's unresolved attendance requests
func (sc *SessionController) GetPendingRequests(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	sessionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session ID"})
	}

	requests, err := sc.Attendance.ListPendingRequests(user, uint(sessionID))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"requests": requests})
}

// ApproveRequest grants a pending attendance request
func (sc *SessionController) ApproveRequest(c *fiber.Ctx) error {
	return sc.adjudicate(c, true)
}

// RejectRequest denies a pending attendance request
func (sc *SessionController) RejectRequest(c *fiber.Ctx) error {
	return sc.adjudicate(c, false)
}

func (sc *SessionController) adjudicate(c *fiber.Ctx, approve bool) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	requestID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request ID"})
	}

	if approve {
		err = sc.Attendance.ApproveRequest(user, uint(requestID))
	} else {
		err = sc.Attendance.RejectRequest(user, uint(requestID))
	}
	if err != nil {
		return err
	}

	action, message := "REJECT", "Attendance request rejected"
	if approve {
		action, message = "APPROVE", "Attendance request approved"
	}
	middleware.LogActivity(c, action, "attendance_requests", uint(requestID), nil)

	return c.JSON(fiber.Map{"message": message})
}
