package controllers

import (
	"time"

	"qrattend_go/database"
	"qrattend_go/middleware"
	"qrattend_go/models"
	"qrattend_go/services"
	"qrattend_go/utils"

	"github.com/gofiber/fiber/v2"
)

// StudentController handles the student-facing surface: joining classes,
// scanning QR codes and reading back own attendance.
type StudentController struct {
	Attendance *services.AttendanceService
}

func NewStudentController(attendance *services.AttendanceService) *StudentController {
	return &StudentController{Attendance: attendance}
}

// JoinClassRequest carries the join code handed out by the teacher
type JoinClassRequest struct {
	JoinCode string `json:"join_code"`
}

// JoinClass files a join request for the class matching the join code. The
// request stays pending until the teacher approves it.
func (sc *StudentController) JoinClass(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	var req JoinClassRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	code := utils.SanitizeString(req.JoinCode)
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "join_code is required"})
	}

	var class models.Class
	if err := database.DB.Where("join_code = ?", code).First(&class).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No class found for this join code"})
	}

	var existing models.Enrollment
	err = database.DB.Where("class_id = ? AND student_id = ?", class.ID, user.ID).First(&existing).Error
	if err == nil {
		if existing.Approved {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Already joined this class"})
		}
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Join request already sent"})
	}

	enrollment := models.Enrollment{
		ClassID:     class.ID,
		StudentID:   user.ID,
		Approved:    false,
		RequestedAt: time.Now(),
	}
	if err := database.DB.Create(&enrollment).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create join request"})
	}

	middleware.LogActivity(c, "CREATE", "enrollments", enrollment.ID, fiber.Map{
		"class_id": class.ID,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Join request sent, waiting for teacher approval",
		"class": fiber.Map{
			"id":   class.ID,
			"name": class.Name,
		},
	})
}

// LeaveClass withdraws a pending join request or leaves an enrolled class
func (sc *StudentController) LeaveClass(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	classID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid class ID"})
	}

	var enrollment models.Enrollment
	err = database.DB.Where("class_id = ? AND student_id = ?", classID, user.ID).First(&enrollment).Error
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "You are not a member of this class"})
	}

	if err := database.DB.Unscoped().Delete(&enrollment).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to leave class"})
	}

	middleware.LogActivity(c, "DELETE", "enrollments", enrollment.ID, fiber.Map{
		"class_id": classID,
	})

	return c.JSON(fiber.Map{"message": "Left class successfully"})
}

// GetMyClasses lists the student's approved classes
func (sc *StudentController) GetMyClasses(c *fiber.Ctx) error {
	return sc.listClasses(c, true)
}

// GetPendingClasses lists the student's unapproved join requests
func (sc *StudentController) GetPendingClasses(c *fiber.Ctx) error {
	return sc.listClasses(c, false)
}

func (sc *StudentController) listClasses(c *fiber.Ctx, approved bool) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	var enrollments []models.Enrollment
	err = database.DB.Preload("Class").Preload("Class.Teacher").
		Where("student_id = ? AND approved = ?", user.ID, approved).
		Find(&enrollments).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch classes"})
	}

	classes := make([]fiber.Map, 0, len(enrollments))
	for _, enrollment := range enrollments {
		classes = append(classes, fiber.Map{
			"id":           enrollment.Class.ID,
			"name":         enrollment.Class.Name,
			"description":  enrollment.Class.Description,
			"class_time":   enrollment.Class.ClassTime,
			"teacher":      enrollment.Class.Teacher.Name,
			"requested_at": enrollment.RequestedAt,
		})
	}

	return c.JSON(fiber.Map{"classes": classes})
}

// GetClassDetail returns one enrolled class with its upcoming sessions
func (sc *StudentController) GetClassDetail(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	classID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid class ID"})
	}

	if err := sc.requireEnrolled(uint(classID), user.ID); err != nil {
		return err
	}

	var class models.Class
	if err := database.DB.Preload("Teacher").First(&class, classID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Class not found"})
	}

	var sessions []models.ClassSession
	err = database.DB.Where("class_id = ?", class.ID).
		Order("session_date asc").
		Find(&sessions).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch sessions"})
	}

	return c.JSON(fiber.Map{
		"class":    class,
		"sessions": sessions,
	})
}

// ScanRequest represents a QR scan submission
type ScanRequest struct {
	QRData      string  `json:"qr_data"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	NetworkName string  `json:"network_name"`
}

// Scan runs the attendance scan: in range marks present, out of range on an
// allowed network raises a request, otherwise the scan is denied
func (sc *StudentController) Scan(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	var req ScanRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	result, err := sc.Attendance.ScanQR(user, req.QRData, req.Latitude, req.Longitude, req.NetworkName)
	if err != nil {
		return err
	}

	middleware.LogActivity(c, "SCAN", "attendances", 0, fiber.Map{
		"outcome": result.Outcome,
	})

	return c.JSON(fiber.Map{
		"outcome": result.Outcome,
		"message": result.Message,
	})
}

// GetMyAttendance returns the student's per-session record for one class,
// plus the aggregate counts
func (sc *StudentController) GetMyAttendance(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	classID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid class ID"})
	}

	if err := sc.requireEnrolled(uint(classID), user.ID); err != nil {
		return err
	}

	var class models.Class
	if err := database.DB.First(&class, classID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Class not found"})
	}

	var sessions []models.ClassSession
	err = database.DB.Where("class_id = ?", classID).
		Order("session_date asc").
		Find(&sessions).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch sessions"})
	}

	var rows []models.Attendance
	err = database.DB.
		Joins("JOIN class_sessions ON class_sessions.id = attendances.session_id").
		Where("class_sessions.class_id = ? AND attendances.student_id = ?", classID, user.ID).
		Find(&rows).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch attendance"})
	}
	bySession := make(map[uint]*models.Attendance, len(rows))
	for i := range rows {
		bySession[rows[i].SessionID] = &rows[i]
	}

	counts := map[string]int{}
	records := make([]fiber.Map, 0, len(sessions))
	for _, session := range sessions {
		entry := fiber.Map{
			"session_id":   session.ID,
			"session_date": session.SessionDate.Format("2006-01-02"),
			"session_time": session.SessionTime,
			"topic":        session.Topic,
			"canceled":     session.Canceled,
			"status":       models.AttendancePending,
		}
		if row, ok := bySession[session.ID]; ok {
			entry["status"] = row.Status
			counts[row.Status]++
		}
		records = append(records, entry)
	}

	return c.JSON(fiber.Map{
		"class_id": class.ID,
		"records":  records,
		"summary": fiber.Map{
			"present":              counts[models.AttendancePresent],
			"absent":               counts[models.AttendanceAbsent],
			"excused":              counts[models.AttendanceExcused],
			"max_absences_allowed": class.MaxAbsencesAllowed,
		},
	})
}

// GetMyRequests lists the student's own attendance requests across classes
func (sc *StudentController) GetMyRequests(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	var requests []models.AttendanceRequest
	err = database.DB.Preload("Session").Preload("Session.Class").
		Where("student_id = ?", user.ID).
		Order("requested_at desc").
		Find(&requests).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch requests"})
	}

	out := make([]fiber.Map, 0, len(requests))
	for _, request := range requests {
		out = append(out, fiber.Map{
			"id":           request.ID,
			"class":        request.Session.Class.Name,
			"session_date": request.Session.SessionDate.Format("2006-01-02"),
			"status":       request.Status,
			"requested_at": request.RequestedAt,
		})
	}

	return c.JSON(fiber.Map{"requests": out})
}

// requireEnrolled enforces approved membership in the class.
func (sc *StudentController) requireEnrolled(classID, studentID uint) error {
	var enrollment models.Enrollment
	err := database.DB.Where("class_id = ? AND student_id = ? AND approved = ?", classID, studentID, true).
		First(&enrollment).Error
	if err != nil {
		return fiber.NewError(fiber.StatusForbidden, "You are not an approved member of this class")
	}
	return nil
}
