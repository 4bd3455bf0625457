package controllers

import (
	"time"

	"qrattend_go/database"
	"qrattend_go/middleware"
	"qrattend_go/models"
	"qrattend_go/services"
	"qrattend_go/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ClassController struct{}

// CreateClassRequest represents the class creation request body
type CreateClassRequest struct {
	Name                   string   `json:"name"`
	Description            string   `json:"description"`
	StartDate              string   `json:"start_date"` // YYYY-MM-DD
	EndDate                string   `json:"end_date"`   // YYYY-MM-DD
	ScheduledDays          []string `json:"scheduled_days"`
	ClassTime              string   `json:"class_time"` // HH:MM
	DurationMinutes        int      `json:"duration_minutes"`
	MaxAbsencesAllowed     int      `json:"max_absences_allowed"`
	AcceptanceRadiusMeters float64  `json:"acceptance_radius_meters"`
	AllowedNetworks        []string `json:"allowed_networks"`
}

// CreateClass creates a class, checks the teacher's schedule for conflicts
// and generates the full session series from the recurrence rule. The class
// and its sessions are committed together.
func (cc *ClassController) CreateClass(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	var req CreateClassRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	req.Name = utils.SanitizeString(req.Name)
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Class name is required"})
	}

	var existing models.Class
	if err := database.DB.Where("teacher_id = ? AND name = ?", user.ID, req.Name).First(&existing).Error; err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "You already have a class with this name"})
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid start_date, expected YYYY-MM-DD"})
	}
	endDate, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid end_date, expected YYYY-MM-DD"})
	}
	if endDate.Before(startDate) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "end_date must not be before start_date"})
	}

	if len(req.ScheduledDays) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "At least one scheduled day is required"})
	}
	for _, day := range req.ScheduledDays {
		if _, ok := models.WeekdayFromName(day); !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid scheduled day: " + day})
		}
	}

	if req.DurationMinutes <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "duration_minutes must be positive"})
	}

	radius := req.AcceptanceRadiusMeters
	if radius <= 0 {
		radius = 5
	}

	joinCode, err := utils.GenerateJoinCode()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate join code"})
	}

	class := models.Class{
		TeacherID:              user.ID,
		Name:                   req.Name,
		Description:            req.Description,
		StartDate:              startDate,
		EndDate:                endDate,
		ScheduledDays:          models.StringListJSON(req.ScheduledDays),
		ClassTime:              req.ClassTime,
		DurationMinutes:        req.DurationMinutes,
		MaxAbsencesAllowed:     req.MaxAbsencesAllowed,
		AcceptanceRadiusMeters: radius,
		AllowedNetworks:        models.StringListJSON(req.AllowedNetworks),
		JoinCode:               joinCode,
	}

	if _, _, err := services.SessionWindow(&models.ClassSession{SessionDate: startDate, SessionTime: req.ClassTime}, &class); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid class_time, expected HH:MM"})
	}

	if err := services.CheckClassConflict(&class); err != nil {
		return err
	}

	sessions := services.GenerateClassSessions(&class)

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&class).Error; err != nil {
			return err
		}
		for i := range sessions {
			sessions[i].ClassID = class.ID
		}
		if len(sessions) > 0 {
			if err := tx.Create(&sessions).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create class"})
	}

	middleware.LogActivity(c, "CREATE", "classes", class.ID, fiber.Map{
		"name":     class.Name,
		"sessions": len(sessions),
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":       "Class created successfully",
		"class":         class,
		"session_count": len(sessions),
	})
}

// GetClasses returns the classes taught by the authenticated teacher
func (cc *ClassController) GetClasses(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	query := database.DB.Model(&models.Class{})
	if user.Role != "admin" {
		query = query.Where("teacher_id = ?", user.ID)
	}

	var classes []models.Class
	if err := query.Order("start_date desc").Find(&classes).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch classes"})
	}

	return c.JSON(fiber.Map{"classes": classes})
}

// GetClass returns one class with its sessions and approved roster
func (cc *ClassController) GetClass(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	class, err := cc.ownedClass(c, user)
	if err != nil {
		return err
	}

	var sessions []models.ClassSession
	if err := database.DB.Where("class_id = ?", class.ID).Order("session_date asc").Find(&sessions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch sessions"})
	}

	var roster []models.Enrollment
	if err := database.DB.Preload("Student").
		Where("class_id = ? AND approved = ?", class.ID, true).
		Find(&roster).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch roster"})
	}

	return c.JSON(fiber.Map{
		"class":    class,
		"sessions": sessions,
		"students": roster,
	})
}

// GetJoinRequests lists the pending join requests for a class
func (cc *ClassController) GetJoinRequests(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	class, err := cc.ownedClass(c, user)
	if err != nil {
		return err
	}

	var requests []models.Enrollment
	err = database.DB.Preload("Student").
		Where("class_id = ? AND approved = ?", class.ID, false).
		Order("requested_at asc").
		Find(&requests).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch join requests"})
	}

	return c.JSON(fiber.Map{"join_requests": requests})
}

// ApproveJoinRequest approves a student's pending join request
func (cc *ClassController) ApproveJoinRequest(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	class, err := cc.ownedClass(c, user)
	if err != nil {
		return err
	}

	studentID, err := c.ParamsInt("studentId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid student ID"})
	}

	var enrollment models.Enrollment
	err = database.DB.Where("class_id = ? AND student_id = ?", class.ID, studentID).First(&enrollment).Error
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Join request not found"})
	}
	if enrollment.Approved {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Student is already enrolled"})
	}

	if err := database.DB.Model(&enrollment).Update("approved", true).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to approve join request"})
	}

	middleware.LogActivity(c, "APPROVE", "enrollments", enrollment.ID, fiber.Map{
		"class_id":   class.ID,
		"student_id": studentID,
	})

	return c.JSON(fiber.Map{"message": "Join request approved"})
}

// RejectJoinRequest removes a student's pending join request
func (cc *ClassController) RejectJoinRequest(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	class, err := cc.ownedClass(c, user)
	if err != nil {
		return err
	}

	studentID, err := c.ParamsInt("studentId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid student ID"})
	}

	var enrollment models.Enrollment
	err = database.DB.Where("class_id = ? AND student_id = ? AND approved = ?", class.ID, studentID, false).
		First(&enrollment).Error
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Join request not found"})
	}

	if err := database.DB.Unscoped().Delete(&enrollment).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to reject join request"})
	}

	middleware.LogActivity(c, "REJECT", "enrollments", enrollment.ID, fiber.Map{
		"class_id":   class.ID,
		"student_id": studentID,
	})

	return c.JSON(fiber.Map{"message": "Join request rejected"})
}

// GetClassSummary aggregates attendance per enrolled student across the
// class's past sessions
func (cc *ClassController) GetClassSummary(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	class, err := cc.ownedClass(c, user)
	if err != nil {
		return err
	}

	var roster []models.Enrollment
	err = database.DB.Preload("Student").
		Where("class_id = ? AND approved = ?", class.ID, true).
		Find(&roster).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch roster"})
	}

	summaries := make([]fiber.Map, 0, len(roster))
	for _, enrollment := range roster {
		stats, err := cc.studentStats(class, enrollment.StudentID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to compute summary"})
		}
		stats["student"] = fiber.Map{
			"id":       enrollment.Student.ID,
			"username": enrollment.Student.Username,
			"name":     enrollment.Student.Name,
		}
		summaries = append(summaries, stats)
	}

	return c.JSON(fiber.Map{
		"class_id": class.ID,
		"summary":  summaries,
	})
}

// GetStudentStats returns one enrolled student's attendance breakdown
func (cc *ClassController) GetStudentStats(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}

	class, err := cc.ownedClass(c, user)
	if err != nil {
		return err
	}

	studentID, err := c.ParamsInt("studentId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid student ID"})
	}

	var enrollment models.Enrollment
	err = database.DB.Preload("Student").
		Where("class_id = ? AND student_id = ? AND approved = ?", class.ID, studentID, true).
		First(&enrollment).Error
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Student is not enrolled in this class"})
	}

	stats, err := cc.studentStats(class, uint(studentID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to compute stats"})
	}
	stats["student"] = fiber.Map{
		"id":       enrollment.Student.ID,
		"username": enrollment.Student.Username,
		"name":     enrollment.Student.Name,
	}

	return c.JSON(stats)
}

// studentStats counts one student's attendance rows by status and flags
// whether the absence limit is exceeded.
func (cc *ClassController) studentStats(class *models.Class, studentID uint) (fiber.Map, error) {
	var rows []models.Attendance
	err := database.DB.
		Joins("JOIN class_sessions ON class_sessions.id = attendances.session_id").
		Where("class_sessions.class_id = ? AND attendances.student_id = ?", class.ID, studentID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for _, row := range rows {
		counts[row.Status]++
	}

	var totalSessions int64
	err = database.DB.Model(&models.ClassSession{}).
		Where("class_id = ? AND canceled = ?", class.ID, false).
		Count(&totalSessions).Error
	if err != nil {
		return nil, err
	}

	return fiber.Map{
		"total_sessions":       totalSessions,
		"present":              counts[models.AttendancePresent],
		"absent":               counts[models.AttendanceAbsent],
		"excused":              counts[models.AttendanceExcused],
		"pending":              counts[models.AttendancePending],
		"max_absences_allowed": class.MaxAbsencesAllowed,
		"over_absence_limit":   class.MaxAbsencesAllowed > 0 && counts[models.AttendanceAbsent] > class.MaxAbsencesAllowed,
	}, nil
}

// ownedClass loads the :id class and enforces ownership (admins bypass).
func (cc *ClassController) ownedClass(c *fiber.Ctx, user *models.User) (*models.Class, error) {
	classID, err := c.ParamsInt("id")
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid class ID")
	}

	var class models.Class
	if err := database.DB.First(&class, classID).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Class not found")
	}
	if user.Role != "admin" && class.TeacherID != user.ID {
		return nil, fiber.NewError(fiber.StatusForbidden, "You do not own this class")
	}
	return &class, nil
}
