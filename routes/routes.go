package routes

import (
	"qrattend_go/controllers"
	"qrattend_go/middleware"
	"qrattend_go/services"

	"github.com/gofiber/fiber/v2"
)

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, attendance *services.AttendanceService, qr *services.QRCodeService) {
	// Initialize controllers
	authController := &controllers.AuthController{}
	classController := &controllers.ClassController{}
	sessionController := controllers.NewSessionController(attendance, qr)
	studentController := controllers.NewStudentController(attendance)

	api := app.Group("/api")

	// Public routes
	auth := api.Group("/auth")
	auth.Post("/register", authController.Register)
	auth.Post("/login", authController.Login)

	// Protected routes
	protected := api.Group("", middleware.JWTMiddleware())
	protected.Get("/auth/profile", authController.GetProfile)
	protected.Post("/auth/logout", authController.Logout)

	// Teacher routes: class management, session edits, QR issuance,
	// attendance sheets and request adjudication
	teacher := protected.Group("", middleware.RequireTeacher())
	teacher.Post("/classes", classController.CreateClass)
	teacher.Get("/classes", classController.GetClasses)
	teacher.Get("/classes/:id", classController.GetClass)
	teacher.Get("/classes/:id/join-requests", classController.GetJoinRequests)
	teacher.Post("/classes/:id/join-requests/:studentId/approve", classController.ApproveJoinRequest)
	teacher.Delete("/classes/:id/join-requests/:studentId", classController.RejectJoinRequest)
	teacher.Get("/classes/:id/summary", classController.GetClassSummary)
	teacher.Get("/classes/:id/students/:studentId/stats", classController.GetStudentStats)

	teacher.Patch("/sessions/:id", sessionController.UpdateSession)
	teacher.Post("/sessions/:id/qrcode", sessionController.IssueQRCode)
	teacher.Get("/sessions/:id/attendance", sessionController.GetSessionAttendance)
	teacher.Patch("/sessions/:sessionId/attendance/:id", sessionController.EditAttendance)
	teacher.Get("/sessions/:id/requests", sessionController.GetPendingRequests)
	teacher.Post("/requests/:id/approve", sessionController.ApproveRequest)
	teacher.Post("/requests/:id/reject", sessionController.RejectRequest)

	// Student routes: joining classes, scanning and reading own attendance
	student := protected.Group("/student", middleware.RequireStudent())
	student.Post("/classes/join", studentController.JoinClass)
	student.Delete("/classes/:id/join", studentController.LeaveClass)
	student.Get("/classes", studentController.GetMyClasses)
	student.Get("/classes/pending", studentController.GetPendingClasses)
	student.Get("/classes/:id", studentController.GetClassDetail)
	student.Get("/classes/:id/attendance", studentController.GetMyAttendance)
	student.Post("/scan", studentController.Scan)
	student.Get("/requests", studentController.GetMyRequests)
}
