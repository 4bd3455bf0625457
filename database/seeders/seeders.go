package seeders

import (
	"log"
	"time"

	"qrattend_go/database"
	"qrattend_go/models"
	"qrattend_go/services"
	"qrattend_go/utils"
)

// SeedAll runs all seeders. Each seeder is idempotent and skips tables that
// already hold data.
func SeedAll() {
	log.Println("Starting database seeding...")

	SeedUsers()
	SeedDemoClass()

	log.Println("Database seeding completed successfully!")
}

// SeedUsers seeds an admin account plus a demo teacher and demo students.
func SeedUsers() {
	var count int64
	database.DB.Model(&models.User{}).Count(&count)
	if count > 0 {
		log.Println("Users already seeded, skipping...")
		return
	}

	users := []struct {
		username string
		name     string
		email    string
		role     string
	}{
		{"admin", "Administrator", "admin@qrattend.local", "admin"},
		{"teacher1", "Demo Teacher", "teacher1@qrattend.local", "teacher"},
		{"student1", "Demo Student One", "student1@qrattend.local", "student"},
		{"student2", "Demo Student Two", "student2@qrattend.local", "student"},
	}

	for _, u := range users {
		hashed, err := utils.HashPassword("changeme123")
		if err != nil {
			log.Printf("Error hashing password for %s: %v", u.username, err)
			continue
		}
		user := models.User{
			Username: u.username,
			Password: hashed,
			Email:    u.email,
			Name:     u.name,
			Role:     u.role,
			Status:   "active",
		}
		if err := database.DB.Create(&user).Error; err != nil {
			log.Printf("Error seeding user %s: %v", u.username, err)
		}
	}

	log.Println("Users seeded successfully")
}

// SeedDemoClass seeds one class for the demo teacher with enrolled students,
// including the generated session series.
func SeedDemoClass() {
	var count int64
	database.DB.Model(&models.Class{}).Count(&count)
	if count > 0 {
		log.Println("Classes already seeded, skipping...")
		return
	}

	var teacher models.User
	if err := database.DB.Where("username = ?", "teacher1").First(&teacher).Error; err != nil {
		log.Printf("Demo teacher not found, skipping class seeding: %v", err)
		return
	}

	joinCode, err := utils.GenerateJoinCode()
	if err != nil {
		log.Printf("Error generating join code: %v", err)
		return
	}

	// Midnight dates, matching what the class controllers store.
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	class := models.Class{
		TeacherID:              teacher.ID,
		Name:                   "Intro to Programming",
		Description:            "Demo class seeded for local development",
		StartDate:              start,
		EndDate:                start.AddDate(0, 2, 0),
		ScheduledDays:          models.StringListJSON([]string{"monday", "wednesday"}),
		ClassTime:              "09:00",
		DurationMinutes:        90,
		MaxAbsencesAllowed:     3,
		AcceptanceRadiusMeters: 5,
		AllowedNetworks:        models.StringListJSON([]string{"CampusWiFi"}),
		JoinCode:               joinCode,
	}
	if err := database.DB.Create(&class).Error; err != nil {
		log.Printf("Error seeding demo class: %v", err)
		return
	}

	for _, draft := range services.GenerateClassSessions(&class) {
		session := draft
		if err := database.DB.Create(&session).Error; err != nil {
			log.Printf("Error seeding session for %s: %v", session.SessionDate.Format("2006-01-02"), err)
		}
	}

	var students []models.User
	if err := database.DB.Where("role = ?", "student").Find(&students).Error; err != nil {
		log.Printf("Error loading demo students: %v", err)
		return
	}
	for _, student := range students {
		enrollment := models.Enrollment{
			ClassID:     class.ID,
			StudentID:   student.ID,
			Approved:    true,
			RequestedAt: time.Now(),
		}
		if err := database.DB.Create(&enrollment).Error; err != nil {
			log.Printf("Error enrolling student %s: %v", student.Username, err)
		}
	}

	log.Printf("Demo class seeded with join code %s", class.JoinCode)
}
