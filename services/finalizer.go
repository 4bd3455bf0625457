package services

import (
	"fmt"
	"time"

	"qrattend_go/config"
	"qrattend_go/database"
	"qrattend_go/models"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReconciliationService finalizes attendance for sessions whose time window
// has closed: stale pending rows become absent, and approved enrollees with
// no row at all get an absent row. Runs on a fixed interval for the lifetime
// of the process.
type ReconciliationService struct {
	db   *gorm.DB
	cron *cron.Cron
}

// NewReconciliationService creates a ReconciliationService backed by the
// shared database connection.
func NewReconciliationService() *ReconciliationService {
	return &ReconciliationService{
		db:   database.DB,
		cron: cron.New(),
	}
}

// Start schedules the sweep and begins running it. Call Stop on shutdown.
func (rs *ReconciliationService) Start() error {
	spec := fmt.Sprintf("@every %s", config.AppConfig.SweepInterval)
	if _, err := rs.cron.AddFunc(spec, rs.Sweep); err != nil {
		return err
	}
	rs.cron.Start()
	logrus.WithField("interval", config.AppConfig.SweepInterval.String()).
		Info("Attendance reconciliation sweep started")
	return nil
}

// Stop halts the sweep schedule and waits for a running sweep to finish.
func (rs *ReconciliationService) Stop() {
	ctx := rs.cron.Stop()
	<-ctx.Done()
	logrus.Info("Attendance reconciliation sweep stopped")
}

// Sweep processes every non-canceled session whose window has closed and
// which has not been finalized by an earlier run, so the scan stays
// proportional to recently closed sessions. A failure in one session is
// logged and does not block the others.
func (rs *ReconciliationService) Sweep() {
	now := time.Now()

	var sessions []models.ClassSession
	err := rs.db.Preload("Class").
		Where("canceled = ? AND finalized = ? AND DATE(session_date) <= ?",
			false, false, now.Format("2006-01-02")).
		Find(&sessions).Error
	if err != nil {
		logrus.WithError(err).Error("Reconciliation sweep failed to load sessions")
		return
	}

	var finalized int
	for i := range sessions {
		session := &sessions[i]
		_, end, err := SessionWindow(session, &session.Class)
		if err != nil {
			logrus.WithError(err).WithField("session_id", session.ID).
				Warn("Skipping session with unparseable time")
			continue
		}
		if now.Before(end) {
			continue
		}
		if err := rs.finalizeSession(session, now); err != nil {
			logrus.WithError(err).WithField("session_id", session.ID).
				Error("Failed to finalize session attendance")
			continue
		}
		if err := rs.db.Model(session).Update("finalized", true).Error; err != nil {
			logrus.WithError(err).WithField("session_id", session.ID).
				Error("Failed to mark session finalized")
			continue
		}
		finalized++
	}

	if finalized > 0 {
		logrus.WithField("sessions", finalized).Info("Reconciliation sweep finalized sessions")
	}
}

// finalizeSession enforces the closed-session invariant for one session:
// afterwards every approved enrollee has exactly one attendance row and none
// of them is pending.
func (rs *ReconciliationService) finalizeSession(session *models.ClassSession, now time.Time) error {
	// Stale pending rows with no unresolved request become absent. The
	// update is a per-row compare-and-set so a concurrent approval wins.
	var pendingRows []models.Attendance
	err := rs.db.Where("session_id = ? AND status = ?", session.ID, models.AttendancePending).
		Find(&pendingRows).Error
	if err != nil {
		return err
	}

	for i := range pendingRows {
		row := &pendingRows[i]

		var openRequests int64
		err := rs.db.Model(&models.AttendanceRequest{}).
			Where("session_id = ? AND student_id = ? AND status = ?",
				session.ID, row.StudentID, models.RequestPending).
			Count(&openRequests).Error
		if err != nil {
			return err
		}
		if openRequests > 0 {
			// The claim is still awaiting teacher review.
			continue
		}

		err = rs.db.Model(&models.Attendance{}).
			Where("id = ? AND status = ?", row.ID, models.AttendancePending).
			Updates(map[string]interface{}{
				"status":      models.AttendanceAbsent,
				"recorded_at": now,
			}).Error
		if err != nil {
			return err
		}
	}

	// Approved enrollees with no row at all get a synthesized absent row.
	var enrollments []models.Enrollment
	err = rs.db.Where("class_id = ? AND approved = ?", session.ClassID, true).
		Find(&enrollments).Error
	if err != nil {
		return err
	}

	var recorded []models.Attendance
	err = rs.db.Select("student_id").Where("session_id = ?", session.ID).Find(&recorded).Error
	if err != nil {
		return err
	}
	hasRow := make(map[uint]bool, len(recorded))
	for _, a := range recorded {
		hasRow[a.StudentID] = true
	}

	for _, enrollment := range enrollments {
		if hasRow[enrollment.StudentID] {
			continue
		}
		record := models.Attendance{
			SessionID:  session.ID,
			StudentID:  enrollment.StudentID,
			Status:     models.AttendanceAbsent,
			RecordedAt: now,
		}
		if err := rs.db.Create(&record).Error; err != nil {
			if isDuplicateKey(err) {
				// A concurrent scan created the row; its verdict stands.
				continue
			}
			return err
		}
	}

	return nil
}
