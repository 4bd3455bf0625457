package services

import (
	"context"
	"runtime"
	"time"

	"qrattend_go/config"
	"qrattend_go/database"
)

const (
	overallStatusOK       = "ok"
	overallStatusDegraded = "degraded"
	overallStatusCritical = "critical"

	dependencyStatusUp       = "up"
	dependencyStatusDown     = "down"
	dependencyStatusDisabled = "disabled"

	healthCheckTimeout = 1500 * time.Millisecond
)

// HealthService aggregates application health information for reporting endpoints.
type HealthService struct {
	serviceName string
	version     string
	startTime   time.Time
}

// HealthReport represents the JSON response for health endpoints.
type HealthReport struct {
	Status        string             `json:"status"`
	Service       string             `json:"service"`
	Version       string             `json:"version"`
	Environment   string             `json:"environment"`
	Time          time.Time          `json:"time"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	Dependencies  []DependencyStatus `json:"dependencies"`
	Goroutines    int                `json:"goroutines"`
}

// DependencyStatus captures the health of a single external dependency.
type DependencyStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// NewHealthService creates a new HealthService.
func NewHealthService(serviceName, version string) *HealthService {
	return &HealthService{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
	}
}

// Report checks the database and Redis and assembles a health report. The
// database is required; Redis is optional, so a missing client only degrades
// the status.
func (s *HealthService) Report(ctx context.Context) *HealthReport {
	now := time.Now()
	report := &HealthReport{
		Status:        overallStatusOK,
		Service:       s.serviceName,
		Version:       s.version,
		Environment:   config.AppConfig.AppEnv,
		Time:          now,
		UptimeSeconds: now.Sub(s.startTime).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
	}

	report.Dependencies = append(report.Dependencies, s.checkDatabase(ctx))
	report.Dependencies = append(report.Dependencies, s.checkRedis(ctx))

	for _, dep := range report.Dependencies {
		if dep.Status != dependencyStatusDown {
			continue
		}
		if dep.Name == "mysql" {
			report.Status = overallStatusCritical
		} else if report.Status == overallStatusOK {
			report.Status = overallStatusDegraded
		}
	}
	return report
}

func (s *HealthService) checkDatabase(ctx context.Context) DependencyStatus {
	dep := DependencyStatus{Name: "mysql", Status: dependencyStatusUp}

	sqlDB, err := database.DB.DB()
	if err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = err.Error()
		return dep
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	start := time.Now()
	if err := sqlDB.PingContext(ctx); err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = err.Error()
	}
	dep.LatencyMs = time.Since(start).Milliseconds()
	return dep
}

func (s *HealthService) checkRedis(ctx context.Context) DependencyStatus {
	dep := DependencyStatus{Name: "redis", Status: dependencyStatusUp}

	rc := database.GetRedisClient()
	if rc == nil {
		dep.Status = dependencyStatusDisabled
		return dep
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	start := time.Now()
	if err := rc.Ping(ctx).Err(); err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = err.Error()
	}
	dep.LatencyMs = time.Since(start).Milliseconds()
	return dep
}
