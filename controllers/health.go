package controllers

import (
	"qrattend_go/services"

	"github.com/gofiber/fiber/v2"
)

// HealthController exposes the aggregated health endpoint.
type HealthController struct {
	service *services.HealthService
}

// NewHealthController constructs a controller backed by the provided service.
func NewHealthController(service *services.HealthService) *HealthController {
	return &HealthController{service: service}
}

// GetHealthStatus returns the aggregated health report. A critical report
// (database unreachable) answers 503 so load balancers can act on it.
func (hc *HealthController) GetHealthStatus(c *fiber.Ctx) error {
	report := hc.service.Report(c.Context())
	status := fiber.StatusOK
	if report.Status == "critical" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(report)
}
