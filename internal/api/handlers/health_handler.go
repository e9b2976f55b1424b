package handlers

import (
	"github.com/gofiber/fiber/v2"
	job "github.com/maheshrc27/postflow/internal/jobs"
)

type HealthHandler struct {
	h *job.Health
}

func NewHealthHandler(h *job.Health) *HealthHandler {
	return &HealthHandler{h: h}
}

// Health reports 503 while any tracked pass or publisher is unhealthy.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	status := fiber.StatusOK
	state := "ok"
	if !h.h.IsOverallHealthy() {
		status = fiber.StatusServiceUnavailable
		state = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status":     state,
		"components": h.h.GetAllStatuses(),
	})
}
