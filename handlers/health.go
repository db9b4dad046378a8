package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/biosecret/go-tasks/cache"
)

// HealthResponse is the /health body. Cache is only present when the
// list cache is enabled.
type HealthResponse struct {
	Status   string       `json:"status" example:"ok"`
	Database string       `json:"database,omitempty" example:"unreachable"`
	Cache    *CacheReport `json:"cache,omitempty"`
}

type CacheReport struct {
	Status string `json:"status" example:"ok"`
	cache.StatsSnapshot
}

// HandleHealthCheck godoc
// @Summary      Health check
// @Description  A down cache only degrades the service; a down database makes it unavailable.
// @Tags         health
// @Produce      json
// @Success      200  {object}  handlers.HealthResponse
// @Failure      503  {object}  handlers.HealthResponse
// @Router       /health [get]
func (h *Handlers) HandleHealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok"}
	if h.cache != nil {
		report := &CacheReport{Status: "ok", StatsSnapshot: h.cache.Stats()}
		if err := h.cache.Ping(ctx); err != nil {
			report.Status = "unreachable"
			resp.Status = "degraded"
		}
		resp.Cache = report
	}

	if err := h.db.Ping(ctx); err != nil {
		resp.Status = "unavailable"
		resp.Database = "unreachable"
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}
