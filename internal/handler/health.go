package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/archifusion/api/internal/client"
)

const (
	redisDisabled    = "disabled"
	redisOK          = "ok"
	redisUnavailable = "unavailable"
)

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

type HealthHandler struct {
	caps  client.Capabilities
	redis *redis.Client
}

func NewHealthHandler(caps client.Capabilities, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{caps: caps, redis: redisClient}
}

// Health handles GET /health. Upstream modes are reported, not probed.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "ok",
		Services: map[string]string{
			"inference": client.Mode(h.caps.InferenceLive),
			"vision":    client.Mode(h.caps.VisionLive),
			"speech":    client.Mode(h.caps.SpeechLive),
			"redis":     h.redisStatus(c.UserContext()),
		},
	})
}

func (h *HealthHandler) redisStatus(ctx context.Context) string {
	if h.redis == nil {
		return redisDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return redisUnavailable
	}
	return redisOK
}

// Root handles GET /
func Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"timestamp": time.Now().UTC().Format(time.RFC3339)})
}
