package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/linkfield/linkfield-api/internal/config"
	"github.com/linkfield/linkfield-api/internal/utils"
)

var processStart = time.Now()

// HealthResponse reports service liveness and how long the process has
// been up.
type HealthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Service       string    `json:"service"`
	Environment   string    `json:"environment"`
	UptimeSeconds int64     `json:"uptime_seconds"`
}

// RealtimeConfigResponse advertises the reconnect policy clients should
// apply when the realtime connection drops.
type RealtimeConfigResponse struct {
	BackoffBaseMs int64 `json:"backoff_base_ms"`
	BackoffCapMs  int64 `json:"backoff_cap_ms"`
	MaxAttempts   int   `json:"max_attempts"`
}

// HealthCheck returns a handler that reports application health information.
func HealthCheck(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:        "ok",
			Timestamp:     time.Now().UTC(),
			Service:       cfg.AppName,
			Environment:   cfg.AppEnv,
			UptimeSeconds: int64(time.Since(processStart).Seconds()),
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}

// RealtimeConfig returns a handler that serves the server-side reconnect
// policy so clients back off the way operators configured.
func RealtimeConfig(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := RealtimeConfigResponse{
			BackoffBaseMs: cfg.ReconnectBackoffBase.Milliseconds(),
			BackoffCapMs:  cfg.ReconnectBackoffCap.Milliseconds(),
			MaxAttempts:   cfg.ReconnectMaxAttempts,
		}

		return utils.SendSuccess(c, "realtime client configuration", payload)
	}
}
