package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/linkfield/linkfield-api/internal/config"
	"github.com/linkfield/linkfield-api/internal/handler"
	"github.com/linkfield/linkfield-api/internal/utils"
)

func newMetaApp(cfg config.Config) *fiber.App {
	app := fiber.New()
	app.Get("/health", handler.HealthCheck(cfg))
	app.Get("/realtime/config", handler.RealtimeConfig(cfg))
	return app
}

func TestHealthCheck(t *testing.T) {
	app := newMetaApp(config.Config{AppName: "Linkfield API", AppEnv: "test"})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope utils.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.True(t, envelope.Success)

	payload, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var health handler.HealthResponse
	require.NoError(t, json.Unmarshal(payload, &health))

	require.Equal(t, "ok", health.Status)
	require.Equal(t, "Linkfield API", health.Service)
	require.Equal(t, "test", health.Environment)
	require.GreaterOrEqual(t, health.UptimeSeconds, int64(0))
	require.WithinDuration(t, time.Now().UTC(), health.Timestamp, time.Minute)
}

func TestRealtimeConfigAdvertisesReconnectPolicy(t *testing.T) {
	app := newMetaApp(config.Config{
		ReconnectBackoffBase: 2 * time.Second,
		ReconnectBackoffCap:  45 * time.Second,
		ReconnectMaxAttempts: 5,
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/realtime/config", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope utils.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.True(t, envelope.Success)

	payload, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var policy handler.RealtimeConfigResponse
	require.NoError(t, json.Unmarshal(payload, &policy))

	require.Equal(t, int64(2000), policy.BackoffBaseMs)
	require.Equal(t, int64(45000), policy.BackoffCapMs)
	require.Equal(t, 5, policy.MaxAttempts)
}
