package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/verdictlabs/verdict-api/internal/config"
	"github.com/verdictlabs/verdict-api/internal/dto"
	"github.com/verdictlabs/verdict-api/internal/handler"
	"github.com/verdictlabs/verdict-api/internal/service"
)

func TestHealthCheckReportsCounts(t *testing.T) {
	cfg := config.Config{AppName: "Verdict API", AppEnv: "test"}
	sessions := service.NewSessionService(10, nil, nil, "", zerolog.Nop())

	client := sessions.Connect()
	defer client.Close()
	_, err := sessions.Join(client, dto.JoinSessionRequest{SessionID: "room-1", Username: "Ada"})
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/api/v1/health", handler.HealthCheck(cfg, sessions, []string{"heuristic-scanner"}, time.Now().Add(-time.Minute)))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Success bool                   `json:"success"`
		Data    handler.HealthResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()

	require.True(t, payload.Success)
	require.Equal(t, "ok", payload.Data.Status)
	require.Equal(t, "Verdict API", payload.Data.Service)
	require.Equal(t, 1, payload.Data.ActiveSessions)
	require.Equal(t, 1, payload.Data.ConnectedUsers)
	require.Equal(t, []string{"heuristic-scanner"}, payload.Data.Agents)
	require.Greater(t, payload.Data.UptimeSeconds, 0.0)
}
