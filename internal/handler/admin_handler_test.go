package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/verdictlabs/verdict-api/internal/dto"
	"github.com/verdictlabs/verdict-api/internal/handler"
	"github.com/verdictlabs/verdict-api/internal/service"
)

func newAdminApp(t *testing.T) (*fiber.App, service.SessionService) {
	t.Helper()

	sessions := service.NewSessionService(10, nil, nil, "", zerolog.Nop())

	app := fiber.New()
	group := app.Group("/api/v1/admin")
	handler.NewAdminHandler(sessions, zerolog.Nop()).Register(group)
	return app, sessions
}

func TestAdminListSessionsEmpty(t *testing.T) {
	app, _ := newAdminApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/sessions", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Success bool                         `json:"success"`
		Data    []dto.SessionSummaryResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()

	require.True(t, payload.Success)
	require.Empty(t, payload.Data)
}

func TestAdminListSessionsReportsMembership(t *testing.T) {
	app, sessions := newAdminApp(t)

	client := sessions.Connect()
	defer client.Close()
	_, err := sessions.Join(client, dto.JoinSessionRequest{SessionID: "room-1", Username: "Ada"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/sessions", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Success bool                         `json:"success"`
		Data    []dto.SessionSummaryResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()

	require.Len(t, payload.Data, 1)
	require.Equal(t, "room-1", payload.Data[0].SessionID)
	require.Equal(t, 1, payload.Data[0].UserCount)
}

func TestAdminSessionDetail(t *testing.T) {
	app, sessions := newAdminApp(t)

	client := sessions.Connect()
	defer client.Close()
	_, err := sessions.Join(client, dto.JoinSessionRequest{SessionID: "room-1", Username: "Ada"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/sessions/room-1", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Success bool                        `json:"success"`
		Data    dto.SessionSnapshotResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()

	require.Equal(t, "room-1", payload.Data.SessionID)
	require.Len(t, payload.Data.Users, 1)
	require.Equal(t, "Ada", payload.Data.Users[0].Name)
}

func TestAdminSessionDetailNotFound(t *testing.T) {
	app, _ := newAdminApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/sessions/ghost", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var payload struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()

	require.False(t, payload.Success)
	require.Equal(t, "session not found", payload.Message)
}
