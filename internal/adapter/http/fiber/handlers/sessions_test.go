package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/volthu/csms/internal/domain"
	"github.com/volthu/csms/internal/mocks"
	"github.com/volthu/csms/internal/ports"
)

func newSessionApp(charging *mocks.MockChargingService) *fiber.App {
	h := NewSessionHandler(charging, nil, zap.NewNop())
	app := fiber.New()
	app.Get("/sessions", h.List)
	app.Post("/sessions/stop", h.Stop)
	return app
}

func TestListSessionsFilterMapping(t *testing.T) {
	var got ports.SessionFilter
	charging := &mocks.MockChargingService{
		ListSessionsFunc: func(ctx context.Context, f ports.SessionFilter) ([]domain.ChargeSession, error) {
			got = f
			return []domain.ChargeSession{}, nil
		},
	}
	app := newSessionApp(charging)

	req := httptest.NewRequest("GET", "/sessions?charge_point_id=3&connector_id=1&active_only=true&limit=9000", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	if got.ChargePointID == nil || *got.ChargePointID != 3 {
		t.Errorf("charge_point_id = %v, want 3", got.ChargePointID)
	}
	if got.ConnectorID == nil || *got.ConnectorID != 1 {
		t.Errorf("connector_id = %v, want 1", got.ConnectorID)
	}
	if !got.ActiveOnly {
		t.Error("active_only not applied")
	}
	if got.Limit != 500 {
		t.Errorf("limit = %d, want capped at 500", got.Limit)
	}
}

func TestListSessionsActiveAlias(t *testing.T) {
	var got ports.SessionFilter
	charging := &mocks.MockChargingService{
		ListSessionsFunc: func(ctx context.Context, f ports.SessionFilter) ([]domain.ChargeSession, error) {
			got = f
			return []domain.ChargeSession{}, nil
		},
	}
	app := newSessionApp(charging)

	if _, err := app.Test(httptest.NewRequest("GET", "/sessions?active=true", nil)); err != nil {
		t.Fatalf("request: %v", err)
	}
	if !got.ActiveOnly {
		t.Error("active alias not applied")
	}
}

func TestStopSessionAlreadyFinished(t *testing.T) {
	charging := &mocks.MockChargingService{
		RemoteStopSessionFunc: func(ctx context.Context, sessionID uint) error {
			return ports.ErrSessionAlreadyFinished
		},
	}
	app := newSessionApp(charging)

	req := httptest.NewRequest("POST", "/sessions/stop", strings.NewReader(`{"session_id":42}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 short circuit", resp.StatusCode)
	}

	raw, _ := io.ReadAll(resp.Body)
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body["already_finished"] != true {
		t.Errorf("body = %v, want already_finished true", body)
	}
}
