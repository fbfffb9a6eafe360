package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/volthu/csms/internal/ports"
)

type SessionHandler struct {
	charging ports.ChargingService
	intents  ports.IntentService
	log      *zap.Logger
}

func NewSessionHandler(charging ports.ChargingService, intents ports.IntentService, log *zap.Logger) *SessionHandler {
	return &SessionHandler{
		charging: charging,
		intents:  intents,
		log:      log,
	}
}

func (h *SessionHandler) List(c *fiber.Ctx) error {
	var filter ports.SessionFilter

	if v := c.Query("charge_point_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return respond(c, fiber.StatusBadRequest, "invalid_charge_point_id", "")
		}
		cpID := uint(id)
		filter.ChargePointID = &cpID
	}
	if v := c.Query("connector_id"); v != "" {
		conn, err := strconv.Atoi(v)
		if err != nil {
			return respond(c, fiber.StatusBadRequest, "invalid_connector_id", "")
		}
		filter.ConnectorID = &conn
	}
	filter.ActiveOnly = c.QueryBool("active_only") || c.QueryBool("active")
	filter.Limit = c.QueryInt("limit", 100)
	if filter.Limit > 500 {
		filter.Limit = 500
	}
	filter.Offset = c.QueryInt("offset", 0)

	sessions, err := h.charging.ListSessions(c.Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(sessions)
}

func (h *SessionHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return respond(c, fiber.StatusBadRequest, "invalid_session_id", "")
	}

	session, err := h.charging.GetSession(c.Context(), uint(id))
	if err != nil {
		return apiError(c, err)
	}
	return c.JSON(session)
}

func (h *SessionHandler) ActiveByChargePoint(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return respond(c, fiber.StatusBadRequest, "invalid_charge_point_id", "")
	}

	var connector *int
	if v := c.Query("connector_id"); v != "" {
		conn, err := strconv.Atoi(v)
		if err != nil {
			return respond(c, fiber.StatusBadRequest, "invalid_connector_id", "")
		}
		connector = &conn
	}

	session, err := h.charging.ActiveSession(c.Context(), uint(id), connector)
	if err != nil {
		return err
	}
	if session == nil {
		return respond(c, fiber.StatusNotFound, "no_active_session", "")
	}
	return c.JSON(session)
}

type startSessionReq struct {
	ChargePointID uint   `json:"charge_point_id"`
	ConnectorID   int    `json:"connector_id"`
	UserTag       string `json:"user_tag"`
}

// Start is the operator surface over RemoteStartTransaction. The
// session row itself appears when the station reports StartTransaction.
func (h *SessionHandler) Start(c *fiber.Ctx) error {
	var req startSessionReq
	if err := c.BodyParser(&req); err != nil {
		return respond(c, fiber.StatusBadRequest, "invalid_body", "")
	}
	if req.ChargePointID == 0 {
		return respond(c, fiber.StatusBadRequest, "missing_charge_point_id", "")
	}

	err := h.charging.RemoteStartSession(c.Context(), ports.RemoteStartInput{
		ChargePointID: req.ChargePointID,
		ConnectorID:   req.ConnectorID,
		UserTag:       req.UserTag,
	})
	if err != nil {
		return apiError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "status": "Accepted"})
}

type stopSessionReq struct {
	SessionID uint `json:"session_id"`
}

func (h *SessionHandler) Stop(c *fiber.Ctx) error {
	var req stopSessionReq
	if err := c.BodyParser(&req); err != nil {
		return respond(c, fiber.StatusBadRequest, "invalid_body", "")
	}
	if req.SessionID == 0 {
		return respond(c, fiber.StatusBadRequest, "missing_session_id", "")
	}

	if err := h.charging.RemoteStopSession(c.Context(), req.SessionID); err != nil {
		if errors.Is(err, ports.ErrSessionAlreadyFinished) {
			return c.JSON(fiber.Map{"ok": true, "already_finished": true})
		}
		return apiError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "status": "Accepted"})
}

type redeemStopReq struct {
	Email    string `json:"email"`
	StopCode string `json:"stop_code"`
}

// RedeemStop lets an anonymous payer end their session with the emailed
// stop code.
func (h *SessionHandler) RedeemStop(c *fiber.Ctx) error {
	var req redeemStopReq
	if err := c.BodyParser(&req); err != nil {
		return respond(c, fiber.StatusBadRequest, "invalid_body", "")
	}
	if req.Email == "" || req.StopCode == "" {
		return respond(c, fiber.StatusBadRequest, "missing_email_or_stop_code", "")
	}

	if err := h.intents.RedeemStopCode(c.Context(), req.Email, req.StopCode); err != nil {
		return apiError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}
