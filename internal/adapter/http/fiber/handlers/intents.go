package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/volthu/csms/internal/ports"
)

type IntentHandler struct {
	intents ports.IntentService
	log     *zap.Logger
}

func NewIntentHandler(intents ports.IntentService, log *zap.Logger) *IntentHandler {
	return &IntentHandler{
		intents: intents,
		log:     log,
	}
}

type createIntentReq struct {
	ChargePointID uint   `json:"charge_point_id"`
	ConnectorID   int    `json:"connector_id"`
	Email         string `json:"email"`
	HoldAmountHUF int    `json:"hold_amount_huf"`
}

func (h *IntentHandler) Create(c *fiber.Ctx) error {
	var req createIntentReq
	if err := c.BodyParser(&req); err != nil {
		return respond(c, fiber.StatusBadRequest, "invalid_body", "")
	}
	if req.ChargePointID == 0 {
		return respond(c, fiber.StatusBadRequest, "missing_charge_point_id", "")
	}
	if !strings.Contains(req.Email, "@") {
		return respond(c, fiber.StatusBadRequest, "invalid_email", "")
	}

	result, err := h.intents.CreateIntent(c.Context(), ports.CreateIntentInput{
		ChargePointID: req.ChargePointID,
		ConnectorID:   req.ConnectorID,
		Email:         req.Email,
		HoldAmountHUF: req.HoldAmountHUF,
	})
	if err != nil {
		return apiError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"intent_id":    result.Intent.ID,
		"checkout_url": result.PaymentURL,
		"expires_at":   result.Intent.ExpiresAt,
	})
}
