package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/volthu/csms/internal/ports"
)

// apiError maps a service error onto the REST surface's stable error
// codes. Unknown errors fall through to the global error handler.
func apiError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ports.ErrChargePointNotFound):
		return respond(c, fiber.StatusNotFound, "charge_point_not_found", "")
	case errors.Is(err, ports.ErrSessionNotFound):
		return respond(c, fiber.StatusNotFound, "session_not_found", "")
	case errors.Is(err, ports.ErrIntentNotFound):
		return respond(c, fiber.StatusNotFound, "intent_not_found", "")
	case errors.Is(err, ports.ErrChargePointUnavailable):
		return respond(c, fiber.StatusConflict, "charge_point_not_available", "")
	case errors.Is(err, ports.ErrActiveSessionExists):
		return respond(c, fiber.StatusConflict, "active_session_exists", "")
	case errors.Is(err, ports.ErrRemoteStartRejected):
		return respond(c, fiber.StatusConflict, "remote_start_rejected", "")
	case errors.Is(err, ports.ErrRemoteStopRejected):
		return respond(c, fiber.StatusConflict, "remote_stop_rejected", "")
	case errors.Is(err, ports.ErrMissingOCPPTransactionID):
		return respond(c, fiber.StatusConflict, "missing_ocpp_transaction_id", "")
	case errors.Is(err, ports.ErrInvalidHoldAmount):
		return respond(c, fiber.StatusBadRequest, "invalid_hold_amount", "")
	case errors.Is(err, ports.ErrStopCodeInvalid):
		return respond(c, fiber.StatusBadRequest, "invalid_stop_code", "")
	case errors.Is(err, ports.ErrRemoteStartFailed):
		return respond(c, fiber.StatusBadGateway, "ocpp_remote_start_failed", reason(err, ports.ErrRemoteStartFailed))
	case errors.Is(err, ports.ErrRemoteStopFailed):
		return respond(c, fiber.StatusBadGateway, "ocpp_remote_stop_failed", reason(err, ports.ErrRemoteStopFailed))
	case errors.Is(err, ports.ErrCheckoutCreateFailed):
		return respond(c, fiber.StatusBadGateway, "stripe_checkout_create_failed", "")
	default:
		return err
	}
}

func respond(c *fiber.Ctx, status int, code, reason string) error {
	body := fiber.Map{"error": code}
	if reason != "" {
		body["reason"] = reason
	}
	return c.Status(status).JSON(body)
}

// reason strips the sentinel prefix so the wire carries only the
// underlying cause (e.g. "timeout").
func reason(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
