package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/volthu/csms/internal/ports"
)

type PaymentHandler struct {
	intents ports.IntentService
	log     *zap.Logger
}

func NewPaymentHandler(intents ports.IntentService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		intents: intents,
		log:     log,
	}
}

// StripeWebhook consumes raw provider deliveries. Signature failures
// map to descriptive sub-codes; everything verified returns 200 so the
// provider stops retrying, except infrastructure errors which return
// 5xx to trigger a retry.
func (h *PaymentHandler) StripeWebhook(c *fiber.Ctx) error {
	payload := c.Body()
	sigHeader := c.Get("Stripe-Signature")

	err := h.intents.ProcessStripeWebhook(c.Context(), payload, sigHeader, time.Now().UTC())
	if err == nil {
		return c.JSON(fiber.Map{"ok": true})
	}

	switch {
	case errors.Is(err, ports.ErrProviderUnconfigured):
		return respond(c, fiber.StatusServiceUnavailable, "stripe_webhook_secret_not_configured", "")
	case errors.Is(err, ports.ErrMissingSignatureHeader):
		return respond(c, fiber.StatusBadRequest, "missing_stripe_signature_header", "")
	case errors.Is(err, ports.ErrMalformedSignatureHeader):
		return respond(c, fiber.StatusBadRequest, "invalid_stripe_signature_header", "")
	case errors.Is(err, ports.ErrSignatureTimestampSkew):
		return respond(c, fiber.StatusBadRequest, "stripe_signature_timestamp_out_of_tolerance", "")
	case errors.Is(err, ports.ErrSignatureMismatch):
		return respond(c, fiber.StatusBadRequest, "invalid_stripe_signature", "")
	default:
		h.log.Error("Webhook processing failed", zap.Error(err))
		return err
	}
}
