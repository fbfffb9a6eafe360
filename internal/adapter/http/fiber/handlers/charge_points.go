package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/volthu/csms/internal/domain"
	"github.com/volthu/csms/internal/ports"
)

// ConnectionProbe reports whether a station currently holds a live
// OCPP transport.
type ConnectionProbe interface {
	Connected(ocppID string) bool
}

type ChargePointHandler struct {
	stations ports.StationService
	registry ConnectionProbe
	log      *zap.Logger
}

func NewChargePointHandler(stations ports.StationService, registry ConnectionProbe, log *zap.Logger) *ChargePointHandler {
	return &ChargePointHandler{
		stations: stations,
		registry: registry,
		log:      log,
	}
}

// chargePointView is the API projection: stored fields plus the derived
// status and live connection flag.
type chargePointView struct {
	domain.ChargePoint
	EffectiveStatus domain.ChargePointStatus `json:"effective_status"`
	Connected       bool                     `json:"connected"`
}

func (h *ChargePointHandler) view(cp domain.ChargePoint, now time.Time) chargePointView {
	return chargePointView{
		ChargePoint:     cp,
		EffectiveStatus: h.stations.EffectiveStatus(&cp, now),
		Connected:       h.registry != nil && h.registry.Connected(cp.OCPPID),
	}
}

func (h *ChargePointHandler) List(c *fiber.Ctx) error {
	cps, err := h.stations.ListChargePoints(c.Context())
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	views := make([]chargePointView, 0, len(cps))
	for _, cp := range cps {
		views = append(views, h.view(cp, now))
	}
	return c.JSON(views)
}

func (h *ChargePointHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return respond(c, fiber.StatusBadRequest, "invalid_charge_point_id", "")
	}

	cp, err := h.stations.GetChargePoint(c.Context(), uint(id))
	if err != nil {
		return apiError(c, err)
	}
	return c.JSON(h.view(*cp, time.Now().UTC()))
}
