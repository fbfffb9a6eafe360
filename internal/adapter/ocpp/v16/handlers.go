package v16

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/volthu/csms/internal/ports"
)

// Handlers dispatches OCPP 1.6 actions from charge points to the
// domain services and shapes the CALLRESULT payloads.
type Handlers struct {
	stationService  ports.StationService
	chargingService ports.ChargingService
	log             *zap.Logger
}

func NewHandlers(stationService ports.StationService, chargingService ports.ChargingService, log *zap.Logger) *Handlers {
	return &Handlers{
		stationService:  stationService,
		chargingService: chargingService,
		log:             log,
	}
}

// HandleMessage routes an action to its handler and returns the reply
// payload. Unknown actions get a safe empty ack; acceptance policy
// lives in domain state, never at the OCPP level.
func (h *Handlers) HandleMessage(ctx context.Context, chargePointID, action string, payload json.RawMessage) (interface{}, error) {
	switch action {
	case "BootNotification":
		return h.handleBootNotification(ctx, chargePointID, payload)
	case "Heartbeat":
		return h.handleHeartbeat(ctx, chargePointID)
	case "StatusNotification":
		return h.handleStatusNotification(ctx, chargePointID, payload)
	case "FirmwareStatusNotification":
		return h.handleFirmwareStatusNotification(ctx, chargePointID, payload)
	case "StartTransaction":
		return h.handleStartTransaction(ctx, chargePointID, payload)
	case "StopTransaction":
		return h.handleStopTransaction(ctx, chargePointID, payload)
	case "MeterValues":
		return h.handleMeterValues(ctx, chargePointID, payload)
	case "Authorize":
		return h.handleAuthorize(ctx, chargePointID, payload)
	default:
		h.log.Warn("Unknown OCPP 1.6 action",
			zap.String("charge_point_id", chargePointID),
			zap.String("action", action),
		)
		return map[string]interface{}{}, nil
	}
}

type bootNotificationReq struct {
	ChargePointVendor       string `json:"chargePointVendor"`
	ChargePointModel        string `json:"chargePointModel"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
	ChargeBoxSerialNumber   string `json:"chargeBoxSerialNumber,omitempty"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty"`
}

type bootNotificationResp struct {
	Status      string `json:"status"`
	CurrentTime string `json:"currentTime"`
	Interval    int    `json:"interval"`
}

func (h *Handlers) handleBootNotification(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
	var req bootNotificationReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid BootNotification: %w", err)
	}

	h.log.Info("OCPP 1.6 BootNotification",
		zap.String("charge_point_id", chargePointID),
		zap.String("vendor", req.ChargePointVendor),
		zap.String("model", req.ChargePointModel),
	)

	serial := req.ChargeBoxSerialNumber
	if serial == "" {
		serial = req.ChargePointSerialNumber
	}

	interval, err := h.stationService.Boot(ctx, chargePointID, ports.BootInfo{
		Vendor:          req.ChargePointVendor,
		Model:           req.ChargePointModel,
		SerialNumber:    serial,
		FirmwareVersion: req.FirmwareVersion,
	})
	if err != nil {
		return nil, err
	}

	return bootNotificationResp{
		Status:      "Accepted",
		CurrentTime: time.Now().UTC().Format(time.RFC3339),
		Interval:    interval,
	}, nil
}

func (h *Handlers) handleHeartbeat(ctx context.Context, chargePointID string) (interface{}, error) {
	if err := h.stationService.Heartbeat(ctx, chargePointID); err != nil {
		return nil, err
	}
	return map[string]string{
		"currentTime": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

type statusNotificationReq struct {
	ConnectorID int    `json:"connectorId"`
	ErrorCode   string `json:"errorCode"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp,omitempty"`
}

func (h *Handlers) handleStatusNotification(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
	var req statusNotificationReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid StatusNotification: %w", err)
	}

	h.log.Info("OCPP 1.6 StatusNotification",
		zap.String("charge_point_id", chargePointID),
		zap.Int("connector_id", req.ConnectorID),
		zap.String("status", req.Status),
		zap.String("error_code", req.ErrorCode),
	)

	if err := h.stationService.StatusNotification(ctx, chargePointID, req.ConnectorID, req.Status); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

func (h *Handlers) handleFirmwareStatusNotification(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid FirmwareStatusNotification: %w", err)
	}

	h.log.Info("OCPP 1.6 FirmwareStatusNotification",
		zap.String("charge_point_id", chargePointID),
		zap.String("status", req.Status),
	)

	// Acknowledge only; firmware rollout is driven elsewhere. The frame
	// still proves liveness.
	if err := h.stationService.Heartbeat(ctx, chargePointID); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

type startTransactionReq struct {
	ConnectorID *int     `json:"connectorId"`
	IDTag       string   `json:"idTag"`
	MeterStart  *float64 `json:"meterStart"`
	Timestamp   string   `json:"timestamp"`
}

func (h *Handlers) handleStartTransaction(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
	var req startTransactionReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid StartTransaction: %w", err)
	}

	h.log.Info("OCPP 1.6 StartTransaction",
		zap.String("charge_point_id", chargePointID),
		zap.String("id_tag", req.IDTag),
	)

	txID, err := h.chargingService.StartTransaction(ctx, chargePointID, ports.StartTransactionInput{
		ConnectorID:  req.ConnectorID,
		IDTag:        req.IDTag,
		MeterStartWh: req.MeterStart,
		Timestamp:    parseTimestamp(req.Timestamp),
	})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"transactionId": txID,
		"idTagInfo":     map[string]string{"status": "Accepted"},
	}, nil
}

type stopTransactionReq struct {
	TransactionID json.Number `json:"transactionId"`
	MeterStop     *float64    `json:"meterStop"`
	Timestamp     string      `json:"timestamp"`
	Reason        string      `json:"reason,omitempty"`
}

func (h *Handlers) handleStopTransaction(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
	var req stopTransactionReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid StopTransaction: %w", err)
	}

	h.log.Info("OCPP 1.6 StopTransaction",
		zap.String("charge_point_id", chargePointID),
		zap.String("transaction_id", req.TransactionID.String()),
		zap.String("reason", req.Reason),
	)

	err := h.chargingService.StopTransaction(ctx, chargePointID, ports.StopTransactionInput{
		TransactionID: req.TransactionID.String(),
		MeterStopWh:   req.MeterStop,
		Timestamp:     parseTimestamp(req.Timestamp),
		Reason:        req.Reason,
	})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"idTagInfo": map[string]string{"status": "Accepted"},
	}, nil
}

func (h *Handlers) handleMeterValues(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
	in, err := parseMeterValues(payload, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("invalid MeterValues: %w", err)
	}

	connector := "-"
	if in.ConnectorID != nil {
		connector = strconv.Itoa(*in.ConnectorID)
	}
	h.log.Debug("OCPP 1.6 MeterValues",
		zap.String("charge_point_id", chargePointID),
		zap.String("connector_id", connector),
		zap.Int("readings", len(in.Readings)),
	)

	if err := h.chargingService.RecordMeterValues(ctx, chargePointID, in); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

func (h *Handlers) handleAuthorize(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
	var req struct {
		IDTag string `json:"idTag"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid Authorize: %w", err)
	}

	h.log.Info("OCPP 1.6 Authorize",
		zap.String("charge_point_id", chargePointID),
		zap.String("id_tag", req.IDTag),
	)

	// Pay-first flow: authorization happened at checkout, any tag the
	// station presents is accepted.
	return map[string]interface{}{
		"idTagInfo": map[string]string{"status": "Accepted"},
	}, nil
}
