package v16

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/volthu/csms/internal/ports"
)

// Measurands extracted from MeterValues frames.
const (
	measurandEnergy  = "Energy.Active.Import.Register"
	measurandPower   = "Power.Active.Import"
	measurandCurrent = "Current.Import"
)

// ExtractChargePointID pulls the station identity out of a
// BootNotification payload for connections that arrived on the
// legacy path without an identity in the URL. First non-empty serial
// wins.
func ExtractChargePointID(payload json.RawMessage) string {
	var req struct {
		ChargeBoxSerialNumber   string `json:"chargeBoxSerialNumber"`
		ChargePointSerialNumber string `json:"chargePointSerialNumber"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return ""
	}
	if serial := strings.TrimSpace(req.ChargeBoxSerialNumber); serial != "" {
		return serial
	}
	return strings.TrimSpace(req.ChargePointSerialNumber)
}

// parseTimestamp accepts the RFC3339 variants stations actually send.
// Returns nil for anything unparseable; callers fall back to server
// time.
func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

type sampledValue struct {
	Value     string `json:"value"`
	Measurand string `json:"measurand,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Unit      string `json:"unit,omitempty"`
}

type meterValueEntry struct {
	Timestamp    string         `json:"timestamp"`
	SampledValue []sampledValue `json:"sampledValue"`
}

// aggregateMeasurand extracts one measurand from a sampledValue list.
// A non-phase entry wins outright; otherwise per-phase entries are
// summed. Returns nil when the measurand is absent or unparseable.
func aggregateMeasurand(values []sampledValue, measurand string) *float64 {
	var phaseSum float64
	sawPhase := false

	for _, sv := range values {
		m := sv.Measurand
		// OCPP defaults an omitted measurand to the energy register.
		if m == "" {
			m = measurandEnergy
		}
		if m != measurand {
			continue
		}

		v, err := strconv.ParseFloat(strings.TrimSpace(sv.Value), 64)
		if err != nil {
			continue
		}

		if sv.Phase == "" {
			return &v
		}
		phaseSum += v
		sawPhase = true
	}

	if sawPhase {
		return &phaseSum
	}
	return nil
}

// parseMeterValues turns a raw MeterValues payload into normalized
// readings, one per meterValue entry.
func parseMeterValues(payload json.RawMessage, now time.Time) (ports.MeterValuesInput, error) {
	var req struct {
		ConnectorID   *int              `json:"connectorId"`
		TransactionID *int              `json:"transactionId,omitempty"`
		MeterValue    []meterValueEntry `json:"meterValue"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return ports.MeterValuesInput{}, err
	}

	in := ports.MeterValuesInput{
		ConnectorID:   req.ConnectorID,
		TransactionID: req.TransactionID,
	}
	for _, entry := range req.MeterValue {
		reading := ports.MeterReading{
			Timestamp:     now,
			EnergyWhTotal: aggregateMeasurand(entry.SampledValue, measurandEnergy),
			PowerW:        aggregateMeasurand(entry.SampledValue, measurandPower),
			CurrentA:      aggregateMeasurand(entry.SampledValue, measurandCurrent),
		}
		if ts := parseTimestamp(entry.Timestamp); ts != nil {
			reading.Timestamp = *ts
		}
		in.Readings = append(in.Readings, reading)
	}
	return in, nil
}
