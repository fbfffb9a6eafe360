package v16

import (
	"encoding/json"
	"testing"
	"time"
)

func TestExtractChargePointID(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"charge box serial wins", `{"chargeBoxSerialNumber":"BOX1","chargePointSerialNumber":"CP1"}`, "BOX1"},
		{"falls back to charge point serial", `{"chargePointSerialNumber":"CP1"}`, "CP1"},
		{"padded serial is trimmed", `{"chargeBoxSerialNumber":"  BOX1 "}`, "BOX1"},
		{"whitespace-only box serial falls through", `{"chargeBoxSerialNumber":"  ","chargePointSerialNumber":" CP1 "}`, "CP1"},
		{"empty payload", `{}`, ""},
		{"invalid json", `not json`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractChargePointID(json.RawMessage(tt.payload)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAggregateMeasurandNonPhaseWins(t *testing.T) {
	values := []sampledValue{
		{Value: "100", Measurand: "Power.Active.Import", Phase: "L1"},
		{Value: "300", Measurand: "Power.Active.Import"},
		{Value: "100", Measurand: "Power.Active.Import", Phase: "L2"},
	}

	got := aggregateMeasurand(values, "Power.Active.Import")
	if got == nil || *got != 300 {
		t.Fatalf("got %v, want 300", got)
	}
}

func TestAggregateMeasurandSumsPhases(t *testing.T) {
	values := []sampledValue{
		{Value: "5.5", Measurand: "Current.Import", Phase: "L1"},
		{Value: "5.5", Measurand: "Current.Import", Phase: "L2"},
		{Value: "5.0", Measurand: "Current.Import", Phase: "L3"},
	}

	got := aggregateMeasurand(values, "Current.Import")
	if got == nil || *got != 16 {
		t.Fatalf("got %v, want 16", got)
	}
}

func TestAggregateMeasurandDefaultsToEnergy(t *testing.T) {
	// Omitted measurand means the energy register in OCPP 1.6.
	values := []sampledValue{{Value: "1003500"}}

	got := aggregateMeasurand(values, measurandEnergy)
	if got == nil || *got != 1003500 {
		t.Fatalf("got %v, want 1003500", got)
	}
	if other := aggregateMeasurand(values, measurandPower); other != nil {
		t.Errorf("power = %v, want nil", *other)
	}
}

func TestAggregateMeasurandAbsent(t *testing.T) {
	values := []sampledValue{{Value: "42", Measurand: "Voltage"}}
	if got := aggregateMeasurand(values, measurandEnergy); got != nil {
		t.Errorf("got %v, want nil", *got)
	}
}

func TestParseMeterValues(t *testing.T) {
	payload := `{
		"connectorId": 0,
		"transactionId": 12,
		"meterValue": [{
			"timestamp": "2026-03-01T10:15:00Z",
			"sampledValue": [
				{"value": "1003500", "measurand": "Energy.Active.Import.Register", "unit": "Wh"},
				{"value": "11000", "measurand": "Power.Active.Import", "unit": "W"},
				{"value": "16", "measurand": "Current.Import", "unit": "A"}
			]
		}]
	}`

	now := time.Now().UTC()
	in, err := parseMeterValues(json.RawMessage(payload), now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if in.ConnectorID == nil || *in.ConnectorID != 0 {
		t.Errorf("connector = %v, want 0", in.ConnectorID)
	}
	if in.TransactionID == nil || *in.TransactionID != 12 {
		t.Errorf("transaction id = %v, want 12", in.TransactionID)
	}
	if len(in.Readings) != 1 {
		t.Fatalf("readings = %d, want 1", len(in.Readings))
	}

	r := in.Readings[0]
	if r.EnergyWhTotal == nil || *r.EnergyWhTotal != 1003500 {
		t.Errorf("energy = %v, want 1003500", r.EnergyWhTotal)
	}
	if r.PowerW == nil || *r.PowerW != 11000 {
		t.Errorf("power = %v, want 11000", r.PowerW)
	}
	if r.CurrentA == nil || *r.CurrentA != 16 {
		t.Errorf("current = %v, want 16", r.CurrentA)
	}
	want := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	if !r.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", r.Timestamp, want)
	}
}

func TestParseMeterValuesBadTimestampFallsBack(t *testing.T) {
	payload := `{"connectorId":1,"meterValue":[{"timestamp":"garbage","sampledValue":[{"value":"10"}]}]}`
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	in, err := parseMeterValues(json.RawMessage(payload), now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !in.Readings[0].Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want fallback %v", in.Readings[0].Timestamp, now)
	}
}

func TestParseTimestampVariants(t *testing.T) {
	for _, s := range []string{
		"2026-03-01T10:00:00Z",
		"2026-03-01T10:00:00.123Z",
		"2026-03-01T10:00:00+02:00",
		"2026-03-01T10:00:00",
	} {
		if parseTimestamp(s) == nil {
			t.Errorf("parseTimestamp(%q) = nil", s)
		}
	}
	if parseTimestamp("") != nil {
		t.Error("empty string should parse to nil")
	}
	if parseTimestamp("yesterday") != nil {
		t.Error("garbage should parse to nil")
	}
}
