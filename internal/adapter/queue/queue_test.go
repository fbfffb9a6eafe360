package queue

import (
	"encoding/json"
	"testing"
)

func TestWrapEnvelope(t *testing.T) {
	data, err := Wrap(SubjectSessionStarted, map[string]int{"id": 42})
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Subject != SubjectSessionStarted {
		t.Errorf("subject = %s", env.Subject)
	}
	if env.EventID == "" {
		t.Error("event id missing")
	}
	if env.OccurredAt.IsZero() {
		t.Error("occurred_at missing")
	}

	var payload map[string]int
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["id"] != 42 {
		t.Errorf("payload = %v", payload)
	}

	other, err := Wrap(SubjectSessionStarted, map[string]int{"id": 42})
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	var env2 Envelope
	json.Unmarshal(other, &env2)
	if env2.EventID == env.EventID {
		t.Error("event ids must be unique per publish")
	}
}
