package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event subjects published by the session lifecycle.
const (
	SubjectSessionStarted  = "csms.session.started"
	SubjectSessionFinished = "csms.session.finished"
	SubjectIntentPaid      = "csms.intent.paid"
)

// MessageQueue defines the interface for a message queue adapter
type MessageQueue interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte) error) error
	Close() error
}

// Envelope wraps every published event. The event id lets downstream
// consumers dedupe across redeliveries.
type Envelope struct {
	EventID    string          `json:"event_id"`
	Subject    string          `json:"subject"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Wrap marshals a payload into an enveloped event.
func Wrap(subject string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		EventID:    uuid.NewString(),
		Subject:    subject,
		OccurredAt: time.Now().UTC(),
		Payload:    data,
	})
}
