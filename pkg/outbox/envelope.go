package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the current envelope schema version. Consumers reject
// other versions.
const EnvelopeVersion = 1

// PayloadEnvelope wraps every outbox payload. EventID doubles as the
// consumer-side dedupe key.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// seal marshals data into a fresh envelope and returns both forms.
func seal(data any, occurredAt time.Time) (PayloadEnvelope, []byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return PayloadEnvelope{}, nil, fmt.Errorf("marshal payload: %w", err)
	}
	envelope := PayloadEnvelope{
		Version:    EnvelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: occurredAt.UTC(),
		Data:       raw,
	}
	sealed, err := json.Marshal(envelope)
	if err != nil {
		return PayloadEnvelope{}, nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return envelope, sealed, nil
}
