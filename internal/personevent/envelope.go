package personevent

import (
	"encoding/json"
	"time"

	"github.com/persondomain/persond/internal/person"
)

// Envelope is the canonical wire shape every command and event travels
// in across the message bus. Field order and naming are stable; new
// optional fields are additive only, never removed or repurposed, so
// that old consumers keep decoding new envelopes.
type Envelope struct {
	MessageID        string          `json:"message_id"`
	CorrelationID    string          `json:"correlation_id"`
	CausationID      string          `json:"causation_id,omitempty"`
	RecordedAt       time.Time       `json:"recorded_at"`
	SchemaVersion    int             `json:"schema_version"`
	Kind             string          `json:"kind"`
	Tag              string          `json:"tag"`
	AggregateID      string          `json:"aggregate_id"`
	AggregateVersion uint64          `json:"aggregate_version"`
	ExpectedVersion  *uint64         `json:"expected_version,omitempty"`
	ReplyTo          string          `json:"reply_to,omitempty"`
	Payload          json.RawMessage `json:"payload"`
}

// CurrentSchemaVersion is stamped on every envelope this build produces.
// Consumers must accept any SchemaVersion <= CurrentSchemaVersion and
// ignore fields they don't recognize within the payload.
const CurrentSchemaVersion = 1

// EnvelopeKindCommand and EnvelopeKindEvent tag the Kind field so a
// single topic can carry both without ambiguity.
const (
	EnvelopeKindCommand = "command"
	EnvelopeKindEvent   = "event"
)

// AggregateIDOf parses the envelope's AggregateID back into a person.ID.
func (e Envelope) AggregateIDOf() (person.ID, error) {
	return person.ParseID(e.AggregateID)
}
