package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the envelope layout version stamped on every event.
const SchemaVersion = 1

// Event is the envelope for every message published by this module.
// AggregateVersion lets consumers drop events that arrive out of order.
type Event struct {
	EventID          string            `json:"event_id"`
	EventType        string            `json:"event_type"`
	AggregateID      string            `json:"aggregate_id"`
	AggregateType    string            `json:"aggregate_type"`
	AggregateVersion int64             `json:"aggregate_version,omitempty"`
	SchemaVersion    int               `json:"schema_version"`
	Timestamp        time.Time         `json:"timestamp"`
	Source           string            `json:"source"`
	CorrelationID    string            `json:"correlation_id,omitempty"`
	Data             json.RawMessage   `json:"data"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates an event with a fresh id and the current UTC time.
func NewEvent(eventType, aggregateID, aggregateType, source string, data any) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		SchemaVersion: SchemaVersion,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          dataBytes,
	}, nil
}

// WithCorrelationID sets the correlation ID on the event.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithAggregateVersion records the aggregate version the event describes.
func (e *Event) WithAggregateVersion(v int64) *Event {
	e.AggregateVersion = v
	return e
}

// WithMetadata adds a key-value pair to the event metadata.
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Marshal serializes the event to JSON bytes.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
