// Package kafka carries shortcart events over Kafka: a JSON envelope, a
// producer, a retrying consumer with dead-lettering and an idempotency guard.
package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TopicPrefix namespaces every shortcart topic.
const TopicPrefix = "shortcart"

// Topic builds "shortcart.<domain>.<action>".
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}

// Event is the envelope published on every topic. Key determines the
// partition, so all events of one aggregate stay ordered.
type Event struct {
	ID             string            `json:"event_id"`
	Type           string            `json:"event_type"`
	Key            string            `json:"key"`
	OrganizationID string            `json:"organization_id,omitempty"`
	Source         string            `json:"source"`
	Version        int               `json:"version"`
	OccurredAt     time.Time         `json:"occurred_at"`
	CorrelationID  string            `json:"correlation_id,omitempty"`
	Data           json.RawMessage   `json:"data"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

func NewEvent(eventType, key, source string, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", eventType, err)
	}
	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        key,
		Source:     source,
		Version:    1,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}, nil
}

func (e *Event) WithOrganization(id string) *Event {
	e.OrganizationID = id
	return e
}

func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

func UnmarshalEvent(b []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("unmarshal event: missing event_type")
	}
	return &e, nil
}

// DecodeData unmarshals the payload into target.
func (e *Event) DecodeData(target any) error {
	if err := json.Unmarshal(e.Data, target); err != nil {
		return fmt.Errorf("decode %s data: %w", e.Type, err)
	}
	return nil
}
