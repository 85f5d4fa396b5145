package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/angelmondragon/packfinderz-inventory/pkg/db/models"
	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
	"github.com/angelmondragon/packfinderz-inventory/pkg/outbox"
	"github.com/angelmondragon/packfinderz-inventory/pkg/outbox/payloads"
)

// EventDescriptor says where an event type is published and how its payload
// decodes.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is an outbox row that passed validation.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry holds the descriptors for outbound inventory events.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func reservationEvent[T any](eventType enums.OutboxEventType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  enums.AggregateReservation,
		Topic:          topic,
		PayloadFactory: func() any { return new(T) },
	}
}

// NewEventRegistry routes every reservation lifecycle event to topic.
func NewEventRegistry(topic string) (*EventRegistry, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errors.New("inventory topic is required")
	}
	descriptors := []EventDescriptor{
		reservationEvent[payloads.ReservationCreatedEvent](enums.EventReservationCreated, topic),
		reservationEvent[payloads.ReservationConfirmedEvent](enums.EventReservationConfirmed, topic),
		reservationEvent[payloads.ReservationCancelledEvent](enums.EventReservationCancelled, topic),
		reservationEvent[payloads.ReservationExpiredEvent](enums.EventReservationExpired, topic),
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is a NonRetryableError: a malformed row stays malformed.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, err := r.descriptorFor(event)
	if err != nil {
		return nil, err
	}
	envelope, err := openEnvelope(event)
	if err != nil {
		return nil, err
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, permanent("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

func (r *EventRegistry) descriptorFor(event models.OutboxEvent) (EventDescriptor, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return desc, permanent("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return desc, permanent("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case strings.TrimSpace(event.AggregateID) == "":
		return desc, permanent("missing aggregate_id")
	}
	return desc, nil
}

func openEnvelope(event models.OutboxEvent) (outbox.PayloadEnvelope, error) {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return envelope, permanent("decode envelope: %w", err)
	}
	if envelope.Version != outbox.EnvelopeVersion {
		return envelope, permanent("unsupported envelope version %d for %s", envelope.Version, event.EventType)
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return envelope, permanent("payload missing for %s", event.EventType)
	}
	return envelope, nil
}
