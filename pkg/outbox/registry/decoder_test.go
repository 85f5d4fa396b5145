package registry

import (
	"encoding/json"
	"testing"

	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
	"github.com/angelmondragon/packfinderz-inventory/pkg/outbox/payloads"
)

func TestDecoderRegistry(t *testing.T) {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventOrderCanceled, 2, func(payload json.RawMessage) (any, error) {
		var decoded map[string]string
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	})

	output, err := reg.Decode(enums.EventOrderCanceled, 2, json.RawMessage(`{"reason":"fraud"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outMap, ok := output.(map[string]string); !ok || outMap["reason"] != "fraud" {
		t.Fatalf("unexpected output %+v", output)
	}

	if _, err := reg.Decode(enums.EventOrderCanceled, 1, json.RawMessage(`{}`)); err == nil {
		t.Fatalf("expected error for unregistered version")
	}
}

func TestOrderDecoderRegistry(t *testing.T) {
	reg := NewOrderDecoderRegistry()

	output, err := reg.Decode(enums.EventOrderCreated, 1, json.RawMessage(`{"orderId":"ord-1","items":[{"itemId":"A","quantity":2}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	created, ok := output.(*payloads.OrderCreatedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", output)
	}
	if created.OrderID != "ord-1" || len(created.Items) != 1 || created.Items[0].Quantity != 2 {
		t.Fatalf("payload mismatch %+v", created)
	}

	if _, err := reg.Decode(enums.EventOrderPaid, 1, json.RawMessage(`not-json`)); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := reg.Decode(enums.EventReservationCreated, 1, json.RawMessage(`{}`)); err == nil {
		t.Fatalf("reservation events are not consumed")
	}
}
