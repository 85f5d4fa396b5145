package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-inventory/internal/reservations"
	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-inventory/pkg/errors"
	"github.com/angelmondragon/packfinderz-inventory/pkg/logger"
	"github.com/angelmondragon/packfinderz-inventory/pkg/metrics"
	"github.com/angelmondragon/packfinderz-inventory/pkg/outbox"
	"github.com/angelmondragon/packfinderz-inventory/pkg/outbox/payloads"
)

// ConsumerName scopes idempotency markers for this worker.
const ConsumerName = "inventory-orders"

const eventTypeAttribute = "event_type"

type coordinator interface {
	HoldAll(ctx context.Context, orderID string, items map[string]int, ttl time.Duration) (*reservations.BatchResult, error)
	ConfirmAll(ctx context.Context, orderID string) (*reservations.BatchResult, error)
	CancelAll(ctx context.Context, orderID string) (*reservations.BatchResult, error)
}

type reservationLister interface {
	ListByOrder(ctx context.Context, orderID string) ([]reservations.ReservationDTO, error)
}

type idempotencyRunner interface {
	Run(ctx context.Context, consumer, eventID string, fn func(context.Context) error) (bool, error)
}

type payloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error)
}

// Outcome says what happened to one delivery. Every outcome except
// OutcomeRetry is acked.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeRejected  Outcome = "rejected"
	OutcomeRetry     Outcome = "retry"
)

// Message is the transport-neutral view of one delivery.
type Message struct {
	ID         string
	Attributes map[string]string
	Data       []byte
}

type HandlerParams struct {
	Coordinator  coordinator
	Reservations reservationLister
	Idempotency  idempotencyRunner
	Decoder      payloadDecoder
	Metrics      *metrics.ConsumerMetrics
	Logger       *logger.Logger
	// HoldTTL is passed to HoldAll; zero uses the manager default.
	HoldTTL time.Duration
}

// Handler maps order events onto batch reservation calls.
type Handler struct {
	coordinator  coordinator
	reservations reservationLister
	idempotency  idempotencyRunner
	decoder      payloadDecoder
	metrics      *metrics.ConsumerMetrics
	logg         *logger.Logger
	holdTTL      time.Duration
	tracer       trace.Tracer
}

func NewHandler(params HandlerParams) (*Handler, error) {
	if params.Coordinator == nil {
		return nil, fmt.Errorf("batch coordinator required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation lister required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Decoder == nil {
		return nil, fmt.Errorf("payload decoder required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Handler{
		coordinator:  params.Coordinator,
		reservations: params.Reservations,
		idempotency:  params.Idempotency,
		decoder:      params.Decoder,
		metrics:      params.Metrics,
		logg:         params.Logger,
		holdTTL:      params.HoldTTL,
		tracer:       otel.Tracer("inventory/consumers/orders"),
	}, nil
}

// Handle processes one delivery. Malformed and unknown events are acked so
// they never block the subscription; only storage failures ask for
// redelivery.
func (h *Handler) Handle(ctx context.Context, msg Message) Outcome {
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Attributes))
	rawType := msg.Attributes[eventTypeAttribute]
	ctx, span := h.tracer.Start(ctx, "orders.handle", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.message.id", msg.ID),
			attribute.String("inventory.event_type", rawType),
		))
	defer span.End()

	logCtx := h.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": rawType,
	})

	outcome := h.handle(ctx, logCtx, rawType, msg)
	label := rawType
	if outcome == OutcomeSkipped {
		label = "other"
	}
	h.metrics.Inc(label, string(outcome))
	span.SetAttributes(attribute.String("inventory.outcome", string(outcome)))
	if outcome == OutcomeRetry {
		span.SetStatus(codes.Error, "redelivery requested")
	}
	return outcome
}

func (h *Handler) handle(ctx, logCtx context.Context, rawType string, msg Message) Outcome {
	eventType, err := enums.ParseOutboxEventType(rawType)
	if err != nil || !consumes(eventType) {
		h.logg.Debug(logCtx, "skipping event not handled by inventory")
		return OutcomeSkipped
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		h.logg.Error(logCtx, "failed to decode envelope", err)
		return OutcomeRejected
	}
	if strings.TrimSpace(envelope.EventID) == "" {
		h.logg.Warn(logCtx, "envelope missing event id")
		return OutcomeRejected
	}
	version := envelope.Version
	if version == 0 {
		version = outbox.EnvelopeVersion
	}
	logCtx = h.logg.WithField(logCtx, "event_id", envelope.EventID)

	payload, err := h.decoder.Decode(eventType, version, envelope.Data)
	if err != nil {
		h.logg.Error(logCtx, "failed to decode payload", err)
		return OutcomeRejected
	}

	skipped, err := h.idempotency.Run(ctx, ConsumerName, envelope.EventID, func(ctx context.Context) error {
		return h.dispatch(ctx, logCtx, payload)
	})
	if err != nil {
		h.logg.Error(logCtx, "order event handling failed; requesting redelivery", err)
		return OutcomeRetry
	}
	if skipped {
		h.logg.Info(logCtx, "event already processed")
		return OutcomeDuplicate
	}
	return OutcomeProcessed
}

// dispatch returns an error only when a retry could succeed. Business
// rejections are logged and swallowed so the marker stays set.
func (h *Handler) dispatch(ctx, logCtx context.Context, payload any) error {
	var (
		result *reservations.BatchResult
		err    error
		action string
	)
	switch event := payload.(type) {
	case *payloads.OrderCreatedEvent:
		action = "hold"
		logCtx = h.logg.WithOrderID(logCtx, event.OrderID)
		var items map[string]int
		items, err = h.pendingLines(ctx, event)
		if err == nil && len(items) > 0 {
			result, err = h.coordinator.HoldAll(ctx, event.OrderID, items, h.holdTTL)
		}
	case *payloads.OrderPaidEvent:
		action = "confirm"
		logCtx = h.logg.WithOrderID(logCtx, event.OrderID)
		result, err = h.coordinator.ConfirmAll(ctx, event.OrderID)
	case *payloads.OrderCanceledEvent:
		action = "cancel"
		logCtx = h.logg.WithFields(h.logg.WithOrderID(logCtx, event.OrderID), map[string]any{"reason": event.Reason})
		result, err = h.coordinator.CancelAll(ctx, event.OrderID)
	case *payloads.PaymentFailedEvent:
		action = "cancel"
		logCtx = h.logg.WithFields(h.logg.WithOrderID(logCtx, event.OrderID), map[string]any{"reason": event.Reason})
		result, err = h.coordinator.CancelAll(ctx, event.OrderID)
	default:
		return pkgerrors.Newf(pkgerrors.CodeInternal, "unexpected payload %T", payload)
	}

	logCtx = h.logg.WithField(logCtx, "action", action)
	if result != nil {
		logCtx = h.logg.WithFields(logCtx, map[string]any{
			"processed": len(result.Processed),
			"failed":    len(result.Failed),
		})
	}
	if err != nil {
		if retryable(err) {
			return err
		}
		h.logg.Warn(h.logg.WithField(logCtx, "error", err.Error()), "order event rejected by inventory")
		return nil
	}
	h.logg.Info(logCtx, "order event applied")
	return nil
}

// pendingLines folds duplicate lines and drops items the order already holds,
// so a redelivered order_created never holds stock twice.
func (h *Handler) pendingLines(ctx context.Context, event *payloads.OrderCreatedEvent) (map[string]int, error) {
	items := make(map[string]int, len(event.Items))
	for _, line := range event.Items {
		itemID := strings.TrimSpace(line.ItemID)
		if itemID == "" || line.Quantity <= 0 {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "order %s has an invalid line", event.OrderID)
		}
		items[itemID] += line.Quantity
	}
	if len(items) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "order %s has no lines", event.OrderID)
	}

	existing, err := h.reservations.ListByOrder(ctx, event.OrderID)
	if err != nil {
		return nil, err
	}
	for _, res := range existing {
		if res.Status == enums.ReservationStatusPending || res.Status == enums.ReservationStatusConfirmed {
			delete(items, res.ItemID)
		}
	}
	return items, nil
}

func consumes(eventType enums.OutboxEventType) bool {
	switch eventType {
	case enums.EventOrderCreated, enums.EventOrderPaid, enums.EventOrderCanceled, enums.EventPaymentFailed:
		return true
	}
	return false
}

func retryable(err error) bool {
	for _, e := range multierr.Errors(err) {
		typed := pkgerrors.As(e)
		if typed == nil {
			return true
		}
		switch typed.Code() {
		case pkgerrors.CodeDependency, pkgerrors.CodeInternal:
			return true
		}
	}
	return false
}
