package events

import (
	"context"
	"encoding/json"
	"time"

	"storefront-be/internal/logger"

	"github.com/google/uuid"
)

const (
	OrderPlaced        = "order.placed"
	PaymentResolved    = "payment.resolved"
	OrderStatusChanged = "order.status_changed"
)

const producerName = "storefront-api"

// Envelope wraps every event published to the order topic.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Publisher delivers events without blocking or failing the caller.
type Publisher interface {
	Publish(ctx context.Context, ev Envelope)
}

// New builds an envelope keyed by orderID. The trace id is taken from
// the request id on ctx.
func New(ctx context.Context, eventType, orderID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producerName,
		TraceID:       logger.RequestIDFrom(ctx),
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}

type OrderPlacedPayload struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	UserID        *uint  `json:"user_id,omitempty"`
	Subtotal      int64  `json:"subtotal"`
	ShippingFee   int64  `json:"shipping_fee"`
	Total         int64  `json:"total"`
	PaymentMethod string `json:"payment_method"`
}

type PaymentResolvedPayload struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	Provider      string `json:"provider"`
	PaymentStatus string `json:"payment_status"`
	TransactionID string `json:"transaction_id,omitempty"`
	Amount        int64  `json:"amount"`
}

type OrderStatusChangedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	From        string `json:"from"`
	To          string `json:"to"`
	ChangedBy   *uint  `json:"changed_by,omitempty"`
	Note        string `json:"note,omitempty"`
}

// Nop discards events. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Envelope) {}
