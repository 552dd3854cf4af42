package domain

import "time"

// WebhookEventType classifies vendor pushes the ingestor understands.
type WebhookEventType string

const (
	WebhookOrderStatus WebhookEventType = "order-status"
	WebhookPayment     WebhookEventType = "payment"
	WebhookMenu        WebhookEventType = "menu"
)

// WebhookEvent is a vendor push after signature verification. EventID is the
// vendor-assigned id; (Provider, EventID) is the dedup key under the vendor's
// at-least-once delivery.
type WebhookEvent struct {
	Provider        ProviderKind     `json:"provider"`
	EventID         string           `json:"event_id"`
	EventType       WebhookEventType `json:"event_type"`
	LocationID      string           `json:"location_id"`
	ProviderOrderID string           `json:"provider_order_id,omitempty"`
	Status          string           `json:"status,omitempty"`
	PaymentStatus   string           `json:"payment_status,omitempty"`
	OccurredAt      time.Time        `json:"occurred_at"`
	RawPayload      []byte           `json:"-"`
	ReceivedAt      time.Time        `json:"received_at"`
	Processed       bool             `json:"processed"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty"`
}

// TerminalFailure reports whether the event communicates a provider-side order
// failure that should trigger the fallback path if it has not fired yet.
func (e WebhookEvent) TerminalFailure() bool {
	if e.EventType != WebhookOrderStatus {
		return false
	}
	switch e.Status {
	case "cancelled", "canceled", "rejected", "failed", "voided":
		return true
	}
	return false
}
