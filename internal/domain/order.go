package domain

import (
	"strings"
	"time"
)

// LineItem is one canonical order line. Unit prices are fixed at creation;
// provider clients translate, never reprice.
type LineItem struct {
	MenuItemID string   `json:"menu_item_id"`
	Name       string   `json:"name"`
	Quantity   int      `json:"quantity"`
	UnitPrice  float64  `json:"unit_price"`
	Modifiers  []string `json:"modifiers,omitempty"`
}

// Contact is the customer reference carried with the order for the fallback
// message and vendor receipts.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// CanonicalOrder is the vendor-neutral order aggregate. The order id is
// caller-supplied and globally unique per location; totals and line items are
// immutable after creation, only dispatch status sub-records mutate.
type CanonicalOrder struct {
	OrderID    string     `json:"order_id"`
	LocationID string     `json:"location_id"`
	Items      []LineItem `json:"items"`
	Subtotal   float64    `json:"subtotal"`
	Total      float64    `json:"total"`
	Customer   Contact    `json:"customer"`
	Note       string     `json:"note,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Validate checks the creation-time invariants of an inbound order.
func (o CanonicalOrder) Validate() error {
	if strings.TrimSpace(o.OrderID) == "" || strings.TrimSpace(o.LocationID) == "" {
		return ErrInvalidInput
	}
	if len(o.Items) == 0 {
		return ErrInvalidInput
	}
	for _, it := range o.Items {
		if it.MenuItemID == "" || it.Quantity <= 0 || it.UnitPrice < 0 {
			return ErrInvalidInput
		}
	}
	if o.Total < 0 {
		return ErrInvalidInput
	}
	return nil
}

// DeliveryState enumerates per-provider delivery outcomes.
type DeliveryState string

const (
	// DeliveryPending means dispatch has not concluded for the provider yet.
	DeliveryPending DeliveryState = "pending"
	// DeliveryDelivered means the provider accepted the order.
	DeliveryDelivered DeliveryState = "delivered"
	// DeliveryFailed means retries were exhausted on a retryable failure.
	DeliveryFailed DeliveryState = "failed"
	// DeliveryRejected means the provider refused the order permanently
	// (bad request or auth failure); operator attention required.
	DeliveryRejected DeliveryState = "rejected"
	// DeliverySkipped means the provider was disabled for the location.
	DeliverySkipped DeliveryState = "skipped"
	// DeliveryHeld means the provider has automatic order processing turned
	// off; the order is recorded but waits for manual forwarding.
	DeliveryHeld DeliveryState = "held"
)

// Terminal reports whether the state can still change during dispatch.
func (s DeliveryState) Terminal() bool {
	return s == DeliveryDelivered || s == DeliveryRejected || s == DeliverySkipped
}

// ProviderDeliveryState tracks one provider's view of one order.
// StateTimestamp resolves last-writer-wins between synchronous dispatch and
// asynchronous webhooks: an event older than the recorded state never wins.
type ProviderDeliveryState struct {
	Provider        ProviderKind  `json:"provider"`
	State           DeliveryState `json:"state"`
	ProviderOrderID string        `json:"provider_order_id,omitempty"`
	LastError       string        `json:"last_error,omitempty"`
	Attempts        int           `json:"attempts"`
	LastAttemptAt   *time.Time    `json:"last_attempt_at,omitempty"`
	StateTimestamp  time.Time     `json:"state_timestamp"`
	PaymentStatus   string        `json:"payment_status,omitempty"`
}

// FallbackState records the messaging-channel send for one order.
type FallbackState struct {
	Sent   bool       `json:"sent"`
	SentAt *time.Time `json:"sent_at,omitempty"`
}

// DispatchStatus is the mutable status record owned per order. Degraded is the
// only POS-failure signal exposed on the customer-facing accept response.
type DispatchStatus struct {
	OrderID    string                  `json:"order_id"`
	LocationID string                  `json:"location_id"`
	Providers  []ProviderDeliveryState `json:"providers"`
	Fallback   FallbackState           `json:"fallback"`
	Degraded   bool                    `json:"degraded"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// ProviderState returns the status sub-record for one vendor.
func (d DispatchStatus) ProviderState(kind ProviderKind) (ProviderDeliveryState, bool) {
	for _, ps := range d.Providers {
		if ps.Provider == kind {
			return ps, true
		}
	}
	return ProviderDeliveryState{}, false
}

// SetProviderState upserts one provider sub-record in place.
func (d *DispatchStatus) SetProviderState(ps ProviderDeliveryState) {
	for i := range d.Providers {
		if d.Providers[i].Provider == ps.Provider {
			d.Providers[i] = ps
			return
		}
	}
	d.Providers = append(d.Providers, ps)
}

// AllDelivered reports whether every auto-processed provider reached
// delivered. Skipped and held providers do not count against delivery:
// skipped ones are disabled, held ones are an operator's deliberate choice.
func (d DispatchStatus) AllDelivered() bool {
	for _, ps := range d.Providers {
		if ps.State == DeliverySkipped || ps.State == DeliveryHeld {
			continue
		}
		if ps.State != DeliveryDelivered {
			return false
		}
	}
	return true
}

// AllFailed reports whether every auto-processed provider ended in failure.
func (d DispatchStatus) AllFailed() bool {
	any := false
	for _, ps := range d.Providers {
		if ps.State == DeliverySkipped || ps.State == DeliveryHeld {
			continue
		}
		any = true
		if ps.State != DeliveryFailed && ps.State != DeliveryRejected {
			return false
		}
	}
	return any
}
