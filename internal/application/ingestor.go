package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
)

// IngestResult reports the ingestor's decision back to the webhook endpoint.
type IngestResult struct {
	Accepted  bool   `json:"accepted"`
	Duplicate bool   `json:"duplicate"`
	Reason    string `json:"reason,omitempty"`
}

// Ingest validates, deduplicates and applies one vendor webhook delivery.
// Event lifecycle: received -> verified -> deduplicated (no-op) | applied.
// Unverified payloads are never applied; replays of a processed
// (provider, event id) pair are acknowledged without reapplying.
func (s *Service) Ingest(ctx context.Context, provider domain.ProviderKind, rawPayload []byte, headers http.Header) (IngestResult, error) {
	client, ok := s.providers[provider]
	if !ok {
		return IngestResult{Reason: "unknown provider"}, domain.ErrInvalidInput
	}

	// The raw body is decoded before verification only to recover the store
	// reference that selects the per-location secret. Nothing is applied until
	// the signature checks out.
	event, err := client.ParseWebhook(rawPayload)
	if err != nil {
		return IngestResult{Reason: "malformed payload"}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	loc, cfg, err := s.locationForProviderStore(provider, event.LocationID)
	if err != nil {
		return IngestResult{Reason: "unknown store"}, domain.ErrInvalidSignature
	}
	if !client.VerifyWebhookSignature(rawPayload, headers, cfg.WebhookSecret) {
		s.logger.WarnContext(ctx, "webhook signature verification failed",
			"operation", "webhook_ingest",
			"outcome", "rejected",
			"provider", provider,
			"location_id", loc.ID,
			"event_id", event.EventID,
		)
		return IngestResult{Reason: "invalid signature"}, domain.ErrInvalidSignature
	}

	event.Provider = provider
	event.LocationID = loc.ID
	event.RawPayload = rawPayload
	event.ReceivedAt = s.nowFn()

	// Fast-path dedup in the cache; the durable event table stays the
	// authority when the cache is unavailable.
	reserved, err := s.dedup.Reserve(ctx, provider, event.EventID, s.cfg.DedupTTL)
	if err != nil {
		s.logger.WarnContext(ctx, "dedup store unavailable, relying on event table",
			"operation", "webhook_ingest",
			"outcome", "degraded",
			"provider", provider,
			"event_id", event.EventID,
			"error", err,
		)
	} else if !reserved {
		return IngestResult{Accepted: true, Duplicate: true}, nil
	}

	if err := s.events.Insert(ctx, event); err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			stored, getErr := s.events.Get(ctx, provider, event.EventID)
			if getErr == nil && stored != nil && !stored.Processed {
				// A previous delivery stored the event but failed mid-apply;
				// this retry finishes the job.
				return s.applyEvent(ctx, loc, *stored)
			}
			return IngestResult{Accepted: true, Duplicate: true}, nil
		}
		s.releaseDedup(ctx, provider, event.EventID)
		return IngestResult{}, fmt.Errorf("store webhook event: %w", err)
	}

	return s.applyEvent(ctx, loc, event)
}

func (s *Service) applyEvent(ctx context.Context, loc domain.Location, event domain.WebhookEvent) (IngestResult, error) {
	var err error
	switch event.EventType {
	case domain.WebhookMenu:
		s.triggerReconcile(ctx, loc.ID, event.Provider)
	case domain.WebhookOrderStatus, domain.WebhookPayment:
		err = s.applyOrderEvent(ctx, loc, event)
	default:
		s.logger.WarnContext(ctx, "webhook event type not recognized, acknowledged",
			"operation", "webhook_ingest",
			"outcome", "ignored",
			"provider", event.Provider,
			"event_id", event.EventID,
			"event_type", event.EventType,
		)
	}
	if err != nil {
		// Leave the event unprocessed and free the reservation so the
		// vendor's retry can reapply it.
		s.releaseDedup(ctx, event.Provider, event.EventID)
		return IngestResult{}, err
	}

	if err := s.events.MarkProcessed(ctx, event.Provider, event.EventID, s.nowFn()); err != nil {
		s.logger.ErrorContext(ctx, "mark webhook processed failed",
			"operation", "webhook_ingest",
			"outcome", "failure",
			"provider", event.Provider,
			"event_id", event.EventID,
			"error", err,
		)
	}
	return IngestResult{Accepted: true}, nil
}

// applyOrderEvent updates the referenced order's provider state under the
// per-order lock. Last-writer-wins is resolved by event timestamp, not arrival
// order; vendors that omit timestamps fall back to ingestion order.
func (s *Service) applyOrderEvent(ctx context.Context, loc domain.Location, event domain.WebhookEvent) error {
	orderID, err := s.orders.LookupByProviderOrder(ctx, event.Provider, event.ProviderOrderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			// Acknowledge rather than make the vendor retry forever.
			s.logger.WarnContext(ctx, "webhook references unknown order, acknowledged",
				"operation", "webhook_ingest",
				"outcome", "ignored",
				"provider", event.Provider,
				"event_id", event.EventID,
				"provider_order_id", event.ProviderOrderID,
			)
			return nil
		}
		return fmt.Errorf("resolve provider order: %w", err)
	}

	s.orderLocks.lock(orderID)
	defer s.orderLocks.unlock(orderID)

	status, err := s.orders.GetStatus(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load status: %w", err)
	}

	ps, _ := status.ProviderState(event.Provider)
	ps.Provider = event.Provider

	policy := s.cfg.TimestampPolicy
	if event.OccurredAt.IsZero() {
		policy = PolicyIngestionOrder
	}
	if policy == PolicyEventTimestamp && event.OccurredAt.Before(ps.StateTimestamp) {
		s.logger.InfoContext(ctx, "stale webhook event ignored",
			"operation", "webhook_ingest",
			"outcome", "ignored",
			"order_id", orderID,
			"provider", event.Provider,
			"event_id", event.EventID,
			"event_at", event.OccurredAt,
			"state_at", ps.StateTimestamp,
		)
		return nil
	}

	switch event.EventType {
	case domain.WebhookOrderStatus:
		if next, ok := deliveryStateForVendorStatus(event.Status); ok {
			ps.State = next
			if next != domain.DeliveryDelivered {
				ps.LastError = "provider reported " + event.Status
			}
		}
		if event.ProviderOrderID != "" {
			ps.ProviderOrderID = event.ProviderOrderID
		}
	case domain.WebhookPayment:
		ps.PaymentStatus = event.PaymentStatus
	}
	if policy == PolicyEventTimestamp {
		ps.StateTimestamp = event.OccurredAt
	} else {
		ps.StateTimestamp = s.nowFn()
	}

	status.SetProviderState(ps)
	status.Degraded = !status.AllDelivered()

	if event.TerminalFailure() && !status.Fallback.Sent && loc.FallbackEnabled() {
		order, getErr := s.orders.GetOrder(ctx, orderID)
		if getErr != nil {
			s.logger.ErrorContext(ctx, "load order for late fallback failed",
				"operation", "webhook_ingest",
				"outcome", "failure",
				"order_id", orderID,
				"error", getErr,
			)
		} else if sendErr := s.fallback.Send(ctx, loc, order); sendErr != nil {
			s.logger.ErrorContext(ctx, "late fallback send failed",
				"operation", "fallback_send",
				"outcome", "failure",
				"order_id", orderID,
				"error", sendErr,
			)
		} else {
			sentAt := s.nowFn()
			status.Fallback = domain.FallbackState{Sent: true, SentAt: &sentAt}
		}
	}

	status.UpdatedAt = s.nowFn()
	if err := s.orders.SaveStatus(ctx, status); err != nil {
		return fmt.Errorf("save status: %w", err)
	}

	s.enqueueOperationalEvent(ctx, "pos.webhook.applied", orderID, map[string]any{
		"order_id":   orderID,
		"provider":   event.Provider,
		"event_id":   event.EventID,
		"event_type": event.EventType,
		"status":     event.Status,
	})
	return nil
}

// triggerReconcile kicks an asynchronous reconciliation for menu-related
// vendor events. Failures surface through logs and the reconcile endpoint.
func (s *Service) triggerReconcile(ctx context.Context, locationID string, provider domain.ProviderKind) {
	bgCtx := context.WithoutCancel(ctx)
	go func() {
		if _, err := s.Reconcile(bgCtx, locationID, provider); err != nil && !errors.Is(err, domain.ErrReconcileBusy) {
			s.logger.ErrorContext(bgCtx, "webhook-triggered reconciliation failed",
				"operation", "reconcile",
				"outcome", "failure",
				"location_id", locationID,
				"provider", provider,
				"error", err,
			)
		}
	}()
}

func (s *Service) releaseDedup(ctx context.Context, provider domain.ProviderKind, eventID string) {
	if err := s.dedup.Release(ctx, provider, eventID); err != nil {
		s.logger.WarnContext(ctx, "dedup release failed",
			"operation", "webhook_ingest",
			"outcome", "degraded",
			"provider", provider,
			"event_id", eventID,
			"error", err,
		)
	}
}

func deliveryStateForVendorStatus(status string) (domain.DeliveryState, bool) {
	switch status {
	case "accepted", "confirmed", "processing", "ready", "completed", "done":
		return domain.DeliveryDelivered, true
	case "cancelled", "canceled", "voided", "failed":
		return domain.DeliveryFailed, true
	case "rejected":
		return domain.DeliveryRejected, true
	}
	return "", false
}
