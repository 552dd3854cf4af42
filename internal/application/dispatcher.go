package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
)

// Dispatch delivers one order to the fallback channel and to every enabled
// provider of its location that allows automatic processing; providers with
// auto processing off get a held record instead of a forward. The fallback
// send always runs first so the order is never lost, whatever the POS
// backends do. The call returns once all
// provider attempts conclude or the latency budget expires; late attempts
// finish in the background and the status stays queryable.
//
// Re-invoking Dispatch with the same order id is idempotent: providers already
// in delivered state are suppressed, and provider calls carry an idempotency
// token derived from the canonical order id.
func (s *Service) Dispatch(ctx context.Context, order domain.CanonicalOrder) (domain.DispatchStatus, error) {
	if err := order.Validate(); err != nil {
		return domain.DispatchStatus{}, err
	}
	loc, err := s.location(order.LocationID)
	if err != nil {
		return domain.DispatchStatus{}, err
	}

	status, err := s.prepareDispatch(ctx, loc, order)
	if err != nil {
		return domain.DispatchStatus{}, err
	}

	pending := make([]domain.ProviderConfig, 0, len(loc.Providers))
	for _, cfg := range loc.EnabledProviders() {
		if !cfg.AutoProcessOrders {
			// Held providers wait for manual forwarding; dispatch records
			// the order but never pushes it to them.
			continue
		}
		ps, ok := status.ProviderState(cfg.Kind)
		if ok && ps.State.Terminal() {
			continue
		}
		if _, registered := s.providers[cfg.Kind]; !registered {
			s.logger.ErrorContext(ctx, "no client registered for configured provider",
				"operation", "dispatch",
				"outcome", "failure",
				"order_id", order.OrderID,
				"provider", cfg.Kind,
			)
			continue
		}
		pending = append(pending, cfg)
	}

	// Provider attempts run on a detached context: an expired latency budget
	// or a dropped client connection must not abort deliveries in flight.
	bgCtx := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	for _, cfg := range pending {
		wg.Add(1)
		go func(cfg domain.ProviderConfig) {
			defer wg.Done()
			result := s.attemptProvider(bgCtx, cfg, order)
			s.applyProviderResult(bgCtx, order.OrderID, result)
		}(cfg)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	budget := time.NewTimer(s.cfg.DispatchBudget)
	defer budget.Stop()
	select {
	case <-done:
	case <-budget.C:
		s.logger.WarnContext(ctx, "dispatch latency budget exceeded, continuing in background",
			"operation", "dispatch",
			"outcome", "degraded",
			"order_id", order.OrderID,
			"budget", s.cfg.DispatchBudget.String(),
		)
	}

	final, err := s.orders.GetStatus(ctx, order.OrderID)
	if err != nil {
		return status, nil
	}
	return final, nil
}

// Status returns the current dispatch status for an order.
func (s *Service) Status(ctx context.Context, orderID string) (domain.DispatchStatus, error) {
	return s.orders.GetStatus(ctx, orderID)
}

// prepareDispatch creates or reloads the status record and performs the
// fallback-first send under the order lock.
func (s *Service) prepareDispatch(ctx context.Context, loc domain.Location, order domain.CanonicalOrder) (domain.DispatchStatus, error) {
	s.orderLocks.lock(order.OrderID)
	defer s.orderLocks.unlock(order.OrderID)

	now := s.nowFn()
	status, err := s.orders.GetStatus(ctx, order.OrderID)
	switch {
	case err == nil:
		// Re-dispatch of a known order; keep delivered/rejected states.
	case errors.Is(err, domain.ErrOrderNotFound):
		status = domain.DispatchStatus{
			OrderID:    order.OrderID,
			LocationID: order.LocationID,
			UpdatedAt:  now,
		}
		for _, cfg := range loc.Providers {
			state := domain.DeliveryPending
			switch {
			case !cfg.Enabled:
				state = domain.DeliverySkipped
			case !cfg.AutoProcessOrders:
				state = domain.DeliveryHeld
			}
			status.SetProviderState(domain.ProviderDeliveryState{
				Provider:       cfg.Kind,
				State:          state,
				StateTimestamp: now,
			})
		}
		if createErr := s.orders.Create(ctx, order, status); createErr != nil && !errors.Is(createErr, domain.ErrOrderExists) {
			return domain.DispatchStatus{}, fmt.Errorf("create order: %w", createErr)
		}
	default:
		return domain.DispatchStatus{}, fmt.Errorf("load status: %w", err)
	}

	if loc.FallbackEnabled() && !status.Fallback.Sent {
		if sendErr := s.fallback.Send(ctx, loc, order); sendErr != nil {
			// Fallback failure never aborts POS dispatch; the paths are independent.
			s.logger.ErrorContext(ctx, "fallback channel send failed",
				"operation", "fallback_send",
				"outcome", "failure",
				"order_id", order.OrderID,
				"location_id", order.LocationID,
				"error", sendErr,
			)
		} else {
			sentAt := s.nowFn()
			status.Fallback = domain.FallbackState{Sent: true, SentAt: &sentAt}
		}
	}

	status.Degraded = !status.AllDelivered()
	status.UpdatedAt = s.nowFn()
	if err := s.orders.SaveStatus(ctx, status); err != nil {
		return domain.DispatchStatus{}, fmt.Errorf("save status: %w", err)
	}
	return status, nil
}

// attemptProvider runs the bounded retry loop for one provider. Timeouts and
// rate limits retry with exponential backoff; auth failures and vendor
// rejections stop immediately.
func (s *Service) attemptProvider(ctx context.Context, cfg domain.ProviderConfig, order domain.CanonicalOrder) domain.ProviderDeliveryState {
	client := s.providers[cfg.Kind]
	result := domain.ProviderDeliveryState{
		Provider: cfg.Kind,
		State:    domain.DeliveryPending,
	}

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		attemptAt := s.nowFn()
		result.Attempts = attempt
		result.LastAttemptAt = &attemptAt

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
		ref, err := client.CreateOrder(callCtx, cfg, order)
		cancel()

		if err == nil {
			result.State = domain.DeliveryDelivered
			result.ProviderOrderID = ref.ProviderOrderID
			result.LastError = ""
			result.StateTimestamp = s.nowFn()
			return result
		}

		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", domain.ErrProviderUnreachable, err)
		}
		result.LastError = err.Error()
		result.StateTimestamp = s.nowFn()

		if !domain.Retryable(err) {
			result.State = domain.DeliveryRejected
			s.logger.ErrorContext(ctx, "provider rejected order, operator attention required",
				"operation", "provider_create_order",
				"outcome", "failure",
				"order_id", order.OrderID,
				"provider", cfg.Kind,
				"attempt", attempt,
				"error", err,
			)
			return result
		}

		s.logger.WarnContext(ctx, "provider attempt failed",
			"operation", "provider_create_order",
			"outcome", "retry",
			"order_id", order.OrderID,
			"provider", cfg.Kind,
			"attempt", attempt,
			"error", err,
		)

		if attempt < s.cfg.MaxAttempts {
			backoff := s.cfg.RetryBackoffBase << (attempt - 1)
			select {
			case <-ctx.Done():
				result.State = domain.DeliveryFailed
				return result
			case <-time.After(backoff):
			}
		}
	}

	result.State = domain.DeliveryFailed
	return result
}

// retryFallback re-attempts the step-one fallback send once every provider
// has ended in failure and the original send never landed. Without it a
// transient messaging outage at accept time would leave a fully failed order
// invisible until a vendor webhook arrived. Caller holds the order lock.
func (s *Service) retryFallback(ctx context.Context, status *domain.DispatchStatus) {
	loc, err := s.location(status.LocationID)
	if err != nil || !loc.FallbackEnabled() {
		return
	}
	order, err := s.orders.GetOrder(ctx, status.OrderID)
	if err != nil {
		s.logger.ErrorContext(ctx, "load order for fallback retry failed",
			"operation", "fallback_send",
			"outcome", "failure",
			"order_id", status.OrderID,
			"error", err,
		)
		return
	}
	if err := s.fallback.Send(ctx, loc, order); err != nil {
		s.logger.ErrorContext(ctx, "fallback retry after provider failure failed",
			"operation", "fallback_send",
			"outcome", "failure",
			"order_id", status.OrderID,
			"error", err,
		)
		return
	}
	sentAt := s.nowFn()
	status.Fallback = domain.FallbackState{Sent: true, SentAt: &sentAt}
	status.UpdatedAt = s.nowFn()
	if err := s.orders.SaveStatus(ctx, *status); err != nil {
		s.logger.ErrorContext(ctx, "save status after fallback retry failed",
			"operation", "fallback_send",
			"outcome", "failure",
			"order_id", status.OrderID,
			"error", err,
		)
	}
}

// applyProviderResult merges one provider outcome into the order's status
// under the per-order lock. A result older than the recorded state timestamp
// never overwrites it (a webhook may already have advanced the record).
func (s *Service) applyProviderResult(ctx context.Context, orderID string, result domain.ProviderDeliveryState) {
	s.orderLocks.lock(orderID)
	defer s.orderLocks.unlock(orderID)

	status, err := s.orders.GetStatus(ctx, orderID)
	if err != nil {
		s.logger.ErrorContext(ctx, "load status for provider result failed",
			"operation", "apply_provider_result",
			"outcome", "failure",
			"order_id", orderID,
			"provider", result.Provider,
			"error", err,
		)
		return
	}

	if current, ok := status.ProviderState(result.Provider); ok {
		if current.StateTimestamp.After(result.StateTimestamp) {
			return
		}
		if result.PaymentStatus == "" {
			result.PaymentStatus = current.PaymentStatus
		}
	}
	status.SetProviderState(result)
	status.Degraded = !status.AllDelivered()
	status.UpdatedAt = s.nowFn()

	if err := s.orders.SaveStatus(ctx, status); err != nil {
		s.logger.ErrorContext(ctx, "save status for provider result failed",
			"operation", "apply_provider_result",
			"outcome", "failure",
			"order_id", orderID,
			"provider", result.Provider,
			"error", err,
		)
		return
	}

	if result.State == domain.DeliveryDelivered && result.ProviderOrderID != "" {
		if err := s.orders.IndexProviderOrder(ctx, result.Provider, result.ProviderOrderID, orderID); err != nil {
			s.logger.ErrorContext(ctx, "index provider order failed",
				"operation", "apply_provider_result",
				"outcome", "failure",
				"order_id", orderID,
				"provider", result.Provider,
				"error", err,
			)
		}
	}

	if (result.State == domain.DeliveryFailed || result.State == domain.DeliveryRejected) &&
		!status.Fallback.Sent && status.AllFailed() {
		s.retryFallback(ctx, &status)
	}

	switch result.State {
	case domain.DeliveryDelivered:
		s.enqueueOperationalEvent(ctx, "pos.order.delivered", orderID, map[string]any{
			"order_id":          orderID,
			"provider":          result.Provider,
			"provider_order_id": result.ProviderOrderID,
			"attempts":          result.Attempts,
		})
	case domain.DeliveryFailed, domain.DeliveryRejected:
		s.enqueueOperationalEvent(ctx, "pos.order.delivery_failed", orderID, map[string]any{
			"order_id":   orderID,
			"provider":   result.Provider,
			"state":      result.State,
			"attempts":   result.Attempts,
			"last_error": result.LastError,
		})
	}
}
