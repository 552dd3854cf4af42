package application

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/ports"
)

// enqueueOperationalEvent writes an operator-facing event to the outbox. The
// outbox worker drains it to the broker; enqueue failures are logged only, as
// operational events never gate order flow.
func (s *Service) enqueueOperationalEvent(ctx context.Context, eventType, partitionKey string, payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal operational event failed",
			"operation", "outbox_enqueue",
			"outcome", "failure",
			"event_type", eventType,
			"error", err,
		)
		return
	}
	event := ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		PartitionKey: partitionKey,
		Payload:      raw,
		OccurredAt:   s.nowFn(),
	}
	if err := s.outbox.Enqueue(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "outbox enqueue failed",
			"operation", "outbox_enqueue",
			"outcome", "failure",
			"event_type", eventType,
			"error", err,
		)
	}
}
