package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
	"gorm.io/gorm"
)

type webhookEventRepository struct {
	db *gorm.DB
}

func (r *webhookEventRepository) Insert(ctx context.Context, event domain.WebhookEvent) error {
	row := webhookEventModel{
		Provider:        string(event.Provider),
		EventID:         event.EventID,
		EventType:       string(event.EventType),
		LocationID:      event.LocationID,
		ProviderOrderID: event.ProviderOrderID,
		Status:          event.Status,
		PaymentStatus:   event.PaymentStatus,
		RawPayload:      string(event.RawPayload),
		ReceivedAt:      event.ReceivedAt,
	}
	if !event.OccurredAt.IsZero() {
		at := event.OccurredAt
		row.OccurredAt = &at
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		// The primary key doubles as the (provider, event id) idempotency key.
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEvent
		}
		return err
	}
	return nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, provider domain.ProviderKind, eventID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&webhookEventModel{}).
		Where("provider = ? AND event_id = ?", string(provider), eventID).
		Updates(map[string]any{
			"processed":    true,
			"processed_at": at,
		}).Error
}

func (r *webhookEventRepository) Get(ctx context.Context, provider domain.ProviderKind, eventID string) (*domain.WebhookEvent, error) {
	var row webhookEventModel
	err := r.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", string(provider), eventID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	event := domain.WebhookEvent{
		Provider:        domain.ProviderKind(row.Provider),
		EventID:         row.EventID,
		EventType:       domain.WebhookEventType(row.EventType),
		LocationID:      row.LocationID,
		ProviderOrderID: row.ProviderOrderID,
		Status:          row.Status,
		PaymentStatus:   row.PaymentStatus,
		RawPayload:      []byte(row.RawPayload),
		ReceivedAt:      row.ReceivedAt,
		Processed:       row.Processed,
		ProcessedAt:     row.ProcessedAt,
	}
	if row.OccurredAt != nil {
		event.OccurredAt = *row.OccurredAt
	}
	return &event, nil
}
