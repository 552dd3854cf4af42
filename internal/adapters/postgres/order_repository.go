package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
	"gorm.io/gorm"
)

type orderRepository struct {
	db *gorm.DB
}

func (r *orderRepository) Create(ctx context.Context, order domain.CanonicalOrder, status domain.DispatchStatus) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	statusRow, err := statusToModel(status)
	if err != nil {
		return err
	}
	row := orderModel{
		OrderID:    order.OrderID,
		LocationID: order.LocationID,
		Payload:    string(payload),
		CreatedAt:  order.CreatedAt,
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrOrderExists
			}
			return err
		}
		return tx.Create(&statusRow).Error
	})
}

func (r *orderRepository) GetOrder(ctx context.Context, orderID string) (domain.CanonicalOrder, error) {
	var row orderModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.CanonicalOrder{}, domain.ErrOrderNotFound
		}
		return domain.CanonicalOrder{}, err
	}
	var order domain.CanonicalOrder
	if err := json.Unmarshal([]byte(row.Payload), &order); err != nil {
		return domain.CanonicalOrder{}, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	return order, nil
}

func (r *orderRepository) GetStatus(ctx context.Context, orderID string) (domain.DispatchStatus, error) {
	var row orderStatusModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.DispatchStatus{}, domain.ErrOrderNotFound
		}
		return domain.DispatchStatus{}, err
	}
	return statusFromModel(row)
}

func (r *orderRepository) SaveStatus(ctx context.Context, status domain.DispatchStatus) error {
	row, err := statusToModel(status)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(&row).Error
}

func (r *orderRepository) IndexProviderOrder(ctx context.Context, provider domain.ProviderKind, providerOrderID, orderID string) error {
	row := providerOrderModel{
		Provider:        string(provider),
		ProviderOrderID: providerOrderID,
		OrderID:         orderID,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		// The same pair indexed twice is an idempotent re-dispatch, not a fault.
		if isUniqueViolation(err) {
			return nil
		}
		return err
	}
	return nil
}

func (r *orderRepository) LookupByProviderOrder(ctx context.Context, provider domain.ProviderKind, providerOrderID string) (string, error) {
	var row providerOrderModel
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_order_id = ?", string(provider), providerOrderID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrOrderNotFound
		}
		return "", err
	}
	return row.OrderID, nil
}

func statusToModel(status domain.DispatchStatus) (orderStatusModel, error) {
	providers, err := json.Marshal(status.Providers)
	if err != nil {
		return orderStatusModel{}, fmt.Errorf("encode provider states: %w", err)
	}
	return orderStatusModel{
		OrderID:        status.OrderID,
		LocationID:     status.LocationID,
		Providers:      string(providers),
		FallbackSent:   status.Fallback.Sent,
		FallbackSentAt: status.Fallback.SentAt,
		Degraded:       status.Degraded,
		UpdatedAt:      status.UpdatedAt,
	}, nil
}

func statusFromModel(row orderStatusModel) (domain.DispatchStatus, error) {
	status := domain.DispatchStatus{
		OrderID:    row.OrderID,
		LocationID: row.LocationID,
		Fallback:   domain.FallbackState{Sent: row.FallbackSent, SentAt: row.FallbackSentAt},
		Degraded:   row.Degraded,
		UpdatedAt:  row.UpdatedAt,
	}
	if row.Providers != "" {
		if err := json.Unmarshal([]byte(row.Providers), &status.Providers); err != nil {
			return domain.DispatchStatus{}, fmt.Errorf("decode provider states for %s: %w", row.OrderID, err)
		}
	}
	return status, nil
}
