package application

import (
	"context"
	"fmt"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
)

// Reconcile diffs the canonical catalog of one location against the
// provider's mirrored state and emits the minimal upsert/retire set. Items
// with an unchanged content hash are never re-sent. Runs for the same
// (location, provider) pair serialize via the sync lock; reconciliation and
// order dispatch may run concurrently, the entity families are independent.
func (s *Service) Reconcile(ctx context.Context, locationID string, provider domain.ProviderKind) (domain.ReconcileResult, error) {
	loc, err := s.location(locationID)
	if err != nil {
		return domain.ReconcileResult{}, err
	}
	cfg, ok := loc.Provider(provider)
	if !ok || !cfg.Enabled {
		return domain.ReconcileResult{}, fmt.Errorf("%w: provider %s not enabled for location %s", domain.ErrInvalidInput, provider, locationID)
	}
	client, ok := s.providers[provider]
	if !ok {
		return domain.ReconcileResult{}, fmt.Errorf("%w: no client for provider %s", domain.ErrInvalidInput, provider)
	}

	acquired, err := s.syncLocks.Acquire(ctx, locationID, provider, s.cfg.ReconcileLockTTL)
	if err != nil {
		return domain.ReconcileResult{}, fmt.Errorf("acquire reconcile lock: %w", err)
	}
	if !acquired {
		return domain.ReconcileResult{}, domain.ErrReconcileBusy
	}
	defer func() {
		if releaseErr := s.syncLocks.Release(ctx, locationID, provider); releaseErr != nil {
			s.logger.WarnContext(ctx, "reconcile lock release failed",
				"operation", "reconcile",
				"outcome", "degraded",
				"location_id", locationID,
				"provider", provider,
				"error", releaseErr,
			)
		}
	}()

	result := domain.ReconcileResult{
		Provider:   provider,
		LocationID: locationID,
		StartedAt:  s.nowFn(),
	}

	mirrored, err := s.mappings.List(ctx, locationID, provider)
	if err != nil {
		return domain.ReconcileResult{}, fmt.Errorf("list mappings: %w", err)
	}
	byCanonical := make(map[string]domain.ProviderMapping, len(mirrored))
	for _, m := range mirrored {
		byCanonical[m.CanonicalItemID] = m
	}

	desired := make(map[string]bool, len(loc.Catalog))
	for _, item := range loc.Catalog {
		if !item.Available {
			continue
		}
		desired[item.ID] = true

		mapping, exists := byCanonical[item.ID]
		hash := item.ContentHash()
		if exists && !mapping.Retired && mapping.ContentHash == hash {
			continue
		}
		if !exists {
			mapping = domain.ProviderMapping{
				Provider:        provider,
				LocationID:      locationID,
				CanonicalItemID: item.ID,
				ProviderItemID:  providerItemID(locationID, item.ID),
			}
		}

		if err := client.UpsertCatalogItem(ctx, cfg, item, mapping); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("upsert %s: %v", item.ID, err))
			continue
		}
		mapping.ContentHash = hash
		mapping.Retired = false
		mapping.SyncedAt = s.nowFn()
		if err := s.mappings.Upsert(ctx, mapping); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record mapping %s: %v", item.ID, err))
			continue
		}
		result.Upserted++
	}

	for _, mapping := range mirrored {
		if mapping.Retired || desired[mapping.CanonicalItemID] {
			continue
		}
		if err := client.RetireCatalogItem(ctx, cfg, mapping); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("retire %s: %v", mapping.CanonicalItemID, err))
			continue
		}
		if err := s.mappings.Retire(ctx, locationID, provider, mapping.CanonicalItemID, s.nowFn()); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record retire %s: %v", mapping.CanonicalItemID, err))
			continue
		}
		result.Retired++
	}

	result.FinishedAt = s.nowFn()
	s.logger.InfoContext(ctx, "reconciliation finished",
		"operation", "reconcile",
		"outcome", "success",
		"location_id", locationID,
		"provider", provider,
		"upserted", result.Upserted,
		"retired", result.Retired,
		"errors", len(result.Errors),
	)
	s.enqueueOperationalEvent(ctx, "pos.menu.reconciled", locationID+"/"+string(provider), map[string]any{
		"location_id": locationID,
		"provider":    provider,
		"upserted":    result.Upserted,
		"retired":     result.Retired,
		"errors":      result.Errors,
	})
	return result, nil
}

// providerItemID derives a stable vendor SKU for a canonical item that has no
// explicit mapping yet.
func providerItemID(locationID, itemID string) string {
	return locationID + "-" + itemID
}
