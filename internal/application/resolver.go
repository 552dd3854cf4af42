package application

import (
	"context"
	"fmt"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
)

// LoadConfig loads and swaps in the initial location snapshot. Inability to
// resolve any configuration at process start is the one fatal case.
func (s *Service) LoadConfig(ctx context.Context) error {
	snap, err := s.source.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load location snapshot: %w", err)
	}
	s.snapshot.Store(&snap)
	s.logger.InfoContext(ctx, "location snapshot loaded",
		"operation", "config_load",
		"outcome", "success",
		"locations", len(snap.Locations),
		"version", snap.Version,
	)
	return nil
}

// ReloadConfig replaces the active snapshot. A malformed update is rejected
// and the prior snapshot remains active; in-flight dispatches keep the
// snapshot they started with.
func (s *Service) ReloadConfig(ctx context.Context) error {
	snap, err := s.source.LoadSnapshot(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "snapshot reload rejected, previous snapshot kept",
			"operation", "config_reload",
			"outcome", "failure",
			"error", err,
		)
		return fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	s.snapshot.Store(&snap)
	s.logger.InfoContext(ctx, "location snapshot reloaded",
		"operation", "config_reload",
		"outcome", "success",
		"locations", len(snap.Locations),
		"version", snap.Version,
	)
	return nil
}

// Resolve returns the ordered provider configurations for a location.
// Pure lookup against the current snapshot; no side effects.
func (s *Service) Resolve(locationID string) ([]domain.ProviderConfig, error) {
	loc, err := s.location(locationID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProviderConfig, len(loc.Providers))
	copy(out, loc.Providers)
	return out, nil
}

// Locations lists the location ids known to the active snapshot.
func (s *Service) Locations() []string {
	snap := s.snapshot.Load()
	if snap == nil {
		return nil
	}
	ids := make([]string, 0, len(snap.Locations))
	for id := range snap.Locations {
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) location(locationID string) (domain.Location, error) {
	snap := s.snapshot.Load()
	if snap == nil {
		return domain.Location{}, domain.ErrConfigInvalid
	}
	loc, ok := snap.Locations[locationID]
	if !ok {
		return domain.Location{}, domain.ErrLocationNotFound
	}
	return loc, nil
}

// locationForProviderStore recovers the location that owns a vendor store id.
// Webhook payloads carry the vendor store/company reference, not our id.
func (s *Service) locationForProviderStore(provider domain.ProviderKind, storeOrLocationID string) (domain.Location, domain.ProviderConfig, error) {
	snap := s.snapshot.Load()
	if snap == nil {
		return domain.Location{}, domain.ProviderConfig{}, domain.ErrConfigInvalid
	}
	if loc, ok := snap.Locations[storeOrLocationID]; ok {
		if cfg, ok := loc.Provider(provider); ok {
			return loc, cfg, nil
		}
	}
	for _, loc := range snap.Locations {
		cfg, ok := loc.Provider(provider)
		if ok && cfg.StoreID != "" && cfg.StoreID == storeOrLocationID {
			return loc, cfg, nil
		}
	}
	return domain.Location{}, domain.ProviderConfig{}, domain.ErrLocationNotFound
}
