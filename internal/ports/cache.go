package ports

import (
	"context"
	"time"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
)

// DedupStore is the fast-path webhook dedup check in front of the durable
// event table. Reserve must be atomic check-and-set under concurrent delivery
// of the same vendor event.
type DedupStore interface {
	// Reserve claims (provider, eventID) for the caller. Returns false when
	// another delivery already holds or processed it.
	Reserve(ctx context.Context, provider domain.ProviderKind, eventID string, ttl time.Duration) (bool, error)
	// Release frees a reservation after a failed apply so the vendor retry
	// can be processed.
	Release(ctx context.Context, provider domain.ProviderKind, eventID string) error
}

// ReconcileLock serializes reconciliation runs per (location, provider).
// Menu sync may race dispatch freely; two syncs for the same provider may not.
type ReconcileLock interface {
	// Acquire returns false without blocking when a run is already in flight.
	Acquire(ctx context.Context, locationID string, provider domain.ProviderKind, ttl time.Duration) (bool, error)
	Release(ctx context.Context, locationID string, provider domain.ProviderKind) error
}
