package ports

import (
	"context"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
)

// FallbackChannel is the always-available messaging ordering path. Sends are
// fire-and-forget from the dispatcher's perspective; failures are logged, never
// surfaced to the customer.
type FallbackChannel interface {
	Send(ctx context.Context, location domain.Location, order domain.CanonicalOrder) error
}
