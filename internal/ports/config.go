package ports

import (
	"context"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
)

// SnapshotSource is the config resolver's backing store. The resolution
// mechanism (secret injection, templating) happens upstream of this port.
type SnapshotSource interface {
	// LoadSnapshot returns a fully validated location snapshot or
	// domain.ErrConfigInvalid. Partial snapshots are never returned.
	LoadSnapshot(ctx context.Context) (domain.Snapshot, error)
}
