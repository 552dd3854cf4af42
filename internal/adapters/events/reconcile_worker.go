package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/application"
	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
)

// ReconcileWorker periodically reconciles provider catalogs for every
// location/provider pair with menu sync enabled. Manual sync triggers share
// the same per-pair lock, so overlap degrades to a no-op.
type ReconcileWorker struct {
	logger   *slog.Logger
	service  *application.Service
	interval time.Duration
}

func NewReconcileWorker(logger *slog.Logger, service *application.Service, interval time.Duration) *ReconcileWorker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &ReconcileWorker{
		logger:   logger,
		service:  service,
		interval: interval,
	}
}

func (w *ReconcileWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.reconcileAll(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *ReconcileWorker) reconcileAll(ctx context.Context) {
	for _, locationID := range w.service.Locations() {
		configs, err := w.service.Resolve(locationID)
		if err != nil {
			continue
		}
		for _, cfg := range configs {
			if !cfg.Enabled || !cfg.SyncMenu {
				continue
			}
			result, err := w.service.Reconcile(ctx, locationID, cfg.Kind)
			if err != nil {
				if errors.Is(err, domain.ErrReconcileBusy) {
					continue
				}
				w.logger.ErrorContext(ctx, "periodic reconciliation failed",
					"module", "events.reconcile_worker",
					"layer", "adapter",
					"operation", "reconcile",
					"outcome", "failure",
					"location_id", locationID,
					"provider", cfg.Kind,
					"error", err,
				)
				continue
			}
			if result.Upserted > 0 || result.Retired > 0 || len(result.Errors) > 0 {
				w.logger.InfoContext(ctx, "periodic reconciliation applied changes",
					"module", "events.reconcile_worker",
					"layer", "adapter",
					"operation", "reconcile",
					"outcome", "success",
					"location_id", locationID,
					"provider", cfg.Kind,
					"upserted", result.Upserted,
					"retired", result.Retired,
					"errors", len(result.Errors),
				)
			}
		}
	}
}
