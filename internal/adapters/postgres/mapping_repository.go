package postgres

import (
	"context"
	"time"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type mappingRepository struct {
	db *gorm.DB
}

func (r *mappingRepository) List(ctx context.Context, locationID string, provider domain.ProviderKind) ([]domain.ProviderMapping, error) {
	var rows []itemMappingModel
	err := r.db.WithContext(ctx).
		Where("location_id = ? AND provider = ?", locationID, string(provider)).
		Order("canonical_item_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.ProviderMapping, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.ProviderMapping{
			Provider:        domain.ProviderKind(row.Provider),
			LocationID:      row.LocationID,
			CanonicalItemID: row.CanonicalItemID,
			ProviderItemID:  row.ProviderItemID,
			ContentHash:     row.ContentHash,
			Retired:         row.Retired,
			SyncedAt:        row.SyncedAt,
		})
	}
	return out, nil
}

func (r *mappingRepository) Upsert(ctx context.Context, mapping domain.ProviderMapping) error {
	row := itemMappingModel{
		LocationID:      mapping.LocationID,
		Provider:        string(mapping.Provider),
		CanonicalItemID: mapping.CanonicalItemID,
		ProviderItemID:  mapping.ProviderItemID,
		ContentHash:     mapping.ContentHash,
		Retired:         mapping.Retired,
		SyncedAt:        mapping.SyncedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "location_id"}, {Name: "provider"}, {Name: "canonical_item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"provider_item_id", "content_hash", "retired", "synced_at",
			}),
		}).
		Create(&row).Error
}

func (r *mappingRepository) Retire(ctx context.Context, locationID string, provider domain.ProviderKind, canonicalItemID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&itemMappingModel{}).
		Where("location_id = ? AND provider = ? AND canonical_item_id = ?", locationID, string(provider), canonicalItemID).
		Updates(map[string]any{
			"retired":   true,
			"synced_at": at,
		}).Error
}
