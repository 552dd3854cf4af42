package postgres

import (
	"errors"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/ports"
	"gorm.io/gorm"
)

// Repositories bundles the postgres-backed ports for bootstrap wiring.
type Repositories struct {
	Orders   ports.OrderRepository
	Events   ports.WebhookEventRepository
	Mappings ports.MappingRepository
	Outbox   ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Orders:   &orderRepository{db: db},
		Events:   &webhookEventRepository{db: db},
		Mappings: &mappingRepository{db: db},
		Outbox:   &outboxRepository{db: db},
	}
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
