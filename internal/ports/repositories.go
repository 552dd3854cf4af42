package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
)

// OrderRepository persists canonical orders and their dispatch status.
// The provider-order-id index lives here so webhook ingestion can recover the
// canonical order id from a vendor reference.
type OrderRepository interface {
	// Create stores the immutable order body with its initial status.
	// Returns domain.ErrOrderExists when the order id is already known.
	Create(ctx context.Context, order domain.CanonicalOrder, status domain.DispatchStatus) error
	GetOrder(ctx context.Context, orderID string) (domain.CanonicalOrder, error)
	GetStatus(ctx context.Context, orderID string) (domain.DispatchStatus, error)
	SaveStatus(ctx context.Context, status domain.DispatchStatus) error

	// IndexProviderOrder registers provider_order_id -> canonical order id.
	// Check-and-set: an existing index entry for the same pair is a no-op.
	IndexProviderOrder(ctx context.Context, provider domain.ProviderKind, providerOrderID, orderID string) error
	LookupByProviderOrder(ctx context.Context, provider domain.ProviderKind, providerOrderID string) (string, error)
}

// WebhookEventRepository is the durable dedup table for vendor events.
type WebhookEventRepository interface {
	// Insert records the event and returns domain.ErrDuplicateEvent when the
	// (provider, event id) pair was already stored. Atomic check-and-set.
	Insert(ctx context.Context, event domain.WebhookEvent) error
	MarkProcessed(ctx context.Context, provider domain.ProviderKind, eventID string, at time.Time) error
	// Get returns nil without error when the pair is unknown.
	Get(ctx context.Context, provider domain.ProviderKind, eventID string) (*domain.WebhookEvent, error)
}

// MappingRepository tracks the per-provider catalog mirror used by the
// reconciler: item mappings plus the content hash last pushed per item.
type MappingRepository interface {
	List(ctx context.Context, locationID string, provider domain.ProviderKind) ([]domain.ProviderMapping, error)
	Upsert(ctx context.Context, mapping domain.ProviderMapping) error
	Retire(ctx context.Context, locationID string, provider domain.ProviderKind, canonicalItemID string, at time.Time) error
}

// OutboxEvent is the write-side operational event prior to storage.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord is durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	FirstSeenAt    time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// OutboxRepository stores operational events for asynchronous broker delivery.
// Claim tokens keep concurrent worker instances from double-publishing.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
