package postgres

import (
	"time"

	"github.com/google/uuid"
)

type orderModel struct {
	OrderID    string    `gorm:"column:order_id;primaryKey"`
	LocationID string    `gorm:"column:location_id"`
	Payload    string    `gorm:"column:payload;type:jsonb"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (orderModel) TableName() string { return "pos_orders" }

type orderStatusModel struct {
	OrderID        string     `gorm:"column:order_id;primaryKey"`
	LocationID     string     `gorm:"column:location_id"`
	Providers      string     `gorm:"column:providers;type:jsonb"`
	FallbackSent   bool       `gorm:"column:fallback_sent"`
	FallbackSentAt *time.Time `gorm:"column:fallback_sent_at"`
	Degraded       bool       `gorm:"column:degraded"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (orderStatusModel) TableName() string { return "pos_order_status" }

type providerOrderModel struct {
	Provider        string    `gorm:"column:provider;primaryKey"`
	ProviderOrderID string    `gorm:"column:provider_order_id;primaryKey"`
	OrderID         string    `gorm:"column:order_id"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (providerOrderModel) TableName() string { return "pos_provider_orders" }

type webhookEventModel struct {
	Provider        string     `gorm:"column:provider;primaryKey"`
	EventID         string     `gorm:"column:event_id;primaryKey"`
	EventType       string     `gorm:"column:event_type"`
	LocationID      string     `gorm:"column:location_id"`
	ProviderOrderID string     `gorm:"column:provider_order_id"`
	Status          string     `gorm:"column:status"`
	PaymentStatus   string     `gorm:"column:payment_status"`
	OccurredAt      *time.Time `gorm:"column:occurred_at"`
	RawPayload      string     `gorm:"column:raw_payload;type:jsonb"`
	ReceivedAt      time.Time  `gorm:"column:received_at"`
	Processed       bool       `gorm:"column:processed"`
	ProcessedAt     *time.Time `gorm:"column:processed_at"`
}

func (webhookEventModel) TableName() string { return "pos_webhook_events" }

type itemMappingModel struct {
	LocationID      string    `gorm:"column:location_id;primaryKey"`
	Provider        string    `gorm:"column:provider;primaryKey"`
	CanonicalItemID string    `gorm:"column:canonical_item_id;primaryKey"`
	ProviderItemID  string    `gorm:"column:provider_item_id"`
	ContentHash     string    `gorm:"column:content_hash"`
	Retired         bool      `gorm:"column:retired"`
	SyncedAt        time.Time `gorm:"column:synced_at"`
}

func (itemMappingModel) TableName() string { return "pos_item_mappings" }

type outboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	FirstSeenAt    time.Time  `gorm:"column:first_seen_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (outboxModel) TableName() string { return "pos_outbox" }
