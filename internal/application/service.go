package application

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/ports"
)

// TimestampPolicy decides how webhook events are ordered against known state.
type TimestampPolicy string

const (
	// PolicyEventTimestamp resolves last-writer-wins by vendor event timestamp.
	PolicyEventTimestamp TimestampPolicy = "event-timestamp"
	// PolicyIngestionOrder applies events in arrival order. Used as the
	// effective policy whenever a vendor omits timestamps.
	PolicyIngestionOrder TimestampPolicy = "ingestion-order"
)

// Config carries the dispatch/ingest/reconcile tunables.
type Config struct {
	MaxAttempts      int
	RetryBackoffBase time.Duration
	ProviderTimeout  time.Duration
	DispatchBudget   time.Duration
	DedupTTL         time.Duration
	ReconcileLockTTL time.Duration
	TimestampPolicy  TimestampPolicy
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBackoffBase <= 0 {
		c.RetryBackoffBase = 250 * time.Millisecond
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 5 * time.Second
	}
	if c.DispatchBudget <= 0 {
		c.DispatchBudget = 8 * time.Second
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = 24 * time.Hour
	}
	if c.ReconcileLockTTL <= 0 {
		c.ReconcileLockTTL = 2 * time.Minute
	}
	if c.TimestampPolicy == "" {
		c.TimestampPolicy = PolicyEventTimestamp
	}
	return c
}

// Service wires the dispatcher, webhook ingestor, menu reconciler and config
// resolver over the ports. One instance serves all locations.
type Service struct {
	cfg    Config
	logger *slog.Logger

	snapshot atomic.Pointer[domain.Snapshot]
	source   ports.SnapshotSource

	orders    ports.OrderRepository
	events    ports.WebhookEventRepository
	mappings  ports.MappingRepository
	outbox    ports.OutboxRepository
	dedup     ports.DedupStore
	syncLocks ports.ReconcileLock
	fallback  ports.FallbackChannel
	providers map[domain.ProviderKind]ports.ProviderClient

	orderLocks keyedMutex
	nowFn      func() time.Time
}

type Dependencies struct {
	Config    Config
	Logger    *slog.Logger
	Source    ports.SnapshotSource
	Orders    ports.OrderRepository
	Events    ports.WebhookEventRepository
	Mappings  ports.MappingRepository
	Outbox    ports.OutboxRepository
	Dedup     ports.DedupStore
	SyncLocks ports.ReconcileLock
	Fallback  ports.FallbackChannel
	Providers []ports.ProviderClient
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	providers := make(map[domain.ProviderKind]ports.ProviderClient, len(deps.Providers))
	for _, p := range deps.Providers {
		providers[p.Kind()] = p
	}
	return &Service{
		cfg:       deps.Config.withDefaults(),
		logger:    logger.With("module", "application", "layer", "application"),
		source:    deps.Source,
		orders:    deps.Orders,
		events:    deps.Events,
		mappings:  deps.Mappings,
		outbox:    deps.Outbox,
		dedup:     deps.Dedup,
		syncLocks: deps.SyncLocks,
		fallback:  deps.Fallback,
		providers: providers,
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}
