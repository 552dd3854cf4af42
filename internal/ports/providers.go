package ports

import (
	"context"
	"net/http"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
)

// ProviderOrderRef is the vendor-side handle returned by a successful create.
type ProviderOrderRef struct {
	Provider        domain.ProviderKind
	ProviderOrderID string
}

// ProviderClient owns protocol translation for exactly one POS vendor.
// Implementations normalize vendor HTTP statuses and error codes into the
// domain error taxonomy so the dispatcher's retry policy stays vendor-agnostic.
// Adding a vendor never touches the dispatcher or the ingestor.
type ProviderClient interface {
	Kind() domain.ProviderKind

	// CreateOrder places a canonical order with the vendor. The idempotency
	// token is derived from the canonical order id; vendors that support
	// request idempotency receive it on the wire.
	CreateOrder(ctx context.Context, cfg domain.ProviderConfig, order domain.CanonicalOrder) (ProviderOrderRef, error)

	// UpsertCatalogItem mirrors one canonical item into the vendor catalog
	// under the mapped provider item id.
	UpsertCatalogItem(ctx context.Context, cfg domain.ProviderConfig, item domain.MenuItem, mapping domain.ProviderMapping) error

	// RetireCatalogItem removes or deactivates a previously mirrored item.
	RetireCatalogItem(ctx context.Context, cfg domain.ProviderConfig, mapping domain.ProviderMapping) error

	// VerifyWebhookSignature checks the vendor signing scheme over the raw
	// body. Pure function of its inputs; no network I/O.
	VerifyWebhookSignature(rawPayload []byte, headers http.Header, sharedSecret string) bool

	// ParseWebhook decodes a verified raw payload into a canonical event.
	ParseWebhook(rawPayload []byte) (domain.WebhookEvent, error)
}
