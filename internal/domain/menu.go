package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// MenuItem is the canonical, vendor-neutral catalog entry. The id is the
// stable source-of-truth key provider mappings hang off.
type MenuItem struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description"`
	Price       float64 `json:"price" yaml:"price"`
	Category    string  `json:"category" yaml:"category"`
	Available   bool    `json:"available" yaml:"available"`
}

// ContentHash fingerprints the fields a provider mirror depends on, so the
// reconciler can skip unchanged items without fetching vendor state.
func (m MenuItem) ContentHash() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%.4f|%s|%t",
		m.ID, m.Name, m.Description, m.Price, m.Category, m.Available)))
	return hex.EncodeToString(sum[:])
}

// ProviderMapping binds a canonical item to one provider SKU and remembers the
// content hash last pushed there. Unique on (provider, canonical item id);
// several mappings may point at the same provider item for unit differences.
type ProviderMapping struct {
	Provider        ProviderKind `json:"provider"`
	LocationID      string       `json:"location_id"`
	CanonicalItemID string       `json:"canonical_item_id"`
	ProviderItemID  string       `json:"provider_item_id"`
	ContentHash     string       `json:"content_hash"`
	Retired         bool         `json:"retired"`
	SyncedAt        time.Time    `json:"synced_at"`
}

// ReconcileResult summarizes one reconciliation run for a provider.
type ReconcileResult struct {
	Provider   ProviderKind `json:"provider"`
	LocationID string       `json:"location_id"`
	Upserted   int          `json:"upserted"`
	Retired    int          `json:"retired"`
	Errors     []string     `json:"errors,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}
