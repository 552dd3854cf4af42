package domain

import (
	"fmt"
	"strings"
)

// ProviderKind enumerates the POS vendors the service can talk to.
type ProviderKind string

const (
	ProviderLoyverse ProviderKind = "loyverse"
	ProviderOdoo     ProviderKind = "odoo"
)

// ParseProviderKind normalizes a provider path/config token.
func ParseProviderKind(raw string) (ProviderKind, bool) {
	switch ProviderKind(strings.ToLower(strings.TrimSpace(raw))) {
	case ProviderLoyverse:
		return ProviderLoyverse, true
	case ProviderOdoo:
		return ProviderOdoo, true
	}
	return "", false
}

// ProviderConfig is one POS backend attached to a location.
// Credentials arrive already resolved; secret injection happens upstream.
type ProviderConfig struct {
	Kind          ProviderKind `yaml:"kind"`
	Enabled       bool         `yaml:"enabled"`
	BaseURL       string       `yaml:"base_url"`
	APIKey        string       `yaml:"api_key"`
	WebhookSecret string       `yaml:"webhook_secret"`
	StoreID       string       `yaml:"store_id"`

	SyncMenu           bool `yaml:"sync_menu"`
	AutoProcessOrders  bool `yaml:"auto_process_orders"`
	FallbackToWhatsApp bool `yaml:"fallback_to_whatsapp"`
}

// Location is an immutable member of a configuration snapshot. Snapshots are
// swapped wholesale on reload, never mutated while in-flight dispatches hold them.
type Location struct {
	ID        string           `yaml:"id"`
	Name      string           `yaml:"name"`
	Providers []ProviderConfig `yaml:"providers"`
	Catalog   []MenuItem       `yaml:"catalog"`
}

// EnabledProviders returns the location's enabled providers in configured order.
// A disabled provider is never invoked.
func (l Location) EnabledProviders() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(l.Providers))
	for _, p := range l.Providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Provider returns the location's configuration for one vendor, enabled or not.
func (l Location) Provider(kind ProviderKind) (ProviderConfig, bool) {
	for _, p := range l.Providers {
		if p.Kind == kind {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// FallbackEnabled reports whether any provider at the location opted into the
// WhatsApp fallback path.
func (l Location) FallbackEnabled() bool {
	for _, p := range l.Providers {
		if p.FallbackToWhatsApp {
			return true
		}
	}
	return false
}

// Snapshot is the fully loaded location configuration served by the resolver.
type Snapshot struct {
	Locations map[string]Location
	Version   string
}

// Validate enforces the structural invariants a snapshot must hold before the
// resolver will swap it in. Errors wrap ErrConfigInvalid and name the
// offending entry so operators can find it in the file.
func (s Snapshot) Validate() error {
	if len(s.Locations) == 0 {
		return fmt.Errorf("%w: snapshot has no locations", ErrConfigInvalid)
	}
	for id, loc := range s.Locations {
		if loc.ID == "" || loc.ID != id {
			return fmt.Errorf("%w: location keyed %q carries id %q", ErrConfigInvalid, id, loc.ID)
		}
		seen := map[ProviderKind]bool{}
		for _, p := range loc.Providers {
			if _, ok := ParseProviderKind(string(p.Kind)); !ok {
				return fmt.Errorf("%w: location %q: unknown provider kind %q", ErrConfigInvalid, id, p.Kind)
			}
			if seen[p.Kind] {
				return fmt.Errorf("%w: location %q: provider %q configured twice", ErrConfigInvalid, id, p.Kind)
			}
			seen[p.Kind] = true
			if p.Enabled && p.BaseURL == "" {
				return fmt.Errorf("%w: location %q: provider %q enabled without base_url", ErrConfigInvalid, id, p.Kind)
			}
		}
	}
	return nil
}
