package domain

import (
	"errors"
	"testing"
)

func TestMenuItemContentHash(t *testing.T) {
	t.Parallel()

	item := MenuItem{
		ID:        "taco-pastor",
		Name:      "Taco al Pastor",
		Price:     25,
		Category:  "Tacos",
		Available: true,
	}

	if item.ContentHash() != item.ContentHash() {
		t.Fatalf("content hash must be deterministic")
	}

	changed := item
	changed.Price = 27
	if item.ContentHash() == changed.ContentHash() {
		t.Fatalf("price change must change the hash")
	}

	changed = item
	changed.Available = false
	if item.ContentHash() == changed.ContentHash() {
		t.Fatalf("availability change must change the hash")
	}

	changed = item
	changed.Description = "Con pina"
	if item.ContentHash() == changed.ContentHash() {
		t.Fatalf("description change must change the hash")
	}
}

func TestSnapshotValidate(t *testing.T) {
	t.Parallel()

	good := Snapshot{
		Version: "v1",
		Locations: map[string]Location{
			"loc-1": {
				ID: "loc-1",
				Providers: []ProviderConfig{
					{Kind: ProviderLoyverse, Enabled: true, BaseURL: "https://api.loyverse.test"},
				},
			},
		},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected valid snapshot, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(s *Snapshot)
	}{
		{name: "empty", mutate: func(s *Snapshot) { s.Locations = nil }},
		{name: "id mismatch", mutate: func(s *Snapshot) {
			loc := s.Locations["loc-1"]
			loc.ID = "other"
			s.Locations["loc-1"] = loc
		}},
		{name: "unknown provider kind", mutate: func(s *Snapshot) {
			loc := s.Locations["loc-1"]
			loc.Providers = []ProviderConfig{{Kind: "square", Enabled: true, BaseURL: "https://x"}}
			s.Locations["loc-1"] = loc
		}},
		{name: "duplicate provider", mutate: func(s *Snapshot) {
			loc := s.Locations["loc-1"]
			loc.Providers = append(loc.Providers, loc.Providers[0])
			s.Locations["loc-1"] = loc
		}},
		{name: "enabled without base url", mutate: func(s *Snapshot) {
			loc := s.Locations["loc-1"]
			loc.Providers = []ProviderConfig{{Kind: ProviderLoyverse, Enabled: true}}
			s.Locations["loc-1"] = loc
		}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			snap := Snapshot{
				Version: "v1",
				Locations: map[string]Location{
					"loc-1": {
						ID: "loc-1",
						Providers: []ProviderConfig{
							{Kind: ProviderLoyverse, Enabled: true, BaseURL: "https://api.loyverse.test"},
						},
					},
				},
			}
			tc.mutate(&snap)
			if err := snap.Validate(); !errors.Is(err, ErrConfigInvalid) {
				t.Fatalf("expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}
