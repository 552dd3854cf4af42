// Package config loads the location/provider snapshot the resolver serves.
// Credentials in the file arrive already resolved; secret injection is a
// deploy-time concern outside this service.
package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
)

// FileSnapshotSource reads the snapshot from a YAML file on every load.
// The application swaps snapshots atomically; this source only parses and
// validates, returning domain.ErrConfigInvalid on any structural problem so
// a bad file can never partially apply.
type FileSnapshotSource struct {
	path string
}

func NewFileSnapshotSource(path string) *FileSnapshotSource {
	return &FileSnapshotSource{path: path}
}

type snapshotFile struct {
	Version   string            `yaml:"version"`
	Locations []domain.Location `yaml:"locations"`
}

func (s *FileSnapshotSource) LoadSnapshot(_ context.Context) (domain.Snapshot, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: read %s: %v", domain.ErrConfigInvalid, s.path, err)
	}

	var file snapshotFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: parse %s: %v", domain.ErrConfigInvalid, s.path, err)
	}

	snap := domain.Snapshot{
		Version:   file.Version,
		Locations: make(map[string]domain.Location, len(file.Locations)),
	}
	for _, loc := range file.Locations {
		if _, dup := snap.Locations[loc.ID]; dup {
			return domain.Snapshot{}, fmt.Errorf("%w: duplicate location id %q", domain.ErrConfigInvalid, loc.ID)
		}
		snap.Locations[loc.ID] = loc
	}
	if err := snap.Validate(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("validate %s: %w", s.path, err)
	}
	return snap, nil
}
