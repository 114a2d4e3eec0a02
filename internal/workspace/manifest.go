// Package workspace resolves repositories into analysis units and collects
// the static counts that do not need the analysis tool.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

const ManifestName = "Cargo.toml"

// ErrNoManifest is returned when a directory has no Cargo.toml.
var ErrNoManifest = errors.New("no Cargo.toml found")

// Manifest is the subset of Cargo.toml the harness reads.
type Manifest struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
	Dependencies map[string]any `toml:"dependencies"`
	Features     map[string]any `toml:"features"`
	Workspace    struct {
		Members []string `toml:"members"`
		Exclude []string `toml:"exclude"`
	} `toml:"workspace"`
}

// DependencyCount is the number of entries in [dependencies].
func (m *Manifest) DependencyCount() int {
	if m == nil {
		return 0
	}
	return len(m.Dependencies)
}

// FeatureCount is the number of entries in [features].
func (m *Manifest) FeatureCount() int {
	if m == nil {
		return 0
	}
	return len(m.Features)
}

// ReadManifest parses dir/Cargo.toml. A missing file yields an error
// wrapping ErrNoManifest.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", dir, ErrNoManifest)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var m Manifest
	if err := toml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &m, nil
}
