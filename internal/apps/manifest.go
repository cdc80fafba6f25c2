// Package apps holds the installed-app directory and the running-app
// registry: the host's source of truth for app identity, grants, and
// lifecycle.
package apps

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServiceDecl declares a service an app intends to expose on the AppBus.
// The declaration is informational; registration still happens at runtime
// through appbus/registerService.
type ServiceDecl struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// Manifest is an installed app's manifest. Permissions are grant strings
// ("namespace/resource", "namespace/*", or "*") consumed verbatim by the
// grant model; they are fixed for the lifetime of the installation.
type Manifest struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Version     string        `yaml:"version,omitempty"`
	Description string        `yaml:"description,omitempty"`
	Permissions []string      `yaml:"permissions,omitempty"`
	Services    []ServiceDecl `yaml:"services,omitempty"`

	// Backend is the optional command starting the app's isolated backend
	// process. Apps without one are frontend-only.
	Backend string `yaml:"backend,omitempty"`
}

// Validate checks the manifest for structural problems.
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("manifest is missing an id")
	}
	if strings.ContainsAny(m.ID, "/ \t") {
		return fmt.Errorf("manifest id '%s' must not contain slashes or whitespace", m.ID)
	}
	if m.Name == "" {
		return fmt.Errorf("manifest '%s' is missing a name", m.ID)
	}
	for _, p := range m.Permissions {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("manifest '%s' contains an empty permission", m.ID)
		}
	}
	return nil
}

// LoadManifest reads and validates a single manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return &m, nil
}

// LoadManifestDir scans a directory for app manifests. Each app lives in its
// own subdirectory containing a manifest.yaml.
func LoadManifestDir(dir string) ([]*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifest dir %s: %w", dir, err)
	}

	var manifests []*Manifest
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name(), "manifest.yaml")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		m, err := LoadManifest(path)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}
