// Package mapview keeps the layer list of a map in a YAML manifest. It
// stands in for a desktop application's active view when adding outputs.
package mapview

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Layer is one entry of the map's layer list.
type Layer struct {
	Name    string    `yaml:"name"`
	Source  string    `yaml:"source"`
	AddedAt time.Time `yaml:"added_at"`
}

type document struct {
	Layers []Layer `yaml:"layers"`
}

// Manifest implements hydro.Registrar.
type Manifest struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func New(path string) *Manifest {
	return &Manifest{path: path, now: time.Now}
}

// Register appends the raster at path as a layer. Registering the same
// source twice keeps a single layer.
func (m *Manifest) Register(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.load()
	if err != nil {
		return err
	}
	for _, l := range doc.Layers {
		if l.Source == path {
			return nil
		}
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	doc.Layers = append(doc.Layers, Layer{Name: name, Source: path, AddedAt: m.now().UTC()})

	raw, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path, raw, 0o644); err != nil {
		return fmt.Errorf("write map manifest: %w", err)
	}
	return nil
}

// Layers returns the current layer list.
func (m *Manifest) Layers() ([]Layer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.load()
	if err != nil {
		return nil, err
	}
	return doc.Layers, nil
}

func (m *Manifest) load() (document, error) {
	var doc document
	raw, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read map manifest: %w", err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse map manifest %s: %w", m.path, err)
	}
	return doc, nil
}
