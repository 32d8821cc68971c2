// Package workspace persists derived rasters into output containers: plain
// directories, or SQLite raster catalogs named *.sqlite, *.gpkg or *.db.
package workspace

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pavletto/hydroflow/hydro"
	"github.com/pavletto/hydroflow/internal/catalog"
)

var containerExts = map[string]struct{}{
	".sqlite": {},
	".gpkg":   {},
	".db":     {},
}

// IsContainer reports whether path names a database container.
func IsContainer(path string) bool {
	_, ok := containerExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Store implements hydro.Workspaces. Catalogs are opened on first use and
// kept until Close.
type Store struct {
	mu       sync.Mutex
	catalogs map[string]*catalog.Catalog
}

func New() *Store {
	return &Store{catalogs: make(map[string]*catalog.Catalog)}
}

// Describe classifies container. Directories must already exist; database
// containers are created when the first raster is persisted.
func (s *Store) Describe(_ context.Context, container string) (hydro.WorkspaceInfo, error) {
	if IsContainer(container) {
		if fi, err := os.Stat(container); err == nil && fi.IsDir() {
			return hydro.WorkspaceInfo{}, fmt.Errorf("%s is a directory, not a database container", container)
		}
		return hydro.WorkspaceInfo{IsFileSystem: false}, nil
	}
	fi, err := os.Stat(container)
	if err != nil {
		return hydro.WorkspaceInfo{}, err
	}
	if !fi.IsDir() {
		return hydro.WorkspaceInfo{}, fmt.Errorf("%s is not a directory", container)
	}
	return hydro.WorkspaceInfo{IsFileSystem: true}, nil
}

// Persist copies the raster data of r to path.
func (s *Store) Persist(ctx context.Context, r hydro.Raster, path string) error {
	if container, name, ok := splitContainer(path); ok {
		payload, err := os.ReadFile(r.Path)
		if err != nil {
			return err
		}
		c, err := s.catalog(container)
		if err != nil {
			return err
		}
		return c.Put(ctx, name, r.Path, payload)
	}
	return copyFile(r.Path, path)
}

// Remove deletes a persisted raster.
func (s *Store) Remove(ctx context.Context, path string) error {
	if container, name, ok := splitContainer(path); ok {
		c, err := s.catalog(container)
		if err != nil {
			return err
		}
		return c.Delete(ctx, name)
	}
	return os.Remove(path)
}

// splitContainer splits "<container>/<name>" when the parent is a database
// container. Names inside a container are always slash-separated.
func splitContainer(path string) (container, name string, ok bool) {
	i := strings.LastIndex(path, "/")
	if i <= 0 || !IsContainer(path[:i]) {
		return "", "", false
	}
	return path[:i], path[i+1:], true
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for path, c := range s.catalogs {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.catalogs, path)
	}
	return first
}

func (s *Store) catalog(path string) (*catalog.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.catalogs[path]; ok {
		return c, nil
	}
	c, err := catalog.Open(path)
	if err != nil {
		return nil, err
	}
	s.catalogs[path] = c
	return c, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
