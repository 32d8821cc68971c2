package mapview_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavletto/hydroflow/internal/mapview"
)

func TestManifest_Register(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "map.yaml")
	m := mapview.New(path)

	require.NoError(t, m.Register(ctx, "/out/sink.tif"))
	require.NoError(t, m.Register(ctx, "/out/hydro.gpkg/watershed"))
	require.NoError(t, m.Register(ctx, "/out/sink.tif"))

	layers, err := m.Layers()
	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Equal(t, "sink", layers[0].Name)
	assert.Equal(t, "/out/sink.tif", layers[0].Source)
	assert.Equal(t, "watershed", layers[1].Name)
	assert.False(t, layers[0].AddedAt.IsZero())

	reopened, err := mapview.New(path).Layers()
	require.NoError(t, err)
	assert.Equal(t, layers, reopened)
}

func TestManifest_Empty(t *testing.T) {
	layers, err := mapview.New(filepath.Join(t.TempDir(), "none.yaml")).Layers()
	require.NoError(t, err)
	assert.Empty(t, layers)
}

func TestManifest_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.yaml")
	require.NoError(t, os.WriteFile(path, []byte("layers: [unterminated"), 0o644))

	err := mapview.New(path).Register(context.Background(), "/out/sink.tif")
	assert.Error(t, err)
}
