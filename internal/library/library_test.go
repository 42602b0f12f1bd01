package library

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ianscrivener/draw-things-companion/internal/classify"
	"github.com/ianscrivener/draw-things-companion/internal/manifest"
	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
	"github.com/ianscrivener/draw-things-companion/pkg/db/store"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "catalog.sqlite")})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeFiles(t *testing.T, fs afero.Fs, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, name), []byte(name), 0o644))
	}
}

func TestScanLocation_IsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/host/Models", "sd_v1.5_f16.ckpt", "my_lora_v2.safetensors", "custom.json")

	s := setupStore(t)
	im := NewImporter(fs, s, classify.New(nil, nil), nil, nil, nil)
	ctx := context.Background()

	first, err := im.ScanLocation(ctx, models.LocationHost, "/host/Models", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Scanned)
	assert.Equal(t, 2, first.Imported)
	assert.Empty(t, first.Errors)

	before, err := s.ListModels(ctx, models.ModelFilter{})
	require.NoError(t, err)

	second, err := im.ScanLocation(ctx, models.LocationHost, "/host/Models", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Scanned)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 0, second.Cleared)

	after, err := s.ListModels(ctx, models.ModelFilter{})
	require.NoError(t, err)
	assert.Equal(t, before, after)

	lora, err := s.GetModel(ctx, "my_lora_v2.safetensors")
	require.NoError(t, err)
	assert.Equal(t, models.KindLora, lora.Kind)
	assert.Equal(t, models.KindSourceHeuristic, lora.KindSource)
	assert.True(t, lora.ExistsHost)
	assert.Equal(t, "/host/Models/my_lora_v2.safetensors", *lora.SourcePath)
}

func TestScanLocation_AppliesManifest(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/host/Models", "flux.ckpt", "detail.ckpt")

	index := manifest.Build(
		[]manifest.CustomModel{{Name: "FLUX", File: "flux.ckpt"}},
		[]manifest.CustomLora{{Name: "Detail", File: "detail.ckpt", Weight: &manifest.LoraWeight{Value: 0.6}}},
		nil,
	)

	s := setupStore(t)
	im := NewImporter(fs, s, classify.New(index, nil), index, nil, nil)
	ctx := context.Background()

	_, err := im.ScanLocation(ctx, models.LocationHost, "/host/Models", nil)
	require.NoError(t, err)

	detail, err := s.GetModel(ctx, "detail.ckpt")
	require.NoError(t, err)
	assert.Equal(t, models.KindLora, detail.Kind)
	assert.Equal(t, models.KindSourceManifest, detail.KindSource)
	assert.Equal(t, "Detail", *detail.DisplayName)
	assert.Equal(t, 6, *detail.Strength)
	assert.Equal(t, 0, *detail.HostDisplayOrder)

	flux, err := s.GetModel(ctx, "flux.ckpt")
	require.NoError(t, err)
	assert.Nil(t, flux.Strength)
}

func TestScanLocation_StashIgnoresDisplayOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/stash/Models", "flux.ckpt")
	index := manifest.Build([]manifest.CustomModel{{Name: "FLUX", File: "flux.ckpt"}}, nil, nil)

	s := setupStore(t)
	im := NewImporter(fs, s, classify.New(index, nil), index, nil, nil)
	ctx := context.Background()

	_, err := im.ScanLocation(ctx, models.LocationStash, "/stash/Models", nil)
	require.NoError(t, err)

	flux, err := s.GetModel(ctx, "flux.ckpt")
	require.NoError(t, err)
	assert.True(t, flux.ExistsStash)
	assert.False(t, flux.ExistsHost)
	assert.Nil(t, flux.HostDisplayOrder)
}

func TestScanLocation_ClearsVanishedFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/stash/Models", "a.ckpt", "b.ckpt")

	s := setupStore(t)
	im := NewImporter(fs, s, classify.New(nil, nil), nil, nil, nil)
	ctx := context.Background()

	_, err := im.ScanLocation(ctx, models.LocationStash, "/stash/Models", nil)
	require.NoError(t, err)

	require.NoError(t, fs.Remove("/stash/Models/b.ckpt"))
	report, err := im.ScanLocation(ctx, models.LocationStash, "/stash/Models", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Cleared)

	b, err := s.GetModel(ctx, "b.ckpt")
	require.NoError(t, err)
	assert.False(t, b.ExistsStash)
}

func TestScanLocation_KindFilter(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/host/Models", "a_lora.ckpt", "b_vae.ckpt")

	s := setupStore(t)
	im := NewImporter(fs, s, classify.New(nil, nil), nil, nil, nil)
	ctx := context.Background()

	lora := models.KindLora
	report, err := im.ScanLocation(ctx, models.LocationHost, "/host/Models", &lora)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Imported)

	_, err = s.GetModel(ctx, "b_vae.ckpt")
	assert.Error(t, err)
}

func TestScanLocation_MissingDirectory(t *testing.T) {
	s := setupStore(t)
	im := NewImporter(afero.NewMemMapFs(), s, classify.New(nil, nil), nil, nil, nil)

	report, err := im.ScanLocation(context.Background(), models.LocationHost, "/nowhere", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
	assert.Empty(t, report.Errors)
}
