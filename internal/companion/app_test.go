package companion

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ianscrivener/draw-things-companion/internal/errdefs"
	"github.com/ianscrivener/draw-things-companion/internal/registry"
	"github.com/ianscrivener/draw-things-companion/internal/syncer"
	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
	"github.com/ianscrivener/draw-things-companion/pkg/db/store"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sizedFs reports fixed sizes for selected files so large transfers can be
// exercised without writing them.
type sizedFs struct {
	afero.Fs
	sizes map[string]int64
}

type sizedInfo struct {
	os.FileInfo
	size int64
}

func (i sizedInfo) Size() int64 { return i.size }

func (f sizedFs) Stat(name string) (os.FileInfo, error) {
	info, err := f.Fs.Stat(name)
	if err == nil {
		if size, ok := f.sizes[name]; ok {
			return sizedInfo{FileInfo: info, size: size}, nil
		}
	}
	return info, err
}

type testEnv struct {
	fs   afero.Fs
	app  *App
	path string
}

func openCatalog(ctx context.Context, path string) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(store.SQLiteConfig{Path: path})
	if err != nil {
		return nil, err
	}
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	return s, s.Migrate(ctx)
}

func setup(t *testing.T, fs afero.Fs, free uint64) *testEnv {
	t.Helper()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.sqlite")
	catalog, err := openCatalog(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = catalog.Close() })

	opener := func(ctx context.Context) (store.CatalogStore, error) {
		return openCatalog(ctx, path)
	}

	app := New(fs, catalog, opener, Options{
		HostDir:   "/host",
		FreeSpace: func(string) (uint64, error) { return free, nil },
	}, nil, nil)

	return &testEnv{fs: fs, app: app, path: path}
}

func writeHost(t *testing.T, fs afero.Fs, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, afero.WriteFile(fs, filepath.Join("/host/Models", name), []byte("weights of "+name), 0o644))
	}
}

func TestScan_TwiceIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeHost(t, fs, "my_lora_v2.safetensors", "sd_v1.5.ckpt")
	env := setup(t, fs, 1<<30)
	ctx := context.Background()

	first, err := env.app.Scan(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Scanned)
	assert.Equal(t, 2, first.Imported)

	before, err := env.app.ListModels(ctx, nil)
	require.NoError(t, err)

	second, err := env.app.Scan(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Imported)
	assert.Empty(t, second.Errors)

	after, err := env.app.ListModels(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	lora, err := env.app.GetModel(ctx, "my_lora_v2.safetensors")
	require.NoError(t, err)
	assert.Equal(t, models.KindLora, lora.Kind)
	assert.True(t, lora.IsOnHost)
}

func TestScan_UsesRegistry(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeHost(t, fs, "bad_hands.pt")
	env := setup(t, fs, 1<<30)
	ctx := context.Background()

	env.app.SetRegistry(&registry.Registry{Embeddings: registry.Set{"bad_hands.pt": {}}})

	_, err := env.app.Scan(ctx, nil)
	require.NoError(t, err)

	entry, err := env.app.GetModel(ctx, "bad_hands.pt")
	require.NoError(t, err)
	assert.Equal(t, models.KindEmbedding, entry.Kind)
	assert.Equal(t, models.KindSourceRegistry, entry.KindSource)
}

func TestReorder_ListReturnsOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeHost(t, fs, "a.ckpt", "b.ckpt")
	env := setup(t, fs, 1<<30)
	ctx := context.Background()

	_, err := env.app.Scan(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, env.app.Reorder(ctx, []models.DisplayOrder{
		{Filename: "b.ckpt", Order: 1},
		{Filename: "a.ckpt", Order: 0},
	}))

	views, err := env.app.ListModels(ctx, nil)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "a.ckpt", views[0].Filename)
	assert.Equal(t, "b.ckpt", views[1].Filename)

	require.NoError(t, env.app.Reorder(ctx, []models.DisplayOrder{
		{Filename: "a.ckpt", Order: 1},
		{Filename: "b.ckpt", Order: 0},
	}))
	views, err = env.app.ListModels(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "b.ckpt", views[0].Filename)
}

func TestCopyToStash(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeHost(t, fs, "a.ckpt")
	env := setup(t, fs, 1<<30)
	ctx := context.Background()

	_, err := env.app.Scan(ctx, nil)
	require.NoError(t, err)

	_, err = env.app.CopyToStash(ctx, "a.ckpt")
	require.ErrorIs(t, err, errdefs.ErrNotConfigured)

	require.NoError(t, env.app.SetStashDir(ctx, "/stash"))

	_, err = env.app.CopyToStash(ctx, "ghost.ckpt")
	require.ErrorIs(t, err, errdefs.ErrNotFound)

	result, err := env.app.CopyToStash(ctx, "a.ckpt")
	require.NoError(t, err)
	assert.Equal(t, "/stash/Models/a.ckpt", result.Destination)

	entry, err := env.app.GetModel(ctx, "a.ckpt")
	require.NoError(t, err)
	assert.True(t, entry.ExistsStash)

	_, err = env.app.CopyToStash(ctx, "a.ckpt")
	assert.ErrorIs(t, err, errdefs.ErrConflict)
}

func TestCopyToStash_InsufficientSpace(t *testing.T) {
	base := afero.NewMemMapFs()
	fs := sizedFs{Fs: base, sizes: map[string]int64{"/host/Models/big.ckpt": 10_000_000_000}}
	writeHost(t, base, "big.ckpt")

	env := setup(t, fs, 9_000_000_000)
	ctx := context.Background()

	_, err := env.app.Scan(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, env.app.SetStashDir(ctx, "/stash"))

	_, err = env.app.CopyToStash(ctx, "big.ckpt")
	require.ErrorIs(t, err, errdefs.ErrInsufficientSpace)
	assert.Contains(t, err.Error(), "required 11 GB")
	assert.Contains(t, err.Error(), "available 9.0 GB")

	entries, err := afero.ReadDir(base, "/stash/Models")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCopyToStash_ChecksumMismatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeHost(t, fs, "a.ckpt")
	env := setup(t, fs, 1<<30)
	ctx := context.Background()

	_, err := env.app.Scan(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, env.app.SetStashDir(ctx, "/stash"))
	info, err := fs.Stat("/host/Models/a.ckpt")
	require.NoError(t, err)
	require.NoError(t, env.app.catalog.SetChecksum(ctx, "a.ckpt", "deadbeef", info.Size(), info.ModTime()))

	_, err = env.app.CopyToStash(ctx, "a.ckpt")
	require.ErrorIs(t, err, errdefs.ErrIntegrity)

	exists, err := afero.Exists(fs, "/stash/Models/a.ckpt")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = afero.Exists(fs, "/host/Models/a.ckpt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCopyToStash_IgnoresChecksumOfOldContent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeHost(t, fs, "a.ckpt")
	env := setup(t, fs, 1<<30)
	ctx := context.Background()

	_, err := env.app.Scan(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, env.app.SetStashDir(ctx, "/stash"))

	info, err := fs.Stat("/host/Models/a.ckpt")
	require.NoError(t, err)
	require.NoError(t, env.app.catalog.SetChecksum(ctx, "a.ckpt", "digest of old weights", info.Size(), info.ModTime()))

	require.NoError(t, afero.WriteFile(fs, "/host/Models/a.ckpt", []byte("retrained weights of a.ckpt"), 0o644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, fs.Chtimes("/host/Models/a.ckpt", later, later))

	_, err = env.app.CopyToStash(ctx, "a.ckpt")
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, "/stash/Models/a.ckpt")
	require.NoError(t, err)
	assert.Equal(t, "retrained weights of a.ckpt", string(data))
}

func TestDelete(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeHost(t, fs, "a.ckpt", "b.ckpt")
	env := setup(t, fs, 1<<30)
	ctx := context.Background()

	_, err := env.app.Scan(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, env.app.Delete(ctx, "a.ckpt", false))
	exists, _ := afero.Exists(fs, "/host/Models/a.ckpt")
	assert.True(t, exists)

	require.NoError(t, env.app.Delete(ctx, "b.ckpt", true))
	exists, _ = afero.Exists(fs, "/host/Models/b.ckpt")
	assert.False(t, exists)

	views, err := env.app.ListModels(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, views)

	assert.ErrorIs(t, env.app.Delete(ctx, "b.ckpt", false), errdefs.ErrNotFound)
}

func TestInitialize(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeHost(t, fs, "flux.ckpt", "flux_vae.ckpt")
	require.NoError(t, afero.WriteFile(fs, "/host/Models/custom.json",
		[]byte(`[{"name": "FLUX", "file": "flux.ckpt", "autoencoder": "flux_vae.ckpt"}]`), 0o644))

	env := setup(t, fs, 1<<30)
	ctx := context.Background()

	status, err := env.app.InitializationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncer.StatusNotStarted, status.Status)

	task, err := env.app.Initialize(ctx, "/host", "/stash")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	report, err := task.Wait(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.FilesCopied)

	status, err = env.app.InitializationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncer.StatusComplete, status.Status)
	assert.True(t, status.StashExists)
	assert.Empty(t, status.Error)
	assert.Equal(t, task.ID, status.LastSyncID)

	paths, err := env.app.GetPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, Paths{HostDir: "/host", StashDir: "/stash"}, paths)

	edges, err := env.app.Relationships(ctx, "flux.ckpt")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.NoError(t, env.app.RemoveRelationship(ctx, "flux.ckpt", "flux_vae.ckpt"))

	assert.NotEmpty(t, env.app.GetLogs())
	assert.NoError(t, env.app.Cleanup(ctx))
}

func TestUserEdits(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeHost(t, fs, "detail_lora.ckpt")
	env := setup(t, fs, 1<<30)
	ctx := context.Background()

	_, err := env.app.Scan(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, env.app.Rename(ctx, "detail_lora.ckpt", "Detail"))
	strength := 8
	require.NoError(t, env.app.SetStrength(ctx, "detail_lora.ckpt", &strength))
	require.NoError(t, env.app.SetKind(ctx, "detail_lora.ckpt", models.KindModel))

	_, err = env.app.Scan(ctx, nil)
	require.NoError(t, err)

	entry, err := env.app.GetModel(ctx, "detail_lora.ckpt")
	require.NoError(t, err)
	assert.Equal(t, "Detail", *entry.DisplayName)
	assert.Equal(t, 8, *entry.Strength)
	assert.Equal(t, models.KindModel, entry.Kind)

	lora := models.KindLora
	views, err := env.app.ListModels(ctx, &lora)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestRename_EmptyNameFallsBackToManifest(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeHost(t, fs, "flux_1_dev.ckpt")
	require.NoError(t, afero.WriteFile(fs, "/host/Models/custom.json",
		[]byte(`[{"name": "FLUX.1 dev", "file": "flux_1_dev.ckpt"}]`), 0o644))
	env := setup(t, fs, 1<<30)
	ctx := context.Background()

	_, err := env.app.Scan(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, env.app.Rename(ctx, "flux_1_dev.ckpt", "My Flux"))

	require.NoError(t, env.app.Rename(ctx, "flux_1_dev.ckpt", ""))
	entry, err := env.app.GetModel(ctx, "flux_1_dev.ckpt")
	require.NoError(t, err)
	assert.Nil(t, entry.DisplayName)

	_, err = env.app.Scan(ctx, nil)
	require.NoError(t, err)
	entry, err = env.app.GetModel(ctx, "flux_1_dev.ckpt")
	require.NoError(t, err)
	require.NotNil(t, entry.DisplayName)
	assert.Equal(t, "FLUX.1 dev", *entry.DisplayName)
}

func TestSetHostVisibility(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeHost(t, fs, "a.ckpt")
	env := setup(t, fs, 1<<30)
	ctx := context.Background()

	_, err := env.app.Scan(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, env.app.SetHostVisibility(ctx, "a.ckpt", false, nil))
	entry, err := env.app.GetModel(ctx, "a.ckpt")
	require.NoError(t, err)
	assert.False(t, entry.IsOnHost)

	// The file is still on the host, but a rescan keeps it hidden
	result, err := env.app.Scan(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Imported)

	entry, err = env.app.GetModel(ctx, "a.ckpt")
	require.NoError(t, err)
	assert.True(t, entry.ExistsHost)
	assert.False(t, entry.IsOnHost)

	order := 0
	require.NoError(t, env.app.SetHostVisibility(ctx, "a.ckpt", true, &order))
	entry, err = env.app.GetModel(ctx, "a.ckpt")
	require.NoError(t, err)
	assert.True(t, entry.IsOnHost)
}

func TestDiskSpace(t *testing.T) {
	env := setup(t, afero.NewMemMapFs(), 9_000_000_000)
	ctx := context.Background()

	space, err := env.app.DiskSpace(ctx, models.LocationHost)
	require.NoError(t, err)
	assert.Equal(t, uint64(9_000_000_000), space.Available)
	assert.Equal(t, "9.0 GB", space.Human)

	_, err = env.app.DiskSpace(ctx, models.LocationStash)
	assert.ErrorIs(t, err, errdefs.ErrNotConfigured)
}

func TestConfig(t *testing.T) {
	env := setup(t, afero.NewMemMapFs(), 1<<30)
	ctx := context.Background()

	require.NoError(t, env.app.SetConfig(ctx, "THEME", "dark"))
	value, ok, err := env.app.GetConfig(ctx, "THEME")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", value)
}
