package syncer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ianscrivener/draw-things-companion/internal/errdefs"
	"github.com/ianscrivener/draw-things-companion/internal/probe"
	"github.com/ianscrivener/draw-things-companion/internal/registry"
	"github.com/ianscrivener/draw-things-companion/internal/transfer"
	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
	"github.com/ianscrivener/draw-things-companion/pkg/db/store"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customJSON = `[{"name": "FLUX", "file": "flux_1_dev.ckpt", "autoencoder": "flux_1_vae.ckpt", "text_encoder": "t5_missing.ckpt"}]`

func openStore(t *testing.T, path string) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(store.SQLiteConfig{Path: path})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Migrate(ctx))
	return s
}

func setup(t *testing.T, free uint64) (afero.Fs, *Syncer, *store.SQLiteStore, string) {
	t.Helper()

	fs := afero.NewMemMapFs()
	for name, content := range map[string]string{
		"flux_1_dev.ckpt":        strings.Repeat("m", 1024),
		"flux_1_vae.ckpt":        strings.Repeat("v", 1024),
		"my_lora_v2.safetensors": strings.Repeat("l", 1024),
		"custom.json":            customJSON,
	} {
		require.NoError(t, afero.WriteFile(fs, filepath.Join("/host/Models", name), []byte(content), 0o644))
	}

	freeSpace := func(string) (uint64, error) { return free, nil }
	tr := transfer.New(fs, freeSpace, transfer.DefaultSafetyMargin, nil)
	s := New(fs, Config{}, tr, &registry.Registry{}, nil)

	path := filepath.Join(t.TempDir(), "catalog.sqlite")
	catalog := openStore(t, path)
	t.Cleanup(func() { _ = catalog.Close() })

	return fs, s, catalog, path
}

func TestRun_Complete(t *testing.T) {
	fs, s, catalog, _ := setup(t, 1<<30)
	ctx := context.Background()

	report, err := s.Run(ctx, catalog, Options{HostDir: "/host", StashDir: "/stash"})
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, report.Status)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 1, report.ManifestsCopied)
	assert.Equal(t, 3, report.FilesCopied)
	assert.Equal(t, 3, report.Host.Imported)
	assert.Equal(t, 0, report.Stash.Imported)
	assert.Equal(t, 1, report.Relations.Inserted)
	assert.Equal(t, 1, report.Relations.Skipped)

	for _, name := range []string{"custom.json", "flux_1_dev.ckpt", "flux_1_vae.ckpt", "my_lora_v2.safetensors"} {
		exists, err := afero.Exists(fs, filepath.Join("/stash/Models", name))
		require.NoError(t, err)
		assert.True(t, exists, name)
	}

	flux, err := catalog.GetModel(ctx, "flux_1_dev.ckpt")
	require.NoError(t, err)
	assert.True(t, flux.ExistsHost)
	assert.True(t, flux.ExistsStash)
	assert.Equal(t, "FLUX", *flux.DisplayName)

	vae, err := catalog.GetModel(ctx, "flux_1_vae.ckpt")
	require.NoError(t, err)
	assert.Equal(t, models.KindVAE, vae.Kind)

	status, _, err := catalog.GetConfig(ctx, models.ConfigInitStatus)
	require.NoError(t, err)
	assert.Equal(t, string(StatusComplete), status)

	stashExists, _, err := catalog.GetConfig(ctx, models.ConfigStashExists)
	require.NoError(t, err)
	assert.Equal(t, "true", stashExists)

	lastID, _, err := catalog.GetConfig(ctx, models.ConfigLastSyncID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, lastID)

	// A second run copies nothing and imports nothing
	again, err := s.Run(ctx, catalog, Options{HostDir: "/host", StashDir: "/stash"})
	require.NoError(t, err)
	assert.Equal(t, 0, again.FilesCopied)
	assert.Equal(t, 3, again.FilesSkipped)
	assert.Equal(t, 0, again.Host.Imported)
	assert.Equal(t, 1, again.Relations.Existing)
}

func TestRun_StepFailuresDoNotStopLaterSteps(t *testing.T) {
	// Only the manifest fits on the stash volume
	_, s, catalog, _ := setup(t, 200)
	ctx := context.Background()

	report, err := s.Run(ctx, catalog, Options{HostDir: "/host", StashDir: "/stash"})
	require.Error(t, err)
	assert.Equal(t, StatusError, report.Status)
	assert.Equal(t, 1, report.ManifestsCopied)
	assert.Equal(t, 3, report.FilesFailed)
	assert.Equal(t, 3, report.Host.Imported)

	status, _, err := catalog.GetConfig(ctx, models.ConfigInitStatus)
	require.NoError(t, err)
	assert.Equal(t, string(StatusError), status)

	message, _, err := catalog.GetConfig(ctx, models.ConfigInitError)
	require.NoError(t, err)
	assert.Contains(t, message, "insufficient disk space")
}

func TestRun_UpdatedHostFileReplacesStashCopy(t *testing.T) {
	fs, s, catalog, _ := setup(t, 1<<30)
	ctx := context.Background()
	opts := Options{HostDir: "/host", StashDir: "/stash"}

	_, err := s.Run(ctx, catalog, opts)
	require.NoError(t, err)

	source := "/host/Models/my_lora_v2.safetensors"
	sum, err := probe.Checksum(fs, source)
	require.NoError(t, err)
	info, err := fs.Stat(source)
	require.NoError(t, err)
	require.NoError(t, catalog.SetChecksum(ctx, "my_lora_v2.safetensors", sum, info.Size(), info.ModTime()))

	retrained := strings.Repeat("n", 2048)
	require.NoError(t, afero.WriteFile(fs, source, []byte(retrained), 0o644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, fs.Chtimes(source, later, later))

	report, err := s.Run(ctx, catalog, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesCopied)
	assert.Equal(t, 0, report.FilesFailed)

	data, err := afero.ReadFile(fs, "/stash/Models/my_lora_v2.safetensors")
	require.NoError(t, err)
	assert.Equal(t, retrained, string(data))

	lora, err := catalog.GetModel(ctx, "my_lora_v2.safetensors")
	require.NoError(t, err)
	assert.Nil(t, lora.Checksum)
	assert.Equal(t, int64(2048), *lora.FileSize)

	again, err := s.Run(ctx, catalog, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, again.FilesCopied)
	assert.Equal(t, 0, again.FilesFailed)
}

func TestRun_VerifiesWithChecksumOfCurrentContent(t *testing.T) {
	fs, _, catalog, _ := setup(t, 1<<30)
	ctx := context.Background()

	tr := transfer.New(fs, func(string) (uint64, error) { return 1 << 30, nil }, transfer.DefaultSafetyMargin, nil)
	s := New(fs, Config{VerifyChecksums: true}, tr, &registry.Registry{}, nil)
	opts := Options{HostDir: "/host", StashDir: "/stash"}

	_, err := s.Run(ctx, catalog, opts)
	require.NoError(t, err)

	source := "/host/Models/flux_1_dev.ckpt"
	require.NoError(t, afero.WriteFile(fs, source, []byte(strings.Repeat("x", 4096)), 0o644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, fs.Chtimes(source, later, later))

	report, err := s.Run(ctx, catalog, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesCopied)

	want, err := probe.Checksum(fs, source)
	require.NoError(t, err)
	info, err := fs.Stat(source)
	require.NoError(t, err)

	flux, err := catalog.GetModel(ctx, "flux_1_dev.ckpt")
	require.NoError(t, err)
	require.NotNil(t, flux.ChecksumFor(info.Size(), info.ModTime()))
	assert.Equal(t, want, *flux.ChecksumFor(info.Size(), info.ModTime()))
}

func TestRun_NotConfigured(t *testing.T) {
	_, s, catalog, _ := setup(t, 1<<30)

	report, err := s.Run(context.Background(), catalog, Options{HostDir: "/host"})
	assert.ErrorIs(t, err, errdefs.ErrNotConfigured)
	assert.Equal(t, StatusError, report.Status)
}

func TestStart_UsesOwnConnection(t *testing.T) {
	_, s, catalog, path := setup(t, 1<<30)
	ctx := context.Background()

	opened := 0
	task := s.Start(ctx, func(ctx context.Context) (store.CatalogStore, error) {
		opened++
		own, err := store.NewSQLiteStore(store.SQLiteConfig{Path: path})
		if err != nil {
			return nil, err
		}
		return own, own.Connect(ctx)
	}, Options{HostDir: "/host", StashDir: "/stash"})

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	report, err := task.Wait(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, report.Status)
	assert.Equal(t, task.ID, report.ID)
	assert.True(t, task.Finished())
	assert.Equal(t, 1, opened)

	// Terminal state is stable across waits
	again, err := task.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, report, again)

	entries, err := catalog.ListModels(ctx, models.ModelFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestStart_OpenFailure(t *testing.T) {
	_, s, _, _ := setup(t, 1<<30)

	task := s.Start(context.Background(), func(context.Context) (store.CatalogStore, error) {
		return nil, assert.AnError
	}, Options{HostDir: "/host", StashDir: "/stash"})

	report, err := task.Wait(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, StatusError, report.Status)
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusNotStarted, ParseStatus(""))
	assert.Equal(t, StatusComplete, ParseStatus("complete"))
	assert.Equal(t, StatusInProgress, ParseStatus("IN_PROGRESS"))
	assert.True(t, StatusError.Terminal())
	assert.False(t, StatusInProgress.Terminal())
}
