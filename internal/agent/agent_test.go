package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	config "github.com/ianscrivener/draw-things-companion/internal/config/server"
	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.BaseServerConfig {
	t.Helper()

	cfg := config.GetServerDefault()
	cfg.Log.NoTerminal = true
	cfg.Log.File = filepath.Join(t.TempDir(), "agent.log")
	cfg.Metadata.SQLite.Path = filepath.Join(t.TempDir(), "catalog.sqlite")
	cfg.Paths.HostDir = t.TempDir()
	return &cfg
}

func TestAgent_OpenAndClose(t *testing.T) {
	ctx := context.Background()
	ca := NewAgent(testConfig(t))

	app, err := ca.Open(ctx)
	require.NoError(t, err)

	again, err := ca.Open(ctx)
	require.NoError(t, err)
	assert.Same(t, app, again)

	version, ok, err := app.GetConfig(ctx, models.ConfigSchemaVersion)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3", version)

	require.NoError(t, ca.Close(ctx))
}

func TestAgent_UnsupportedMetadata(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metadata.Type = "postgres"

	_, err := NewAgent(cfg).Open(context.Background())
	assert.Error(t, err)
}

func TestAgent_LoadRegistry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("bad_hands.pt\n"))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Registry.Embeddings = srv.URL

	ctx := context.Background()
	ca := NewAgent(cfg)
	app, err := ca.Open(ctx)
	require.NoError(t, err)
	defer ca.Close(ctx)

	modelsDir := filepath.Join(cfg.Paths.HostDir, "Models")
	require.NoError(t, os.MkdirAll(modelsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "bad_hands.pt"), []byte("x"), 0o644))

	ca.LoadRegistry(ctx)

	_, err = app.Scan(ctx, nil)
	require.NoError(t, err)

	entry, err := app.GetModel(ctx, "bad_hands.pt")
	require.NoError(t, err)
	assert.Equal(t, models.KindEmbedding, entry.Kind)
	assert.Equal(t, models.KindSourceRegistry, entry.KindSource)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseDuration("5s", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("bogus", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("-1s", time.Minute))
}
