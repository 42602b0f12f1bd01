package store

import (
	"context"
	"time"

	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
)

// CatalogStore defines the interface for catalog operations
type CatalogStore interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
	Health(ctx context.Context) error

	// Config operations
	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error

	// Model operations
	GetModel(ctx context.Context, filename string) (*models.ModelEntry, error)
	ListModels(ctx context.Context, filter models.ModelFilter) ([]models.ModelEntry, error)
	UpsertModel(ctx context.Context, obs models.Observation) (bool, error)
	DeleteModel(ctx context.Context, filename string) error
	SetHostVisibility(ctx context.Context, filename string, visible bool, order *int) error
	SetStashPresence(ctx context.Context, filename string, present bool) error
	ClearMissing(ctx context.Context, location models.Location, present []string, kind *models.Kind) (int, error)
	UpdateDisplayOrders(ctx context.Context, orders []models.DisplayOrder) error
	SetDisplayName(ctx context.Context, filename, name string) error
	SetStrength(ctx context.Context, filename string, strength *int) error
	SetKind(ctx context.Context, filename string, kind models.Kind) error
	SetChecksum(ctx context.Context, filename, checksum string, size int64, modTime time.Time) error

	// Relationship operations
	AddRelationship(ctx context.Context, parent, child string) (models.EdgeResult, error)
	ListRelationships(ctx context.Context, parent string) ([]models.DependencyEdge, error)
	DeleteRelationship(ctx context.Context, parent, child string) error
}
