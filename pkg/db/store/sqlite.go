package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/ianscrivener/draw-things-companion/internal/errdefs"
	"github.com/ianscrivener/draw-things-companion/pkg/db/migrations"
	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SQLiteStore implements CatalogStore using SQLite. Every operation holds the
// store mutex for its full duration, so multi-statement operations are atomic
// with respect to other callers of the same handle.
type SQLiteStore struct {
	mutex sync.Mutex

	db   *gorm.DB
	path string
}

// DB returns the underlying GORM database instance
func (s *SQLiteStore) DB() *gorm.DB {
	return s.db
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.path
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path        string
	BusyTimeout time.Duration
	LogLevel    logger.LogLevel
}

const DefaultBusyTimeout = 5 * time.Second

// NewSQLiteStore creates a new SQLite-backed catalog store
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	// Default to silent logging
	if cfg.LogLevel == 0 {
		cfg.LogLevel = logger.Silent
	}

	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = DefaultBusyTimeout
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(cfg.LogLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return &SQLiteStore{
		db:   db,
		path: cfg.Path,
	}, nil
}

// Connect initializes the database connection
func (s *SQLiteStore) Connect(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(1) // SQLite only supports 1 writer
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

// Migrate advances the schema to the latest version
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return migrations.NewMigrator(s.db).Migrate(ctx)
}

// Health checks database connectivity
func (s *SQLiteStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Config operations

func (s *SQLiteStore) GetConfig(ctx context.Context, key string) (string, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var cfg models.Config
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return cfg.Value, true, nil
}

func (s *SQLiteStore) SetConfig(ctx context.Context, key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.Config{Key: key, Value: value}).Error
}

// Model operations

func (s *SQLiteStore) GetModel(ctx context.Context, filename string) (*models.ModelEntry, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var entry models.ModelEntry
	err := s.db.WithContext(ctx).Where("filename = ?", filename).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, modelNotFound(filename)
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListModels returns host-visible entries by display order first (unordered ones
// last), then everything else by filename.
func (s *SQLiteStore) ListModels(ctx context.Context, filter models.ModelFilter) ([]models.ModelEntry, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := s.db.WithContext(ctx).Model(&models.ModelEntry{})
	if filter.Kind != nil {
		query = query.Where("kind = ?", *filter.Kind)
	}
	if filter.HostOnly {
		query = query.Where("exists_host = ? AND host_hidden = ?", true, false)
	}

	var entries []models.ModelEntry
	err := query.
		Order("CASE WHEN exists_host AND NOT host_hidden THEN host_display_order END IS NULL").
		Order("CASE WHEN exists_host AND NOT host_hidden THEN host_display_order END").
		Order("filename").
		Find(&entries).Error
	return entries, err
}

// UpsertModel inserts a newly observed file or merges the observation into the
// existing row. It reports whether a new row was created.
func (s *SQLiteStore) UpsertModel(ctx context.Context, obs models.Observation) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ModelEntry
		err := tx.Where("filename = ?", obs.Filename).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			entry := models.NewEntry(obs)
			created = true
			return tx.Create(&entry).Error
		}
		if err != nil {
			return err
		}

		merged, changed := models.Merge(existing, obs)
		if !changed {
			return nil
		}
		return tx.Save(&merged).Error
	})
	return created, err
}

// DeleteModel removes the catalog row and its edges. Files are left alone.
func (s *SQLiteStore) DeleteModel(ctx context.Context, filename string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("parent_filename = ? OR child_filename = ?", filename, filename).
			Delete(&models.DependencyEdge{}).Error; err != nil {
			return err
		}

		result := tx.Where("filename = ?", filename).Delete(&models.ModelEntry{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return modelNotFound(filename)
		}
		return nil
	})
}

// SetHostVisibility shows or hides an entry on the host. Hiding is remembered
// across scans; showing also marks the file as present on the host.
func (s *SQLiteStore) SetHostVisibility(ctx context.Context, filename string, visible bool, order *int) error {
	if !visible {
		return s.updateModel(ctx, filename, map[string]any{
			"host_hidden":        true,
			"host_display_order": nil,
		})
	}

	var orderValue any
	if order != nil {
		orderValue = *order
	}
	return s.updateModel(ctx, filename, map[string]any{
		"exists_host":        true,
		"host_hidden":        false,
		"host_display_order": orderValue,
	})
}

func (s *SQLiteStore) SetStashPresence(ctx context.Context, filename string, present bool) error {
	return s.updateModel(ctx, filename, map[string]any{"exists_stash": present})
}

// ClearMissing drops the location flag of every entry that was not seen in the
// latest scan of that location.
func (s *SQLiteStore) ClearMissing(ctx context.Context, location models.Location, present []string, kind *models.Kind) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	updates := map[string]any{}
	query := s.db.WithContext(ctx).Model(&models.ModelEntry{})

	switch location {
	case models.LocationHost:
		query = query.Where("exists_host = ?", true)
		updates["exists_host"] = false
		updates["host_display_order"] = nil
	case models.LocationStash:
		query = query.Where("exists_stash = ?", true)
		updates["exists_stash"] = false
	default:
		return 0, fmt.Errorf("unknown location '%s'", location)
	}

	if len(present) > 0 {
		query = query.Where("filename NOT IN ?", present)
	}
	if kind != nil {
		query = query.Where("kind = ?", *kind)
	}

	result := query.Updates(updates)
	return int(result.RowsAffected), result.Error
}

// UpdateDisplayOrders applies all orders or none of them
func (s *SQLiteStore) UpdateDisplayOrders(ctx context.Context, orders []models.DisplayOrder) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, o := range orders {
			result := tx.Model(&models.ModelEntry{}).
				Where("filename = ?", o.Filename).
				Update("host_display_order", o.Order)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return modelNotFound(o.Filename)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) SetDisplayName(ctx context.Context, filename, name string) error {
	var value any
	if name != "" {
		value = name
	}
	return s.updateModel(ctx, filename, map[string]any{"display_name": value})
}

func (s *SQLiteStore) SetStrength(ctx context.Context, filename string, strength *int) error {
	var value any
	if strength != nil {
		value = *strength
	}
	return s.updateModel(ctx, filename, map[string]any{"strength": value})
}

// SetKind records a kind chosen by the user; later scans never override it
func (s *SQLiteStore) SetKind(ctx context.Context, filename string, kind models.Kind) error {
	return s.updateModel(ctx, filename, map[string]any{
		"kind":        kind,
		"kind_source": models.KindSourceUser,
	})
}

// SetChecksum records a digest together with the size and modification time of
// the file it was computed from.
func (s *SQLiteStore) SetChecksum(ctx context.Context, filename, checksum string, size int64, modTime time.Time) error {
	return s.updateModel(ctx, filename, map[string]any{
		"checksum":      checksum,
		"file_size":     size,
		"file_mod_time": modTime.UTC(),
	})
}

func (s *SQLiteStore) updateModel(ctx context.Context, filename string, updates map[string]any) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result := s.db.WithContext(ctx).Model(&models.ModelEntry{}).
		Where("filename = ?", filename).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return modelNotFound(filename)
	}
	return nil
}

// Relationship operations

// AddRelationship inserts the edge if both endpoints are catalog rows. The
// existence check and the insert run in one transaction.
func (s *SQLiteStore) AddRelationship(ctx context.Context, parent, child string) (models.EdgeResult, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result := models.EdgeMissingEndpoint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		want := int64(2)
		if parent == child {
			want = 1
		}

		var count int64
		if err := tx.Model(&models.ModelEntry{}).
			Where("filename IN ?", []string{parent, child}).
			Count(&count).Error; err != nil {
			return err
		}
		if count < want {
			return nil
		}

		edge := models.DependencyEdge{
			ParentFilename: parent,
			ChildFilename:  child,
		}
		created := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&edge)
		if created.Error != nil {
			return created.Error
		}

		if created.RowsAffected == 0 {
			result = models.EdgeExists
		} else {
			result = models.EdgeInserted
		}
		return nil
	})
	return result, err
}

func (s *SQLiteStore) ListRelationships(ctx context.Context, parent string) ([]models.DependencyEdge, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var edges []models.DependencyEdge
	err := s.db.WithContext(ctx).
		Where("parent_filename = ?", parent).
		Order("child_filename").
		Find(&edges).Error
	return edges, err
}

func (s *SQLiteStore) DeleteRelationship(ctx context.Context, parent, child string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result := s.db.WithContext(ctx).
		Where("parent_filename = ? AND child_filename = ?", parent, child).
		Delete(&models.DependencyEdge{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errdefs.NotFound(fmt.Sprintf("relationship '%s' -> '%s'", parent, child))
	}
	return nil
}

func modelNotFound(filename string) error {
	return errdefs.NotFound(fmt.Sprintf("model '%s'", filename))
}
