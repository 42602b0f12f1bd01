package migrations

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Up          func(*gorm.DB) error
	Down        func(*gorm.DB) error
}

// Migrator handles database migrations
type Migrator struct {
	db         *gorm.DB
	migrations []Migration
}

// NewMigrator creates a new migrator instance
func NewMigrator(db *gorm.DB) *Migrator {
	return &Migrator{
		db:         db,
		migrations: allMigrations(),
	}
}

// Latest returns the highest known schema version
func (m *Migrator) Latest() int {
	return m.migrations[len(m.migrations)-1].Version
}

// CurrentVersion reads the stored schema version, 0 when the config table or key is absent
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	return currentVersion(m.db.WithContext(ctx))
}

// Migrate runs all pending migrations
func (m *Migrator) Migrate(ctx context.Context) error {
	return m.MigrateTo(ctx, m.Latest())
}

// MigrateTo runs pending migrations up to and including target
func (m *Migrator) MigrateTo(ctx context.Context, target int) error {
	version, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	// Run pending migrations
	for _, migration := range m.migrations {
		if migration.Version <= version || migration.Version > target {
			continue
		}

		if err := m.runMigration(ctx, migration); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}
	}

	return nil
}

// Rollback rolls back the last applied migration
func (m *Migrator) Rollback(ctx context.Context) error {
	version, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if version == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	// Find migration
	var migration *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == version {
			migration = &m.migrations[i]
			break
		}
	}

	if migration == nil {
		return fmt.Errorf("migration %d not found", version)
	}

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Run down migration
		if err := migration.Down(tx); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}

		// The config table is gone once version 1 is rolled back
		if version == 1 {
			return nil
		}
		return setVersion(tx, version-1)
	})
}

// Status returns migration status
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	version, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}

	var statuses []MigrationStatus
	for _, migration := range m.migrations {
		statuses = append(statuses, MigrationStatus{
			Version:     migration.Version,
			Description: migration.Description,
			Applied:     migration.Version <= version,
		})
	}

	return statuses, nil
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version     int
	Description string
	Applied     bool
}

// runMigration applies one step and advances the version in the same transaction,
// so a failed step leaves both schema and version untouched.
func (m *Migrator) runMigration(ctx context.Context, migration Migration) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Run migration
		if err := migration.Up(tx); err != nil {
			return err
		}

		return setVersion(tx, migration.Version)
	})
}

func currentVersion(db *gorm.DB) (int, error) {
	if !db.Migrator().HasTable(&models.Config{}) {
		return 0, nil
	}

	var cfg models.Config
	err := db.Where("key = ?", models.ConfigSchemaVersion).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}

	version, err := strconv.Atoi(cfg.Value)
	if err != nil {
		return 0, fmt.Errorf("invalid schema version '%s': %w", cfg.Value, err)
	}
	return version, nil
}

func setVersion(tx *gorm.DB, version int) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.Config{
		Key:   models.ConfigSchemaVersion,
		Value: strconv.Itoa(version),
	}).Error
}

// allMigrations returns all migrations in order
func allMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Initial schema creation",
			Up: func(db *gorm.DB) error {
				return db.AutoMigrate(
					&models.LegacyModel{},
					&models.LegacyHostModel{},
					&models.LegacyStashModel{},
					&models.Config{},
				)
			},
			Down: func(db *gorm.DB) error {
				return db.Migrator().DropTable(
					&models.LegacyStashModel{},
					&models.LegacyHostModel{},
					&models.LegacyModel{},
					&models.Config{},
				)
			},
		},
		{
			Version:     2,
			Description: "Compatibility marker",
			Up:          func(*gorm.DB) error { return nil },
			Down:        func(*gorm.DB) error { return nil },
		},
		{
			Version:     3,
			Description: "Unified model catalog with dependency edges",
			Up:          unifyCatalog,
			Down:        splitCatalog,
		},
	}
}
