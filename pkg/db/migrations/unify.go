package migrations

import (
	"fmt"
	"math"
	"time"

	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
	"gorm.io/gorm"
)

// legacyRow is one flat model row left-joined with its per-location rows
type legacyRow struct {
	Filename     string
	DisplayName  *string
	ModelType    string
	FileSize     *int64
	Checksum     *string
	DisplayOrder *int
	IsVisible    *bool
	CustomName   *string
	LoraStrength *float64
	StashPath    *string
}

const legacyJoin = `
SELECT m.filename      AS filename,
       m.display_name  AS display_name,
       m.model_type    AS model_type,
       m.file_size     AS file_size,
       m.checksum      AS checksum,
       h.display_order AS display_order,
       h.is_visible    AS is_visible,
       h.custom_name   AS custom_name,
       h.lora_strength AS lora_strength,
       s.stash_path    AS stash_path
FROM models m
LEFT JOIN mac_models h ON h.model_id = m.id
LEFT JOIN stash_models s ON s.model_id = m.id
ORDER BY m.id`

func unifyCatalog(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.ModelEntry{}, &models.DependencyEdge{}); err != nil {
		return fmt.Errorf("failed to create unified tables: %w", err)
	}

	if !db.Migrator().HasTable(&models.LegacyModel{}) {
		return nil
	}

	var rows []legacyRow
	if db.Migrator().HasTable(&models.LegacyHostModel{}) && db.Migrator().HasTable(&models.LegacyStashModel{}) {
		if err := db.Raw(legacyJoin).Scan(&rows).Error; err != nil {
			return fmt.Errorf("failed to read legacy models: %w", err)
		}
	} else {
		if err := db.Raw(`SELECT filename, display_name, model_type, file_size, checksum FROM models ORDER BY id`).Scan(&rows).Error; err != nil {
			return fmt.Errorf("failed to read legacy models: %w", err)
		}
	}

	entries := make([]models.ModelEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, convertLegacyRow(row))
	}

	if len(entries) > 0 {
		if err := db.CreateInBatches(&entries, 100).Error; err != nil {
			return fmt.Errorf("failed to insert unified models: %w", err)
		}
	}

	return db.Migrator().DropTable(
		&models.LegacyStashModel{},
		&models.LegacyHostModel{},
		&models.LegacyModel{},
	)
}

func convertLegacyRow(row legacyRow) models.ModelEntry {
	kind, err := models.ParseKind(row.ModelType)
	if err != nil {
		kind = models.KindUnknown
	}

	entry := models.ModelEntry{
		Filename:     row.Filename,
		DisplayName:  row.DisplayName,
		OriginalName: row.DisplayName,
		Kind:         kind,
		KindSource:   models.KindSourceHeuristic,
		FileSize:     row.FileSize,
		Checksum:     row.Checksum,
	}

	// A custom name was typed by the user and takes precedence
	if row.CustomName != nil && *row.CustomName != "" {
		entry.DisplayName = row.CustomName
	}

	if row.DisplayOrder != nil {
		entry.ExistsHost = true
		entry.HostHidden = row.IsVisible != nil && !*row.IsVisible
		if !entry.HostHidden {
			entry.HostDisplayOrder = row.DisplayOrder
		}
	}

	if row.LoraStrength != nil {
		strength := int(math.Round(*row.LoraStrength * 10))
		entry.Strength = &strength
	}

	if row.StashPath != nil {
		entry.ExistsStash = true
		entry.SourcePath = row.StashPath
	}

	return entry
}

// splitCatalog moves the unified rows back into the legacy tables. Edges and
// fields the legacy shape cannot hold are lost.
func splitCatalog(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.LegacyModel{}, &models.LegacyHostModel{}, &models.LegacyStashModel{}); err != nil {
		return fmt.Errorf("failed to create legacy tables: %w", err)
	}

	var entries []models.ModelEntry
	if err := db.Order("filename").Find(&entries).Error; err != nil {
		return fmt.Errorf("failed to read unified models: %w", err)
	}

	for _, entry := range entries {
		legacy := models.LegacyModel{
			Filename:    entry.Filename,
			DisplayName: entry.OriginalName,
			ModelType:   string(entry.Kind),
			FileSize:    entry.FileSize,
			Checksum:    entry.Checksum,
		}
		if legacy.DisplayName == nil {
			legacy.DisplayName = entry.DisplayName
		}
		if err := db.Omit("Model").Create(&legacy).Error; err != nil {
			return fmt.Errorf("failed to insert legacy model '%s': %w", entry.Filename, err)
		}

		if entry.ExistsHost || entry.HostDisplayOrder != nil {
			host := models.LegacyHostModel{
				ModelID:    legacy.ID,
				IsVisible:  entry.VisibleOnHost(),
				CustomName: entry.DisplayName,
			}
			if entry.HostDisplayOrder != nil {
				host.DisplayOrder = *entry.HostDisplayOrder
			}
			if entry.Strength != nil {
				strength := float64(*entry.Strength) / 10
				host.LoraStrength = &strength
			}
			if err := db.Omit("Model").Create(&host).Error; err != nil {
				return fmt.Errorf("failed to insert legacy host row '%s': %w", entry.Filename, err)
			}
		}

		if entry.ExistsStash {
			stash := models.LegacyStashModel{
				ModelID:    legacy.ID,
				LastSynced: time.Now().UTC(),
			}
			if entry.SourcePath != nil {
				stash.StashPath = *entry.SourcePath
			}
			if err := db.Omit("Model").Create(&stash).Error; err != nil {
				return fmt.Errorf("failed to insert legacy stash row '%s': %w", entry.Filename, err)
			}
		}
	}

	return db.Migrator().DropTable(&models.DependencyEdge{}, &models.ModelEntry{})
}
