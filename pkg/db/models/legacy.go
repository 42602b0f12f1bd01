package models

import "time"

// The first catalog generation split model metadata across a flat table and two
// per-location tables. They only exist until the unified schema migration runs.

// LegacyModel is a row of the flat models table
type LegacyModel struct {
	ID          uint    `gorm:"primaryKey"`
	Filename    string  `gorm:"type:text;not null;uniqueIndex"`
	DisplayName *string `gorm:"type:text"`
	ModelType   string  `gorm:"type:text;not null;index:idx_models_type"`
	FileSize    *int64
	Checksum    *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (LegacyModel) TableName() string {
	return "models"
}

// LegacyHostModel tracks visibility and order on the host
type LegacyHostModel struct {
	ID           uint     `gorm:"primaryKey"`
	ModelID      uint     `gorm:"not null;uniqueIndex"`
	DisplayOrder int      `gorm:"not null;index:idx_mac_models_order"`
	IsVisible    bool     `gorm:"not null"`
	CustomName   *string  `gorm:"type:text"`
	LoraStrength *float64 `gorm:"type:real"`

	Model LegacyModel `gorm:"foreignKey:ModelID;references:ID;constraint:OnDelete:CASCADE"`
}

func (LegacyHostModel) TableName() string {
	return "mac_models"
}

// LegacyStashModel tracks the stash copy of a model
type LegacyStashModel struct {
	ID         uint   `gorm:"primaryKey"`
	ModelID    uint   `gorm:"not null;uniqueIndex"`
	StashPath  string `gorm:"type:text;not null"`
	LastSynced time.Time

	Model LegacyModel `gorm:"foreignKey:ModelID;references:ID;constraint:OnDelete:CASCADE"`
}

func (LegacyStashModel) TableName() string {
	return "stash_models"
}
