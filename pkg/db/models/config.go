package models

import "time"

// Config is a flat key/value setting, latest write wins
type Config struct {
	Key       string `gorm:"primaryKey;type:text"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

func (Config) TableName() string {
	return "config"
}

// Well-known config keys
const (
	ConfigSchemaVersion = "schema_version"
	ConfigHostDir       = "HOST_DIR"
	ConfigStashDir      = "STASH_DIR"
	ConfigStashExists   = "STASH_EXISTS"
	ConfigInitStatus    = "INIT_STATUS"
	ConfigInitError     = "INIT_ERROR"
	ConfigLastSyncID    = "LAST_SYNC_ID"
)
