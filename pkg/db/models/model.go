package models

import "time"

// ModelEntry is the catalog row for one model file, keyed by its basename
type ModelEntry struct {
	Filename     string     `gorm:"primaryKey;type:text"                json:"filename"`
	DisplayName  *string    `gorm:"type:text"                           json:"display_name"`
	OriginalName *string    `gorm:"type:text"                           json:"original_name"`
	Kind         Kind       `gorm:"type:text;not null;index:idx_ckpt_kind" json:"kind"`
	KindSource   KindSource `gorm:"type:text;not null"                  json:"kind_source"`

	// File metadata. Checksum describes the content with FileSize and FileModTime.
	FileSize    *int64     `json:"file_size"`
	FileModTime *time.Time `json:"file_mod_time"`
	Checksum    *string    `gorm:"type:text" json:"checksum"`
	SourcePath  *string    `gorm:"type:text" json:"source_path"`

	// Location flags. Scans own ExistsHost/ExistsStash; HostHidden is only
	// changed by the user.
	ExistsHost       bool `gorm:"not null" json:"exists_host"`
	ExistsStash      bool `gorm:"not null" json:"exists_stash"`
	HostHidden       bool `gorm:"not null;default:false" json:"host_hidden"`
	HostDisplayOrder *int `gorm:"index:idx_ckpt_host_order" json:"host_display_order"`

	// Strength ×10, only meaningful for loras
	Strength *int `json:"strength"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ModelEntry) TableName() string {
	return "ckpt_models"
}

// VisibleOnHost reports whether the file is on the host and not hidden.
func (e ModelEntry) VisibleOnHost() bool {
	return e.ExistsHost && !e.HostHidden
}

// ChecksumFor returns the recorded digest if it was taken from a file of this
// size and modification time, and nil otherwise.
func (e ModelEntry) ChecksumFor(size int64, modTime time.Time) *string {
	if e.Checksum == nil || e.FileSize == nil || e.FileModTime == nil {
		return nil
	}
	if *e.FileSize != size || !sameSecond(*e.FileModTime, modTime) {
		return nil
	}
	return e.Checksum
}

// ModelView is a catalog row as handed to callers of the command surface
type ModelView struct {
	ModelEntry
	IsOnHost bool `json:"is_on_host"`
}

// ModelFilter narrows ListModels results
type ModelFilter struct {
	Kind     *Kind
	HostOnly bool
}

// DisplayOrder is one element of a batch reorder
type DisplayOrder struct {
	Filename string `json:"filename"`
	Order    int    `json:"order"`
}

// Observation is what a scan learned about a file at one location
type Observation struct {
	Filename   string
	Location   Location
	Path       string
	FileSize   *int64
	ModTime    *time.Time
	Checksum   *string
	Kind       Kind
	KindSource KindSource

	// Manifest inferred metadata
	DisplayName  *string
	DisplayOrder *int
	Strength     *int
}

// NewEntry builds the first catalog row for an observed file.
func NewEntry(obs Observation) ModelEntry {
	entry := ModelEntry{
		Filename:     obs.Filename,
		DisplayName:  obs.DisplayName,
		OriginalName: obs.DisplayName,
		Kind:         obs.Kind,
		KindSource:   obs.KindSource,
		FileSize:     obs.FileSize,
		Checksum:     obs.Checksum,
		Strength:     obs.Strength,
	}
	if obs.ModTime != nil {
		entry.FileModTime = ptr(obs.ModTime.UTC())
	}
	if entry.Kind == "" {
		entry.Kind = KindUnknown
	}
	if entry.KindSource == "" {
		entry.KindSource = KindSourceHeuristic
	}
	if obs.Path != "" {
		entry.SourcePath = ptr(obs.Path)
	}

	switch obs.Location {
	case LocationHost:
		entry.ExistsHost = true
		entry.HostDisplayOrder = obs.DisplayOrder
	case LocationStash:
		entry.ExistsStash = true
	}
	return entry
}

// Merge folds a re-observation into an existing row. Manifest data only fills empty
// fields, and a kind is replaced only by a source of equal or higher rank that is not
// overriding a user choice. File size and modification time follow the host copy
// when there is one; a change to either drops the recorded checksum. The bool
// result reports whether anything changed.
func Merge(existing ModelEntry, obs Observation) (ModelEntry, bool) {
	out := existing
	changed := false

	switch obs.Location {
	case LocationHost:
		if !out.ExistsHost {
			out.ExistsHost = true
			changed = true
		}
		if out.HostDisplayOrder == nil && obs.DisplayOrder != nil && !out.HostHidden {
			out.HostDisplayOrder = ptr(*obs.DisplayOrder)
			changed = true
		}
	case LocationStash:
		if !out.ExistsStash {
			out.ExistsStash = true
			changed = true
		}
	}

	// Host is the primary location
	if obs.Path != "" && (out.SourcePath == nil || (obs.Location == LocationHost && *out.SourcePath != obs.Path)) {
		out.SourcePath = ptr(obs.Path)
		changed = true
	}

	primary := obs.Location == LocationHost || !out.ExistsHost
	stale := false
	if obs.FileSize != nil && (out.FileSize == nil || (primary && *out.FileSize != *obs.FileSize)) {
		stale = stale || out.FileSize != nil
		out.FileSize = ptr(*obs.FileSize)
		changed = true
	}
	if obs.ModTime != nil && (out.FileModTime == nil || (primary && !sameSecond(*out.FileModTime, *obs.ModTime))) {
		stale = stale || out.FileModTime != nil
		out.FileModTime = ptr(obs.ModTime.UTC())
		changed = true
	}
	if stale && out.Checksum != nil {
		out.Checksum = nil
		changed = true
	}
	if out.Checksum == nil && obs.Checksum != nil {
		out.Checksum = ptr(*obs.Checksum)
		changed = true
	}

	if obs.Kind != "" && obs.Kind != out.Kind && out.KindSource != KindSourceUser &&
		obs.KindSource.Rank() >= out.KindSource.Rank() {
		out.Kind = obs.Kind
		out.KindSource = obs.KindSource
		changed = true
	}

	if obs.DisplayName != nil {
		if out.DisplayName == nil {
			out.DisplayName = ptr(*obs.DisplayName)
			changed = true
		}
		if out.OriginalName == nil || *out.OriginalName != *obs.DisplayName {
			out.OriginalName = ptr(*obs.DisplayName)
			changed = true
		}
	}

	if out.Strength == nil && obs.Strength != nil {
		out.Strength = ptr(*obs.Strength)
		changed = true
	}

	return out, changed
}

func sameSecond(a, b time.Time) bool {
	return a.Unix() == b.Unix()
}

func ptr[T any](v T) *T {
	return &v
}
