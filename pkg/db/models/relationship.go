package models

import "time"

// DependencyEdge links a main model to one of its encoder dependencies
type DependencyEdge struct {
	ID             uint   `gorm:"primaryKey"                                  json:"id"`
	ParentFilename string `gorm:"type:text;not null;uniqueIndex:idx_ckpt_edge" json:"parent_filename"`
	ChildFilename  string `gorm:"type:text;not null;uniqueIndex:idx_ckpt_edge" json:"child_filename"`

	CreatedAt time.Time `json:"created_at"`

	// Relationships
	Parent ModelEntry `gorm:"foreignKey:ParentFilename;references:Filename;constraint:OnDelete:CASCADE" json:"-"`
	Child  ModelEntry `gorm:"foreignKey:ChildFilename;references:Filename;constraint:OnDelete:CASCADE"  json:"-"`
}

func (DependencyEdge) TableName() string {
	return "ckpt_x_ckpt"
}

// EdgeResult tells the resolver what happened to a candidate edge
type EdgeResult int

const (
	EdgeInserted EdgeResult = iota
	EdgeExists
	EdgeMissingEndpoint
)
