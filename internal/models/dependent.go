package models

import (
	"time"

	"gorm.io/gorm"
)

// SavedFilter is a stored query. ParsedQuery holds the normalized predicate
// text the dependency scanner matches against.
type SavedFilter struct {
	TenantID     string `gorm:"primaryKey;size:64"`
	DatasourceID string `gorm:"primaryKey;size:64"`
	FilterID     string `gorm:"primaryKey;size:64"`
	Name         string `gorm:"size:256;not null"`
	Query        string `gorm:"type:text"`
	ParsedQuery  string `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

// ReviewRoom is a stored query used for initiative and room rollups.
type ReviewRoom struct {
	TenantID     string `gorm:"primaryKey;size:64"`
	DatasourceID string `gorm:"primaryKey;size:64"`
	RoomID       string `gorm:"primaryKey;size:64"`
	Name         string `gorm:"size:256;not null"`
	ParsedQuery  string `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}
