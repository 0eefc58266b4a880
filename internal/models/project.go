package models

import (
	"time"

	"gorm.io/gorm"
)

// Project is a tracked project or board in the source tool.
type Project struct {
	TenantID     string `gorm:"primaryKey;size:64"`
	DatasourceID string `gorm:"primaryKey;size:64"`
	ProjectID    string `gorm:"primaryKey;size:128"`
	Name         string `gorm:"size:256"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

// Context is a saved reporting grouping tied to a datasource and project.
// Contexts are archived, never soft-deleted.
type Context struct {
	TenantID     string `gorm:"primaryKey;size:64"`
	ContextID    string `gorm:"primaryKey;size:64"`
	DatasourceID string `gorm:"size:64;index:idx_context_project"`
	ProjectID    string `gorm:"size:128;index:idx_context_project"`
	Name         string `gorm:"size:256"`
	Archived     bool   `gorm:"default:false;index"`
	ArchivedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ContextWorkItemMap binds a work item instance to a Context.
type ContextWorkItemMap struct {
	TenantID   string `gorm:"primaryKey;size:64"`
	ContextID  string `gorm:"primaryKey;size:64"`
	WorkItemID string `gorm:"primaryKey;size:128;index"`
	CreatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}
