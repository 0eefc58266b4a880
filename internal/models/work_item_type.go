package models

import (
	"time"

	"gorm.io/gorm"
)

// WorkItemType is a kind of work, shared by every datasource of a tenant.
type WorkItemType struct {
	TenantID                    string `gorm:"primaryKey;size:64"`
	WorkItemTypeID              string `gorm:"primaryKey;size:191"`
	DisplayName                 string `gorm:"size:256;not null"`
	Level                       string `gorm:"size:32"`
	ServiceLevelExpectationDays int
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
	DeletedAt                   gorm.DeletedAt `gorm:"index"`
}

// WorkItemTypeMap binds a WorkItemType to a workflow of one project.
type WorkItemTypeMap struct {
	TenantID                    string `gorm:"primaryKey;size:64"`
	DatasourceID                string `gorm:"primaryKey;size:64"`
	WorkflowID                  string `gorm:"primaryKey;size:191"`
	WorkItemTypeID              string `gorm:"primaryKey;size:191;index"`
	ExternalID                  string `gorm:"primaryKey;size:128"`
	ProjectID                   string `gorm:"primaryKey;size:128"`
	ServiceLevelExpectationDays int
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
	DeletedAt                   gorm.DeletedAt `gorm:"index"`
}

// MapKey identifies a WorkItemTypeMap within a tenant.
type MapKey struct {
	DatasourceID   string
	WorkflowID     string
	WorkItemTypeID string
	ExternalID     string
	ProjectID      string
}

// Key returns the compound key of m.
func (m WorkItemTypeMap) Key() MapKey {
	return MapKey{
		DatasourceID:   m.DatasourceID,
		WorkflowID:     m.WorkflowID,
		WorkItemTypeID: m.WorkItemTypeID,
		ExternalID:     m.ExternalID,
		ProjectID:      m.ProjectID,
	}
}

// Pair is the (work item type, project) combination that legitimizes
// WorkItem and Snapshot rows.
type Pair struct {
	WorkItemTypeID string
	ProjectID      string
}

// Pair returns the (work item type, project) pair of m.
func (m WorkItemTypeMap) Pair() Pair {
	return Pair{WorkItemTypeID: m.WorkItemTypeID, ProjectID: m.ProjectID}
}
