package models

import (
	"time"

	"gorm.io/gorm"
)

// Step categories.
const (
	CategoryPreceding  = "preceding"
	CategoryInProgress = "inprogress"
	CategoryCompleted  = "completed"
	CategoryRemoved    = "removed"
)

// Workflow is a named ordered stage sequence scoped to one project.
type Workflow struct {
	TenantID     string `gorm:"primaryKey;size:64"`
	DatasourceID string `gorm:"primaryKey;size:64"`
	WorkflowID   string `gorm:"primaryKey;size:191"`
	ProjectID    string `gorm:"size:128;index"`
	Name         string `gorm:"size:256;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

// WorkflowStep is one stage within a workflow.
type WorkflowStep struct {
	TenantID     string `gorm:"primaryKey;size:64"`
	DatasourceID string `gorm:"primaryKey;size:64"`
	WorkflowID   string `gorm:"primaryKey;size:191"`
	StepID       string `gorm:"primaryKey;size:128"`
	Name         string `gorm:"size:256;not null"`
	Category     string `gorm:"size:16;not null"`
	Type         string `gorm:"size:32"`
	Order        int    `gorm:"column:step_order"`
	IsUnmapped   bool   `gorm:"default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

// WorkflowEvent holds the step orders marking arrival, commitment and
// departure for a workflow. One row per workflow.
type WorkflowEvent struct {
	TenantID        string `gorm:"primaryKey;size:64"`
	DatasourceID    string `gorm:"primaryKey;size:64"`
	WorkflowID      string `gorm:"primaryKey;size:191"`
	ArrivalPoint    int
	CommitmentPoint int
	DeparturePoint  int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}
