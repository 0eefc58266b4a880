package db

import (
	"fmt"

	"github.com/tallyflow/workcfg/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model managed by workcfg.
func AllModels() []interface{} {
	return []interface{}{
		&models.Project{},
		&models.Workflow{},
		&models.WorkflowStep{},
		&models.WorkflowEvent{},
		&models.WorkItemType{},
		&models.WorkItemTypeMap{},
		&models.Context{},
		&models.ContextWorkItemMap{},
		&models.WorkItem{},
		&models.Snapshot{},
		&models.SavedFilter{},
		&models.ReviewRoom{},
		&models.Datasource{},
		&models.ReconcileRun{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
