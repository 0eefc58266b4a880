package models

import (
	"time"

	"gorm.io/datatypes"
)

// Datasource is one configured connection to an external tracking tool.
// A nil NextRunAt means ingestion should run as soon as possible.
type Datasource struct {
	TenantID     string `gorm:"primaryKey;size:64"`
	DatasourceID string `gorm:"primaryKey;size:64"`
	Kind         string `gorm:"size:32"`
	Schedule     string `gorm:"size:64"`
	Enabled      bool   `gorm:"default:true"`
	NextRunAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ReconcileRun records the outcome of one reconciliation or project removal.
type ReconcileRun struct {
	ID              string `gorm:"primaryKey;size:36"`
	TenantID        string `gorm:"size:64;index:idx_run_scope"`
	DatasourceID    string `gorm:"size:64;index:idx_run_scope"`
	Kind            string `gorm:"size:16;not null"`
	Status          string `gorm:"size:16;not null;index"`
	MapsRemoved     int64
	TypesRemoved    int64
	WorkItemsPurged int64
	RowsUpserted    int64
	Report          datatypes.JSON
	ErrorMessage    string `gorm:"type:text"`
	CreatedAt       time.Time
}
