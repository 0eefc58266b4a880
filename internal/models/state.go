package models

import "time"

// WorkItem is the current lifecycle snapshot of a tracked work item. Rows are
// physically deleted.
type WorkItem struct {
	PartitionKey   string `gorm:"primaryKey;size:128"`
	SortKey        string `gorm:"primaryKey;size:255"`
	WorkItemID     string `gorm:"size:128;not null"`
	WorkItemTypeID string `gorm:"size:191;index:idx_state_pair"`
	ProjectID      string `gorm:"size:128;index:idx_state_pair"`
	Title          string `gorm:"type:text"`
	State          string `gorm:"size:128"`
	StateCategory  string `gorm:"size:16"`
	ChangedAt      *time.Time
	UpdatedAt      time.Time
}

// TableName keeps the historical table name for work items.
func (WorkItem) TableName() string { return "states" }

// Snapshot is a point-in-time record of a WorkItem. Rows are physically
// deleted.
type Snapshot struct {
	ID                  uint   `gorm:"primaryKey;autoIncrement"`
	PartitionKey        string `gorm:"size:128;index"`
	DatasourcePartition string `gorm:"size:255;index:idx_snapshot_pair"`
	WorkItemID          string `gorm:"size:128;not null"`
	WorkItemTypeID      string `gorm:"size:191;index:idx_snapshot_pair"`
	ProjectID           string `gorm:"size:128;index:idx_snapshot_pair"`
	State               string `gorm:"size:128"`
	SnapshotDate        time.Time
}

// StatePartitionKey returns the WorkItem partition key of a tenant.
func StatePartitionKey(tenant string) string { return "state#" + tenant }

// StateSortKey returns the WorkItem sort key for a work item of a datasource.
func StateSortKey(datasourceID, workItemID string) string {
	return datasourceID + "#" + workItemID
}

// SnapshotPartitionKey returns the Snapshot partition key of a tenant.
func SnapshotPartitionKey(tenant string) string { return "snapshot#" + tenant }

// SnapshotDatasourcePartition returns the datasource-tagged secondary
// partition used to scope Snapshot deletes.
func SnapshotDatasourcePartition(tenant, datasourceID string) string {
	return "snapshot#" + tenant + "#" + datasourceID
}
