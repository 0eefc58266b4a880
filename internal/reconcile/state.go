package reconcile

import (
	"fmt"

	"github.com/tallyflow/workcfg/internal/desired"
	"github.com/tallyflow/workcfg/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const batchSize = 200

// State is the live configuration of a datasource after a committed run.
type State struct {
	Workflows        []models.Workflow        `json:"workflows"`
	Steps            []models.WorkflowStep    `json:"steps"`
	Events           []models.WorkflowEvent   `json:"events"`
	WorkItemTypes    []models.WorkItemType    `json:"workItemTypes"`
	WorkItemTypeMaps []models.WorkItemTypeMap `json:"workItemTypeMaps"`
}

// upsert writes every desired row, overwriting all attributes on key
// conflict. Assigning deleted_at revives rows archived by an earlier run.
func upsert(tx *gorm.DB, rows *desired.Rows) error {
	if err := create(tx, "projects", rows.Projects,
		[]string{"tenant_id", "datasource_id", "project_id"},
		[]string{"name"}); err != nil {
		return err
	}
	if err := create(tx, "workflows", rows.Workflows,
		[]string{"tenant_id", "datasource_id", "workflow_id"},
		[]string{"project_id", "name"}); err != nil {
		return err
	}
	if err := create(tx, "workflow steps", rows.Steps,
		[]string{"tenant_id", "datasource_id", "workflow_id", "step_id"},
		[]string{"name", "category", "type", "step_order", "is_unmapped"}); err != nil {
		return err
	}
	if err := create(tx, "workflow events", rows.Events,
		[]string{"tenant_id", "datasource_id", "workflow_id"},
		[]string{"arrival_point", "commitment_point", "departure_point"}); err != nil {
		return err
	}
	if err := create(tx, "work item types", rows.WorkItemTypes,
		[]string{"tenant_id", "work_item_type_id"},
		[]string{"display_name", "level", "service_level_expectation_days"}); err != nil {
		return err
	}
	return create(tx, "work item type maps", rows.WorkItemTypeMaps,
		[]string{"tenant_id", "datasource_id", "workflow_id", "work_item_type_id", "external_id", "project_id"},
		[]string{"service_level_expectation_days"})
}

func create[T any](tx *gorm.DB, what string, rows []T, keys, assign []string) error {
	if len(rows) == 0 {
		return nil
	}
	columns := make([]clause.Column, len(keys))
	for i, k := range keys {
		columns[i] = clause.Column{Name: k}
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   columns,
		DoUpdates: clause.AssignmentColumns(append(assign, "updated_at", "deleted_at")),
	}).CreateInBatches(&rows, batchSize).Error
	if err != nil {
		return fmt.Errorf("reconcile: upsert %s: %w", what, err)
	}
	return nil
}

// loadState re-reads the live configuration of datasourceID. Types are those
// referenced by a live map of the datasource or listed in rows.
func loadState(tx *gorm.DB, tenant, datasourceID string, rows *desired.Rows) (*State, error) {
	var s State
	scope := "tenant_id = ? AND datasource_id = ?"
	if err := tx.Where(scope, tenant, datasourceID).Order("workflow_id").Find(&s.Workflows).Error; err != nil {
		return nil, fmt.Errorf("reconcile: read workflows: %w", err)
	}
	if err := tx.Where(scope, tenant, datasourceID).Order("workflow_id, step_order").Find(&s.Steps).Error; err != nil {
		return nil, fmt.Errorf("reconcile: read workflow steps: %w", err)
	}
	if err := tx.Where(scope, tenant, datasourceID).Order("workflow_id").Find(&s.Events).Error; err != nil {
		return nil, fmt.Errorf("reconcile: read workflow events: %w", err)
	}
	if err := tx.Where(scope, tenant, datasourceID).
		Order("work_item_type_id, project_id, workflow_id").
		Find(&s.WorkItemTypeMaps).Error; err != nil {
		return nil, fmt.Errorf("reconcile: read work item type maps: %w", err)
	}

	ids := make(map[string]bool)
	for _, m := range s.WorkItemTypeMaps {
		ids[m.WorkItemTypeID] = true
	}
	if rows != nil {
		for id := range rows.WorkItemTypeIDs() {
			ids[id] = true
		}
	}
	if len(ids) == 0 {
		return &s, nil
	}
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	if err := tx.Where("tenant_id = ? AND work_item_type_id IN ?", tenant, list).
		Order("work_item_type_id").
		Find(&s.WorkItemTypes).Error; err != nil {
		return nil, fmt.Errorf("reconcile: read work item types: %w", err)
	}
	return &s, nil
}
