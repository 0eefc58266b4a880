package planner

import (
	"context"
	"fmt"

	"github.com/tallyflow/workcfg/internal/desired"
	"github.com/tallyflow/workcfg/internal/models"
	"gorm.io/gorm"
)

// Live is the persisted, non-removed configuration a plan is built against.
type Live struct {
	Maps      []models.WorkItemTypeMap
	Types     []models.WorkItemType
	Workflows []models.Workflow
	Steps     []models.WorkflowStep
}

// Load reads the live maps and types of tenant and the live workflows and
// steps of datasourceID.
func Load(ctx context.Context, tx *gorm.DB, tenant, datasourceID string) (*Live, error) {
	tx = tx.WithContext(ctx)
	var live Live
	if err := tx.Where("tenant_id = ?", tenant).Find(&live.Maps).Error; err != nil {
		return nil, fmt.Errorf("planner: load work item type maps: %w", err)
	}
	if err := tx.Where("tenant_id = ?", tenant).Find(&live.Types).Error; err != nil {
		return nil, fmt.Errorf("planner: load work item types: %w", err)
	}
	if err := tx.Where("tenant_id = ? AND datasource_id = ?", tenant, datasourceID).Find(&live.Workflows).Error; err != nil {
		return nil, fmt.Errorf("planner: load workflows: %w", err)
	}
	if err := tx.Where("tenant_id = ? AND datasource_id = ?", tenant, datasourceID).Find(&live.Steps).Error; err != nil {
		return nil, fmt.Errorf("planner: load workflow steps: %w", err)
	}
	return &live, nil
}

// Input pairs l with the desired rows of datasourceID.
func (l *Live) Input(datasourceID string, want *desired.Rows) Input {
	return Input{
		DatasourceID: datasourceID,
		Desired:      want,
		Maps:         l.Maps,
		Types:        l.Types,
		Workflows:    l.Workflows,
		Steps:        l.Steps,
	}
}
