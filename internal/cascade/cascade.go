// Package cascade removes configuration rows and the data that hangs off
// them, in dependency order, inside a caller-owned transaction.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tallyflow/workcfg/internal/db"
	"github.com/tallyflow/workcfg/internal/depscan"
	"github.com/tallyflow/workcfg/internal/models"
	"github.com/tallyflow/workcfg/internal/planner"
	"gorm.io/gorm"
)

// ErrInvariant reports a removal request that contradicts the store, such as
// orphaning a type that still has a surviving map.
var ErrInvariant = errors.New("cascade: invariant violated")

// chunkSize bounds the number of bound parameters in one IN clause.
const chunkSize = 500

// Dependency names an entity that cannot be removed and what blocks it.
type Dependency struct {
	EntityName      string   `json:"entityName"`
	BlockingFilters []string `json:"blockingFilters"`
	BlockingRooms   []string `json:"blockingRooms"`
}

// ConflictError is returned when stored queries still reference entities
// scheduled for removal. Nothing has been deleted when it is returned.
type ConflictError struct {
	Dependencies []Dependency
}

func (e *ConflictError) Error() string {
	names := make([]string, 0, len(e.Dependencies))
	for _, d := range e.Dependencies {
		names = append(names, d.EntityName)
	}
	return "cascade: removal blocked by dependents of " + strings.Join(names, ", ")
}

// Options tunes a removal.
type Options struct {
	// VetoRemovedSteps also checks the names of removed workflow steps.
	VetoRemovedSteps bool
}

// Result counts the rows a removal touched.
type Result struct {
	Plan                   *planner.Plan
	WorkItemsPurged        int64
	SnapshotsPurged        int64
	ContextLinksTombstoned int64
	TypesRemoved           int64
	MapsArchived           int64
	StepsArchived          int64
	EventsArchived         int64
	WorkflowsArchived      int64
	ContextsArchived       int64
}

// Remove executes plan for tenant and datasourceID on tx. Order: dependency
// veto, work items, context links, snapshots, orphaned types, then maps,
// steps, events and workflows. Remove never opens or commits a transaction.
func Remove(ctx context.Context, tx *gorm.DB, tenant, datasourceID string, plan *planner.Plan, opts Options) (*Result, error) {
	tx = tx.WithContext(ctx)
	res := &Result{Plan: plan}
	if plan == nil || plan.Empty() {
		res.Plan = &planner.Plan{}
		return res, nil
	}

	names := plan.OrphanedTypeNames()
	if opts.VetoRemovedSteps {
		names = append(names, plan.RemovedStepNames()...)
	}
	if err := veto(ctx, tx, tenant, datasourceID, names); err != nil {
		return nil, err
	}

	ids, err := purgeWorkItems(tx, tenant, datasourceID, plan.Pairs(), res)
	if err != nil {
		return nil, err
	}
	if err := tombstoneItemLinks(tx, tenant, datasourceID, ids, &res.ContextLinksTombstoned); err != nil {
		return nil, err
	}
	if err := purgeSnapshots(tx, tenant, datasourceID, plan.Pairs(), res); err != nil {
		return nil, err
	}
	if err := removeTypes(tx, tenant, plan, res); err != nil {
		return nil, err
	}
	if err := archiveConfig(tx, tenant, datasourceID, plan, res); err != nil {
		return nil, err
	}
	return res, nil
}

// RemoveProject archives the contexts of a project, tombstones their links,
// soft-deletes the project and feeds every map it owns through Remove.
// A project with no live row yields an error wrapping gorm.ErrRecordNotFound.
func RemoveProject(ctx context.Context, tx *gorm.DB, tenant, datasourceID, projectID string, opts Options) (*Result, error) {
	tx = tx.WithContext(ctx)

	var project models.Project
	err := tx.Where("tenant_id = ? AND datasource_id = ? AND project_id = ?", tenant, datasourceID, projectID).
		First(&project).Error
	if err != nil {
		return nil, fmt.Errorf("cascade: find project %s: %w", projectID, err)
	}

	var contextIDs []string
	if err := tx.Model(&models.Context{}).
		Where("tenant_id = ? AND datasource_id = ? AND project_id = ? AND archived = ?", tenant, datasourceID, projectID, false).
		Pluck("context_id", &contextIDs).Error; err != nil {
		return nil, fmt.Errorf("cascade: list contexts of %s: %w", projectID, err)
	}
	var archived, links int64
	now := time.Now()
	for _, chunk := range chunks(contextIDs) {
		r := tx.Model(&models.Context{}).
			Where("tenant_id = ? AND context_id IN ?", tenant, chunk).
			Updates(map[string]interface{}{"archived": true, "archived_at": now})
		if r.Error != nil {
			return nil, fmt.Errorf("cascade: archive contexts of %s: %w", projectID, r.Error)
		}
		archived += r.RowsAffected
	}
	if err := tombstoneContextLinks(tx, tenant, contextIDs, &links); err != nil {
		return nil, err
	}

	if err := tx.Delete(&project).Error; err != nil {
		return nil, fmt.Errorf("cascade: remove project %s: %w", projectID, err)
	}

	live, err := planner.Load(ctx, tx, tenant, datasourceID)
	if err != nil {
		return nil, err
	}
	plan := planner.ForProject(datasourceID, projectID, live.Maps, live.Types, live.Workflows, live.Steps)

	res, err := Remove(ctx, tx, tenant, datasourceID, plan, opts)
	if err != nil {
		return nil, err
	}
	res.ContextsArchived = archived
	res.ContextLinksTombstoned += links
	return res, nil
}

func veto(ctx context.Context, tx *gorm.DB, tenant, datasourceID string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	report, err := depscan.FindDependents(ctx, tx, tenant, datasourceID, names)
	if err != nil {
		return fmt.Errorf("cascade: dependency veto: %w", err)
	}
	if len(report) == 0 {
		return nil
	}
	conflict := &ConflictError{}
	for _, name := range report.Names() {
		d := Dependency{EntityName: name, BlockingFilters: []string{}, BlockingRooms: []string{}}
		for _, dep := range report[name] {
			switch dep.Source {
			case depscan.SourceFilter:
				d.BlockingFilters = append(d.BlockingFilters, dep.DisplayName)
			case depscan.SourceRoom:
				d.BlockingRooms = append(d.BlockingRooms, dep.DisplayName)
			}
		}
		conflict.Dependencies = append(conflict.Dependencies, d)
	}
	return conflict
}

func purgeWorkItems(tx *gorm.DB, tenant, datasourceID string, pairs []models.Pair, res *Result) ([]string, error) {
	partition := models.StatePartitionKey(tenant)
	prefix := db.PrefixPattern(datasourceID + "#")
	var ids []string
	for _, p := range pairs {
		scope := tx.Model(&models.WorkItem{}).
			Where("partition_key = ? AND sort_key LIKE ? ESCAPE '"+db.LikeEscape+"'", partition, prefix).
			Where("work_item_type_id = ? AND project_id = ?", p.WorkItemTypeID, p.ProjectID)

		var found []string
		if err := scope.Session(&gorm.Session{}).Pluck("work_item_id", &found).Error; err != nil {
			return nil, fmt.Errorf("cascade: list work items of %s/%s: %w", p.WorkItemTypeID, p.ProjectID, err)
		}
		r := scope.Session(&gorm.Session{}).Delete(&models.WorkItem{})
		if r.Error != nil {
			return nil, fmt.Errorf("cascade: delete work items of %s/%s: %w", p.WorkItemTypeID, p.ProjectID, r.Error)
		}
		res.WorkItemsPurged += r.RowsAffected
		ids = append(ids, found...)
	}
	return ids, nil
}

// tombstoneItemLinks soft-deletes the links of the given work items. Work
// item ids are unique only within a datasource, so only links whose context
// belongs to datasourceID are touched.
func tombstoneItemLinks(tx *gorm.DB, tenant, datasourceID string, workItemIDs []string, count *int64) error {
	for _, chunk := range chunks(workItemIDs) {
		contexts := tx.Model(&models.Context{}).Select("context_id").
			Where("tenant_id = ? AND datasource_id = ?", tenant, datasourceID)
		r := tx.Where("tenant_id = ? AND work_item_id IN ? AND context_id IN (?)", tenant, chunk, contexts).
			Delete(&models.ContextWorkItemMap{})
		if r.Error != nil {
			return fmt.Errorf("cascade: tombstone context links of work items: %w", r.Error)
		}
		*count += r.RowsAffected
	}
	return nil
}

// tombstoneContextLinks soft-deletes every link of the given contexts.
func tombstoneContextLinks(tx *gorm.DB, tenant string, contextIDs []string, count *int64) error {
	for _, chunk := range chunks(contextIDs) {
		r := tx.Where("tenant_id = ? AND context_id IN ?", tenant, chunk).Delete(&models.ContextWorkItemMap{})
		if r.Error != nil {
			return fmt.Errorf("cascade: tombstone context links of contexts: %w", r.Error)
		}
		*count += r.RowsAffected
	}
	return nil
}

func purgeSnapshots(tx *gorm.DB, tenant, datasourceID string, pairs []models.Pair, res *Result) error {
	partition := models.SnapshotDatasourcePartition(tenant, datasourceID)
	for _, p := range pairs {
		r := tx.Where("datasource_partition = ? AND work_item_type_id = ? AND project_id = ?", partition, p.WorkItemTypeID, p.ProjectID).
			Delete(&models.Snapshot{})
		if r.Error != nil {
			return fmt.Errorf("cascade: delete snapshots of %s/%s: %w", p.WorkItemTypeID, p.ProjectID, r.Error)
		}
		res.SnapshotsPurged += r.RowsAffected
	}
	return nil
}

// removeTypes soft-deletes the orphaned types after confirming that no live
// map outside the removal set still references them.
func removeTypes(tx *gorm.DB, tenant string, plan *planner.Plan, res *Result) error {
	if len(plan.OrphanedTypes) == 0 {
		return nil
	}
	removing := make(map[string]int64)
	for _, m := range plan.MapsToRemove {
		removing[m.WorkItemTypeID]++
	}

	ids := make([]string, 0, len(plan.OrphanedTypes))
	for _, t := range plan.OrphanedTypes {
		var live int64
		if err := tx.Model(&models.WorkItemTypeMap{}).
			Where("tenant_id = ? AND work_item_type_id = ?", tenant, t.WorkItemTypeID).
			Count(&live).Error; err != nil {
			return fmt.Errorf("cascade: count maps of %s: %w", t.WorkItemTypeID, err)
		}
		if survivors := live - removing[t.WorkItemTypeID]; survivors > 0 {
			return fmt.Errorf("%w: type %s still has %d live map(s)", ErrInvariant, t.WorkItemTypeID, survivors)
		}
		ids = append(ids, t.WorkItemTypeID)
	}

	r := tx.Where("tenant_id = ? AND work_item_type_id IN ?", tenant, ids).Delete(&models.WorkItemType{})
	if r.Error != nil {
		return fmt.Errorf("cascade: remove work item types: %w", r.Error)
	}
	res.TypesRemoved = r.RowsAffected
	return nil
}

func archiveConfig(tx *gorm.DB, tenant, datasourceID string, plan *planner.Plan, res *Result) error {
	maps := append(append([]models.WorkItemTypeMap{}, plan.MapsToRemove...), plan.SupersededMaps...)
	for _, m := range maps {
		r := tx.Where("tenant_id = ? AND datasource_id = ? AND workflow_id = ? AND work_item_type_id = ? AND external_id = ? AND project_id = ?",
			tenant, m.DatasourceID, m.WorkflowID, m.WorkItemTypeID, m.ExternalID, m.ProjectID).
			Delete(&models.WorkItemTypeMap{})
		if r.Error != nil {
			return fmt.Errorf("cascade: archive map %s/%s: %w", m.WorkItemTypeID, m.ProjectID, r.Error)
		}
		res.MapsArchived += r.RowsAffected
	}

	for _, s := range plan.StepsToRemove {
		r := tx.Where("tenant_id = ? AND datasource_id = ? AND workflow_id = ? AND step_id = ?",
			tenant, datasourceID, s.WorkflowID, s.StepID).
			Delete(&models.WorkflowStep{})
		if r.Error != nil {
			return fmt.Errorf("cascade: archive step %s/%s: %w", s.WorkflowID, s.StepID, r.Error)
		}
		res.StepsArchived += r.RowsAffected
	}

	ids := make([]string, 0, len(plan.WorkflowsToArchive))
	for _, w := range plan.WorkflowsToArchive {
		ids = append(ids, w.WorkflowID)
	}
	for _, chunk := range chunks(ids) {
		r := tx.Where("tenant_id = ? AND datasource_id = ? AND workflow_id IN ?", tenant, datasourceID, chunk).
			Delete(&models.WorkflowEvent{})
		if r.Error != nil {
			return fmt.Errorf("cascade: archive workflow events: %w", r.Error)
		}
		res.EventsArchived += r.RowsAffected

		r = tx.Where("tenant_id = ? AND datasource_id = ? AND workflow_id IN ?", tenant, datasourceID, chunk).
			Delete(&models.Workflow{})
		if r.Error != nil {
			return fmt.Errorf("cascade: archive workflows: %w", r.Error)
		}
		res.WorkflowsArchived += r.RowsAffected
	}
	return nil
}

func chunks(values []string) [][]string {
	var out [][]string
	for len(values) > chunkSize {
		out = append(out, values[:chunkSize])
		values = values[chunkSize:]
	}
	if len(values) > 0 {
		out = append(out, values)
	}
	return out
}
