package cascade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tallyflow/workcfg/internal/db"
	"github.com/tallyflow/workcfg/internal/models"
	"github.com/tallyflow/workcfg/internal/planner"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, _ := gormDB.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gormDB
}

func create(t *testing.T, gormDB *gorm.DB, values ...interface{}) {
	t.Helper()
	for _, v := range values {
		if err := gormDB.Create(v).Error; err != nil {
			t.Fatalf("seed %T: %v", v, err)
		}
	}
}

// seed builds tenant acme, datasource d1: type Bug mapped to p1 and p2, one
// work item per project plus a d2 work item for (bug, p2), and a context per
// project.
func seed(t *testing.T, gormDB *gorm.DB) {
	t.Helper()
	now := time.Now()
	create(t, gormDB,
		&[]models.Project{
			{TenantID: "acme", DatasourceID: "d1", ProjectID: "p1"},
			{TenantID: "acme", DatasourceID: "d1", ProjectID: "p2"},
		},
		&[]models.Workflow{
			{TenantID: "acme", DatasourceID: "d1", WorkflowID: "acme-p1-w", ProjectID: "p1", Name: "W"},
			{TenantID: "acme", DatasourceID: "d1", WorkflowID: "acme-p2-w", ProjectID: "p2", Name: "W"},
		},
		&[]models.WorkflowStep{
			{TenantID: "acme", DatasourceID: "d1", WorkflowID: "acme-p1-w", StepID: "1", Name: "Todo", Category: "preceding"},
			{TenantID: "acme", DatasourceID: "d1", WorkflowID: "acme-p2-w", StepID: "1", Name: "Todo", Category: "preceding"},
			{TenantID: "acme", DatasourceID: "d1", WorkflowID: "acme-p2-w", StepID: "2", Name: "Done", Category: "completed", Order: 1},
		},
		&[]models.WorkflowEvent{
			{TenantID: "acme", DatasourceID: "d1", WorkflowID: "acme-p1-w"},
			{TenantID: "acme", DatasourceID: "d1", WorkflowID: "acme-p2-w", DeparturePoint: 1},
		},
		&models.WorkItemType{TenantID: "acme", WorkItemTypeID: "acme-bug", DisplayName: "Bug"},
		&[]models.WorkItemTypeMap{
			{TenantID: "acme", DatasourceID: "d1", WorkflowID: "acme-p1-w", WorkItemTypeID: "acme-bug", ExternalID: "1", ProjectID: "p1"},
			{TenantID: "acme", DatasourceID: "d1", WorkflowID: "acme-p2-w", WorkItemTypeID: "acme-bug", ExternalID: "1", ProjectID: "p2"},
		},
		&[]models.WorkItem{
			{PartitionKey: "state#acme", SortKey: "d1#wi-1", WorkItemID: "wi-1", WorkItemTypeID: "acme-bug", ProjectID: "p1"},
			{PartitionKey: "state#acme", SortKey: "d1#wi-2", WorkItemID: "wi-2", WorkItemTypeID: "acme-bug", ProjectID: "p2"},
			{PartitionKey: "state#acme", SortKey: "d2#wi-3", WorkItemID: "wi-3", WorkItemTypeID: "acme-bug", ProjectID: "p2"},
		},
		&[]models.Snapshot{
			{PartitionKey: "snapshot#acme", DatasourcePartition: "snapshot#acme#d1", WorkItemID: "wi-1", WorkItemTypeID: "acme-bug", ProjectID: "p1", SnapshotDate: now},
			{PartitionKey: "snapshot#acme", DatasourcePartition: "snapshot#acme#d1", WorkItemID: "wi-2", WorkItemTypeID: "acme-bug", ProjectID: "p2", SnapshotDate: now},
			{PartitionKey: "snapshot#acme", DatasourcePartition: "snapshot#acme#d2", WorkItemID: "wi-3", WorkItemTypeID: "acme-bug", ProjectID: "p2", SnapshotDate: now},
		},
		&[]models.Context{
			{TenantID: "acme", ContextID: "c1", DatasourceID: "d1", ProjectID: "p1", Name: "P1 board"},
			{TenantID: "acme", ContextID: "c2", DatasourceID: "d1", ProjectID: "p2", Name: "P2 board"},
		},
		&[]models.ContextWorkItemMap{
			{TenantID: "acme", ContextID: "c2", WorkItemID: "wi-2"},
			{TenantID: "acme", ContextID: "c1", WorkItemID: "wi-1"},
		},
	)
}

func count(t *testing.T, q *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func planFor(t *testing.T, gormDB *gorm.DB, keepProjects ...string) *planner.Plan {
	t.Helper()
	live, err := planner.Load(context.Background(), gormDB, "acme", "d1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	keep := make(map[string]bool)
	for _, p := range keepProjects {
		keep[p] = true
	}
	var remove []models.WorkItemTypeMap
	var workflows []models.Workflow
	for _, m := range live.Maps {
		if !keep[m.ProjectID] {
			remove = append(remove, m)
		}
	}
	for _, w := range live.Workflows {
		if !keep[w.ProjectID] {
			workflows = append(workflows, w)
		}
	}
	plan := &planner.Plan{MapsToRemove: remove, WorkflowsToArchive: workflows}
	if len(keepProjects) == 0 {
		plan.OrphanedTypes = live.Types
	}
	return plan
}

func TestRemove_SiblingMapUntouched(t *testing.T) {
	gormDB := testDB(t)
	seed(t, gormDB)

	var res *Result
	err := gormDB.Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = Remove(context.Background(), tx, "acme", "d1", planFor(t, tx, "p1"), Options{})
		return err
	})
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if res.WorkItemsPurged != 1 || res.SnapshotsPurged != 1 || res.MapsArchived != 1 {
		t.Errorf("result = %+v", res)
	}
	if res.ContextLinksTombstoned != 1 {
		t.Errorf("ContextLinksTombstoned = %d, want 1", res.ContextLinksTombstoned)
	}

	if n := count(t, gormDB.Model(&models.WorkItem{}).Where("work_item_type_id = ? AND project_id = ? AND sort_key LIKE ?", "acme-bug", "p2", "d1#%")); n != 0 {
		t.Errorf("d1 work items for (bug, p2) = %d, want 0", n)
	}
	if n := count(t, gormDB.Model(&models.WorkItem{}).Where("sort_key = ?", "d2#wi-3")); n != 1 {
		t.Errorf("d2 work item removed, want kept")
	}
	if n := count(t, gormDB.Model(&models.Snapshot{}).Where("datasource_partition = ? AND project_id = ?", "snapshot#acme#d1", "p2")); n != 0 {
		t.Errorf("d1 snapshots for p2 = %d, want 0", n)
	}
	if n := count(t, gormDB.Model(&models.Snapshot{}).Where("datasource_partition = ?", "snapshot#acme#d2")); n != 1 {
		t.Errorf("d2 snapshots = %d, want 1", n)
	}
	if n := count(t, gormDB.Model(&models.WorkItemTypeMap{}).Where("project_id = ?", "p1")); n != 1 {
		t.Errorf("p1 map archived, want live")
	}
	if n := count(t, gormDB.Unscoped().Model(&models.WorkItemTypeMap{}).Where("project_id = ? AND deleted_at IS NOT NULL", "p2")); n != 1 {
		t.Errorf("p2 map not archived")
	}
	if n := count(t, gormDB.Model(&models.WorkItemType{})); n != 1 {
		t.Errorf("work item types = %d, want 1", n)
	}
	if n := count(t, gormDB.Model(&models.ContextWorkItemMap{}).Where("work_item_id = ?", "wi-1")); n != 1 {
		t.Errorf("wi-1 context link tombstoned, want live")
	}
	if n := count(t, gormDB.Model(&models.Workflow{}).Where("workflow_id = ?", "acme-p2-w")); n != 0 {
		t.Errorf("p2 workflow still live")
	}
	if n := count(t, gormDB.Model(&models.WorkflowEvent{}).Where("workflow_id = ?", "acme-p2-w")); n != 0 {
		t.Errorf("p2 workflow event still live")
	}
}

func TestRemove_OtherDatasourceLinksUntouched(t *testing.T) {
	gormDB := testDB(t)
	seed(t, gormDB)
	// d2 reuses the work item id wi-2 under its own context.
	create(t, gormDB,
		&models.WorkItem{PartitionKey: "state#acme", SortKey: "d2#wi-2", WorkItemID: "wi-2", WorkItemTypeID: "acme-bug", ProjectID: "p9"},
		&models.Context{TenantID: "acme", ContextID: "c-d2", DatasourceID: "d2", ProjectID: "p9", Name: "D2 board"},
		&models.ContextWorkItemMap{TenantID: "acme", ContextID: "c-d2", WorkItemID: "wi-2"},
	)

	var res *Result
	err := gormDB.Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = Remove(context.Background(), tx, "acme", "d1", planFor(t, tx, "p1"), Options{})
		return err
	})
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if res.ContextLinksTombstoned != 1 {
		t.Errorf("ContextLinksTombstoned = %d, want 1", res.ContextLinksTombstoned)
	}
	if n := count(t, gormDB.Model(&models.WorkItem{}).Where("sort_key = ?", "d2#wi-2")); n != 1 {
		t.Errorf("d2 work item rows = %d, want 1", n)
	}
	if n := count(t, gormDB.Model(&models.ContextWorkItemMap{}).Where("context_id = ? AND work_item_id = ?", "c-d2", "wi-2")); n != 1 {
		t.Errorf("d2 context link tombstoned, want live")
	}
	if n := count(t, gormDB.Model(&models.ContextWorkItemMap{}).Where("context_id = ? AND work_item_id = ?", "c2", "wi-2")); n != 0 {
		t.Errorf("d1 context link still live")
	}
}

func TestRemove_OrphanedTypeSoftDeleted(t *testing.T) {
	gormDB := testDB(t)
	seed(t, gormDB)

	err := gormDB.Transaction(func(tx *gorm.DB) error {
		res, err := Remove(context.Background(), tx, "acme", "d1", planFor(t, tx), Options{})
		if err == nil && res.TypesRemoved != 1 {
			t.Errorf("TypesRemoved = %d, want 1", res.TypesRemoved)
		}
		return err
	})
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if n := count(t, gormDB.Model(&models.WorkItemType{})); n != 0 {
		t.Errorf("live types = %d, want 0", n)
	}
	if n := count(t, gormDB.Unscoped().Model(&models.WorkItemType{})); n != 1 {
		t.Errorf("type row physically deleted, want retained")
	}
}

func TestRemove_DependencyVeto(t *testing.T) {
	gormDB := testDB(t)
	seed(t, gormDB)
	create(t, gormDB,
		&models.SavedFilter{TenantID: "acme", DatasourceID: "d1", FilterID: "f1", Name: "Open bugs", ParsedQuery: "workItemTypeName = 'bug'"},
		&models.ReviewRoom{TenantID: "acme", DatasourceID: "d1", RoomID: "r1", Name: "Quality", ParsedQuery: "workItemTypeName == 'bug'"},
	)

	err := gormDB.Transaction(func(tx *gorm.DB) error {
		_, err := Remove(context.Background(), tx, "acme", "d1", planFor(t, tx), Options{})
		return err
	})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want *ConflictError", err)
	}
	if len(conflict.Dependencies) != 1 {
		t.Fatalf("dependencies = %+v", conflict.Dependencies)
	}
	d := conflict.Dependencies[0]
	if d.EntityName != "Bug" || len(d.BlockingFilters) != 1 || d.BlockingFilters[0] != "Open bugs" ||
		len(d.BlockingRooms) != 1 || d.BlockingRooms[0] != "Quality" {
		t.Errorf("dependency = %+v", d)
	}

	if n := count(t, gormDB.Model(&models.WorkItem{})); n != 3 {
		t.Errorf("work items = %d, want 3 (untouched)", n)
	}
	if n := count(t, gormDB.Model(&models.WorkItemTypeMap{})); n != 2 {
		t.Errorf("maps = %d, want 2 (untouched)", n)
	}
}

func TestRemove_VetoRemovedSteps(t *testing.T) {
	gormDB := testDB(t)
	seed(t, gormDB)
	create(t, gormDB,
		&models.SavedFilter{TenantID: "acme", DatasourceID: "d1", FilterID: "f1", Name: "Finished", ParsedQuery: "state = 'done'"},
	)
	plan := &planner.Plan{StepsToRemove: []models.WorkflowStep{
		{TenantID: "acme", DatasourceID: "d1", WorkflowID: "acme-p2-w", StepID: "2", Name: "Done"},
	}}

	err := gormDB.Transaction(func(tx *gorm.DB) error {
		_, err := Remove(context.Background(), tx, "acme", "d1", plan, Options{})
		return err
	})
	if err != nil {
		t.Fatalf("Remove without step veto: %v", err)
	}

	seedStep := models.WorkflowStep{TenantID: "acme", DatasourceID: "d1", WorkflowID: "acme-p2-w", StepID: "3", Name: "Done", Category: "completed"}
	create(t, gormDB, &seedStep)
	plan.StepsToRemove = []models.WorkflowStep{seedStep}
	err = gormDB.Transaction(func(tx *gorm.DB) error {
		_, err := Remove(context.Background(), tx, "acme", "d1", plan, Options{VetoRemovedSteps: true})
		return err
	})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want *ConflictError", err)
	}
	if conflict.Dependencies[0].EntityName != "Done" {
		t.Errorf("entity = %q, want Done", conflict.Dependencies[0].EntityName)
	}
}

func TestRemove_InvariantViolation(t *testing.T) {
	gormDB := testDB(t)
	seed(t, gormDB)

	plan := planFor(t, gormDB, "p1")
	plan.OrphanedTypes = []models.WorkItemType{{TenantID: "acme", WorkItemTypeID: "acme-bug", DisplayName: "Bug"}}

	err := gormDB.Transaction(func(tx *gorm.DB) error {
		_, err := Remove(context.Background(), tx, "acme", "d1", plan, Options{})
		return err
	})
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("err = %v, want ErrInvariant", err)
	}
	if n := count(t, gormDB.Model(&models.WorkItem{})); n != 3 {
		t.Errorf("work items = %d, want 3 after rollback", n)
	}
}

func TestRemove_EmptyPlan(t *testing.T) {
	gormDB := testDB(t)
	res, err := Remove(context.Background(), gormDB, "acme", "d1", nil, Options{})
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if res.Plan == nil || !res.Plan.Empty() {
		t.Errorf("Plan = %+v, want empty", res.Plan)
	}
}

func TestRemoveProject(t *testing.T) {
	gormDB := testDB(t)
	seed(t, gormDB)

	var res *Result
	err := gormDB.Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = RemoveProject(context.Background(), tx, "acme", "d1", "p2", Options{})
		return err
	})
	if err != nil {
		t.Fatalf("RemoveProject: %v", err)
	}

	if res.ContextsArchived != 1 || res.MapsArchived != 1 || res.WorkItemsPurged != 1 || res.StepsArchived != 2 {
		t.Errorf("result = %+v", res)
	}
	var c models.Context
	if err := gormDB.First(&c, "context_id = ?", "c2").Error; err != nil {
		t.Fatalf("load context: %v", err)
	}
	if !c.Archived || c.ArchivedAt == nil {
		t.Errorf("context = %+v, want archived", c)
	}
	if n := count(t, gormDB.Model(&models.Project{}).Where("project_id = ?", "p2")); n != 0 {
		t.Errorf("project p2 still live")
	}
	if n := count(t, gormDB.Model(&models.WorkItemType{})); n != 1 {
		t.Errorf("type removed although p1 still maps it")
	}
	if n := count(t, gormDB.Model(&models.WorkflowStep{}).Where("workflow_id = ?", "acme-p1-w")); n != 1 {
		t.Errorf("p1 steps touched")
	}
}

func TestRemoveProject_NotFound(t *testing.T) {
	gormDB := testDB(t)
	_, err := RemoveProject(context.Background(), gormDB, "acme", "d1", "nope", Options{})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("err = %v, want gorm.ErrRecordNotFound", err)
	}
}

func TestRemoveProject_LastProjectOrphansType(t *testing.T) {
	gormDB := testDB(t)
	seed(t, gormDB)

	for _, p := range []string{"p1", "p2"} {
		err := gormDB.Transaction(func(tx *gorm.DB) error {
			_, err := RemoveProject(context.Background(), tx, "acme", "d1", p, Options{})
			return err
		})
		if err != nil {
			t.Fatalf("RemoveProject(%s): %v", p, err)
		}
	}
	if n := count(t, gormDB.Model(&models.WorkItemType{})); n != 0 {
		t.Errorf("live types = %d, want 0", n)
	}
}

func TestChunks(t *testing.T) {
	values := make([]string, chunkSize*2+1)
	got := chunks(values)
	if len(got) != 3 || len(got[2]) != 1 {
		t.Errorf("chunks = %d groups, last %d", len(got), len(got[len(got)-1]))
	}
	if chunks(nil) != nil {
		t.Error("chunks(nil) should be nil")
	}
}
