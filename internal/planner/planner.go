// Package planner computes which persisted configuration rows a desired
// configuration no longer covers.
package planner

import (
	"sort"

	"github.com/tallyflow/workcfg/internal/desired"
	"github.com/tallyflow/workcfg/internal/models"
)

// Input is everything Build compares. Maps and Types are the live rows of the
// whole tenant, since work item types are shared across datasources.
// Workflows and Steps are the live rows of DatasourceID.
type Input struct {
	DatasourceID string
	Desired      *desired.Rows
	Maps         []models.WorkItemTypeMap
	Types        []models.WorkItemType
	Workflows    []models.Workflow
	Steps        []models.WorkflowStep
}

// Plan is the removal side of a reconciliation.
type Plan struct {
	// MapsToRemove are maps whose (type, project) pair is no longer desired.
	// Their work items and snapshots are purged.
	MapsToRemove []models.WorkItemTypeMap
	// SupersededMaps are maps whose pair is still desired under a different
	// workflow or external id. They are archived without purging.
	SupersededMaps []models.WorkItemTypeMap
	// OrphanedTypes are types left with no surviving live map.
	OrphanedTypes      []models.WorkItemType
	WorkflowsToArchive []models.Workflow
	StepsToRemove      []models.WorkflowStep
}

// Empty reports whether the plan removes nothing.
func (p *Plan) Empty() bool {
	return len(p.MapsToRemove) == 0 && len(p.SupersededMaps) == 0 && len(p.OrphanedTypes) == 0 &&
		len(p.WorkflowsToArchive) == 0 && len(p.StepsToRemove) == 0
}

// Pairs returns the distinct (type, project) pairs of MapsToRemove.
func (p *Plan) Pairs() []models.Pair {
	seen := make(map[models.Pair]bool)
	var pairs []models.Pair
	for _, m := range p.MapsToRemove {
		pair := m.Pair()
		if seen[pair] {
			continue
		}
		seen[pair] = true
		pairs = append(pairs, pair)
	}
	return pairs
}

// OrphanedTypeNames returns the display names of OrphanedTypes.
func (p *Plan) OrphanedTypeNames() []string {
	names := make([]string, 0, len(p.OrphanedTypes))
	for _, t := range p.OrphanedTypes {
		names = append(names, t.DisplayName)
	}
	return names
}

// RemovedStepNames returns the distinct names of StepsToRemove.
func (p *Plan) RemovedStepNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, s := range p.StepsToRemove {
		if seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// Build partitions the persisted rows in in against in.Desired. Rows present
// in both are left to the upsert; Build only reports what must go.
func Build(in Input) *Plan {
	want := in.Desired
	if want == nil {
		want = &desired.Rows{}
	}

	pairs := make(map[models.Pair]bool, len(want.WorkItemTypeMaps))
	keys := make(map[models.MapKey]bool, len(want.WorkItemTypeMaps))
	for _, m := range want.WorkItemTypeMaps {
		pairs[m.Pair()] = true
		keys[m.Key()] = true
	}

	plan := &Plan{}
	for _, m := range in.Maps {
		if m.DatasourceID != in.DatasourceID {
			continue
		}
		switch {
		case !pairs[m.Pair()]:
			plan.MapsToRemove = append(plan.MapsToRemove, m)
		case !keys[m.Key()]:
			plan.SupersededMaps = append(plan.SupersededMaps, m)
		}
	}
	plan.OrphanedTypes = orphans(plan.MapsToRemove, in.Maps, in.Types, want.WorkItemTypeIDs())

	workflows := want.WorkflowIDs()
	for _, w := range in.Workflows {
		if !workflows[w.WorkflowID] {
			plan.WorkflowsToArchive = append(plan.WorkflowsToArchive, w)
		}
	}

	steps := make(map[[2]string]bool, len(want.Steps))
	for _, s := range want.Steps {
		steps[[2]string{s.WorkflowID, s.StepID}] = true
	}
	for _, s := range in.Steps {
		if !steps[[2]string{s.WorkflowID, s.StepID}] {
			plan.StepsToRemove = append(plan.StepsToRemove, s)
		}
	}

	plan.sort()
	return plan
}

// ForProject plans the removal of one project of datasourceID: all of its
// maps, workflows and steps. Types are orphaned under the same rule as Build.
func ForProject(datasourceID, projectID string, maps []models.WorkItemTypeMap, types []models.WorkItemType,
	workflows []models.Workflow, steps []models.WorkflowStep) *Plan {
	plan := &Plan{}
	for _, m := range maps {
		if m.DatasourceID == datasourceID && m.ProjectID == projectID {
			plan.MapsToRemove = append(plan.MapsToRemove, m)
		}
	}
	plan.OrphanedTypes = orphans(plan.MapsToRemove, maps, types, nil)

	owned := make(map[string]bool)
	for _, w := range workflows {
		if w.DatasourceID == datasourceID && w.ProjectID == projectID {
			plan.WorkflowsToArchive = append(plan.WorkflowsToArchive, w)
			owned[w.WorkflowID] = true
		}
	}
	for _, m := range plan.MapsToRemove {
		owned[m.WorkflowID] = true
	}
	for _, s := range steps {
		if s.DatasourceID == datasourceID && owned[s.WorkflowID] {
			plan.StepsToRemove = append(plan.StepsToRemove, s)
		}
	}

	plan.sort()
	return plan
}

// orphans returns the types referenced by removed whose every live map in
// all is also in removed, skipping types in keep.
func orphans(removed, all []models.WorkItemTypeMap, types []models.WorkItemType, keep map[string]bool) []models.WorkItemType {
	gone := make(map[models.MapKey]bool, len(removed))
	candidates := make(map[string]bool)
	for _, m := range removed {
		gone[m.Key()] = true
		candidates[m.WorkItemTypeID] = true
	}
	for _, m := range all {
		if candidates[m.WorkItemTypeID] && !gone[m.Key()] {
			delete(candidates, m.WorkItemTypeID)
		}
	}

	var out []models.WorkItemType
	for _, t := range types {
		if candidates[t.WorkItemTypeID] && !keep[t.WorkItemTypeID] {
			out = append(out, t)
		}
	}
	return out
}

func (p *Plan) sort() {
	byKey := func(maps []models.WorkItemTypeMap) {
		sort.Slice(maps, func(i, j int) bool { return lessKey(maps[i].Key(), maps[j].Key()) })
	}
	byKey(p.MapsToRemove)
	byKey(p.SupersededMaps)
	sort.Slice(p.OrphanedTypes, func(i, j int) bool {
		return p.OrphanedTypes[i].WorkItemTypeID < p.OrphanedTypes[j].WorkItemTypeID
	})
	sort.Slice(p.WorkflowsToArchive, func(i, j int) bool {
		return p.WorkflowsToArchive[i].WorkflowID < p.WorkflowsToArchive[j].WorkflowID
	})
	sort.Slice(p.StepsToRemove, func(i, j int) bool {
		a, b := p.StepsToRemove[i], p.StepsToRemove[j]
		if a.WorkflowID != b.WorkflowID {
			return a.WorkflowID < b.WorkflowID
		}
		return a.StepID < b.StepID
	})
}

func lessKey(a, b models.MapKey) bool {
	switch {
	case a.DatasourceID != b.DatasourceID:
		return a.DatasourceID < b.DatasourceID
	case a.WorkItemTypeID != b.WorkItemTypeID:
		return a.WorkItemTypeID < b.WorkItemTypeID
	case a.ProjectID != b.ProjectID:
		return a.ProjectID < b.ProjectID
	case a.WorkflowID != b.WorkflowID:
		return a.WorkflowID < b.WorkflowID
	default:
		return a.ExternalID < b.ExternalID
	}
}
