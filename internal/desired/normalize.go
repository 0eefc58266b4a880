package desired

import (
	"fmt"

	"github.com/tallyflow/workcfg/internal/identity"
	"github.com/tallyflow/workcfg/internal/models"
)

// Rows is a desired configuration expanded into persistable rows. Every
// slice is deduplicated by primary key; later entries overwrite earlier ones.
type Rows struct {
	Projects         []models.Project
	Workflows        []models.Workflow
	Steps            []models.WorkflowStep
	Events           []models.WorkflowEvent
	WorkItemTypes    []models.WorkItemType
	WorkItemTypeMaps []models.WorkItemTypeMap
}

// Count returns the total number of rows.
func (r *Rows) Count() int {
	return len(r.Projects) + len(r.Workflows) + len(r.Steps) + len(r.Events) +
		len(r.WorkItemTypes) + len(r.WorkItemTypeMaps)
}

// WorkflowIDs returns the set of desired workflow ids.
func (r *Rows) WorkflowIDs() map[string]bool {
	ids := make(map[string]bool, len(r.Workflows))
	for _, w := range r.Workflows {
		ids[w.WorkflowID] = true
	}
	return ids
}

// WorkItemTypeIDs returns the set of desired work item type ids.
func (r *Rows) WorkItemTypeIDs() map[string]bool {
	ids := make(map[string]bool, len(r.WorkItemTypes))
	for _, t := range r.WorkItemTypes {
		ids[t.WorkItemTypeID] = true
	}
	return ids
}

// Normalize validates cfg and derives the rows it describes for tenant and
// datasourceID. Identifiers come from the identity package.
func Normalize(tenant, datasourceID string, cfg *Configuration) (*Rows, error) {
	var problems []string
	if tenant == "" {
		problems = append(problems, "tenant is required")
	}
	if datasourceID == "" {
		problems = append(problems, "datasource is required")
	}
	if cfg == nil {
		problems = append(problems, "configuration is required")
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := newBuilder()
	for i, e := range cfg.Entries {
		typeID := identity.WorkItemTypeID(tenant, e.WorkItemType.DisplayName)
		b.putType(models.WorkItemType{
			TenantID:                    tenant,
			WorkItemTypeID:              typeID,
			DisplayName:                 e.WorkItemType.DisplayName,
			Level:                       e.WorkItemType.Level,
			ServiceLevelExpectationDays: e.WorkItemType.SLADays,
		})

		for _, p := range e.Projects {
			b.putProject(models.Project{
				TenantID:     tenant,
				DatasourceID: datasourceID,
				ProjectID:    p.ID,
				Name:         p.Name,
			})

			workflowID := identity.WorkflowID(tenant, p.ID, e.WorkflowName)
			if err := b.putWorkflow(i, tenant, datasourceID, workflowID, p.ID, e); err != nil {
				return nil, err
			}

			b.putMap(models.WorkItemTypeMap{
				TenantID:                    tenant,
				DatasourceID:                datasourceID,
				WorkflowID:                  workflowID,
				WorkItemTypeID:              typeID,
				ExternalID:                  e.WorkItemType.ID,
				ProjectID:                   p.ID,
				ServiceLevelExpectationDays: e.ServiceLevelExpectationDays,
			})
		}
	}
	return b.rows, nil
}

// Points derives the arrival, commitment and departure step orders of steps.
// Arrival is the first step past the preceding ones, commitment the first
// in-progress step and departure the first completed step. Pinned step ids in
// pins take precedence. Missing points fall back to arrival=0,
// commitment=arrival and departure=last step.
func Points(steps []Step, pins *EventPoints) (arrival, commitment, departure int) {
	arrival, commitment, departure = -1, -1, -1
	for i, s := range steps {
		if arrival < 0 && s.Category != models.CategoryPreceding {
			arrival = i
		}
		if commitment < 0 && s.Category == models.CategoryInProgress {
			commitment = i
		}
		if departure < 0 && s.Category == models.CategoryCompleted {
			departure = i
		}
	}
	if pins != nil {
		for i, s := range steps {
			if s.ID == pins.Arrival {
				arrival = i
			}
			if s.ID == pins.Commitment {
				commitment = i
			}
			if s.ID == pins.Departure {
				departure = i
			}
		}
	}
	if arrival < 0 {
		arrival = 0
	}
	if commitment < 0 {
		commitment = arrival
	}
	if departure < 0 {
		departure = len(steps) - 1
	}
	return arrival, commitment, departure
}

type builder struct {
	rows      *Rows
	projects  map[string]int
	workflows map[string]int
	steps     map[[2]string]int
	stepSig   map[string]string
	events    map[string]int
	types     map[string]int
	maps      map[models.MapKey]int
}

func newBuilder() *builder {
	return &builder{
		rows:      &Rows{},
		projects:  make(map[string]int),
		workflows: make(map[string]int),
		steps:     make(map[[2]string]int),
		stepSig:   make(map[string]string),
		events:    make(map[string]int),
		types:     make(map[string]int),
		maps:      make(map[models.MapKey]int),
	}
}

func (b *builder) putProject(p models.Project) {
	if i, ok := b.projects[p.ProjectID]; ok {
		if p.Name != "" {
			b.rows.Projects[i] = p
		}
		return
	}
	b.projects[p.ProjectID] = len(b.rows.Projects)
	b.rows.Projects = append(b.rows.Projects, p)
}

func (b *builder) putType(t models.WorkItemType) {
	if i, ok := b.types[t.WorkItemTypeID]; ok {
		b.rows.WorkItemTypes[i] = t
		return
	}
	b.types[t.WorkItemTypeID] = len(b.rows.WorkItemTypes)
	b.rows.WorkItemTypes = append(b.rows.WorkItemTypes, t)
}

func (b *builder) putMap(m models.WorkItemTypeMap) {
	k := m.Key()
	if i, ok := b.maps[k]; ok {
		b.rows.WorkItemTypeMaps[i] = m
		return
	}
	b.maps[k] = len(b.rows.WorkItemTypeMaps)
	b.rows.WorkItemTypeMaps = append(b.rows.WorkItemTypeMaps, m)
}

// putWorkflow adds the workflow of entry i with its steps and event row. Two
// entries sharing a workflow must agree on its steps.
func (b *builder) putWorkflow(i int, tenant, datasourceID, workflowID, projectID string, e Entry) error {
	sig := stepSignature(e.Steps)
	if prev, ok := b.stepSig[workflowID]; ok {
		if prev != sig {
			return &ValidationError{Problems: []string{
				fmt.Sprintf("entries[%d]: workflow %q in project %q conflicts with the steps of an earlier entry", i, e.WorkflowName, projectID),
			}}
		}
		return nil
	}
	b.stepSig[workflowID] = sig

	b.workflows[workflowID] = len(b.rows.Workflows)
	b.rows.Workflows = append(b.rows.Workflows, models.Workflow{
		TenantID:     tenant,
		DatasourceID: datasourceID,
		WorkflowID:   workflowID,
		ProjectID:    projectID,
		Name:         e.WorkflowName,
	})

	for order, s := range e.Steps {
		k := [2]string{workflowID, s.ID}
		b.steps[k] = len(b.rows.Steps)
		b.rows.Steps = append(b.rows.Steps, models.WorkflowStep{
			TenantID:     tenant,
			DatasourceID: datasourceID,
			WorkflowID:   workflowID,
			StepID:       s.ID,
			Name:         s.Name,
			Category:     s.Category,
			Type:         s.Type,
			Order:        order,
			IsUnmapped:   s.IsUnmapped,
		})
	}

	arrival, commitment, departure := Points(e.Steps, e.Events)
	b.events[workflowID] = len(b.rows.Events)
	b.rows.Events = append(b.rows.Events, models.WorkflowEvent{
		TenantID:        tenant,
		DatasourceID:    datasourceID,
		WorkflowID:      workflowID,
		ArrivalPoint:    arrival,
		CommitmentPoint: commitment,
		DeparturePoint:  departure,
	})
	return nil
}

func stepSignature(steps []Step) string {
	sig := ""
	for _, s := range steps {
		sig += fmt.Sprintf("%s\x1f%s\x1f%s\x1f%s\x1f%t\x1e", s.ID, s.Name, s.Category, s.Type, s.IsUnmapped)
	}
	return sig
}
