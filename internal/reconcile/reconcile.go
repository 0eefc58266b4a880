// Package reconcile applies a desired configuration to the store in one
// transaction: plan the removals, cascade them, upsert the desired rows.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tallyflow/workcfg/internal/cascade"
	"github.com/tallyflow/workcfg/internal/desired"
	"github.com/tallyflow/workcfg/internal/planner"
	"gorm.io/gorm"
)

// Run kinds.
const (
	KindReconcile     = "reconcile"
	KindProjectRemove = "project_remove"
)

// Run statuses.
const (
	StatusApplied = "applied"
	StatusBlocked = "blocked"
	StatusFailed  = "failed"
	StatusInvalid = "invalid"
)

// Trigger starts a fresh ingestion of a datasource. It is called only after
// a commit.
type Trigger interface {
	KickOffReIngest(ctx context.Context, tenant, datasourceID string) error
}

// Notifier is told about blocked reconciliations.
type Notifier interface {
	NotifyConflict(ctx context.Context, tenant, datasourceID string, deps []cascade.Dependency) error
}

// Options configures a Reconciler. Zero values are valid.
type Options struct {
	Logger   *slog.Logger
	Trigger  Trigger
	Notifier Notifier
	Metrics  *Metrics
	// Timeout bounds the transaction when the caller's context has no deadline.
	Timeout          time.Duration
	VetoRemovedSteps bool
}

// Conflict lists the entities whose removal stored queries still block.
type Conflict struct {
	Dependencies []cascade.Dependency `json:"dependencies"`
}

// Removal summarizes what a committed run removed.
type Removal struct {
	MapsArchived           int64 `json:"mapsArchived"`
	TypesRemoved           int64 `json:"typesRemoved"`
	WorkItemsPurged        int64 `json:"workItemsPurged"`
	SnapshotsPurged        int64 `json:"snapshotsPurged"`
	ContextLinksTombstoned int64 `json:"contextLinksTombstoned"`
	StepsArchived          int64 `json:"stepsArchived"`
	WorkflowsArchived      int64 `json:"workflowsArchived"`
	ContextsArchived       int64 `json:"contextsArchived"`
}

func newRemoval(r *cascade.Result) *Removal {
	if r == nil {
		return &Removal{}
	}
	return &Removal{
		MapsArchived:           r.MapsArchived,
		TypesRemoved:           r.TypesRemoved,
		WorkItemsPurged:        r.WorkItemsPurged,
		SnapshotsPurged:        r.SnapshotsPurged,
		ContextLinksTombstoned: r.ContextLinksTombstoned,
		StepsArchived:          r.StepsArchived,
		WorkflowsArchived:      r.WorkflowsArchived,
		ContextsArchived:       r.ContextsArchived,
	}
}

// Outcome is the result of a run that reached the store. Exactly one of
// Applied and Conflict is set.
type Outcome struct {
	RunID    string    `json:"runId"`
	Applied  *State    `json:"applied,omitempty"`
	Conflict *Conflict `json:"conflict,omitempty"`
	Removal  *Removal  `json:"removal,omitempty"`
	Upserted int       `json:"upserted"`
}

// Reconciler owns the store handle and its collaborators.
type Reconciler struct {
	db   *gorm.DB
	opts Options
	log  *slog.Logger
}

// New returns a Reconciler over db.
func New(db *gorm.DB, opts Options) *Reconciler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{db: db, opts: opts, log: log}
}

// Reconcile makes the configuration of tenant's datasource match cfg.
// Invalid input returns an error wrapping desired.ErrInvalid before any
// transaction opens. A dependency conflict is returned as an Outcome, not an
// error. Any other error means the transaction rolled back.
func (r *Reconciler) Reconcile(ctx context.Context, tenant, datasourceID string, cfg *desired.Configuration) (*Outcome, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := r.log.With("tenant", tenant, "datasource", datasourceID, "run_id", runID)

	rows, err := desired.Normalize(tenant, datasourceID, cfg)
	if err != nil {
		r.opts.Metrics.observe(KindReconcile, StatusInvalid, time.Since(start), nil)
		log.Info("reconcile: rejected", "error", err)
		return nil, err
	}

	txCtx, cancel := r.deadline(ctx)
	defer cancel()

	var (
		result *cascade.Result
		state  *State
	)
	err = r.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		live, err := planner.Load(txCtx, tx, tenant, datasourceID)
		if err != nil {
			return err
		}
		plan := planner.Build(live.Input(datasourceID, rows))

		result, err = cascade.Remove(txCtx, tx, tenant, datasourceID, plan, cascade.Options{
			VetoRemovedSteps: r.opts.VetoRemovedSteps,
		})
		if err != nil {
			return err
		}
		if err := upsert(tx, rows); err != nil {
			return err
		}
		state, err = loadState(tx, tenant, datasourceID, rows)
		return err
	})

	out := &Outcome{RunID: runID}
	return r.settle(ctx, log, run{
		kind:       KindReconcile,
		tenant:     tenant,
		datasource: datasourceID,
		start:      start,
		upserted:   rows.Count(),
	}, out, result, state, err)
}

// RemoveProject removes one project of tenant's datasource with the same
// cascade, dependency veto and outcome shape as Reconcile.
func (r *Reconciler) RemoveProject(ctx context.Context, tenant, datasourceID, projectID string) (*Outcome, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := r.log.With("tenant", tenant, "datasource", datasourceID, "project", projectID, "run_id", runID)

	if tenant == "" || datasourceID == "" || projectID == "" {
		r.opts.Metrics.observe(KindProjectRemove, StatusInvalid, time.Since(start), nil)
		return nil, &desired.ValidationError{Problems: []string{"tenant, datasource and project are required"}}
	}

	txCtx, cancel := r.deadline(ctx)
	defer cancel()

	var (
		result *cascade.Result
		state  *State
	)
	err := r.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = cascade.RemoveProject(txCtx, tx, tenant, datasourceID, projectID, cascade.Options{
			VetoRemovedSteps: r.opts.VetoRemovedSteps,
		})
		if err != nil {
			return err
		}
		state, err = loadState(tx, tenant, datasourceID, nil)
		return err
	})

	out := &Outcome{RunID: runID}
	return r.settle(ctx, log, run{
		kind:       KindProjectRemove,
		tenant:     tenant,
		datasource: datasourceID,
		start:      start,
	}, out, result, state, err)
}

type run struct {
	kind       string
	tenant     string
	datasource string
	start      time.Time
	upserted   int
}

// settle turns a finished transaction into an Outcome and runs the
// post-commit side effects.
func (r *Reconciler) settle(ctx context.Context, log *slog.Logger, rn run, out *Outcome,
	result *cascade.Result, state *State, txErr error) (*Outcome, error) {
	var conflict *cascade.ConflictError
	switch {
	case errors.As(txErr, &conflict):
		out.Conflict = &Conflict{Dependencies: conflict.Dependencies}
		log.Warn(rn.kind+": blocked by dependents", "entities", len(conflict.Dependencies))
		if r.opts.Notifier != nil {
			if err := r.opts.Notifier.NotifyConflict(context.WithoutCancel(ctx), rn.tenant, rn.datasource, conflict.Dependencies); err != nil {
				log.Warn(rn.kind+": conflict notification failed", "error", err)
			}
		}
		r.audit(ctx, log, rn, out.RunID, StatusBlocked, out, nil)
		r.opts.Metrics.observe(rn.kind, StatusBlocked, time.Since(rn.start), nil)
		return out, nil

	case txErr != nil:
		log.Error(rn.kind+": failed", "error", txErr)
		r.audit(ctx, log, rn, out.RunID, StatusFailed, nil, txErr)
		r.opts.Metrics.observe(rn.kind, StatusFailed, time.Since(rn.start), nil)
		return nil, fmt.Errorf("reconcile: %s %s/%s: %w", rn.kind, rn.tenant, rn.datasource, txErr)
	}

	out.Applied = state
	out.Removal = newRemoval(result)
	out.Upserted = rn.upserted
	log.Info(rn.kind+": applied",
		"upserted", rn.upserted,
		"maps_archived", out.Removal.MapsArchived,
		"types_removed", out.Removal.TypesRemoved,
		"work_items_purged", out.Removal.WorkItemsPurged,
		"elapsed", time.Since(rn.start).Round(time.Millisecond))

	if r.opts.Trigger != nil {
		if err := r.opts.Trigger.KickOffReIngest(context.WithoutCancel(ctx), rn.tenant, rn.datasource); err != nil {
			log.Warn(rn.kind+": re-ingest trigger failed", "error", err)
		}
	}
	r.audit(ctx, log, rn, out.RunID, StatusApplied, out, nil)
	r.opts.Metrics.observe(rn.kind, StatusApplied, time.Since(rn.start), out.Removal)
	return out, nil
}

func (r *Reconciler) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || r.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.opts.Timeout)
}
