// Package reingest keeps the per-datasource ingestion cursor. A cleared
// cursor asks the ingestion jobs to run a datasource as soon as possible.
package reingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tallyflow/workcfg/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CursorTrigger requests re-ingestion by clearing a datasource's next run.
type CursorTrigger struct {
	db *gorm.DB
}

// NewCursorTrigger returns a CursorTrigger over db.
func NewCursorTrigger(db *gorm.DB) *CursorTrigger {
	return &CursorTrigger{db: db}
}

// KickOffReIngest clears the cursor of tenant's datasource, registering the
// datasource if it is unknown.
func (c *CursorTrigger) KickOffReIngest(ctx context.Context, tenant, datasourceID string) error {
	ds := models.Datasource{TenantID: tenant, DatasourceID: datasourceID}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "datasource_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"next_run_at", "updated_at"}),
	}).Create(&ds).Error
	if err != nil {
		return fmt.Errorf("reingest: clear cursor of %s/%s: %w", tenant, datasourceID, err)
	}
	return nil
}

// Scheduler finds datasources due for ingestion and advances their cursor
// along their cron schedule.
type Scheduler struct {
	db              *gorm.DB
	defaultSchedule string
	log             *slog.Logger
}

// NewScheduler returns a Scheduler. defaultSchedule applies to datasources
// without their own schedule.
func NewScheduler(db *gorm.DB, defaultSchedule string, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{db: db, defaultSchedule: defaultSchedule, log: log}
}

// Due lists enabled datasources whose cursor is cleared or not after now.
func (s *Scheduler) Due(ctx context.Context, now time.Time) ([]models.Datasource, error) {
	var due []models.Datasource
	err := s.db.WithContext(ctx).
		Where("enabled = ? AND (next_run_at IS NULL OR next_run_at <= ?)", true, now).
		Order("next_run_at, tenant_id, datasource_id").
		Find(&due).Error
	if err != nil {
		return nil, fmt.Errorf("reingest: list due datasources: %w", err)
	}
	return due, nil
}

// Advance sets the cursor of ds to its next scheduled run after now.
func (s *Scheduler) Advance(ctx context.Context, ds models.Datasource, now time.Time) (time.Time, error) {
	expr := ds.Schedule
	if expr == "" {
		expr = s.defaultSchedule
	}
	next, err := NextRun(expr, now)
	if err != nil {
		return time.Time{}, err
	}
	err = s.db.WithContext(ctx).Model(&models.Datasource{}).
		Where("tenant_id = ? AND datasource_id = ?", ds.TenantID, ds.DatasourceID).
		Update("next_run_at", next).Error
	if err != nil {
		return time.Time{}, fmt.Errorf("reingest: advance %s/%s: %w", ds.TenantID, ds.DatasourceID, err)
	}
	return next, nil
}

// Poll hands every due datasource to run and advances the cursor of those
// run accepted. It returns the number advanced.
func (s *Scheduler) Poll(ctx context.Context, now time.Time, run func(context.Context, models.Datasource) error) (int, error) {
	due, err := s.Due(ctx, now)
	if err != nil {
		return 0, err
	}
	advanced := 0
	for _, ds := range due {
		if err := run(ctx, ds); err != nil {
			s.log.Warn("reingest: dispatch failed", "tenant", ds.TenantID, "datasource", ds.DatasourceID, "error", err)
			continue
		}
		next, err := s.Advance(ctx, ds, now)
		if err != nil {
			return advanced, err
		}
		s.log.Info("reingest: dispatched", "tenant", ds.TenantID, "datasource", ds.DatasourceID, "next_run_at", next)
		advanced++
	}
	return advanced, nil
}
