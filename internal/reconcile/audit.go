package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tallyflow/workcfg/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// audit records a run. It runs outside the reconcile transaction and never
// changes the outcome; failures are logged.
func (r *Reconciler) audit(ctx context.Context, log *slog.Logger, rn run, runID, status string, out *Outcome, runErr error) {
	entry := models.ReconcileRun{
		ID:           runID,
		TenantID:     rn.tenant,
		DatasourceID: rn.datasource,
		Kind:         rn.kind,
		Status:       status,
	}
	if out != nil {
		if out.Removal != nil {
			entry.MapsRemoved = out.Removal.MapsArchived
			entry.TypesRemoved = out.Removal.TypesRemoved
			entry.WorkItemsPurged = out.Removal.WorkItemsPurged
		}
		entry.RowsUpserted = int64(out.Upserted)
		report, err := json.Marshal(struct {
			Removal  *Removal  `json:"removal,omitempty"`
			Conflict *Conflict `json:"conflict,omitempty"`
		}{out.Removal, out.Conflict})
		if err == nil {
			entry.Report = datatypes.JSON(report)
		}
	}
	if runErr != nil {
		entry.ErrorMessage = runErr.Error()
	}

	if err := r.db.WithContext(context.WithoutCancel(ctx)).Create(&entry).Error; err != nil {
		log.Warn("reconcile: audit write failed", "error", err)
	}
}

// Runs returns the most recent runs of tenant's datasource, newest first.
func Runs(ctx context.Context, db *gorm.DB, tenant, datasourceID string, limit int) ([]models.ReconcileRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.ReconcileRun
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND datasource_id = ?", tenant, datasourceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("reconcile: list runs: %w", err)
	}
	return runs, nil
}
