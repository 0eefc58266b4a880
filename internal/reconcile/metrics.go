package reconcile

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the reconciliation collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	removed  *prometheus.CounterVec
}

// NewMetrics registers the reconciliation collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		// Labels: kind (reconcile, project_remove), status (applied, blocked, failed)
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workcfg",
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Reconciliation runs by kind and outcome",
		}, []string{"kind", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workcfg",
			Subsystem: "reconcile",
			Name:      "duration_seconds",
			Help:      "Wall time of a reconciliation including commit",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		// Labels: entity (work_item, snapshot, map, work_item_type, workflow)
		removed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workcfg",
			Subsystem: "reconcile",
			Name:      "rows_removed_total",
			Help:      "Rows purged or archived by committed reconciliations",
		}, []string{"entity"}),
	}
}

func (m *Metrics) observe(kind, status string, elapsed time.Duration, r *Removal) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(kind, status).Inc()
	m.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if r == nil || status != StatusApplied {
		return
	}
	m.removed.WithLabelValues("work_item").Add(float64(r.WorkItemsPurged))
	m.removed.WithLabelValues("snapshot").Add(float64(r.SnapshotsPurged))
	m.removed.WithLabelValues("map").Add(float64(r.MapsArchived))
	m.removed.WithLabelValues("work_item_type").Add(float64(r.TypesRemoved))
	m.removed.WithLabelValues("workflow").Add(float64(r.WorkflowsArchived))
}
