package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tallyflow/workcfg/internal/desired"
	"github.com/tallyflow/workcfg/internal/reconcile"
	"gorm.io/gorm"
)

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/healthz", handleHealth(opts.DB))
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	ds := router.Group("/tenants/:tenant/datasources/:datasource")
	ds.PUT("/configuration", handleReconcile(opts.Reconciler))
	ds.DELETE("/projects/:project", handleRemoveProject(opts.Reconciler))
	ds.GET("/runs", handleRuns(opts.DB))
}

func handleHealth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleReconcile(r *reconcile.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cfg, err := desired.Parse(body)
		if err != nil {
			writeError(c, err)
			return
		}
		out, err := r.Reconcile(c.Request.Context(), c.Param("tenant"), c.Param("datasource"), cfg)
		writeOutcome(c, out, err)
	}
}

func handleRemoveProject(r *reconcile.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := r.RemoveProject(c.Request.Context(), c.Param("tenant"), c.Param("datasource"), c.Param("project"))
		writeOutcome(c, out, err)
	}
}

func handleRuns(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		runs, err := reconcile.Runs(c.Request.Context(), db, c.Param("tenant"), c.Param("datasource"), limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}

func writeOutcome(c *gin.Context, out *reconcile.Outcome, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	if out.Conflict != nil {
		c.JSON(http.StatusConflict, out.Conflict)
		return
	}
	c.JSON(http.StatusOK, out)
}

func writeError(c *gin.Context, err error) {
	var verr *desired.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid configuration", "problems": verr.Problems})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
