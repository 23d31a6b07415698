package api

import (
	"net/http"
	"strconv"

	"github.com/clickbait-pipeline/internal/models"
	"github.com/clickbait-pipeline/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ReconcileHandler handles reconciliation endpoints
type ReconcileHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewReconcileHandler creates a new ReconcileHandler
func NewReconcileHandler(services *service.Services, log zerolog.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		services: services,
		log:      log.With().Str("handler", "reconcile").Logger(),
	}
}

type reconciliationRunRequest struct {
	Mode string `json:"mode"`
}

// RunReconciliation handles POST /v1/reconciliation/runs
func (h *ReconcileHandler) RunReconciliation(c *gin.Context) {
	var req reconciliationRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	mode := models.ReconcileMode(req.Mode)
	if req.Mode == "" {
		mode = models.ReconcileIncrementalFix
	}
	if mode != models.ReconcileFullRebuild && mode != models.ReconcileIncrementalFix {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be full or incremental"})
		return
	}

	report, err := h.services.Reconcile.Reconcile(c.Request.Context(), mode)
	if err != nil {
		h.log.Error().Err(err).Msg("Reconciliation run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation run failed"})
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetHighScores handles GET /v1/stats/high-scores
func (h *ReconcileHandler) GetHighScores(c *gin.Context) {
	threshold, ok := queryInt(c, "threshold")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must be a non-negative integer"})
		return
	}
	days, ok := queryInt(c, "days")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a non-negative integer"})
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}

	report, err := h.services.Reconcile.HighScoreReport(c.Request.Context(), threshold, days, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build high-score report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build high-score report"})
		return
	}

	c.JSON(http.StatusOK, report)
}

// queryInt parses an optional non-negative integer query parameter;
// absence yields zero, which callers treat as "use the default"
func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}

// GetStatsSummary handles GET /v1/stats/summary
func (h *ReconcileHandler) GetStatsSummary(c *gin.Context) {
	summary, err := h.services.Reconcile.StatsSummary(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build stats summary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build stats summary"})
		return
	}

	c.JSON(http.StatusOK, summary)
}
