package api

import (
	"errors"
	"net/http"

	"github.com/clickbait-pipeline/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// BatchHandler handles batch lifecycle endpoints
type BatchHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewBatchHandler creates a new BatchHandler
func NewBatchHandler(services *service.Services, log zerolog.Logger) *BatchHandler {
	return &BatchHandler{
		services: services,
		log:      log.With().Str("handler", "batch").Logger(),
	}
}

// RunCycle handles POST /v1/batch-cycle/runs
func (h *BatchHandler) RunCycle(c *gin.Context) {
	report, err := h.services.Batch.RunCycle(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Batch cycle failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "batch cycle failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetBatch handles GET /v1/batches/:job_id
func (h *BatchHandler) GetBatch(c *gin.Context) {
	jobID := c.Param("job_id")

	status, err := h.services.Batch.GetJobStatus(c.Request.Context(), jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to load batch job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load batch job"})
		return
	}
	if status == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch job not found"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// CancelBatch handles POST /v1/batches/:job_id/cancel
func (h *BatchHandler) CancelBatch(c *gin.Context) {
	jobID := c.Param("job_id")

	err := h.services.Batch.Cancel(c.Request.Context(), jobID)
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "batch job not found"})
	case errors.Is(err, service.ErrJobTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": "batch job already terminal"})
	case err != nil:
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to cancel batch job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel batch job"})
	default:
		c.JSON(http.StatusOK, gin.H{"job_id": jobID, "state": "failed"})
	}
}

type requeueRequest struct {
	ArticleIDs []string `json:"article_ids"`
}

// RequeueArticles handles POST /v1/articles/requeue
func (h *BatchHandler) RequeueArticles(c *gin.Context) {
	var req requeueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.ArticleIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "article_ids is required"})
		return
	}

	requeued, err := h.services.Batch.RequeueFailed(c.Request.Context(), req.ArticleIDs)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to requeue articles")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to requeue articles"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"requeued": requeued})
}
