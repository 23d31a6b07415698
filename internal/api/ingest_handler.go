package api

import (
	"net/http"
	"time"

	"github.com/clickbait-pipeline/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// IngestHandler handles ingestion endpoints
type IngestHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewIngestHandler creates a new IngestHandler
func NewIngestHandler(services *service.Services, log zerolog.Logger) *IngestHandler {
	return &IngestHandler{
		services: services,
		log:      log.With().Str("handler", "ingest").Logger(),
	}
}

type ingestionRunRequest struct {
	Date          string   `json:"date"`
	Keywords      []string `json:"keywords"`
	MaxPerKeyword int      `json:"max_per_keyword"`
	DryRun        bool     `json:"dry_run"`
}

// RunIngestion handles POST /v1/ingestion/runs
func (h *IngestHandler) RunIngestion(c *gin.Context) {
	var req ingestionRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	runReq := service.IngestionRunRequest{
		Keywords:      req.Keywords,
		MaxPerKeyword: req.MaxPerKeyword,
		DryRun:        req.DryRun,
	}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		runReq.Date = date
	}

	report, err := h.services.Ingest.RunIngestion(c.Request.Context(), runReq)
	if err != nil {
		h.log.Error().Err(err).Msg("Ingestion run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingestion run failed"})
		return
	}

	c.JSON(http.StatusOK, report)
}
