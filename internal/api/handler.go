package api

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"returns-service/internal/extractor"
	"returns-service/internal/report"
	"returns-service/internal/service"
	"returns-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	ingestion *service.IngestionService
	reports   *service.ReportService
	extractor service.Extractor
	store     Pinger
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	ingestion *service.IngestionService,
	reports *service.ReportService,
	ex service.Extractor,
	store Pinger,
) *Handler {
	return &Handler{
		ingestion: ingestion,
		reports:   reports,
		extractor: ex,
		store:     store,
		logger:    util.GetLogger(),
	}
}

// ExtractRequest carries free text for the extraction path
type ExtractRequest struct {
	Text string `json:"text"`
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/returns", h.submitReturn)
		v1.POST("/returns/extract", h.extractReturn)
		v1.GET("/returns", h.listReturns)
		v1.POST("/reports", h.generateReport)
		v1.GET("/reports/latest", h.downloadReport)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once the store answers
func (h *Handler) readinessCheck(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// submitReturn handles structured return submissions
func (h *Handler) submitReturn(c *gin.Context) {
	var req service.SubmitReturnRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	result, err := h.ingestion.Submit(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// extractReturn handles free-text submissions
func (h *Handler) extractReturn(c *gin.Context) {
	var req ExtractRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.ingestion.SubmitFromExtraction(c.Request.Context(), req.Text, h.extractor)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// listReturns returns every stored record
func (h *Handler) listReturns(c *gin.Context) {
	records, err := h.ingestion.ListReturns(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(records),
		"records": records,
	})
}

// generateReport writes a fresh report file
func (h *Handler) generateReport(c *gin.Context) {
	result, err := h.reports.Generate(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// downloadReport serves the last generated report
func (h *Handler) downloadReport(c *gin.Context) {
	path, err := h.reports.LatestPath()
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.FileAttachment(path, filepath.Base(path))
}

// writeError maps service errors to HTTP responses
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		validationErr *service.ValidationError
		extractErr    *extractor.Error
		submissionErr *service.SubmissionError
		recordedErr   *service.RecordedError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "Validation failed",
			"violations": validationErr.Violations,
		})

	case errors.Is(err, service.ErrSubmissionInProgress):
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
		})

	case errors.As(err, &extractErr):
		status := http.StatusUnprocessableEntity
		switch extractErr.Kind {
		case extractor.KindMissingCredential:
			status = http.StatusServiceUnavailable
		case extractor.KindTransport:
			status = http.StatusBadGateway
		}
		body := gin.H{
			"error":   "Extraction failed",
			"kind":    extractErr.Kind,
			"details": extractErr.Error(),
		}
		if extractErr.StatusCode != 0 {
			body["upstream_status"] = extractErr.StatusCode
		}
		c.JSON(status, body)

	case errors.Is(err, report.ErrEmptyDataset), errors.Is(err, service.ErrNoReport):
		c.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})

	case errors.As(err, &recordedErr):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":    "Return recorded but records could not be read",
			"order_id": recordedErr.OrderID,
			"details":  recordedErr.Err.Error(),
		})

	case errors.As(err, &submissionErr):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to submit return",
			"details": submissionErr.Err.Error(),
		})

	default:
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal error",
			"details": err.Error(),
		})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// requestLogger logs one line per request
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
