package http

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"go.ngs.io/ncgrain/internal/domain"
	"go.ngs.io/ncgrain/internal/usecase"
)

// Handler handles HTTP requests for resampling and schema inspection.
type Handler struct {
	resampleUC *usecase.ResampleUseCase
	schemaUC   *usecase.SchemaUseCase
	dataDir    string
	log        logrus.FieldLogger
}

// NewHandler creates a new HTTP handler. Every path in a request is resolved
// relative to dataDir.
func NewHandler(resampleUC *usecase.ResampleUseCase, schemaUC *usecase.SchemaUseCase, dataDir string, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		resampleUC: resampleUC,
		schemaUC:   schemaUC,
		dataDir:    dataDir,
		log:        log,
	}
}

// ResampleBody is the JSON body of POST /v1/resample.
type ResampleBody struct {
	Source             string  `json:"source" binding:"required"`
	Destination        string  `json:"destination" binding:"required"`
	GranularityMinutes int     `json:"granularity_minutes" binding:"required"`
	Boundary           string  `json:"boundary"`
	Payload            string  `json:"payload"`
	SampleSpan         float64 `json:"sample_span"`
	Overwrite          bool    `json:"overwrite"`
}

// PostResample handles POST /v1/resample.
func (h *Handler) PostResample(c *gin.Context) {
	var body ResampleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	source, err := h.resolve(body.Source)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	destination, err := h.resolve(body.Destination)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.resampleUC.Execute(c.Request.Context(), usecase.ResampleRequest{
		Source:             source,
		Destination:        destination,
		GranularityMinutes: body.GranularityMinutes,
		Boundary:           body.Boundary,
		Payload:            body.Payload,
		SampleSpan:         body.SampleSpan,
		Overwrite:          body.Overwrite,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	// Report paths the way the client sent them.
	result.Source = body.Source
	result.Destination = body.Destination
	c.JSON(http.StatusOK, result)
}

// GetSchema handles GET /v1/schema.
func (h *Handler) GetSchema(c *gin.Context) {
	rel := c.Query("path")
	if rel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path parameter is required"})
		return
	}
	path, err := h.resolve(rel)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.schemaUC.Inspect(path, c.Query("payload"))
	if err != nil {
		h.fail(c, err)
		return
	}
	report.Path = rel
	c.JSON(http.StatusOK, report)
}

// GetGranularities handles GET /v1/granularities.
func (h *Handler) GetGranularities(c *gin.Context) {
	schedules := domain.ValidGranularities()
	c.JSON(http.StatusOK, gin.H{
		"reference_period_minutes": domain.ReferencePeriodMinutes,
		"granularities":            schedules,
		"count":                    len(schedules),
	})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// resolve maps a client path onto the data directory. Absolute paths and
// paths escaping the directory are rejected.
func (h *Handler) resolve(rel string) (string, error) {
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("path %q must be relative to the data directory", rel)
	}
	return filepath.Join(h.dataDir, rel), nil
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrConfig), errors.Is(err, domain.ErrSchema):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
