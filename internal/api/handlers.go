package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vanco-dosing-server/internal/cache"
	"github.com/vanco-dosing-server/internal/domain"
	"github.com/vanco-dosing-server/internal/service"
)

// handleHealth reports server and dependency health.
func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	deps := gin.H{}

	if s.dbHealth != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.dbHealth.Health(ctx); err != nil {
			deps["database"] = "unhealthy"
			status = http.StatusServiceUnavailable
		} else {
			deps["database"] = "healthy"
		}
	}

	body := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}

	c.JSON(status, body)
}

// handleDose runs a full dose calculation.
func (s *Server) handleDose(c *gin.Context) {
	requestID := c.GetString("request_id")

	var input domain.PatientInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, domain.NewEngineError(
			domain.ErrInvalidInput, "malformed request body", err.Error(), requestID))
		return
	}

	assessment, err := s.calculateDose(c, &input, requestID)
	if err != nil {
		s.writeCalculationError(c, err, requestID)
		return
	}

	c.JSON(http.StatusOK, assessment)
}

// calculateDose consults the result cache before running the pipeline.
// Results only depend on the input, so a hit is always valid.
func (s *Server) calculateDose(c *gin.Context, input *domain.PatientInput, requestID string) (*service.DoseAssessment, error) {
	ctx := c.Request.Context()

	if s.results == nil {
		return s.dosing.CalculateDose(ctx, input, requestID)
	}

	key, keyErr := cache.Key(input)
	if keyErr == nil {
		var cached service.DoseAssessment
		if s.results.Get(ctx, key, &cached) {
			c.Header("X-Cache", "HIT")
			return &cached, nil
		}
	}

	assessment, err := s.dosing.CalculateDose(ctx, input, requestID)
	if err == nil && keyErr == nil {
		s.results.Set(ctx, key, assessment)
	}
	return assessment, err
}

// handleFit returns individualized PK parameters without a regimen.
func (s *Server) handleFit(c *gin.Context) {
	requestID := c.GetString("request_id")

	var input domain.PatientInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, domain.NewEngineError(
			domain.ErrInvalidInput, "malformed request body", err.Error(), requestID))
		return
	}

	fit, err := s.dosing.FitParameters(c.Request.Context(), &input)
	if err != nil {
		s.writeCalculationError(c, err, requestID)
		return
	}

	c.JSON(http.StatusOK, fit)
}

// handleListCalculations returns recent audit records, newest first.
func (s *Server) handleListCalculations(c *gin.Context) {
	requestID := c.GetString("request_id")

	if s.store == nil {
		c.JSON(http.StatusNotFound, domain.NewEngineError(
			domain.ErrStorage, "audit trail is disabled", "", requestID))
		return
	}

	limit := parseIntQuery(c, "limit", 50)
	offset := parseIntQuery(c, "offset", 0)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.store.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, domain.NewEngineError(
			domain.ErrStorage, "failed to list calculations", err.Error(), requestID))
		return
	}

	count, err := s.store.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, domain.NewEngineError(
			domain.ErrStorage, "failed to count calculations", err.Error(), requestID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"calculations": records,
		"total":        count,
		"limit":        limit,
		"offset":       offset,
	})
}

// handleGetCalculation returns a single audit record by ID.
func (s *Server) handleGetCalculation(c *gin.Context) {
	requestID := c.GetString("request_id")

	if s.store == nil {
		c.JSON(http.StatusNotFound, domain.NewEngineError(
			domain.ErrStorage, "audit trail is disabled", "", requestID))
		return
	}

	record, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, domain.NewEngineError(
			domain.ErrStorage, "calculation not found", "", requestID))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, domain.NewEngineError(
			domain.ErrStorage, "failed to get calculation", err.Error(), requestID))
		return
	}

	c.JSON(http.StatusOK, record)
}

// jsonExporter is implemented by stores that can dump the audit trail.
type jsonExporter interface {
	ExportJSON(ctx context.Context, writer io.Writer) error
}

// handleExportCalculations streams the full audit trail as JSON.
func (s *Server) handleExportCalculations(c *gin.Context) {
	requestID := c.GetString("request_id")

	exporter, ok := s.store.(jsonExporter)
	if s.store == nil || !ok {
		c.JSON(http.StatusNotFound, domain.NewEngineError(
			domain.ErrStorage, "audit export is not available", "", requestID))
		return
	}

	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", "attachment; filename=calculations.json")
	if err := exporter.ExportJSON(c.Request.Context(), c.Writer); err != nil {
		s.logger.WithError(err).WithField("request_id", requestID).Error("Audit export failed")
	}
}

// writeCalculationError maps pipeline errors to HTTP responses.
func (s *Server) writeCalculationError(c *gin.Context, err error, requestID string) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusRequestTimeout, domain.NewEngineError(
			domain.ErrOptimization, "calculation cancelled", err.Error(), requestID))
	case isValidationError(err):
		c.JSON(http.StatusBadRequest, domain.NewEngineError(
			domain.ErrValidation, "invalid patient input", err.Error(), requestID))
	default:
		s.logger.WithError(err).WithField("request_id", requestID).Error("Dose calculation failed")
		c.JSON(http.StatusInternalServerError, domain.NewEngineError(
			domain.ErrInternalServer, "dose calculation failed", err.Error(), requestID))
	}
}

// isValidationError reports whether the error stems from bad patient input.
func isValidationError(err error) bool {
	var fieldErr *domain.ValidationError
	if errors.As(err, &fieldErr) {
		return true
	}
	for _, sentinel := range []error{
		domain.ErrInvalidGender,
		domain.ErrInvalidPopulation,
		domain.ErrInvalidIndication,
		domain.ErrInvalidSeverity,
		domain.ErrInvalidCrClMethod,
		domain.ErrMissingCustomCrCl,
		domain.ErrMissingDoseHistory,
		domain.ErrMissingHeight,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	// Validate wraps plain-message errors under the same prefix.
	return containsValidationPrefix(err)
}

func containsValidationPrefix(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{
		"patient input validation:",
		"observation validation:",
		"dose event validation:",
	} {
		if strings.Contains(msg, prefix) {
			return true
		}
	}
	return false
}

// parseIntQuery reads an integer query parameter with a default.
func parseIntQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
