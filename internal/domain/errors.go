package domain

import (
	"errors"
	"fmt"
	"time"
)

// Validation sentinels for dosing data integrity.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidGender      = errors.New("invalid gender")
	ErrInvalidPopulation  = errors.New("invalid population type")
	ErrInvalidIndication  = errors.New("invalid indication")
	ErrInvalidSeverity    = errors.New("invalid infection severity")
	ErrInvalidCrClMethod  = errors.New("invalid creatinine clearance method")
	ErrMissingCustomCrCl  = errors.New("custom creatinine clearance method requires a supplied value")
	ErrMissingDoseHistory = errors.New("concentration observations require a dose history")
	ErrMissingHeight      = errors.New("height is required for this body-weight path")
	ErrInvalidInterval    = errors.New("confidence interval bounds must be ordered")
)

// Error codes for different failure scenarios.
const (
	ErrInvalidInput   = "INVALID_INPUT"
	ErrEstimation     = "ESTIMATION_ERROR"
	ErrOptimization   = "OPTIMIZATION_ERROR"
	ErrStorage        = "STORAGE_ERROR"
	ErrRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrInternalServer = "INTERNAL_SERVER_ERROR"
	ErrValidation     = "VALIDATION_ERROR"
)

// EngineError is the standardized error envelope surfaced at the API boundary.
type EngineError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewEngineError creates a new EngineError with timestamp.
func NewEngineError(code, message, details, requestID string) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError represents input validation errors.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
