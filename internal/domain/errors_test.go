package domain

import (
	"testing"
	"time"
)

func TestEngineError(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		message   string
		details   string
		requestID string
	}{
		{
			name:      "Validation error",
			code:      ErrValidation,
			message:   "invalid patient input",
			details:   "weight must be positive",
			requestID: "req-123",
		},
		{
			name:      "Storage error",
			code:      ErrStorage,
			message:   "failed to persist calculation",
			details:   "disk full",
			requestID: "req-456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewEngineError(tt.code, tt.message, tt.details, tt.requestID)

			if err.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, err.Code)
			}
			if err.Message != tt.message {
				t.Errorf("Expected message %s, got %s", tt.message, err.Message)
			}
			if err.Details != tt.details {
				t.Errorf("Expected details %s, got %s", tt.details, err.Details)
			}
			if err.RequestID != tt.requestID {
				t.Errorf("Expected request ID %s, got %s", tt.requestID, err.RequestID)
			}
			if time.Since(err.Timestamp) > time.Minute {
				t.Error("Expected a recent timestamp")
			}

			expected := tt.code + ": " + tt.message
			if err.Error() != expected {
				t.Errorf("Expected error string %q, got %q", expected, err.Error())
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("weight_kg", "must be positive", -5.0)

	if err.Field != "weight_kg" {
		t.Errorf("Expected field weight_kg, got %s", err.Field)
	}
	if err.Message != "must be positive" {
		t.Errorf("Expected message 'must be positive', got %s", err.Message)
	}
	if err.Value != -5.0 {
		t.Errorf("Expected value -5.0, got %v", err.Value)
	}

	expected := "validation error for field 'weight_kg': must be positive"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
}
