package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the OCR worker engine
 *
 * Every failure surfaced by the engine carries a structured code so callers
 * can tell user-cancelled jobs apart from genuine failures.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Engine errors
	ErrorInitializationFailed ErrorCode = "INITIALIZATION_FAILED"
	ErrorAborted              ErrorCode = "ABORTED"
	ErrorRecognitionFailed    ErrorCode = "RECOGNITION_FAILED"
	ErrorPreprocessingFailed  ErrorCode = "PREPROCESSING_FAILED"
	ErrorProcessingTimeout    ErrorCode = "PROCESSING_TIMEOUT"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// EngineError represents a structured engine error
type EngineError struct {
	Code      ErrorCode
	Message   string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewInitializationError(message string, cause error) *EngineError {
	return &EngineError{
		Code:      ErrorInitializationFailed,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewAbortError() *EngineError {
	return &EngineError{
		Code:      ErrorAborted,
		Message:   "processing aborted by caller",
		Timestamp: time.Now(),
	}
}

func NewRecognitionError(message string, cause error) *EngineError {
	return &EngineError{
		Code:      ErrorRecognitionFailed,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewPreprocessingError(message string, cause error) *EngineError {
	return &EngineError{
		Code:      ErrorPreprocessingFailed,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewProcessingTimeoutError(duration time.Duration, cause error) *EngineError {
	return &EngineError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("processing timed out after %v", duration),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *EngineError {
	return &EngineError{
		Code:      ErrorStorageFailed,
		Message:   "failed to store processing results",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"job_id": jobID,
		},
		Cause: cause,
	}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var engineErr *EngineError
	if stderrors.As(err, &engineErr) {
		return engineErr.Code == code
	}
	return false
}

// IsAbort reports whether err represents cooperative cancellation.
func IsAbort(err error) bool {
	return HasCode(err, ErrorAborted)
}

// ToMap converts error to map for database storage
func (e *EngineError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
