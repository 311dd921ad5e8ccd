package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Error taxonomy for the donor intake pipeline
 *
 * OCR and rasterization failures are fatal for the request that raised them.
 * Unsupported file types never reach this package: they are a normal
 * "not checked" outcome of the pipeline.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Pipeline errors
	ErrorOCRFailed           ErrorCode = "OCR_FAILED"
	ErrorRasterizationFailed ErrorCode = "RASTERIZATION_FAILED"

	// Upload errors
	ErrorUploadRejected ErrorCode = "UPLOAD_REJECTED"
	ErrorUploadTooLarge ErrorCode = "UPLOAD_TOO_LARGE"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// Pipeline stages reported back to HTTP callers
const (
	StageOCR           = "ocr"
	StageRasterization = "rasterization"
	StageUpload        = "upload"
	StageStorage       = "storage"
)

// IntakeError represents a structured intake error
type IntakeError struct {
	Code      ErrorCode
	Stage     string
	Message   string
	FileName  string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *IntakeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *IntakeError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches an extra diagnostic field and returns the same error
func (e *IntakeError) WithDetail(key string, value interface{}) *IntakeError {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// Diagnostic returns the underlying engine message, or the error message when
// there is no cause.
func (e *IntakeError) Diagnostic() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Message
}

// Factory functions for common errors

func NewExtractionError(fileName string, cause error) *IntakeError {
	return &IntakeError{
		Code:      ErrorOCRFailed,
		Stage:     StageOCR,
		Message:   "OCR failed",
		FileName:  fileName,
		Timestamp: time.Now(),
		Details:   map[string]interface{}{},
		Cause:     cause,
	}
}

func NewRasterizationError(fileName string, cause error) *IntakeError {
	return &IntakeError{
		Code:      ErrorRasterizationFailed,
		Stage:     StageRasterization,
		Message:   "PDF rasterization failed",
		FileName:  fileName,
		Timestamp: time.Now(),
		Details:   map[string]interface{}{},
		Cause:     cause,
	}
}

// NewTimeoutError reports a stage that exceeded its deadline. The code stays
// the stage's own failure code so callers handle timeouts like any other
// engine failure.
func NewTimeoutError(stage string, fileName string, timeout time.Duration, cause error) *IntakeError {
	var e *IntakeError
	if stage == StageRasterization {
		e = NewRasterizationError(fileName, cause)
		e.Message = fmt.Sprintf("PDF rasterization timed out after %v", timeout)
	} else {
		e = NewExtractionError(fileName, cause)
		e.Message = fmt.Sprintf("OCR timed out after %v", timeout)
	}
	return e.WithDetail("timeout_duration", timeout.String())
}

func NewUploadRejectedError(fileName string, reason string) *IntakeError {
	return &IntakeError{
		Code:      ErrorUploadRejected,
		Stage:     StageUpload,
		Message:   reason,
		FileName:  fileName,
		Timestamp: time.Now(),
	}
}

func NewUploadTooLargeError(fileName string, limit int64) *IntakeError {
	return &IntakeError{
		Code:      ErrorUploadTooLarge,
		Stage:     StageUpload,
		Message:   fmt.Sprintf("File exceeds the %d byte upload limit", limit),
		FileName:  fileName,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"max_bytes": limit,
		},
	}
}

func NewStorageFailedError(operation string, cause error) *IntakeError {
	return &IntakeError{
		Code:      ErrorStorageFailed,
		Stage:     StageStorage,
		Message:   fmt.Sprintf("Failed to %s", operation),
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// AsIntakeError unwraps err looking for an *IntakeError
func AsIntakeError(err error) (*IntakeError, bool) {
	var ie *IntakeError
	if stderrors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// IsFatalPipelineError reports whether err aborts a donor registration
func IsFatalPipelineError(err error) bool {
	ie, ok := AsIntakeError(err)
	if !ok {
		return false
	}
	return ie.Code == ErrorOCRFailed || ie.Code == ErrorRasterizationFailed
}

// ToMap converts error to map for JSON responses
func (e *IntakeError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"stage":      e.Stage,
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.FileName != "" {
		result["file"] = e.FileName
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["details"] = e.Cause.Error()
	}

	return result
}
