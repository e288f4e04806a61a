package model

import (
	"fmt"
	"time"
)

// Response is the standard JSON envelope for all API responses.
type Response struct {
	Status    string    `json:"status"` // "ok" or "error"
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
}

// Error codes returned in APIError.Code.
const (
	ErrValidation = "validation_error"
	ErrNotFound   = "not_found"
	ErrConflict   = "conflict"
	ErrInternal   = "internal_error"
)

// APIError carries a machine-readable error code and a human message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates an APIError.
func NewAPIError(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

// SchedulerStatus is a point-in-time snapshot of the scheduler core.
type SchedulerStatus struct {
	Closing     bool   `json:"closing"`
	Lockout     bool   `json:"lockout"`
	HeldJobID   string `json:"held_job_id,omitempty"`
	Agents      int    `json:"agents"`
	ActiveJobs  int    `json:"active_jobs"`
	PendingJobs int    `json:"pending_jobs"`
	Hosts       int    `json:"hosts"`
	Uptime      string `json:"uptime"`
}
