// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent formatting.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Optional fields use omitempty to reduce response size
// - Machine-readable error codes that map one-to-one to admission outcomes
// - RFC3339 timestamps for international compatibility
package models

import (
	"time"

	"throttle/internal/admission"
)

// AdmitResponse reports an admission decision.
type AdmitResponse struct {
	Identifier   string     `json:"identifier"`
	Allowed      bool       `json:"allowed"`
	Reason       string     `json:"reason"`
	RequestCount int        `json:"request_count"`
	Limit        int        `json:"limit"`
	Remaining    int        `json:"remaining"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
	RetryAfter   int        `json:"retry_after_seconds,omitempty"` // whole seconds, rounded up
}

// NewAdmitResponse builds the response body for a decision.
func NewAdmitResponse(d admission.Decision) *AdmitResponse {
	resp := &AdmitResponse{
		Identifier:   d.Identifier,
		Allowed:      d.Allowed,
		Reason:       string(d.Reason),
		RequestCount: d.Record.RequestCount,
		Limit:        d.Limit,
		Remaining:    d.Remaining,
	}
	if d.Record.Blocked {
		until := d.Record.BlockedUntil
		resp.BlockedUntil = &until
		resp.RetryAfter = RetryAfterSeconds(d.RetryAfter)
	}
	return resp
}

// RetryAfterSeconds rounds a wait up to whole seconds for Retry-After.
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

// RecordResponse exposes one identifier's admission record.
type RecordResponse struct {
	Identifier   string     `json:"identifier"`
	RequestCount int        `json:"request_count"`
	Blocked      bool       `json:"blocked"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
	LastRequest  time.Time  `json:"last_request"`
}

func NewRecordResponse(r admission.Record) *RecordResponse {
	resp := &RecordResponse{
		Identifier:   r.Identifier,
		RequestCount: r.RequestCount,
		Blocked:      r.Blocked,
		LastRequest:  r.LastRequest,
	}
	if !r.BlockedUntil.IsZero() {
		until := r.BlockedUntil
		resp.BlockedUntil = &until
	}
	return resp
}

type StatsResponse struct {
	Tracked   int       `json:"tracked"`
	Blocked   int       `json:"blocked"`
	Capacity  int       `json:"capacity"`
	Limit     int       `json:"limit"`
	Timestamp time.Time `json:"timestamp"`
}

// ProtectedResponse is returned by routes behind the admission guard.
type ProtectedResponse struct {
	Message   string    `json:"message"`
	Resource  string    `json:"resource"`
	ClientIP  string    `json:"client_ip"`
	Remaining int       `json:"remaining"`
	Timestamp time.Time `json:"timestamp"`
}

type ResetResponse struct {
	Identifier string `json:"identifier"`
	Message    string `json:"message"`
}

// ErrorResponse provides structured error information with debugging context.
//
// Error Handling Design:
// - Consistent error structure across all endpoints
// - Machine-readable error codes for programmatic handling
// - Human-readable messages for user interfaces
// - Details map carrying identifier and retry information
// - Request ID for correlating with server logs
type ErrorResponse struct {
	Error     string            `json:"error"`                // Error type (always "error")
	Message   string            `json:"message"`              // Human-readable error description
	Code      string            `json:"code,omitempty"`       // Machine-readable error code
	Details   map[string]string `json:"details,omitempty"`    // Identifier, retry hints
	Timestamp time.Time         `json:"timestamp"`            // Error occurrence time
	RequestID string            `json:"request_id,omitempty"` // Unique request identifier
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Metrics    map[string]interface{}     `json:"metrics,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Table full, new identifiers are being rejected
)

// Standard HTTP Error Codes
//
// Error Code Strategy:
// - Upper-case with underscores for consistency
// - One code per admission denial reason
const (
	ErrorCodeNotFound          = "NOT_FOUND"           // 404: Identifier is not tracked
	ErrorCodeBadRequest        = "BAD_REQUEST"         // 400: Malformed request body
	ErrorCodeInvalidInput      = "INVALID_INPUT"       // 400: Identifier is not a non-empty string or is too long
	ErrorCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED" // 429: Identifier just tripped its limit
	ErrorCodeStillBlocked      = "STILL_BLOCKED"       // 429: Identifier is inside its cooldown
	ErrorCodeCapacityExceeded  = "CAPACITY_EXCEEDED"   // 503: Admission table is full
	ErrorCodeInternalError     = "INTERNAL_ERROR"      // 500: Server-side error
	ErrorCodeUnauthorized      = "UNAUTHORIZED"        // 401: Admin token required
	ErrorCodeInvalidRequest    = "INVALID_REQUEST"     // 405: Method not allowed
	ErrorCodeRequestTooLarge   = "REQUEST_TOO_LARGE"   // 413: Request body over the size limit
)

// ErrorCodeFor maps an admission denial reason to its error code.
func ErrorCodeFor(reason admission.Reason) string {
	switch reason {
	case admission.ReasonInvalidInput:
		return ErrorCodeInvalidInput
	case admission.ReasonCapacityExceeded:
		return ErrorCodeCapacityExceeded
	case admission.ReasonRateLimitExceeded:
		return ErrorCodeRateLimitExceeded
	case admission.ReasonStillBlocked:
		return ErrorCodeStillBlocked
	default:
		return ErrorCodeInternalError
	}
}

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// WithDetail adds a detail entry and returns the response for chaining.
func (e *ErrorResponse) WithDetail(key, value string) *ErrorResponse {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
		Metrics:    make(map[string]interface{}),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}
