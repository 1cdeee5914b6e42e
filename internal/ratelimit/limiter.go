// Package ratelimit adapts the admission controller to HTTP. It defines the
// Admitter contract shared by the plain controller and its instrumented
// decorator, maps admission outcomes to HTTP status codes, and provides
// middleware that throttles requests by client IP.
package ratelimit

import (
	"context"
	"net/http"

	"throttle/internal/admission"
)

// Admitter decides whether a call may proceed. Implementations must be safe
// for concurrent use.
type Admitter interface {
	// Admit records a call from identifier. A nil error means allowed.
	Admit(ctx context.Context, identifier string) (admission.Decision, error)

	// AdmitValue is Admit for an identifier of unknown type.
	AdmitValue(ctx context.Context, v any) (admission.Decision, error)
}

// Direct adapts a Controller to the Admitter interface.
func Direct(c *admission.Controller) Admitter {
	return direct{c: c}
}

type direct struct {
	c *admission.Controller
}

func (d direct) Admit(_ context.Context, identifier string) (admission.Decision, error) {
	return d.c.Admit(identifier)
}

func (d direct) AdmitValue(_ context.Context, v any) (admission.Decision, error) {
	return d.c.AdmitValue(v)
}

// StatusFor maps an admission reason to the HTTP status reported to callers.
func StatusFor(reason admission.Reason) int {
	switch reason {
	case admission.ReasonAllowed:
		return http.StatusOK
	case admission.ReasonInvalidInput:
		return http.StatusBadRequest
	case admission.ReasonCapacityExceeded:
		return http.StatusServiceUnavailable
	case admission.ReasonRateLimitExceeded, admission.ReasonStillBlocked:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
