package ratelimit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"throttle/internal/admission"
	"throttle/internal/logger"
	"throttle/internal/models"
)

// Middleware returns HTTP middleware that admits each request under the
// client's IP. Denied requests get a JSON error body with a status from
// StatusFor; blocked clients also get Retry-After. Proxy headers are only
// consulted when trustProxy is set.
func Middleware(admitter Admitter, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r, trustProxy)

			decision, err := admitter.Admit(r.Context(), key)
			SetHeaders(w, decision)

			if err != nil {
				reason := admission.ReasonOf(err)
				if reason == "" {
					slog.Error("Admission check failed", "key", key, "error", err)
				}

				errorResp := models.NewErrorResponse(err.Error(), models.ErrorCodeFor(reason)).
					WithDetail("identifier", key)
				errorResp.RequestID = w.Header().Get("X-Request-ID")
				if decision.Record.Blocked {
					errorResp.WithDetail("retry_after", w.Header().Get("Retry-After"))
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(StatusFor(reason))
				json.NewEncoder(w).Encode(errorResp)

				slog.Warn("Request throttled", logger.DecisionAttrs(decision)...)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetHeaders writes the X-RateLimit-* headers for a decision, plus
// Retry-After when the identifier is blocked.
func SetHeaders(w http.ResponseWriter, d admission.Decision) {
	if d.Limit == 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", d.Limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", d.Remaining))
	if d.Record.Blocked {
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", d.Record.BlockedUntil.Unix()))
		w.Header().Set("Retry-After", fmt.Sprintf("%d", models.RetryAfterSeconds(d.RetryAfter)))
	}
}

// ClientIP extracts the client IP from the request. With trustProxy set it
// prefers the first X-Forwarded-For entry, then X-Real-IP. The port is
// stripped from RemoteAddr so that every connection from one host shares a key.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
