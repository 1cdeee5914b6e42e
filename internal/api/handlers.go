package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"throttle/internal/admission"
	"throttle/internal/logger"
	"throttle/internal/models"
	"throttle/internal/ratelimit"
	"throttle/internal/version"
)

// maxAdmitBodyBytes caps the admit request body. Identifiers are short, so
// anything larger is rejected before decoding.
const maxAdmitBodyBytes = 4 << 10

// Table is the read and admin side of the admission table.
type Table interface {
	Lookup(identifier string) (admission.Record, bool)
	Reset(identifier string) bool
	Stats() admission.Stats
}

// Handlers contains HTTP handlers for the throttle API
type Handlers struct {
	admitter   ratelimit.Admitter
	table      Table
	trustProxy bool
	version    version.Info
	started    time.Time
}

// HandlerOption configures optional Handlers dependencies.
type HandlerOption func(*Handlers)

// WithTrustProxy makes the admit handler derive the default identifier from
// X-Forwarded-For and X-Real-IP.
func WithTrustProxy(trust bool) HandlerOption {
	return func(h *Handlers) {
		h.trustProxy = trust
	}
}

// WithVersion sets the build info reported by the health endpoint.
func WithVersion(info version.Info) HandlerOption {
	return func(h *Handlers) {
		h.version = info
	}
}

// NewHandlers creates a new handlers instance
func NewHandlers(admitter ratelimit.Admitter, table Table, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		admitter: admitter,
		table:    table,
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Admit handles admission requests
// POST /api/v1/admit
// The body is {"identifier": <value>}. A missing body or field admits the
// caller's IP address instead.
func (h *Handlers) Admit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAdmitBodyBytes)

	var req models.AdmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeErrorResponse(w, r, http.StatusRequestEntityTooLarge, models.ErrorCodeRequestTooLarge,
				"Request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return
		}
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	var identifier any = ratelimit.ClientIP(r, h.trustProxy)
	if req.HasIdentifier() {
		identifier = req.Identifier
	}

	decision, err := h.admitter.AdmitValue(r.Context(), identifier)
	ratelimit.SetHeaders(w, decision)

	if err != nil {
		reason := admission.ReasonOf(err)
		if reason == "" {
			slog.Error("Admission check failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		} else {
			slog.Warn("Admission denied", logger.DecisionAttrs(decision)...)
		}

		errorResp := h.newErrorResponse(r, err.Error(), models.ErrorCodeFor(reason))
		if decision.Identifier != "" {
			errorResp.WithDetail("identifier", decision.Identifier)
		}
		if decision.Record.Blocked {
			errorResp.WithDetail("blocked_until", decision.Record.BlockedUntil.Format(time.RFC3339))
			errorResp.WithDetail("retry_after", strconv.Itoa(models.RetryAfterSeconds(decision.RetryAfter)))
		}
		h.writeJSONResponse(w, ratelimit.StatusFor(reason), errorResp)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, models.NewAdmitResponse(decision))
}

// GetIdentifier returns the record held for one identifier
// GET /api/v1/identifiers/{identifier}
func (h *Handlers) GetIdentifier(w http.ResponseWriter, r *http.Request) {
	identifier := mux.Vars(r)["identifier"]

	record, ok := h.table.Lookup(identifier)
	if !ok {
		h.writeErrorResponse(w, r, http.StatusNotFound, models.ErrorCodeNotFound, "identifier is not tracked: "+identifier)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, models.NewRecordResponse(record))
}

// ResetIdentifier forgets one identifier so its next call starts fresh
// DELETE /api/v1/identifiers/{identifier}
func (h *Handlers) ResetIdentifier(w http.ResponseWriter, r *http.Request) {
	identifier := mux.Vars(r)["identifier"]

	if !h.table.Reset(identifier) {
		h.writeErrorResponse(w, r, http.StatusNotFound, models.ErrorCodeNotFound, "identifier is not tracked: "+identifier)
		return
	}

	slog.Info("Identifier reset",
		"identifier", identifier,
		"remote_addr", ratelimit.ClientIP(r, h.trustProxy),
		"request_id", RequestIDFromContext(r.Context()))

	h.writeJSONResponse(w, http.StatusOK, &models.ResetResponse{
		Identifier: identifier,
		Message:    "identifier reset",
	})
}

// Stats reports the shape of the admission table
// GET /api/v1/stats
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	s := h.table.Stats()
	h.writeJSONResponse(w, http.StatusOK, &models.StatsResponse{
		Tracked:   s.Tracked,
		Blocked:   s.Blocked,
		Capacity:  s.Capacity,
		Limit:     s.Limit,
		Timestamp: time.Now(),
	})
}

// Protected is the resource served behind the admission guard
// GET /api/v1/protected/{resource}
func (h *Handlers) Protected(w http.ResponseWriter, r *http.Request) {
	remaining, _ := strconv.Atoi(w.Header().Get("X-RateLimit-Remaining"))
	h.writeJSONResponse(w, http.StatusOK, &models.ProtectedResponse{
		Message:   "access granted",
		Resource:  mux.Vars(r)["resource"],
		ClientIP:  ratelimit.ClientIP(r, h.trustProxy),
		Remaining: remaining,
		Timestamp: time.Now(),
	})
}

// HealthCheck handles health check requests
// GET /health
// The service reports degraded while the table is full, since new
// identifiers are being rejected.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s := h.table.Stats()

	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.DisplayVersion()
	response.Uptime = time.Since(h.started).Round(time.Second).String()

	if s.Tracked >= s.Capacity {
		response.Status = models.StatusDegraded
		response.AddComponent("admission", models.StatusDegraded, "Admission table is full")
	} else {
		response.AddComponent("admission", models.StatusHealthy, "Admission table has room")
	}
	response.AddComponent("api", models.StatusHealthy, "API is operational")

	response.Metrics["tracked"] = s.Tracked
	response.Metrics["blocked"] = s.Blocked
	response.Metrics["capacity"] = s.Capacity
	if h.version.InstanceID != "" {
		response.Metrics["instance_id"] = h.version.InstanceID
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; only log.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

func (h *Handlers) newErrorResponse(r *http.Request, message, code string) *models.ErrorResponse {
	errorResp := models.NewErrorResponse(message, code)
	errorResp.RequestID = RequestIDFromContext(r.Context())
	return errorResp
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	h.writeJSONResponse(w, statusCode, h.newErrorResponse(r, message, errorCode))
}
