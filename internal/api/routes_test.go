package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"throttle/internal/admission"
	"throttle/internal/models"
)

func newTestServer(t *testing.T, mutate func(*models.Config)) (*httptest.Server, *admission.Controller) {
	t.Helper()
	config := models.NewDefaultConfig()
	config.Security.TrustProxyHeaders = false
	if mutate != nil {
		mutate(config)
	}

	h, c, _ := newTestHandlers(t, config.Admission.ToAdmission())
	server := httptest.NewServer(SetupRoutes(h, config))
	t.Cleanup(server.Close)
	return server, c
}

func do(t *testing.T, method, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSetupRoutes_PublicEndpoints(t *testing.T) {
	server, _ := newTestServer(t, nil)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{http.MethodGet, "/api/v1/stats", "", http.StatusOK},
		{http.MethodPost, "/api/v1/admit", `{"identifier":"route-test"}`, http.StatusOK},
		{http.MethodGet, "/api/v1/identifiers/route-test", "", http.StatusOK},
		{http.MethodGet, "/api/v1/identifiers/unknown", "", http.StatusNotFound},
		{http.MethodGet, "/api/v1/openapi.yaml", "", http.StatusOK},
		{http.MethodGet, "/api/v1/docs", "", http.StatusOK},
		{http.MethodGet, "/api/v1/protected/report", "", http.StatusOK},
		{http.MethodGet, "/api/v1/admit", "", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/v1/stats", "", http.StatusMethodNotAllowed},
		{http.MethodPut, "/api/v1/identifiers/route-test", "", http.StatusMethodNotAllowed},
		{http.MethodPost, "/health", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp := do(t, tt.method, server.URL+tt.path, tt.body, nil)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestSetupRoutes_RequestIDOnResponses(t *testing.T) {
	server, _ := newTestServer(t, nil)

	resp := do(t, http.MethodGet, server.URL+"/api/v1/identifiers/missing", "", map[string]string{"X-Request-ID": "abc-123"})
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))

	var errResp models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.Equal(t, "abc-123", errResp.RequestID)
}

func TestSetupRoutes_ResetRequiresAdminToken(t *testing.T) {
	server, c := newTestServer(t, func(cfg *models.Config) {
		cfg.Security.AdminToken = "s3cret"
	})
	c.Admit("client-1")

	resp := do(t, http.MethodDelete, server.URL+"/api/v1/identifiers/client-1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_, ok := c.Lookup("client-1")
	assert.True(t, ok)

	resp = do(t, http.MethodDelete, server.URL+"/api/v1/identifiers/client-1", "",
		map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, ok = c.Lookup("client-1")
	assert.False(t, ok)

	// Lookups stay public.
	resp = do(t, http.MethodGet, server.URL+"/api/v1/identifiers/client-1", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSetupRoutes_GuardThrottlesProtectedRoutes(t *testing.T) {
	server, _ := newTestServer(t, nil)

	for i := 0; i < 3; i++ {
		resp := do(t, http.MethodGet, server.URL+"/api/v1/protected/report", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := do(t, http.MethodGet, server.URL+"/api/v1/protected/report", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp = do(t, http.MethodGet, server.URL+"/api/v1/protected/other", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Unguarded routes are unaffected.
	resp = do(t, http.MethodGet, server.URL+"/api/v1/stats", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSetupRoutes_GuardDisabled(t *testing.T) {
	server, _ := newTestServer(t, func(cfg *models.Config) {
		cfg.Admission.GuardEnabled = false
	})

	resp := do(t, http.MethodGet, server.URL+"/api/v1/protected/report", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSetupRoutes_WithOTelMiddleware(t *testing.T) {
	config := models.NewDefaultConfig()
	h, _, _ := newTestHandlers(t, config.Admission.ToAdmission())
	router := SetupRoutes(h, config, WithOTelMiddleware("throttle-test"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admit", strings.NewReader(`{"identifier":"otel"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
}
