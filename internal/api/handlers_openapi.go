package api

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
)

// openAPIPath is where the service publishes its API description. The docs
// page loads it from the same origin.
const openAPIPath = "/api/v1/openapi.yaml"

// docsCacheControl applies to both documents; they only change on deploy.
const docsCacheControl = "public, max-age=3600"

//go:embed openapi/openapi.yaml
var openAPIDocument []byte

var (
	openAPIETag = contentETag(openAPIDocument)

	docsPage     = []byte(fmt.Sprintf(docsPageTemplate, openAPIPath))
	docsPageETag = contentETag(docsPage)
)

const docsPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Throttle Service API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: '%s',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      deepLinking: true,
      tryItOutEnabled: true,
      supportedSubmitMethods: ['get', 'post']
    });
  </script>
</body>
</html>`

func contentETag(b []byte) string {
	sum := sha256.Sum256(b)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}

// ServeOpenAPISpec serves the embedded API description as YAML.
// GET /api/v1/openapi.yaml
func (h *Handlers) ServeOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	writeDocument(w, r, "application/yaml", openAPIETag, openAPIDocument)
}

// ServeSwaggerUI serves a Swagger UI page bound to the API description.
// Submitting is limited to GET and POST so the page cannot reset identifiers.
// GET /api/v1/docs
func (h *Handlers) ServeSwaggerUI(w http.ResponseWriter, r *http.Request) {
	writeDocument(w, r, "text/html; charset=utf-8", docsPageETag, docsPage)
}

// writeDocument answers a conditional GET with 304 when the client already
// holds body.
func writeDocument(w http.ResponseWriter, r *http.Request, contentType, etag string, body []byte) {
	w.Header().Set("Cache-Control", docsCacheControl)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		slog.Debug("Document write failed", "path", r.URL.Path, "error", err)
	}
}
