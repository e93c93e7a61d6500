package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

type openAPIDoc struct {
	body []byte
	etag string
}

// openAPI holds the document loaded at startup. It may be swapped while serving.
var openAPI atomic.Pointer[openAPIDoc]

// SetSwaggerSpec installs the OpenAPI document served at /swagger/spec. nil unloads it.
func SetSwaggerSpec(spec []byte) {
	if spec == nil {
		openAPI.Store(nil)
		return
	}
	sum := sha256.Sum256(spec)
	openAPI.Store(&openAPIDoc{body: spec, etag: `"` + hex.EncodeToString(sum[:8]) + `"`})
}

// SwaggerSpec serves the OpenAPI YAML with a content ETag.
func SwaggerSpec(c *gin.Context) {
	doc := openAPI.Load()
	if doc == nil {
		c.String(http.StatusNotFound, "OpenAPI document not loaded")
		return
	}
	c.Header("ETag", doc.etag)
	if c.GetHeader("If-None-Match") == doc.etag {
		c.AbortWithStatus(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/yaml", doc.body)
}

const swaggerPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Custodial Wallet - API Docs</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: '/swagger/spec',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`

// SwaggerUI serves a Swagger UI page that loads /swagger/spec.
func SwaggerUI(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerPage))
}
