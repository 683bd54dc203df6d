package handlers

import (
	"mime"
	"net/http"

	"pairsurvey/internal/views"

	"github.com/gin-gonic/gin"
)

// Context keys set by the router middleware.
const (
	csrfTokenContextKey = "csrf_token"
	cspNonceContextKey  = "csp_nonce"
)

func isHTMX(c *gin.Context) bool {
	return c.GetHeader("HX-Request") == "true"
}

func newPage(c *gin.Context, title, flash string) views.Page {
	csrfToken, _ := c.Get(csrfTokenContextKey)
	cspNonce, _ := c.Get(cspNonceContextKey)
	token, _ := csrfToken.(string)
	nonce, _ := cspNonce.(string)
	return views.Page{Title: title, CSRFToken: token, Nonce: nonce, Flash: flash}
}

func sendCSV(c *gin.Context, filename string, data []byte) {
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}
