package router

import (
	"net/http"

	"pairsurvey/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const CspNonceContextKey = "csp_nonce"

// NonceMiddleware creates a fresh nonce for each request and adds it to the Gin
// context for the CSP header and the page scripts.
func NonceMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce, err := utils.GenerateSecureToken(16)
		if err != nil {
			log.Error("Failed to generate CSP nonce", zap.Error(err))
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Set(CspNonceContextKey, nonce)
		c.Next()
	}
}
