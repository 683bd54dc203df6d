package router

import (
	"net/http"

	"pairsurvey/internal/handlers"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// AdminRequired sends browsers without an admin session to the sign-in page.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if ok, _ := session.Get(handlers.AdminSessionKey).(bool); !ok {
			if c.GetHeader("HX-Request") == "true" {
				c.Header("HX-Redirect", "/admin/login")
				c.AbortWithStatus(http.StatusUnauthorized)
				return
			}
			c.Redirect(http.StatusFound, "/admin/login")
			c.Abort()
			return
		}
		c.Next()
	}
}
