package router

import (
	"errors"
	"net/http"

	"pairsurvey/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Define keys for storing the token in the session and context.
const (
	csrfTokenSessionKey = "csrf_token"
	csrfTokenFormKey    = "_csrf"
	csrfTokenContextKey = "csrf_token"
	csrfTokenHeaderKey  = "X-CSRF-Token"
)

// CSRFProtection keeps one token per browser session and requires it on every
// unsafe request, from the "_csrf" form field or the X-CSRF-Token header.
func CSRFProtection() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		var token string
		sessionToken := session.Get(csrfTokenSessionKey)

		if sessionToken == nil {
			newToken, err := utils.GenerateSecureToken(32)
			if err != nil {
				c.AbortWithError(http.StatusInternalServerError, errors.New("failed to generate CSRF token"))
				return
			}
			token = newToken
			session.Set(csrfTokenSessionKey, token)
			if err := session.Save(); err != nil {
				c.AbortWithError(http.StatusInternalServerError, errors.New("failed to save session"))
				return
			}
		} else {
			token = sessionToken.(string)
		}

		c.Set(csrfTokenContextKey, token)

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			realToken := session.Get(csrfTokenSessionKey)
			if realToken == nil {
				c.AbortWithError(http.StatusForbidden, errors.New("CSRF token not found in session"))
				return
			}

			submittedToken := c.PostForm(csrfTokenFormKey)
			if submittedToken == "" {
				submittedToken = c.GetHeader(csrfTokenHeaderKey)
			}

			if submittedToken == "" || submittedToken != realToken {
				if c.GetHeader("HX-Request") == "true" {
					// A reload picks up a fresh token after the cookie expired.
					c.Header("HX-Redirect", "/")
					c.AbortWithStatus(http.StatusForbidden)
					return
				}
				c.AbortWithError(http.StatusForbidden, errors.New("invalid CSRF token"))
				return
			}
		}

		c.Next()
	}
}
