package router

import (
	"fmt"
	"net/http"

	"pairsurvey/internal/config"
	"pairsurvey/internal/handlers"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

// Handlers groups what Setup mounts.
type Handlers struct {
	Survey *handlers.SurveyHandler
	Admin  *handlers.AdminHandler
	// Health reports liveness; it is called without session middleware.
	Health gin.HandlerFunc
}

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.String(http.StatusTooManyRequests, "Too many requests. Try again later.")
}

// newRateLimitStore shares counters through Redis when an address is configured,
// so several server processes enforce one limit.
func newRateLimitStore(conf config.RateLimitConfig) ratelimit.Store {
	if conf.RedisAddr != "" {
		return ratelimit.RedisStore(&ratelimit.RedisOptions{
			RedisClient: redis.NewClient(&redis.Options{Addr: conf.RedisAddr}),
			Rate:        conf.Rate,
			Limit:       conf.Limit,
		})
	}
	return ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  conf.Rate,
		Limit: conf.Limit,
	})
}

func Setup(log *zap.Logger, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	if h.Health != nil {
		router.GET("/healthz", h.Health)
	}

	serverConf := config.Conf.Server
	store := cookie.NewStore([]byte(serverConf.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   serverConf.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(config.Conf.Survey.SessionTTL.Seconds()),
	})
	router.Use(sessions.Sessions("pairsurvey", store))

	router.Use(NonceMiddleware(log))
	router.Use(CSRFProtection())

	router.Use(func(c *gin.Context) {
		if c.GetHeader("HX-Request") != "true" {
			nonce, _ := c.Get(CspNonceContextKey)
			csp := fmt.Sprintf(
				"script-src 'self' https://unpkg.com https://cdn.jsdelivr.net 'nonce-%s'; style-src 'self' 'unsafe-inline'",
				nonce,
			)
			c.Header("Content-Security-Policy", csp)
		}
		c.Next()
	})

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "same-origin",
	})
	router.Use(func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
	})

	limiter := ratelimit.RateLimiter(newRateLimitStore(config.Conf.RateLimit), &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})

	router.GET("/", h.Survey.Show)
	router.POST("/start", h.Survey.Start)
	// The resume identity is guessable, so attempts are throttled.
	router.POST("/resume", limiter, h.Survey.Resume)
	router.POST("/intro", h.Survey.Intro)

	instructionRoutes := router.Group("/instruction")
	{
		instructionRoutes.POST("/ack", h.Survey.Acknowledge)
		instructionRoutes.POST("/begin", h.Survey.Begin)
	}

	surveyRoutes := router.Group("/survey")
	{
		surveyRoutes.POST("/next", h.Survey.Next)
		surveyRoutes.POST("/prev", h.Survey.Previous)
		surveyRoutes.POST("/pause", h.Survey.Pause)
		surveyRoutes.POST("/resume", h.Survey.ResumeTimer)
		surveyRoutes.GET("/export", h.Survey.Export)
	}

	router.GET("/admin/login", h.Admin.ShowLogin)
	router.POST("/admin/login", limiter, h.Admin.Login)
	router.POST("/admin/logout", h.Admin.Logout)

	adminRoutes := router.Group("/admin")
	adminRoutes.Use(AdminRequired())
	{
		adminRoutes.GET("", h.Admin.Dashboard)
		adminRoutes.GET("/export", h.Admin.Export)
	}

	return router
}
