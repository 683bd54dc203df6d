package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"pairsurvey/internal/backup"
	"pairsurvey/internal/config"
	"pairsurvey/internal/metrics"
	"pairsurvey/internal/models"
	"pairsurvey/internal/repository"
	"pairsurvey/internal/survey"
	"pairsurvey/internal/views"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AdminSessionKey marks a browser session as signed in to the results pages.
const AdminSessionKey = "admin"

type AdminHandler struct {
	log      *zap.Logger
	engine   *survey.Engine
	sessions *repository.SessionRepository
	views    *views.Renderer
	source   backup.Source
}

func NewAdminHandler(log *zap.Logger, engine *survey.Engine, sessions *repository.SessionRepository, renderer *views.Renderer, source backup.Source) *AdminHandler {
	return &AdminHandler{log: log, engine: engine, sessions: sessions, views: renderer, source: source}
}

type adminData struct {
	Records      int
	Pairs        int
	Source       backup.Source
	Sessions     map[models.Step]int64
	Participants []metrics.ParticipantMetrics
	ChartJSON    string
}

func (h *AdminHandler) renderPage(c *gin.Context, status int, name string, page views.Page) {
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := h.views.Render(c.Writer, name, page, false); err != nil {
		h.log.Error("Error rendering page", zap.Error(err), zap.String("page", name))
	}
}

func (h *AdminHandler) ShowLogin(c *gin.Context) {
	h.renderPage(c, http.StatusOK, "admin_login", newPage(c, "Administrator sign-in", ""))
}

func (h *AdminHandler) Login(c *gin.Context) {
	adminConf := config.Conf.Admin
	if adminConf.PasswordHash == "" {
		c.String(http.StatusForbidden, "Admin access is disabled.")
		return
	}

	username := c.PostForm("username")
	password := c.PostForm("password")
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(adminConf.Username)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(adminConf.PasswordHash), []byte(password))
	if !userOK || passErr != nil {
		h.log.Warn("Failed admin login", zap.String("username", username), zap.String("client_ip", c.ClientIP()))
		h.renderPage(c, http.StatusUnauthorized, "admin_login", newPage(c, "Administrator sign-in", "Invalid username or password."))
		return
	}

	session := sessions.Default(c)
	session.Set(AdminSessionKey, true)
	if err := session.Save(); err != nil {
		h.log.Error("Failed to save admin session", zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to login")
		return
	}
	h.log.Info("Admin signed in", zap.String("username", username))
	c.Redirect(http.StatusSeeOther, "/admin")
}

func (h *AdminHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Delete(AdminSessionKey)
	if err := session.Save(); err != nil {
		h.log.Error("Failed to save session on logout", zap.Error(err))
	}
	c.Redirect(http.StatusSeeOther, "/admin/login")
}

// Dashboard shows completion counts, per-participant quality metrics and the
// overall rating distribution.
func (h *AdminHandler) Dashboard(c *gin.Context) {
	records := h.engine.Responses().All()
	counts, err := h.sessions.CountByStep(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to count sessions", zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to load session counts")
		return
	}

	chart := generateRatingChart(metrics.Histogram(records), h.engine.Content().RatingScale)
	chartJSON, err := json.Marshal(chart.JSON())
	if err != nil {
		h.log.Error("Failed to encode chart", zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to build chart")
		return
	}

	page := newPage(c, "Responses", "")
	page.Admin = true
	page.Data = adminData{
		Records:      len(records),
		Pairs:        h.engine.Catalog().Len(),
		Source:       h.source,
		Sessions:     counts,
		Participants: metrics.Summarize(records, h.engine.Catalog().Len()),
		ChartJSON:    string(chartJSON),
	}
	h.renderPage(c, http.StatusOK, "admin", page)
}

// Export downloads the whole response table in backup format.
func (h *AdminHandler) Export(c *gin.Context) {
	data, err := backup.EncodeCSV(h.engine.Responses().All())
	if err != nil {
		h.log.Error("Failed to encode export", zap.Error(err))
		c.String(http.StatusInternalServerError, "Could not build the export")
		return
	}
	sendCSV(c, fmt.Sprintf("responses_%s.csv", time.Now().UTC().Format("20060102-150405")), data)
}

func generateRatingChart(hist [models.MaxRating]int, scale []models.RatingOption) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Rating Distribution"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "answers"}),
	)

	labels := make([]string, models.MaxRating)
	items := make([]opts.BarData, models.MaxRating)
	for i := range labels {
		labels[i] = strconv.Itoa(i + 1)
		items[i] = opts.BarData{Value: hist[i]}
	}
	for _, o := range scale {
		if models.ValidRating(o.Value) && o.Label != "" {
			labels[o.Value-1] = fmt.Sprintf("%d %s", o.Value, o.Label)
		}
	}

	bar.SetXAxis(labels).AddSeries("ratings", items)
	return bar
}
