package handlers

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"pairsurvey/internal/backup"
	"pairsurvey/internal/config"
	"pairsurvey/internal/database"
	"pairsurvey/internal/models"
	"pairsurvey/internal/repository"
	"pairsurvey/internal/store"
	"pairsurvey/internal/survey"
	"pairsurvey/internal/views"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func testContent() *models.SurveyContent {
	c := &models.SurveyContent{
		Title:        "Sentence similarity",
		Prompt:       "How similar are these sentences?",
		Instructions: []models.Instruction{{Heading: "Read both sentences", Confirm: "I understand"}},
	}
	for v := models.MinRating; v <= models.MaxRating; v++ {
		c.RatingScale = append(c.RatingScale, models.RatingOption{Value: v, Label: fmt.Sprintf("level-%d", v)})
	}
	return c
}

type app struct {
	server    *httptest.Server
	responses *store.ResponseStore
}

// newApp mounts the handlers behind a cookie session only; CSRF and the other
// router middleware are covered by the router tests.
func newApp(t *testing.T) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog, err := models.NewCatalog(models.BuildPairs([]string{"s1", "s2", "s3", "s4", "s5"}))
	require.NoError(t, err)
	responses := store.New(nil, nil)
	engine := survey.NewEngine(zap.NewNop(), catalog, testContent(), responses, survey.Options{
		Shuffle: true,
		Rand:    rand.New(rand.NewSource(1)),
	})

	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", Path: "file:" + uuid.NewString() + "?mode=memory&cache=shared"}, zap.NewNop())
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	t.Cleanup(func() { sqlDB.Close() })
	repo := repository.NewSessionRepository(db)

	renderer, err := views.New()
	require.NoError(t, err)

	sh := NewSurveyHandler(zap.NewNop(), engine, repo, renderer)
	ah := NewAdminHandler(zap.NewNop(), engine, repo, renderer, backup.SourceLocal)

	r := gin.New()
	r.Use(sessions.Sessions("test", cookie.NewStore([]byte("test-secret"))))
	r.GET("/", sh.Show)
	r.POST("/start", sh.Start)
	r.POST("/resume", sh.Resume)
	r.POST("/intro", sh.Intro)
	r.POST("/instruction/ack", sh.Acknowledge)
	r.POST("/instruction/begin", sh.Begin)
	r.POST("/survey/next", sh.Next)
	r.POST("/survey/prev", sh.Previous)
	r.POST("/survey/pause", sh.Pause)
	r.POST("/survey/resume", sh.ResumeTimer)
	r.GET("/survey/export", sh.Export)
	r.GET("/admin/login", ah.ShowLogin)
	r.POST("/admin/login", ah.Login)
	r.GET("/admin", ah.Dashboard)
	r.GET("/admin/export", ah.Export)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &app{server: srv, responses: responses}
}

type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func (a *app) browser(t *testing.T) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, base: a.server.URL, client: &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
}

func (b *browser) do(req *http.Request) (*http.Response, string) {
	b.t.Helper()
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp, string(body)
}

func (b *browser) get(path string) (*http.Response, string) {
	req, err := http.NewRequest(http.MethodGet, b.base+path, nil)
	require.NoError(b.t, err)
	return b.do(req)
}

func (b *browser) post(path string, form url.Values, htmx bool) (*http.Response, string) {
	req, err := http.NewRequest(http.MethodPost, b.base+path, strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	return b.do(req)
}

var kimIntake = url.Values{
	"name":       {"Kim"},
	"birth_year": {"1990"},
	"age":        {"34"},
	"phone":      {"010-1234-5678"},
	"email":      {"kim@example.com"},
}

// walkToSurvey takes a browser from the start screen to the first pair.
func walkToSurvey(t *testing.T, b *browser) string {
	_, body := b.post("/start", nil, true)
	require.Contains(t, body, "Participant information")
	_, body = b.post("/intro", kimIntake, true)
	require.Contains(t, body, "Before you begin")
	_, body = b.post("/instruction/ack", url.Values{"index": {"0"}, "checked": {"true"}}, true)
	require.Contains(t, body, `value="true" checked`)
	_, body = b.post("/instruction/begin", nil, true)
	require.Contains(t, body, "Pair 1 of 10")
	return body
}

func TestSurveyWalkthrough(t *testing.T) {
	a := newApp(t)
	b := a.browser(t)

	resp, body := b.get("/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<!DOCTYPE html>")
	assert.Contains(t, body, "Start a new survey")

	body = walkToSurvey(t, b)
	assert.NotContains(t, body, "<!DOCTYPE html>", "HTMX requests get the fragment only")
	assert.Contains(t, body, "level-7")

	for i := 0; i < 9; i++ {
		_, body = b.post("/survey/next", url.Values{"rating": {"5"}}, true)
		require.Contains(t, body, fmt.Sprintf("Pair %d of 10", i+2))
	}
	_, body = b.post("/survey/next", url.Values{"rating": {"5"}}, true)
	assert.Contains(t, body, "Thank you!")
	assert.Contains(t, body, "Kim_1990_5678")
	assert.Equal(t, 10, a.responses.Len())

	resp, body = b.get("/survey/export")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "responses_Kim_1990_5678.csv")
	records, skipped, err := backup.ReadCSV(strings.NewReader(body))
	require.NoError(t, err)
	require.Empty(t, skipped)
	assert.Len(t, records, 10)

	// A full page load lands back on the completion screen.
	_, body = b.get("/")
	assert.Contains(t, body, "Thank you!")
}

func TestSurveyMessages(t *testing.T) {
	a := newApp(t)
	b := a.browser(t)

	_, body := b.post("/survey/next", url.Values{"rating": {"5"}}, true)
	assert.Contains(t, body, "Start a new survey", "out-of-step actions show the current screen")

	b.post("/start", nil, true)
	b.post("/intro", kimIntake, true)
	_, body = b.post("/instruction/begin", nil, true)
	assert.Contains(t, body, "Please confirm every statement")

	b.post("/instruction/ack", url.Values{"index": {"0"}, "checked": {"true"}}, true)
	b.post("/instruction/begin", nil, true)
	_, body = b.post("/survey/next", url.Values{"rating": {"9"}}, true)
	assert.Contains(t, body, "Please choose a rating from 1 to 7.")
	_, body = b.post("/survey/next", nil, true)
	assert.Contains(t, body, "Please choose a rating from 1 to 7.")
	assert.Zero(t, a.responses.Len())

	_, body = b.post("/survey/next", url.Values{"rating": {"2"}}, true)
	assert.Contains(t, body, "Pair 2 of 10")
	_, body = b.post("/survey/prev", nil, true)
	assert.Contains(t, body, "Pair 1 of 10")
	assert.Contains(t, body, `value="2" checked`)
}

func TestResumeAcrossBrowsers(t *testing.T) {
	a := newApp(t)
	first := a.browser(t)
	walkToSurvey(t, first)
	for i := 0; i < 3; i++ {
		first.post("/survey/next", url.Values{"rating": {"6"}}, true)
	}

	t.Run("no match", func(t *testing.T) {
		b := a.browser(t)
		_, body := b.post("/resume", url.Values{"name": {"Kim"}, "birth_year": {"1990"}, "phone_suffix": {"0000"}}, true)
		assert.Contains(t, body, "No saved responses match")
		assert.Contains(t, body, "Start a new survey")
	})

	t.Run("match", func(t *testing.T) {
		b := a.browser(t)
		_, body := b.post("/resume", url.Values{"name": {" Kim "}, "birth_year": {"1990"}, "phone_suffix": {"5678"}}, true)
		assert.Contains(t, body, "Welcome back")
		assert.Contains(t, body, "3 answered")
	})

	t.Run("intake reports prior answers", func(t *testing.T) {
		b := a.browser(t)
		b.post("/start", nil, true)
		_, body := b.post("/intro", kimIntake, true)
		assert.Contains(t, body, "We found 3 answers")
	})
}

func TestPauseKeepsAcceptingAnswers(t *testing.T) {
	a := newApp(t)
	b := a.browser(t)
	walkToSurvey(t, b)

	_, body := b.post("/survey/pause", nil, true)
	assert.Contains(t, body, "The timer is paused. Answers are still recorded.")
	assert.Contains(t, body, `action="/survey/next"`)

	_, body = b.post("/survey/next", url.Values{"rating": {"3"}}, true)
	assert.NotContains(t, body, "Resume it to keep answering")
	assert.Contains(t, body, "Pair 2 of 10")
	assert.Equal(t, 1, a.responses.Len())

	_, body = b.post("/survey/resume", nil, true)
	assert.NotContains(t, body, "The timer is paused.")
	assert.Contains(t, body, "Pair 2 of 10")
}

func TestExportWithoutParticipant(t *testing.T) {
	a := newApp(t)
	resp, _ := a.browser(t).get("/survey/export")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminLoginAndDashboard(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	config.Conf = &config.Config{Admin: config.AdminConfig{Username: "admin", PasswordHash: string(hash)}}

	a := newApp(t)
	participant := a.browser(t)
	walkToSurvey(t, participant)
	participant.post("/survey/next", url.Values{"rating": {"7"}}, true)

	b := a.browser(t)
	resp, body := b.get("/admin/login")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Administrator sign-in")

	resp, body = b.post("/admin/login", url.Values{"username": {"admin"}, "password": {"wrong"}}, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Invalid username or password.")

	resp, _ = b.post("/admin/login", url.Values{"username": {"admin"}, "password": {"s3cret"}}, false)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin", resp.Header.Get("Location"))

	resp, body = b.get("/admin")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Rating Distribution")
	assert.Contains(t, body, "Kim_1990_5678")
	assert.Contains(t, body, "1 ratings from 1 participants across 10 pairs")

	resp, body = b.get("/admin/export")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(body, strings.Join(backup.Columns, ",")))
}

func TestAdminLoginDisabledWithoutHash(t *testing.T) {
	config.Conf = &config.Config{Admin: config.AdminConfig{Username: "admin"}}
	a := newApp(t)
	resp, _ := a.browser(t).post("/admin/login", url.Values{"username": {"admin"}, "password": {""}}, false)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
