package router

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"pairsurvey/internal/backup"
	"pairsurvey/internal/config"
	"pairsurvey/internal/database"
	"pairsurvey/internal/handlers"
	"pairsurvey/internal/models"
	"pairsurvey/internal/repository"
	"pairsurvey/internal/store"
	"pairsurvey/internal/survey"
	"pairsurvey/internal/views"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var csrfField = regexp.MustCompile(`name="_csrf" value="([^"]+)"`)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.Conf = &config.Config{
		Server:    config.ServerConfig{SessionSecret: "router-test-secret"},
		Survey:    config.SurveyConfig{SessionTTL: time.Hour},
		RateLimit: config.RateLimitConfig{Rate: time.Minute, Limit: 2},
	}

	catalog, err := models.NewCatalog(models.BuildPairs([]string{"a", "b", "c"}))
	require.NoError(t, err)
	content := &models.SurveyContent{Title: "Test survey", Instructions: []models.Instruction{{Heading: "h"}}}
	engine := survey.NewEngine(zap.NewNop(), catalog, content, store.New(nil, nil), survey.Options{})

	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", Path: "file:" + uuid.NewString() + "?mode=memory&cache=shared"}, zap.NewNop())
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	t.Cleanup(func() { sqlDB.Close() })
	repo := repository.NewSessionRepository(db)

	renderer, err := views.New()
	require.NoError(t, err)

	r := Setup(zap.NewNop(), Handlers{
		Survey: handlers.NewSurveyHandler(zap.NewNop(), engine, repo, renderer),
		Admin:  handlers.NewAdminHandler(zap.NewNop(), engine, repo, renderer, backup.SourceNone),
		Health: func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) },
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar:           jar,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

// csrfToken loads the start page and returns the session's token.
func csrfToken(t *testing.T, client *http.Client, base string) string {
	resp, err := client.Get(base + "/")
	require.NoError(t, err)
	m := csrfField.FindStringSubmatch(readBody(t, resp))
	require.Len(t, m, 2)
	return m[1]
}

func TestSecurityHeaders(t *testing.T) {
	srv := newServer(t)
	resp, err := newClient(t).Get(srv.URL + "/")
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	csp := resp.Header.Get("Content-Security-Policy")
	m := regexp.MustCompile(`'nonce-([^']+)'`).FindStringSubmatch(csp)
	require.Len(t, m, 2)
	assert.Contains(t, body, `nonce="`+m[1]+`"`)
}

func TestCSRFRequired(t *testing.T) {
	srv := newServer(t)
	client := newClient(t)
	token := csrfToken(t, client, srv.URL)

	resp, err := client.PostForm(srv.URL+"/start", url.Values{})
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = client.PostForm(srv.URL+"/start", url.Values{"_csrf": {"forged"}})
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = client.PostForm(srv.URL+"/start", url.Values{"_csrf": {token}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Participant information")

	// HTMX sends the token as a header.
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/intro", strings.NewReader("name=Lee&birth_year=1995&phone="))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	req.Header.Set("X-CSRF-Token", token)
	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Before you begin")
}

func TestResumeIsRateLimited(t *testing.T) {
	srv := newServer(t)
	client := newClient(t)
	token := csrfToken(t, client, srv.URL)

	form := url.Values{"_csrf": {token}, "name": {"x"}, "birth_year": {"1"}, "phone_suffix": {"0000"}}
	var codes []int
	for i := 0; i < 3; i++ {
		resp, err := client.PostForm(srv.URL+"/resume", form)
		require.NoError(t, err)
		readBody(t, resp)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestAdminRequiresLogin(t *testing.T) {
	srv := newServer(t)
	client := newClient(t)

	resp, err := client.Get(srv.URL + "/admin")
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/admin/login", resp.Header.Get("Location"))

	resp, err = client.Get(srv.URL + "/admin/export")
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), `"ok"`)
}
