package web

import (
	"bytes"
	"context"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/csvedit/internal/config"
	"github.com/JonMunkholm/csvedit/internal/editor"
)

const peopleCSV = "name,age\nAlice,30\nBob,25\n"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ShutdownTimeout: time.Second,
			RequestTimeout:  5 * time.Second,
		},
		Upload:   config.UploadConfig{MaxFileSize: 1024, MaxConcurrent: 2, MaxWaitTime: 100 * time.Millisecond},
		Session:  config.SessionConfig{IdleTimeout: time.Hour, SweepInterval: time.Minute},
		Security: config.SecurityConfig{EnableCSP: true},
		Logging:  config.LoggingConfig{Level: "error", Format: "text"},
	}
}

// testClient drives the router through httptest and carries the session
// cookie between requests the way a browser would.
type testClient struct {
	t      *testing.T
	srv    *Server
	cookie *http.Cookie
}

func newTestClient(t *testing.T, mutate func(*config.Config)) *testClient {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	svc := editor.NewService(editor.Options{
		MaxFileSize:         cfg.Upload.MaxFileSize,
		MaxConcurrentIntake: cfg.Upload.MaxConcurrent,
		IntakeWait:          cfg.Upload.MaxWaitTime,
		SessionIdleTimeout:  cfg.Session.IdleTimeout,
	})
	srv := NewServer(svc, cfg)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testClient{t: t, srv: srv}
}

func (c *testClient) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	c.srv.Router().ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == SessionCookie {
			c.cookie = ck
		}
	}
	return rec
}

func (c *testClient) upload(name, content string, headers map[string]string) *httptest.ResponseRecorder {
	c.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if name != "" {
		part, err := mw.CreateFormFile("file", name)
		require.NoError(c.t, err)
		_, err = part.Write([]byte(content))
		require.NoError(c.t, err)
	}
	require.NoError(c.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/load", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

func (c *testClient) postForm(path string, form url.Values, headers map[string]string) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

func (c *testClient) table() TableResponse {
	c.t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/table", nil)
	req.Header.Set("Accept", "application/json")
	rec := c.do(req)
	require.Equal(c.t, http.StatusOK, rec.Code, rec.Body.String())

	var resp TableResponse
	require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

var (
	htmx     = map[string]string{"HX-Request": "true"}
	jsonOnly = map[string]string{"Accept": "application/json"}
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, nil)

	rec := c.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestIndex_BeforeLoad(t *testing.T) {
	c := newTestClient(t, nil)

	rec := c.do(httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Drag 'n' drop a CSV file here, or click to select a file")
	assert.Contains(t, body, "Drop the CSV file here ...")
	assert.NotContains(t, body, "Add Row")
	assert.NotContains(t, body, "Download CSV")

	require.NotNil(t, c.cookie, "session cookie should be set")
	assert.True(t, c.cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.cookie.SameSite)
}

func TestSecurityHeaders(t *testing.T) {
	c := newTestClient(t, nil)

	rec := c.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, contentSecurityPolicy, rec.Header().Get("Content-Security-Policy"))
}

func TestStaticAssets(t *testing.T) {
	c := newTestClient(t, nil)

	for _, path := range []string{"/static/app.js", "/static/app.css"} {
		rec := c.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Body.String(), path)
	}
}

func TestEditWorkflow(t *testing.T) {
	c := newTestClient(t, nil)

	// Load renders the editor partial.
	rec := c.upload("people.csv", peopleCSV, htmx)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Contains(t, body, `value="Alice"`)
	assert.Contains(t, body, "Add Row")
	assert.Contains(t, body, "Download CSV")
	assert.Contains(t, body, "Actions")

	// Scenario: edit a cell.
	rec = c.postForm("/api/cells", url.Values{"row": {"0"}, "col": {"1"}, "value": {"31"}}, htmx)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, [][]string{{"Alice", "31"}, {"Bob", "25"}}, c.table().Rows)

	// Scenario: add a row.
	rec = c.postForm("/api/rows", nil, jsonOnly)
	require.Equal(t, http.StatusOK, rec.Code)
	var added TableResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &added))
	assert.Equal(t, [][]string{{"Alice", "31"}, {"Bob", "25"}, {"", ""}}, added.Rows)

	// Scenario: delete the first row.
	rec = c.postForm("/api/rows/0/delete", nil, htmx)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Alice")

	got := c.table()
	assert.Equal(t, []string{"name", "age"}, got.Headers)
	assert.Equal(t, [][]string{{"Bob", "25"}, {"", ""}}, got.Rows)
	assert.Equal(t, "edited_people.csv", got.Filename)

	// Scenario: export.
	rec = c.do(httptest.NewRequest(http.MethodGet, "/api/export", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, "edited_people.csv", params["filename"])
	assert.Equal(t, "name,age\nBob,25\n,\n", rec.Body.String())
}

func TestLoad_FailureKeepsPriorTable(t *testing.T) {
	c := newTestClient(t, nil)
	require.Equal(t, http.StatusOK, c.upload("people.csv", peopleCSV, htmx).Code)

	rec := c.upload("empty.csv", "", htmx)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "FILE005")
	assert.Contains(t, rec.Body.String(), "alert-error")

	got := c.table()
	assert.Equal(t, "edited_people.csv", got.Filename)
	assert.Equal(t, [][]string{{"Alice", "30"}, {"Bob", "25"}}, got.Rows)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name       string
		file       string
		content    string
		wantStatus int
		wantCode   string
	}{
		{"no file", "", "", http.StatusBadRequest, "FILE004"},
		{"empty file", "a.csv", "   \n", http.StatusBadRequest, "FILE005"},
		{"too large", "a.csv", strings.Repeat("a,b\n", 400), http.StatusRequestEntityTooLarge, "FILE001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, nil)

			rec := c.upload(tt.file, tt.content, jsonOnly)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestLoad_BlankHeaderFields(t *testing.T) {
	c := newTestClient(t, nil)

	rec := c.upload("blank.csv", ",\n1,2\n3,4\n", jsonOnly)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := c.table()
	assert.True(t, got.Loaded)
	assert.Equal(t, []string{"", ""}, got.Headers)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, got.Rows)

	page := c.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, page.Body.String(), `aria-label="Column 2, row 2"`)
}

func TestLoad_NotMultipart(t *testing.T) {
	c := newTestClient(t, nil)

	rec := c.postForm("/api/load", url.Values{"file": {"a,b"}}, jsonOnly)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE004", decodeError(t, rec).Code)
}

func TestLoad_PlainFormRedirects(t *testing.T) {
	c := newTestClient(t, nil)

	rec := c.upload("people.csv", peopleCSV, nil)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	page := c.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, page.Body.String(), `value="Bob"`)
}

func TestSetCell_Errors(t *testing.T) {
	tests := []struct {
		name     string
		form     url.Values
		wantCode string
	}{
		{"row out of range", url.Values{"row": {"5"}, "col": {"0"}, "value": {"x"}}, "EDT001"},
		{"negative row", url.Values{"row": {"-1"}, "col": {"0"}, "value": {"x"}}, "EDT001"},
		{"column out of range", url.Values{"row": {"0"}, "col": {"9"}, "value": {"x"}}, "EDT002"},
		{"non-numeric row", url.Values{"row": {"one"}, "col": {"0"}, "value": {"x"}}, "EDT003"},
		{"missing col", url.Values{"row": {"0"}, "value": {"x"}}, "EDT003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, nil)
			require.Equal(t, http.StatusOK, c.upload("people.csv", peopleCSV, htmx).Code)

			rec := c.postForm("/api/cells", tt.form, jsonOnly)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
			assert.Equal(t, [][]string{{"Alice", "30"}, {"Bob", "25"}}, c.table().Rows)
		})
	}
}

func TestSetCell_JSONBody(t *testing.T) {
	c := newTestClient(t, nil)
	require.Equal(t, http.StatusOK, c.upload("people.csv", peopleCSV, htmx).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/cells", strings.NewReader(`{"row":1,"col":0,"value":"Robert"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := c.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp TableResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, [][]string{{"Alice", "30"}, {"Robert", "25"}}, resp.Rows)
}

func TestSetCell_JSONBodyMissingPosition(t *testing.T) {
	c := newTestClient(t, nil)
	require.Equal(t, http.StatusOK, c.upload("people.csv", peopleCSV, htmx).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/cells", strings.NewReader(`{"value":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := c.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "EDT003", decodeError(t, rec).Code)
}

func TestDeleteRow_Errors(t *testing.T) {
	c := newTestClient(t, nil)
	require.Equal(t, http.StatusOK, c.upload("people.csv", peopleCSV, htmx).Code)

	rec := c.postForm("/api/rows/7/delete", nil, jsonOnly)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "EDT001", decodeError(t, rec).Code)

	rec = c.postForm("/api/rows/first/delete", nil, jsonOnly)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "EDT003", decodeError(t, rec).Code)

	assert.Len(t, c.table().Rows, 2)
}

func TestExport_NothingLoaded(t *testing.T) {
	c := newTestClient(t, nil)

	rec := c.do(httptest.NewRequest(http.MethodGet, "/api/export", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	_, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "edited_data.csv", params["filename"])
	assert.Equal(t, "\n", rec.Body.String())
}

func TestSessionsAreIsolated(t *testing.T) {
	first := newTestClient(t, nil)
	require.Equal(t, http.StatusOK, first.upload("people.csv", peopleCSV, htmx).Code)

	second := &testClient{t: t, srv: first.srv}
	got := second.table()

	assert.False(t, got.Loaded)
	assert.Empty(t, got.Rows)
	assert.NotEqual(t, first.cookie.Value, second.cookie.Value)
	assert.True(t, first.table().Loaded)
}

func TestStaleCookieStartsFreshSession(t *testing.T) {
	c := newTestClient(t, nil)
	c.cookie = &http.Cookie{Name: SessionCookie, Value: "not-a-session"}

	c.do(httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, c.cookie)
	assert.NotEqual(t, "not-a-session", c.cookie.Value)
}

func TestStatus(t *testing.T) {
	c := newTestClient(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := c.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Intake.MaxConcurrent)
	assert.Equal(t, 2, resp.Intake.Available)
	assert.Equal(t, 1, resp.Sessions)
}

func TestAPIKeyAuth(t *testing.T) {
	c := newTestClient(t, func(cfg *config.Config) {
		cfg.Security.RequireAPIKey = true
		cfg.Security.APIKeys = []string{"k1", "k2"}
	})

	rec := c.do(httptest.NewRequest(http.MethodGet, "/api/table", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-API-Key", "wrong")
	assert.Equal(t, http.StatusForbidden, c.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/table", nil)
	req.Header.Set("X-API-Key", "k2")
	assert.Equal(t, http.StatusOK, c.do(req).Code)

	// Browser routes never need a key.
	assert.Equal(t, http.StatusOK, c.do(httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	assert.Equal(t, http.StatusOK, c.upload("people.csv", peopleCSV, htmx).Code)
}

func TestRateLimit(t *testing.T) {
	c := newTestClient(t, func(cfg *config.Config) {
		cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2}
	})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, c.do(httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/table", nil)
	req.Header.Set("Accept", "application/json")
	rec := c.do(req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decodeError(t, rec).Code)
}

func TestRateLimit_StaticAndHealthExempt(t *testing.T) {
	c := newTestClient(t, func(cfg *config.Config) {
		cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1}
	})

	assert.Equal(t, http.StatusOK, c.do(httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	require.Equal(t, http.StatusTooManyRequests, c.do(httptest.NewRequest(http.MethodGet, "/", nil)).Code)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, c.do(httptest.NewRequest(http.MethodGet, "/static/app.js", nil)).Code)
		assert.Equal(t, http.StatusOK, c.do(httptest.NewRequest(http.MethodGet, "/static/app.css", nil)).Code)
		assert.Equal(t, http.StatusOK, c.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
	}
}

func TestRateExempt(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/healthz", true},
		{"/static/app.js", true},
		{"/", false},
		{"/api/cells", false},
		{"/staticfoo", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, rateExempt(tt.path), tt.path)
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	defer rl.stop()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.2"), "limits are per IP")

	now = now.Add(time.Minute + time.Second)
	assert.True(t, rl.allow("10.0.0.1"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"too large", editor.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{"max bytes", &http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{"busy", editor.ErrTooManyUploads, http.StatusServiceUnavailable},
		{"no file", editor.ErrNoFile, http.StatusBadRequest},
		{"position", editor.ErrInvalidPosition, http.StatusBadRequest},
		{"unknown", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
