package httphandler_test

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/adpanel/internal/adapter/driving/http"
	"github.com/ericfisherdev/adpanel/internal/application"
	"github.com/ericfisherdev/adpanel/internal/domain/model"
)

// --- Mock implementations ---

type mockAdapter struct {
	provider  model.Provider
	exchange  error
	setStatus error
	rows      []model.CampaignMetric
	// stall makes FetchCampaignMetrics wait for cancellation.
	stall bool
}

func (m *mockAdapter) Provider() model.Provider { return m.provider }

func (m *mockAdapter) BuildAuthorizationURL(redirectURI, state string) (string, error) {
	q := url.Values{"redirect_uri": {redirectURI}, "state": {state}}
	return "https://provider.example.com/" + string(m.provider) + "/oauth?" + q.Encode(), nil
}

func (m *mockAdapter) ExchangeCodeForToken(_ context.Context, code, _ string) (model.Credential, error) {
	if m.exchange != nil {
		return model.Credential{}, m.exchange
	}
	return model.Credential{Provider: m.provider, AccessToken: "secret-token-" + code, RefreshToken: "secret-refresh"}, nil
}

func (m *mockAdapter) FetchCampaignMetrics(ctx context.Context, _ model.Credential) iter.Seq2[model.CampaignMetric, error] {
	return func(yield func(model.CampaignMetric, error) bool) {
		if m.stall {
			<-ctx.Done()
			yield(model.CampaignMetric{}, ctx.Err())
			return
		}
		for _, r := range m.rows {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func (m *mockAdapter) SetCampaignStatus(_ context.Context, _ model.Credential, _ string, _ model.CampaignStatus) error {
	return m.setStatus
}

type mockCredentialStore struct {
	mu    sync.Mutex
	creds map[model.Provider]model.Credential
}

func (s *mockCredentialStore) Upsert(_ context.Context, c model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[c.Provider] = c
	return nil
}

func (s *mockCredentialStore) GetActive(_ context.Context, p model.Provider) (*model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[p]
	if !ok || !c.IsActive {
		return nil, nil
	}
	return &c, nil
}

func (s *mockCredentialStore) List(_ context.Context) ([]model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Credential
	for _, p := range model.Providers() {
		if c, ok := s.creds[p]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *mockCredentialStore) Deactivate(_ context.Context, p model.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.creds[p]; ok {
		c.IsActive = false
		s.creds[p] = c
	}
	return nil
}

type mockMetricsCache struct {
	mu      sync.Mutex
	rows    []model.CampaignMetric
	listErr error
}

func (c *mockMetricsCache) Upsert(_ context.Context, m model.CampaignMetric) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.rows {
		if c.rows[i].Platform == m.Platform && c.rows[i].PlatformCampaignID == m.PlatformCampaignID {
			c.rows[i] = m
			return nil
		}
	}
	c.rows = append(c.rows, m)
	return nil
}

func (c *mockMetricsCache) ListBySpend(_ context.Context) ([]model.CampaignMetric, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	return append([]model.CampaignMetric(nil), c.rows...), nil
}

func (c *mockMetricsCache) Get(_ context.Context, p model.Provider, id string) (*model.CampaignMetric, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.rows {
		if r.Platform == p && r.PlatformCampaignID == id {
			return &r, nil
		}
	}
	return nil, nil
}

func (c *mockMetricsCache) UpdateStatus(_ context.Context, p model.Provider, id string, status model.CampaignStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.rows {
		if c.rows[i].Platform == p && c.rows[i].PlatformCampaignID == id {
			c.rows[i].Status = status
			return nil
		}
	}
	return model.ErrCampaignNotFound
}

// --- Test helpers ---

const frontendBase = "https://app.example.com"

var testTime = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	meta    *mockAdapter
	tiktok  *mockAdapter
	creds   *mockCredentialStore
	cache   *mockMetricsCache
	handler *httphandler.Handler
	mux     http.Handler
}

func setupEnv(t *testing.T, rows ...model.CampaignMetric) *testEnv {
	t.Helper()

	env := &testEnv{
		meta:   &mockAdapter{provider: model.ProviderMeta},
		tiktok: &mockAdapter{provider: model.ProviderTikTok},
		creds:  &mockCredentialStore{creds: make(map[model.Provider]model.Credential)},
		cache:  &mockMetricsCache{rows: rows},
	}

	registry, err := application.NewAdapterRegistry(env.meta, env.tiktok)
	require.NoError(t, err)

	oauth := application.NewOAuthFlowService(registry, env.creds, "https://api.example.com")
	campaigns := application.NewCampaignSyncService(registry, env.creds, env.cache)
	refresh := application.NewCampaignRefreshService(registry, env.creds, env.cache, application.RefreshConfig{})

	env.handler = httphandler.NewHandler(oauth, campaigns, refresh, frontendBase+"/", false, slog.Default())
	env.mux = httphandler.NewServeMux(env.handler, slog.Default())
	return env
}

func (e *testEnv) connect(p model.Provider) {
	e.creds.creds[p] = model.Credential{Provider: p, AccessToken: "sekrit-token", IsActive: true, UpdatedAt: testTime}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	err := json.NewDecoder(rec.Body).Decode(v)
	require.NoError(t, err)
}

func toggleRequest(id, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/campaign/"+id+"/toggle", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func campaign(p model.Provider, id string, spendCents, conversions int64, status model.CampaignStatus) model.CampaignMetric {
	return model.CampaignMetric{
		Platform:           p,
		PlatformCampaignID: id,
		Name:               "Campaign " + id,
		Status:             status,
		SpendCents:         spendCents,
		Conversions:        conversions,
		UpdatedAt:          testTime,
	}
}

// stateCookie runs GET /auth/{provider} and returns the issued state cookie.
func stateCookie(t *testing.T, env *testEnv, provider string) *http.Cookie {
	t.Helper()
	rec := env.do(httptest.NewRequest(http.MethodGet, "/auth/"+provider, nil))
	require.Equal(t, http.StatusFound, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == "adpanel_oauth_state" {
			return c
		}
	}
	t.Fatal("no state cookie issued")
	return nil
}

// --- Tests ---

func TestStartAuth_Redirects(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/auth/meta", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "provider.example.com", loc.Host)
	assert.Equal(t, "https://api.example.com/callback/meta", loc.Query().Get("redirect_uri"))

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "adpanel_oauth_state" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, loc.Query().Get("state"), cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/callback/meta", cookie.Path)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
}

func TestStartAuth_UnsupportedProvider(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/auth/friendster", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
	var body map[string]string
	decodeJSON(t, rec, &body)
	assert.Contains(t, body["error"], "unsupported provider")
}

func TestCallback_SuccessStoresCredential(t *testing.T) {
	env := setupEnv(t)
	cookie := stateCookie(t, env, "tiktok")

	req := httptest.NewRequest(http.MethodGet, "/callback/tiktok?auth_code=abc&state="+url.QueryEscape(cookie.Value), nil)
	req.AddCookie(cookie)
	rec := env.do(req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, frontendBase+"/dashboard?provider=tiktok&status=success", rec.Header().Get("Location"))
	assert.NotContains(t, rec.Body.String(), "secret-token")

	stored, err := env.creds.GetActive(context.Background(), model.ProviderTikTok)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "secret-token-abc", stored.AccessToken)
}

func TestCallback_FailuresRedirectWithError(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		query    func(state string) string
		exchange error
	}{
		{
			name:     "state mismatch",
			provider: "meta",
			query:    func(string) string { return "code=abc&state=forged" },
		},
		{
			name:     "provider error",
			provider: "meta",
			query:    func(s string) string { return "error=access_denied&state=" + url.QueryEscape(s) },
		},
		{
			name:     "exchange rejected",
			provider: "meta",
			query:    func(s string) string { return "code=abc&state=" + url.QueryEscape(s) },
			exchange: &model.UpstreamAuthError{Provider: model.ProviderMeta, StatusCode: 400, Err: errors.New("raw upstream secret-token")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupEnv(t)
			env.meta.exchange = tt.exchange
			cookie := stateCookie(t, env, tt.provider)

			req := httptest.NewRequest(http.MethodGet, "/callback/"+tt.provider+"?"+tt.query(cookie.Value), nil)
			req.AddCookie(cookie)
			rec := env.do(req)

			require.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, frontendBase+"/dashboard?provider=meta&status=error", rec.Header().Get("Location"))
			assert.NotContains(t, rec.Body.String(), "secret-token")
			assert.Empty(t, env.creds.creds)
		})
	}
}

func TestCallback_UnknownProviderRedirects(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/callback/hi5?code=abc&state=x", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, frontendBase+"/dashboard?status=error", rec.Header().Get("Location"))
}

func TestCallback_ClearsStateCookie(t *testing.T) {
	env := setupEnv(t)
	cookie := stateCookie(t, env, "meta")

	req := httptest.NewRequest(http.MethodGet, "/callback/meta?code=abc&state="+url.QueryEscape(cookie.Value), nil)
	req.AddCookie(cookie)
	rec := env.do(req)

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == "adpanel_oauth_state" && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestCampaigns_Summary(t *testing.T) {
	env := setupEnv(t,
		campaign(model.ProviderMeta, "m1", 12050, 3, model.CampaignStatusActive),
		campaign(model.ProviderTikTok, "t1", 8000, 1, model.CampaignStatusPaused),
	)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/campaigns", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Meta       []map[string]any `json:"meta"`
		TikTok     []map[string]any `json:"tiktok"`
		TotalSpend json.Number      `json:"total_spend"`
		TotalLeads int64            `json:"total_leads"`
	}
	decodeJSON(t, rec, &body)

	assert.Equal(t, "200.50", body.TotalSpend.String())
	assert.Equal(t, int64(4), body.TotalLeads)
	require.Len(t, body.Meta, 1)
	require.Len(t, body.TikTok, 1)
	assert.Equal(t, "m1", body.Meta[0]["id"])
	assert.Equal(t, 120.5, body.Meta[0]["spend"])
	assert.Equal(t, "ACTIVE", body.Meta[0]["status"])
	assert.Equal(t, "2026-02-10T12:00:00Z", body.Meta[0]["updated_at"])
	assert.Equal(t, "t1", body.TikTok[0]["id"])
}

func TestCampaigns_EmptyArrays(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/campaigns", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeJSON(t, rec, &body)
	meta, ok := body["meta"].([]any)
	require.True(t, ok, "meta is an array, not null")
	assert.Empty(t, meta)
	tiktok, ok := body["tiktok"].([]any)
	require.True(t, ok)
	assert.Empty(t, tiktok)
	assert.Equal(t, float64(0), body["total_spend"])
}

func TestCampaigns_CacheReadError(t *testing.T) {
	env := setupEnv(t)
	env.cache.listErr = errors.New("database is locked")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/campaigns", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	decodeJSON(t, rec, &body)
	assert.Equal(t, "internal server error", body["error"])
}

func TestToggleCampaign(t *testing.T) {
	tests := []struct {
		name       string
		connect    bool
		body       string
		setStatus  error
		wantStatus int
		wantCached model.CampaignStatus
	}{
		{
			name:       "success",
			connect:    true,
			body:       `{"status":"PAUSED","platform":"meta"}`,
			wantStatus: http.StatusOK,
			wantCached: model.CampaignStatusPaused,
		},
		{
			name:       "no credential",
			body:       `{"status":"PAUSED","platform":"meta"}`,
			wantStatus: http.StatusConflict,
			wantCached: model.CampaignStatusActive,
		},
		{
			name:       "invalid status",
			connect:    true,
			body:       `{"status":"ARCHIVED","platform":"meta"}`,
			wantStatus: http.StatusBadRequest,
			wantCached: model.CampaignStatusActive,
		},
		{
			name:       "unknown platform",
			connect:    true,
			body:       `{"status":"PAUSED","platform":"vine"}`,
			wantStatus: http.StatusBadRequest,
			wantCached: model.CampaignStatusActive,
		},
		{
			name:       "malformed body",
			connect:    true,
			body:       `{"status":`,
			wantStatus: http.StatusBadRequest,
			wantCached: model.CampaignStatusActive,
		},
		{
			name:       "retryable upstream failure",
			connect:    true,
			body:       `{"status":"PAUSED","platform":"meta"}`,
			setStatus:  &model.UpstreamAPIError{Provider: model.ProviderMeta, StatusCode: 429, Retryable: true, Err: errors.New("throttled")},
			wantStatus: http.StatusServiceUnavailable,
			wantCached: model.CampaignStatusActive,
		},
		{
			name:       "permanent upstream failure",
			connect:    true,
			body:       `{"status":"PAUSED","platform":"meta"}`,
			setStatus:  &model.UpstreamAPIError{Provider: model.ProviderMeta, StatusCode: 400, Err: errors.New("raw payload")},
			wantStatus: http.StatusBadGateway,
			wantCached: model.CampaignStatusActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupEnv(t, campaign(model.ProviderMeta, "c123", 100, 0, model.CampaignStatusActive))
			if tt.connect {
				env.connect(model.ProviderMeta)
			}
			env.meta.setStatus = tt.setStatus

			rec := env.do(toggleRequest("c123", tt.body))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				var body map[string]bool
				decodeJSON(t, rec, &body)
				assert.True(t, body["success"])
			} else {
				var body map[string]string
				decodeJSON(t, rec, &body)
				assert.NotEmpty(t, body["error"])
				assert.NotContains(t, body["error"], "raw payload")
			}

			got, err := env.cache.Get(context.Background(), model.ProviderMeta, "c123")
			require.NoError(t, err)
			assert.Equal(t, tt.wantCached, got.Status)
		})
	}
}

func TestToggleCampaign_NotFound(t *testing.T) {
	env := setupEnv(t)
	env.connect(model.ProviderMeta)

	rec := env.do(toggleRequest("missing", `{"status":"ACTIVE","platform":"meta"}`))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDisconnect(t *testing.T) {
	env := setupEnv(t)
	env.connect(model.ProviderMeta)

	rec := env.do(httptest.NewRequest(http.MethodDelete, "/auth/meta", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, env.creds.creds[model.ProviderMeta].IsActive)
}

func TestConnections_NeverExposesTokens(t *testing.T) {
	env := setupEnv(t)
	env.connect(model.ProviderMeta)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/connections", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "sekrit")

	var body []map[string]any
	decodeJSON(t, rec, &body)
	require.Len(t, body, 2)
	assert.Equal(t, "meta", body[0]["provider"])
	assert.Equal(t, true, body[0]["connected"])
	assert.Equal(t, "2026-02-10T12:00:00Z", body[0]["updated_at"])
	assert.Equal(t, "tiktok", body[1]["provider"])
	assert.Equal(t, false, body[1]["connected"])
}

func TestRefresh(t *testing.T) {
	env := setupEnv(t)
	env.connect(model.ProviderTikTok)
	env.tiktok.rows = []model.CampaignMetric{campaign(model.ProviderTikTok, "t1", 500, 2, model.CampaignStatusActive)}

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]any
	decodeJSON(t, rec, &body)
	require.Len(t, body, 2)
	assert.Equal(t, "skipped", body[0]["status"])
	assert.Equal(t, "success", body[1]["status"])
	assert.Equal(t, float64(1), body[1]["campaigns"])
	assert.Len(t, env.cache.rows, 1)
}

func TestRefresh_BoundedByTimeout(t *testing.T) {
	env := setupEnv(t)
	env.connect(model.ProviderMeta)
	env.meta.stall = true
	env.connect(model.ProviderTikTok)
	env.tiktok.rows = []model.CampaignMetric{campaign(model.ProviderTikTok, "t1", 500, 2, model.CampaignStatusActive)}
	env.handler.SetRefreshTimeout(50 * time.Millisecond)

	start := time.Now()
	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Less(t, time.Since(start), 5*time.Second)

	var body []map[string]any
	decodeJSON(t, rec, &body)
	require.Len(t, body, 2)
	assert.Equal(t, "meta", body[0]["provider"])
	assert.Equal(t, "failed", body[0]["status"])
	assert.Equal(t, "success", body[1]["status"])
}

func TestHealth(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	decodeJSON(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestRequestID(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "caller-supplied-1")
	rec = env.do(req)
	assert.Equal(t, "caller-supplied-1", rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRecoveryMiddleware(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
	handler := httphandler.ApplyMiddleware(mux, slog.Default())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	decodeJSON(t, rec, &body)
	assert.Equal(t, "internal server error", body["error"])
}
