package application_test

import (
	"cmp"
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/adpanel/internal/application"
	"github.com/ericfisherdev/adpanel/internal/domain/model"
)

// --- Mock implementations ---

type statusCall struct {
	CampaignID string
	Status     model.CampaignStatus
}

type mockAdapter struct {
	provider model.Provider

	mu          sync.Mutex
	exchange    func(code, redirectURI string) (model.Credential, error)
	fetch       func(call int) ([]model.CampaignMetric, error)
	fetchCalls  int
	setStatus   func(campaignID string, status model.CampaignStatus) error
	statusCalls []statusCall
}

func newMockAdapter(p model.Provider) *mockAdapter {
	return &mockAdapter{provider: p}
}

func (m *mockAdapter) Provider() model.Provider { return m.provider }

func (m *mockAdapter) BuildAuthorizationURL(redirectURI, state string) (string, error) {
	return "https://auth.example.com/" + string(m.provider) + "?redirect_uri=" + redirectURI + "&state=" + state, nil
}

func (m *mockAdapter) ExchangeCodeForToken(_ context.Context, code, redirectURI string) (model.Credential, error) {
	if m.exchange == nil {
		return model.Credential{Provider: m.provider, AccessToken: "token-" + code}, nil
	}
	return m.exchange(code, redirectURI)
}

func (m *mockAdapter) FetchCampaignMetrics(_ context.Context, _ model.Credential) iter.Seq2[model.CampaignMetric, error] {
	m.mu.Lock()
	m.fetchCalls++
	call := m.fetchCalls
	m.mu.Unlock()

	return func(yield func(model.CampaignMetric, error) bool) {
		if m.fetch == nil {
			return
		}
		rows, err := m.fetch(call)
		for _, r := range rows {
			if !yield(r, nil) {
				return
			}
		}
		if err != nil {
			yield(model.CampaignMetric{}, err)
		}
	}
}

func (m *mockAdapter) SetCampaignStatus(_ context.Context, _ model.Credential, campaignID string, status model.CampaignStatus) error {
	m.mu.Lock()
	m.statusCalls = append(m.statusCalls, statusCall{CampaignID: campaignID, Status: status})
	m.mu.Unlock()
	if m.setStatus == nil {
		return nil
	}
	return m.setStatus(campaignID, status)
}

// memCredentialStore is an in-memory CredentialStore.
type memCredentialStore struct {
	mu        sync.Mutex
	creds     map[model.Provider]model.Credential
	upserts   int
	getErr    error
	upsertErr error
}

func newMemCredentialStore() *memCredentialStore {
	return &memCredentialStore{creds: make(map[model.Provider]model.Credential)}
}

func (s *memCredentialStore) Upsert(_ context.Context, cred model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts++
	s.creds[cred.Provider] = cred
	return nil
}

func (s *memCredentialStore) GetActive(_ context.Context, p model.Provider) (*model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	c, ok := s.creds[p]
	if !ok || !c.IsActive {
		return nil, nil
	}
	return &c, nil
}

func (s *memCredentialStore) List(_ context.Context) ([]model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Credential, 0, len(s.creds))
	for _, c := range s.creds {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b model.Credential) int { return cmp.Compare(a.Provider, b.Provider) })
	return out, nil
}

func (s *memCredentialStore) Deactivate(_ context.Context, p model.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.creds[p]; ok {
		c.IsActive = false
		s.creds[p] = c
	}
	return nil
}

type metricKey struct {
	platform model.Provider
	id       string
}

// memMetricsCache is an in-memory MetricsCache.
type memMetricsCache struct {
	mu        sync.Mutex
	rows      map[metricKey]model.CampaignMetric
	listErr   error
	getErr    error
	upsertErr error
	updateErr error
}

func newMemMetricsCache(rows ...model.CampaignMetric) *memMetricsCache {
	c := &memMetricsCache{rows: make(map[metricKey]model.CampaignMetric)}
	for _, r := range rows {
		c.rows[metricKey{r.Platform, r.PlatformCampaignID}] = r.Sanitized()
	}
	return c
}

func (c *memMetricsCache) Upsert(_ context.Context, m model.CampaignMetric) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.upsertErr != nil {
		return c.upsertErr
	}
	c.rows[metricKey{m.Platform, m.PlatformCampaignID}] = m.Sanitized()
	return nil
}

func (c *memMetricsCache) ListBySpend(_ context.Context) ([]model.CampaignMetric, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	out := make([]model.CampaignMetric, 0, len(c.rows))
	for _, r := range c.rows {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b model.CampaignMetric) int {
		return cmp.Or(
			cmp.Compare(b.SpendCents, a.SpendCents),
			cmp.Compare(a.Platform, b.Platform),
			cmp.Compare(a.PlatformCampaignID, b.PlatformCampaignID),
		)
	})
	return out, nil
}

func (c *memMetricsCache) Get(_ context.Context, p model.Provider, id string) (*model.CampaignMetric, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	r, ok := c.rows[metricKey{p, id}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (c *memMetricsCache) UpdateStatus(_ context.Context, p model.Provider, id string, status model.CampaignStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.updateErr != nil {
		return c.updateErr
	}
	r, ok := c.rows[metricKey{p, id}]
	if !ok {
		return model.ErrCampaignNotFound
	}
	r.Status = status
	c.rows[metricKey{p, id}] = r
	return nil
}

func (c *memMetricsCache) status(p model.Provider, id string) model.CampaignStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows[metricKey{p, id}].Status
}

func (c *memMetricsCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows)
}

// --- Helpers ---

type testDeps struct {
	meta     *mockAdapter
	tiktok   *mockAdapter
	registry *application.AdapterRegistry
	creds    *memCredentialStore
	cache    *memMetricsCache
}

func newTestDeps(t *testing.T, rows ...model.CampaignMetric) testDeps {
	t.Helper()

	meta := newMockAdapter(model.ProviderMeta)
	tiktok := newMockAdapter(model.ProviderTikTok)
	registry, err := application.NewAdapterRegistry(meta, tiktok)
	require.NoError(t, err)

	return testDeps{
		meta:     meta,
		tiktok:   tiktok,
		registry: registry,
		creds:    newMemCredentialStore(),
		cache:    newMemMetricsCache(rows...),
	}
}

func connect(t *testing.T, store *memCredentialStore, p model.Provider) {
	t.Helper()
	require.NoError(t, store.Upsert(context.Background(), model.Credential{
		Provider:    p,
		AccessToken: "token-" + string(p),
		AccountID:   "acct",
		IsActive:    true,
	}))
}

var errBoom = errors.New("boom")
