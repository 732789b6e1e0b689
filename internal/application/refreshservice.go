package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/adpanel/internal/domain/model"
	"github.com/ericfisherdev/adpanel/internal/domain/port/driven"
	"github.com/ericfisherdev/adpanel/internal/metrics"
)

// Refresh outcomes reported per provider.
const (
	RefreshSucceeded = "success"
	RefreshSkipped   = "skipped"
	RefreshFailed    = "failed"
)

// RefreshResult is the outcome of refreshing one provider.
type RefreshResult struct {
	Provider  model.Provider
	Status    string
	Campaigns int
	// Reason explains a skipped provider.
	Reason string
	Err    error
}

// RefreshConfig tunes the refresh loop.
type RefreshConfig struct {
	// Interval between background refreshes. Zero or negative disables the loop.
	Interval time.Duration
	// MaxRetries bounds retries of a retryable upstream failure per provider.
	MaxRetries int
	// InitialBackoff is the first retry delay. Zero means 1s.
	InitialBackoff time.Duration
}

// CampaignRefreshService pulls campaign metrics from every connected provider
// into the metrics cache, periodically and on demand.
type CampaignRefreshService struct {
	adapters *AdapterRegistry
	creds    driven.CredentialStore
	cache    driven.MetricsCache
	cfg      RefreshConfig
	now      func() time.Time

	// mu serializes refresh runs so the loop and manual triggers never
	// interleave writes for the same provider.
	mu sync.Mutex
}

// NewCampaignRefreshService creates a CampaignRefreshService.
func NewCampaignRefreshService(adapters *AdapterRegistry, creds driven.CredentialStore, cache driven.MetricsCache, cfg RefreshConfig) *CampaignRefreshService {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	return &CampaignRefreshService{
		adapters: adapters,
		creds:    creds,
		cache:    cache,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Start runs an immediate refresh, then refreshes on the configured interval.
// It blocks until ctx is canceled and returns at once when the loop is
// disabled.
func (s *CampaignRefreshService) Start(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		slog.Info("campaign refresh loop disabled")
		return
	}

	s.RefreshAll(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("campaign refresh service stopped")
			return
		case <-ticker.C:
			s.RefreshAll(ctx)
		}
	}
}

// RefreshAll refreshes every registered provider concurrently and returns one
// result per provider in canonical order. Failures are reported per provider
// and never abort the others.
func (s *CampaignRefreshService) RefreshAll(ctx context.Context) []RefreshResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	providers := s.adapters.Providers()
	results := make([]RefreshResult, len(providers))

	var g errgroup.Group
	for i, p := range providers {
		g.Go(func() error {
			results[i] = s.refreshProvider(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	for _, r := range results {
		if r.Status == RefreshFailed {
			failed++
		}
	}
	slog.Info("campaign refresh complete",
		"providers", len(results),
		"failed", failed,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return results
}

func (s *CampaignRefreshService) refreshProvider(ctx context.Context, p model.Provider) RefreshResult {
	result := RefreshResult{Provider: p}
	logger := slog.Default().With("provider", p)

	adapter, err := s.adapters.Get(p)
	if err != nil {
		return s.fail(logger, result, err)
	}

	cred, err := activeCredential(ctx, s.creds, p, s.now())
	if err != nil {
		var noCred *model.NoCredentialError
		if errors.As(err, &noCred) {
			result.Status = RefreshSkipped
			result.Reason = noCred.Reason
			metrics.RefreshRunsTotal.WithLabelValues(string(p), RefreshSkipped).Inc()
			logger.Info("campaign refresh skipped", "reason", noCred.Reason)
			return result
		}
		return s.fail(logger, result, err)
	}

	attempt := 0
	operation := func() (int, error) {
		attempt++
		n, err := s.pull(ctx, adapter, *cred)
		if err != nil && !model.IsRetryable(err) {
			return n, backoff.Permanent(err)
		}
		if err != nil {
			logUpstreamFailure(logger.With("attempt", attempt), "campaign refresh attempt failed", err)
		}
		return n, err
	}

	n, err := backoff.RetryWithData(operation, s.newBackOff(ctx))
	if err != nil {
		result.Campaigns = n
		return s.fail(logger, result, err)
	}

	result.Status = RefreshSucceeded
	result.Campaigns = n
	metrics.RefreshRunsTotal.WithLabelValues(string(p), RefreshSucceeded).Inc()
	metrics.RefreshLastSuccessTimestamp.WithLabelValues(string(p)).Set(float64(s.now().Unix()))
	logger.Info("campaign refresh succeeded", "campaigns", n, "attempts", attempt)
	return result
}

// pull drains one metrics sequence into the cache. Rows already written
// before a mid-stream failure stay written; upserts make a retry idempotent.
func (s *CampaignRefreshService) pull(ctx context.Context, adapter driven.ProviderAdapter, cred model.Credential) (int, error) {
	var n int
	for m, err := range adapter.FetchCampaignMetrics(ctx, cred) {
		if err != nil {
			return n, err
		}
		m.Platform = cred.Provider
		if m.UpdatedAt.IsZero() {
			m.UpdatedAt = s.now().UTC()
		}
		if err := s.cache.Upsert(ctx, m); err != nil {
			return n, model.CacheWriteError(err)
		}
		n++
	}
	return n, nil
}

func (s *CampaignRefreshService) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.cfg.InitialBackoff
	exp.MaxInterval = 30 * s.cfg.InitialBackoff
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(s.cfg.MaxRetries)), ctx)
}

func (s *CampaignRefreshService) fail(logger *slog.Logger, result RefreshResult, err error) RefreshResult {
	result.Status = RefreshFailed
	result.Err = err
	metrics.RefreshRunsTotal.WithLabelValues(string(result.Provider), RefreshFailed).Inc()
	logUpstreamFailure(logger, "campaign refresh failed", err)
	return result
}
