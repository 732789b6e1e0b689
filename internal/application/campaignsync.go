package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/adpanel/internal/domain/model"
	"github.com/ericfisherdev/adpanel/internal/domain/port/driven"
	"github.com/ericfisherdev/adpanel/internal/logging"
	"github.com/ericfisherdev/adpanel/internal/metrics"
)

// DashboardSummary is the cached campaign view grouped by platform.
type DashboardSummary struct {
	// Platforms holds every registered provider, each with its campaigns
	// ordered by spend descending. Providers without campaigns map to an
	// empty slice.
	Platforms       map[model.Provider][]model.CampaignMetric
	TotalSpendCents int64
	TotalLeads      int64
}

// TotalSpend returns the total spend in currency units.
func (s DashboardSummary) TotalSpend() float64 {
	return float64(s.TotalSpendCents) / 100
}

// Campaigns returns the campaigns of p.
func (s DashboardSummary) Campaigns(p model.Provider) []model.CampaignMetric {
	return s.Platforms[p]
}

// CampaignSyncService serves the cached dashboard and writes campaign status
// changes through to the provider before the cache.
type CampaignSyncService struct {
	adapters *AdapterRegistry
	creds    driven.CredentialStore
	cache    driven.MetricsCache
	now      func() time.Time
}

// NewCampaignSyncService creates a CampaignSyncService.
func NewCampaignSyncService(adapters *AdapterRegistry, creds driven.CredentialStore, cache driven.MetricsCache) *CampaignSyncService {
	return &CampaignSyncService{
		adapters: adapters,
		creds:    creds,
		cache:    cache,
		now:      time.Now,
	}
}

// GetDashboardSummary reads every cached campaign, partitions the rows by
// platform and totals spend and conversions. It never calls a provider.
func (s *CampaignSyncService) GetDashboardSummary(ctx context.Context) (DashboardSummary, error) {
	rows, err := s.cache.ListBySpend(ctx)
	if err != nil {
		return DashboardSummary{}, model.CacheReadError(err)
	}

	summary := DashboardSummary{Platforms: make(map[model.Provider][]model.CampaignMetric)}
	for _, p := range s.adapters.Providers() {
		summary.Platforms[p] = []model.CampaignMetric{}
	}

	for _, row := range rows {
		summary.Platforms[row.Platform] = append(summary.Platforms[row.Platform], row)
		summary.TotalSpendCents += row.SpendCents
		summary.TotalLeads += row.Conversions
	}

	return summary, nil
}

// ToggleCampaign sets a campaign to targetStatus on the provider and, only
// once the provider has confirmed, records the new status in the cache. A
// failed provider call leaves the cached row untouched.
func (s *CampaignSyncService) ToggleCampaign(ctx context.Context, rawPlatform, campaignID, targetStatus string) error {
	p, err := model.ParseProvider(rawPlatform)
	if err != nil {
		return err
	}
	status, err := model.ParseTargetStatus(targetStatus)
	if err != nil {
		return err
	}
	adapter, err := s.adapters.Get(p)
	if err != nil {
		return err
	}

	logger := logging.FromContext(ctx, slog.Default()).With("provider", p, "campaign_id", campaignID, "target", status)

	cred, err := activeCredential(ctx, s.creds, p, s.now())
	if err != nil {
		recordToggle(p, err)
		return err
	}

	current, err := s.cache.Get(ctx, p, campaignID)
	if err != nil {
		err = model.CacheReadError(err)
		recordToggle(p, err)
		return err
	}
	if current == nil {
		recordToggle(p, model.ErrCampaignNotFound)
		return fmt.Errorf("%s campaign %s: %w", p, campaignID, model.ErrCampaignNotFound)
	}

	if err := adapter.SetCampaignStatus(ctx, *cred, campaignID, status); err != nil {
		recordToggle(p, err)
		logUpstreamFailure(logger, "campaign toggle rejected upstream", err)
		return err
	}

	if err := s.cache.UpdateStatus(ctx, p, campaignID, status); err != nil {
		recordToggle(p, err)
		if errors.Is(err, model.ErrCampaignNotFound) {
			return fmt.Errorf("%s campaign %s: %w", p, campaignID, err)
		}
		return model.CacheWriteError(err)
	}

	recordToggle(p, nil)
	logger.Info("campaign status updated", "previous", current.Status)
	return nil
}

func recordToggle(p model.Provider, err error) {
	outcome := "success"
	var (
		noCred *model.NoCredentialError
		apiErr *model.UpstreamAPIError
	)
	switch {
	case err == nil:
	case errors.As(err, &noCred):
		outcome = "no_credential"
	case errors.Is(err, model.ErrCampaignNotFound):
		outcome = "not_found"
	case errors.As(err, &apiErr):
		outcome = "upstream_error"
	default:
		outcome = "cache_error"
	}
	metrics.CampaignTogglesTotal.WithLabelValues(string(p), outcome).Inc()
}

// logUpstreamFailure logs provider, status and retryability of an upstream
// failure. The upstream message is omitted.
func logUpstreamFailure(logger *slog.Logger, msg string, err error) {
	var apiErr *model.UpstreamAPIError
	if errors.As(err, &apiErr) {
		logger.Warn(msg,
			"upstream_status", apiErr.StatusCode,
			"upstream_code", apiErr.Code,
			"retryable", apiErr.Retryable,
		)
		return
	}
	logger.Warn(msg, "error", err)
}
