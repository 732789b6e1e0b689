package driven

import (
	"context"

	"github.com/ericfisherdev/adpanel/internal/domain/model"
)

// MetricsCache defines the driven port for the latest-known campaign metrics.
type MetricsCache interface {
	// Upsert inserts or replaces the row keyed by (Platform, PlatformCampaignID).
	Upsert(ctx context.Context, m model.CampaignMetric) error

	// ListBySpend returns every cached row ordered by spend descending.
	ListBySpend(ctx context.Context) ([]model.CampaignMetric, error)

	// Get returns a single row, or (nil, nil) if it does not exist.
	Get(ctx context.Context, platform model.Provider, campaignID string) (*model.CampaignMetric, error)

	// UpdateStatus sets the status of an existing row. Returns
	// model.ErrCampaignNotFound if no row matches.
	UpdateStatus(ctx context.Context, platform model.Provider, campaignID string, status model.CampaignStatus) error
}
