package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/adpanel/internal/domain/model"
	"github.com/ericfisherdev/adpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.MetricsCache = (*MetricsRepo)(nil)

// MetricsRepo is the SQLite implementation of the MetricsCache port interface.
type MetricsRepo struct {
	db  *DB
	now func() time.Time
}

// NewMetricsRepo creates a new MetricsRepo backed by the given DB.
func NewMetricsRepo(db *DB) *MetricsRepo {
	return &MetricsRepo{db: db, now: time.Now}
}

// Upsert inserts or replaces the row keyed by (platform, platform_campaign_id).
// Negative counters are clamped to zero before write.
func (r *MetricsRepo) Upsert(ctx context.Context, m model.CampaignMetric) error {
	m = m.Sanitized()
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = r.now()
	}

	const query = `
		INSERT INTO campaign_metrics (
			platform, platform_campaign_id, name, status, spend_cents, conversions, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(platform, platform_campaign_id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			spend_cents = excluded.spend_cents,
			conversions = excluded.conversions,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		string(m.Platform), m.PlatformCampaignID, m.Name, string(m.Status),
		m.SpendCents, m.Conversions, formatTime(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert campaign metric %s/%s: %w", m.Platform, m.PlatformCampaignID, err)
	}
	return nil
}

// ListBySpend returns every cached row ordered by spend descending. Ties are
// broken by platform and campaign id so the order is stable.
func (r *MetricsRepo) ListBySpend(ctx context.Context) ([]model.CampaignMetric, error) {
	const query = `
		SELECT id, platform, platform_campaign_id, name, status, spend_cents, conversions, updated_at
		FROM campaign_metrics
		ORDER BY spend_cents DESC, platform, platform_campaign_id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list campaign metrics: %w", err)
	}
	defer rows.Close()

	metrics := []model.CampaignMetric{}
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign metric: %w", err)
		}
		metrics = append(metrics, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaign metrics: %w", err)
	}

	return metrics, nil
}

// Get returns a single row, or (nil, nil) if it does not exist.
func (r *MetricsRepo) Get(ctx context.Context, platform model.Provider, campaignID string) (*model.CampaignMetric, error) {
	const query = `
		SELECT id, platform, platform_campaign_id, name, status, spend_cents, conversions, updated_at
		FROM campaign_metrics
		WHERE platform = ? AND platform_campaign_id = ?
	`

	m, err := scanMetric(r.db.Reader.QueryRowContext(ctx, query, string(platform), campaignID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign metric %s/%s: %w", platform, campaignID, err)
	}
	return m, nil
}

// UpdateStatus sets the status of an existing row. Returns
// model.ErrCampaignNotFound if no row matches.
func (r *MetricsRepo) UpdateStatus(ctx context.Context, platform model.Provider, campaignID string, status model.CampaignStatus) error {
	const query = `
		UPDATE campaign_metrics
		SET status = ?, updated_at = ?
		WHERE platform = ? AND platform_campaign_id = ?
	`

	result, err := r.db.Writer.ExecContext(ctx, query, string(status), formatTime(r.now()), string(platform), campaignID)
	if err != nil {
		return fmt.Errorf("update campaign status %s/%s: %w", platform, campaignID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return model.ErrCampaignNotFound
	}
	return nil
}

func scanMetric(row rowScanner) (*model.CampaignMetric, error) {
	var (
		m                        model.CampaignMetric
		platform, status, update string
	)

	if err := row.Scan(&m.ID, &platform, &m.PlatformCampaignID, &m.Name, &status, &m.SpendCents, &m.Conversions, &update); err != nil {
		return nil, err
	}
	m.Platform = model.Provider(platform)
	m.Status = model.CampaignStatus(status)

	updatedAt, err := parseTime(update)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at for campaign %s/%s: %w", platform, m.PlatformCampaignID, err)
	}
	m.UpdatedAt = updatedAt

	return &m, nil
}
