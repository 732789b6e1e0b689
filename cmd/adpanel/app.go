package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/adpanel/internal/adapter/driven/adplatform"
	sqliteadapter "github.com/ericfisherdev/adpanel/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/adpanel/internal/application"
	"github.com/ericfisherdev/adpanel/internal/config"
	"github.com/ericfisherdev/adpanel/internal/domain/model"
)

// app holds the wired services shared by every subcommand.
type app struct {
	cfg       *config.Config
	db        *sqliteadapter.DB
	oauth     *application.OAuthFlowService
	campaigns *application.CampaignSyncService
	refresh   *application.CampaignRefreshService
}

// openApp opens the database, applies migrations and wires adapters and
// services. Callers must call close.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", cfg.DBPath)

	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("migrations complete", "version", version)

	registry, err := newRegistry(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	creds := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)
	cache := sqliteadapter.NewMetricsRepo(db)

	return &app{
		cfg:       cfg,
		db:        db,
		oauth:     application.NewOAuthFlowService(registry, creds, cfg.PublicBaseURL),
		campaigns: application.NewCampaignSyncService(registry, creds, cache),
		refresh: application.NewCampaignRefreshService(registry, creds, cache, application.RefreshConfig{
			Interval:   cfg.RefreshInterval,
			MaxRetries: cfg.RefreshMaxRetries,
		}),
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func newRegistry(cfg *config.Config) (*application.AdapterRegistry, error) {
	transport := adplatform.TransportOptions{
		Timeout:       cfg.UpstreamTimeout,
		RatePerSecond: cfg.UpstreamRate,
	}

	meta, err := adplatform.NewMetaAdapter(adplatform.MetaConfig{
		ClientID:     cfg.MetaClientID,
		ClientSecret: cfg.MetaClientSecret,
		AdAccountID:  cfg.MetaAdAccountID,
		HTTPClient:   adplatform.NewHTTPClient(model.ProviderMeta, transport),
	})
	if err != nil {
		return nil, fmt.Errorf("meta adapter: %w", err)
	}

	tiktok, err := adplatform.NewTikTokAdapter(adplatform.TikTokConfig{
		AppID:         cfg.TikTokClientID,
		Secret:        cfg.TikTokClientSecret,
		AdvertiserIDs: cfg.TikTokAdvertiserID,
		HTTPClient:    adplatform.NewHTTPClient(model.ProviderTikTok, transport),
	})
	if err != nil {
		return nil, fmt.Errorf("tiktok adapter: %w", err)
	}

	return application.NewAdapterRegistry(meta, tiktok)
}
