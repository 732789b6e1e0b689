package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/adpanel/internal/adapter/driving/http"
	webhandler "github.com/ericfisherdev/adpanel/internal/adapter/driving/web"
	"github.com/ericfisherdev/adpanel/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the background campaign refresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	// Fail fast on missing required env vars.
	cfg, err := config.LoadFile(envFile)
	if err != nil {
		return err
	}
	slog.Info("config loaded", "config", cfg.String())

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	go a.refresh.Start(ctx)

	mux := http.NewServeMux()
	httphandler.RegisterAPIRoutes(mux, httphandler.NewHandler(
		a.oauth, a.campaigns, a.refresh, cfg.FrontendBaseURL, cfg.CookieSecure, slog.Default(),
	))
	webhandler.RegisterRoutes(mux, webhandler.NewHandler(a.oauth, a.campaigns, slog.Default()))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.ApplyMiddleware(mux, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      httphandler.DefaultRefreshTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
