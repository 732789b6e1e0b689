package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/adpanel/internal/application"
	"github.com/ericfisherdev/adpanel/internal/config"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Pull campaign metrics from every connected provider once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFile(envFile)
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.close()

		results := a.refresh.RefreshAll(cmd.Context())
		return reportRefresh(cmd.OutOrStdout(), results)
	},
}

// reportRefresh prints one line per provider and returns an exitError with
// code 2 when any provider failed.
func reportRefresh(w io.Writer, results []application.RefreshResult) error {
	failed := 0
	for _, r := range results {
		switch r.Status {
		case application.RefreshSucceeded:
			fmt.Fprintf(w, "%-8s %-8s campaigns=%d\n", r.Provider, r.Status, r.Campaigns)
		case application.RefreshFailed:
			failed++
			fmt.Fprintf(w, "%-8s %-8s %v\n", r.Provider, r.Status, r.Err)
		default:
			fmt.Fprintf(w, "%-8s %-8s %s\n", r.Provider, r.Status, r.Reason)
		}
	}
	if failed > 0 {
		slog.Warn("refresh finished with failures", "failed", failed)
		return &exitError{code: 2, err: fmt.Errorf("%d provider(s) failed to refresh", failed)}
	}
	return nil
}
