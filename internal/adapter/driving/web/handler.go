// Package web implements the HTML GUI driving adapter using templ components.
package web

import (
	"log/slog"
	"net/http"

	"github.com/ericfisherdev/adpanel/internal/application"
	"github.com/ericfisherdev/adpanel/internal/domain/model"
)

// Handler is the web GUI driving adapter that serves HTML via templ components.
type Handler struct {
	oauth     *application.OAuthFlowService
	campaigns *application.CampaignSyncService
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	oauth *application.OAuthFlowService,
	campaigns *application.CampaignSyncService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		oauth:     oauth,
		campaigns: campaigns,
		logger:    logger,
	}
}

// Dashboard renders the connections page with the full HTML layout.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conns, err := h.oauth.Connections(ctx)
	if err != nil {
		h.logger.Error("failed to load connections", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	summary, err := h.campaigns.GetDashboardSummary(ctx)
	if err != nil {
		h.logger.Error("failed to load campaigns", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	data := toDashboardViewModel(conns, summary)
	q := r.URL.Query()
	if status := q.Get("status"); status == "success" || status == "error" {
		if p := model.Provider(q.Get("provider")); p.Valid() {
			data.Status = status
			data.Provider = p.DisplayName()
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	layout := Layout("Ad Platform Connector", ConnectionsPage(data))
	if err := layout.Render(ctx, w); err != nil {
		h.logger.Error("failed to render dashboard", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
