package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ericfisherdev/adpanel/internal/application"
	"github.com/ericfisherdev/adpanel/internal/domain/model"
	"github.com/ericfisherdev/adpanel/internal/logging"
	"github.com/ericfisherdev/adpanel/internal/metrics"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// DefaultRefreshTimeout bounds a synchronous POST /api/v1/refresh. It must stay
// below the server's write timeout so the per-provider results reach the client.
const DefaultRefreshTimeout = 25 * time.Second

// Handler is the HTTP driving adapter that serves the connector API.
type Handler struct {
	oauth           *application.OAuthFlowService
	campaigns       *application.CampaignSyncService
	refresh         *application.CampaignRefreshService
	frontendBaseURL string
	cookieSecure    bool
	refreshTimeout  time.Duration
	logger          *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. refresh may be
// nil, in which case POST /api/v1/refresh answers 503.
func NewHandler(
	oauth *application.OAuthFlowService,
	campaigns *application.CampaignSyncService,
	refresh *application.CampaignRefreshService,
	frontendBaseURL string,
	cookieSecure bool,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		oauth:           oauth,
		campaigns:       campaigns,
		refresh:         refresh,
		frontendBaseURL: strings.TrimRight(frontendBaseURL, "/"),
		cookieSecure:    cookieSecure,
		refreshTimeout:  DefaultRefreshTimeout,
		logger:          logger,
	}
}

// SetRefreshTimeout overrides DefaultRefreshTimeout. Non-positive values are
// ignored.
func (h *Handler) SetRefreshTimeout(d time.Duration) {
	if d > 0 {
		h.refreshTimeout = d
	}
}

// RegisterAPIRoutes registers the connector routes on mux.
func RegisterAPIRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /auth/{provider}", h.StartAuth)
	mux.HandleFunc("DELETE /auth/{provider}", h.Disconnect)
	mux.HandleFunc("GET /callback/{provider}", h.Callback)
	mux.HandleFunc("GET /campaigns", h.Campaigns)
	mux.HandleFunc("POST /campaign/{id}/toggle", h.ToggleCampaign)

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/connections", h.Connections)
	mux.HandleFunc("POST /api/v1/refresh", h.Refresh)
	mux.Handle("GET /metrics", metrics.Handler())
}

// ApplyMiddleware wraps handler with request id, logging and recovery
// middleware.
func ApplyMiddleware(handler http.Handler, logger *slog.Logger) http.Handler {
	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, handler)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)
	return wrapped
}

// NewServeMux creates an http.Handler with the API routes registered and
// middleware applied.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	RegisterAPIRoutes(mux, h)
	return ApplyMiddleware(mux, logger)
}

func (h *Handler) log(r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context(), h.logger)
}

// StartAuth redirects the browser to the provider's authorization page.
func (h *Handler) StartAuth(w http.ResponseWriter, r *http.Request) {
	req, err := h.oauth.StartAuth(r.Context(), r.PathValue("provider"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	setStateCookie(w, req.Provider, req.State, h.cookieSecure)
	http.Redirect(w, r, req.URL, http.StatusFound)
}

// Callback completes the authorization-code flow and always redirects to the
// frontend landing page. Tokens and provider errors never reach the browser.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("provider")
	q := r.URL.Query()

	code := q.Get("code")
	if code == "" {
		code = q.Get("auth_code")
	}

	cb := application.CallbackResult{
		Code:          code,
		State:         q.Get("state"),
		ExpectedState: readStateCookie(r),
		ProviderError: q.Get("error"),
	}
	clearStateCookie(w, raw, h.cookieSecure)

	status := "success"
	if _, err := h.oauth.CompleteAuth(r.Context(), raw, cb); err != nil {
		status = "error"
	}

	http.Redirect(w, r, h.landingURL(status, raw), http.StatusFound)
}

// landingURL builds the post-auth frontend location. Only a supported
// provider name is echoed back.
func (h *Handler) landingURL(status, rawProvider string) string {
	q := url.Values{"status": {status}}
	if p := model.Provider(rawProvider); p.Valid() {
		q.Set("provider", string(p))
	}
	return h.frontendBaseURL + "/dashboard?" + q.Encode()
}

// Disconnect deactivates a provider's stored credential.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.oauth.Disconnect(r.Context(), r.PathValue("provider")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Campaigns returns the cached campaigns grouped by platform with totals.
func (h *Handler) Campaigns(w http.ResponseWriter, r *http.Request) {
	summary, err := h.campaigns.GetDashboardSummary(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardResponse(summary))
}

// toggleRequest is the JSON body of POST /campaign/{id}/toggle.
type toggleRequest struct {
	Status   string `json:"status"`
	Platform string `json:"platform"`
}

// ToggleCampaign pauses or activates a campaign on its platform.
func (h *Handler) ToggleCampaign(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "request body is required")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "campaign id is required")
		return
	}

	if err := h.campaigns.ToggleCampaign(r.Context(), req.Platform, id, req.Status); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// Connections reports which providers are connected. Tokens are never
// included.
func (h *Handler) Connections(w http.ResponseWriter, r *http.Request) {
	conns, err := h.oauth.Connections(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp := make([]ConnectionResponse, 0, len(conns))
	for _, c := range conns {
		resp = append(resp, toConnectionResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Refresh pulls metrics from every connected provider and reports the
// per-provider outcome.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.refresh == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh is not available")
		return
	}

	// Providers still running at the deadline report failed.
	ctx, cancel := context.WithTimeout(r.Context(), h.refreshTimeout)
	defer cancel()

	results := h.refresh.RefreshAll(ctx)

	resp := make([]RefreshResponse, 0, len(results))
	for _, res := range results {
		resp = append(resp, toRefreshResponse(res))
	}
	writeJSON(w, http.StatusOK, resp)
}
