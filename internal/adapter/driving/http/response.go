package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/adpanel/internal/application"
	"github.com/ericfisherdev/adpanel/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type healthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// CampaignResponse is the JSON representation of a cached campaign. Spend is
// a decimal number with two fractional digits.
type CampaignResponse struct {
	ID          string      `json:"id"`
	Platform    string      `json:"platform"`
	Name        string      `json:"name"`
	Status      string      `json:"status"`
	Spend       json.Number `json:"spend"`
	Conversions int64       `json:"conversions"`
	UpdatedAt   string      `json:"updated_at"`
}

// toDashboardResponse renders the summary as one array per platform keyed by
// provider name, plus total_spend and total_leads.
func toDashboardResponse(s application.DashboardSummary) map[string]any {
	resp := make(map[string]any, len(s.Platforms)+2)
	for p, rows := range s.Platforms {
		campaigns := make([]CampaignResponse, 0, len(rows))
		for _, m := range rows {
			campaigns = append(campaigns, toCampaignResponse(m))
		}
		resp[string(p)] = campaigns
	}
	resp["total_spend"] = json.Number(model.FormatCents(s.TotalSpendCents))
	resp["total_leads"] = s.TotalLeads
	return resp
}

func toCampaignResponse(m model.CampaignMetric) CampaignResponse {
	return CampaignResponse{
		ID:          m.PlatformCampaignID,
		Platform:    string(m.Platform),
		Name:        m.Name,
		Status:      string(m.Status),
		Spend:       json.Number(model.FormatCents(m.SpendCents)),
		Conversions: m.Conversions,
		UpdatedAt:   m.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ConnectionResponse is the JSON representation of a provider connection.
type ConnectionResponse struct {
	Provider    string  `json:"provider"`
	DisplayName string  `json:"display_name"`
	Connected   bool    `json:"connected"`
	Reason      string  `json:"reason,omitempty"`
	ExpiresAt   *string `json:"expires_at"`
	UpdatedAt   *string `json:"updated_at"`
}

func toConnectionResponse(c application.Connection) ConnectionResponse {
	return ConnectionResponse{
		Provider:    string(c.Provider),
		DisplayName: c.Provider.DisplayName(),
		Connected:   c.Connected,
		Reason:      c.Reason,
		ExpiresAt:   formatOptionalTime(c.ExpiresAt),
		UpdatedAt:   formatOptionalTime(c.UpdatedAt),
	}
}

// RefreshResponse is the JSON representation of one provider's refresh outcome.
type RefreshResponse struct {
	Provider  string `json:"provider"`
	Status    string `json:"status"`
	Campaigns int    `json:"campaigns"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

func toRefreshResponse(r application.RefreshResult) RefreshResponse {
	resp := RefreshResponse{
		Provider:  string(r.Provider),
		Status:    r.Status,
		Campaigns: r.Campaigns,
		Reason:    r.Reason,
	}
	if r.Err != nil {
		_, resp.Error = errorStatus(r.Err)
	}
	return resp
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
