package web

import (
	"cmp"
	"slices"
	"time"

	vm "github.com/ericfisherdev/adpanel/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/adpanel/internal/application"
	"github.com/ericfisherdev/adpanel/internal/domain/model"
)

const displayTimeLayout = "2006-01-02 15:04 MST"

// toConnectionViewModel converts a provider connection to its card view model.
func toConnectionViewModel(c application.Connection) vm.ConnectionViewModel {
	return vm.ConnectionViewModel{
		Provider:    string(c.Provider),
		DisplayName: c.Provider.DisplayName(),
		Connected:   c.Connected,
		Reason:      c.Reason,
		ExpiresAt:   formatOptional(c.ExpiresAt),
		UpdatedAt:   formatOptional(c.UpdatedAt),
		ConnectPath: "/auth/" + string(c.Provider),
	}
}

func toCampaignRowViewModel(m model.CampaignMetric) vm.CampaignRowViewModel {
	return vm.CampaignRowViewModel{
		ID:          m.PlatformCampaignID,
		Platform:    m.Platform.DisplayName(),
		Name:        m.Name,
		Status:      string(m.Status),
		Spend:       model.FormatCents(m.SpendCents),
		Conversions: m.Conversions,
		UpdatedAt:   m.UpdatedAt.UTC().Format(displayTimeLayout),
	}
}

// toDashboardViewModel flattens the per-platform summary into one table
// ordered by spend descending.
func toDashboardViewModel(conns []application.Connection, summary application.DashboardSummary) vm.DashboardViewModel {
	out := vm.DashboardViewModel{
		Connections: make([]vm.ConnectionViewModel, 0, len(conns)),
		TotalSpend:  model.FormatCents(summary.TotalSpendCents),
		TotalLeads:  summary.TotalLeads,
	}
	for _, c := range conns {
		out.Connections = append(out.Connections, toConnectionViewModel(c))
	}

	var rows []model.CampaignMetric
	for _, p := range model.Providers() {
		rows = append(rows, summary.Campaigns(p)...)
	}
	slices.SortStableFunc(rows, func(a, b model.CampaignMetric) int {
		return cmp.Compare(b.SpendCents, a.SpendCents)
	})

	out.Campaigns = make([]vm.CampaignRowViewModel, 0, len(rows))
	for _, m := range rows {
		out.Campaigns = append(out.Campaigns, toCampaignRowViewModel(m))
	}
	return out
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(displayTimeLayout)
}
