// Package viewmodel defines presentation-ready structs for templ components.
// View models decouple template rendering from domain model types.
package viewmodel

// ConnectionViewModel holds presentation-ready data for one provider card.
type ConnectionViewModel struct {
	Provider    string
	DisplayName string
	Connected   bool
	Reason      string
	ExpiresAt   string
	UpdatedAt   string
	ConnectPath string
}

// CampaignRowViewModel holds presentation-ready data for one campaign row.
type CampaignRowViewModel struct {
	ID          string
	Platform    string
	Name        string
	Status      string
	Spend       string
	Conversions int64
	UpdatedAt   string
}

// DashboardViewModel holds everything the connections page renders.
type DashboardViewModel struct {
	Connections []ConnectionViewModel
	Campaigns   []CampaignRowViewModel
	TotalSpend  string
	TotalLeads  int64
	// Status and Provider echo the post-auth landing parameters.
	Status   string
	Provider string
}
