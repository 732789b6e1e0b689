package driven

import (
	"context"
	"iter"

	"github.com/ericfisherdev/adpanel/internal/domain/model"
)

// ProviderAdapter defines the driven port for one advertising platform. Each
// implementation is a stateless strategy parameterized by a Credential at call
// time.
type ProviderAdapter interface {
	// Provider reports which platform this adapter speaks to.
	Provider() model.Provider

	// BuildAuthorizationURL returns the provider's consent URL embedding the
	// client id, the provider's fixed scope set, redirectURI and state. It makes
	// no network call and is deterministic for equal inputs.
	BuildAuthorizationURL(redirectURI, state string) (string, error)

	// ExchangeCodeForToken trades an authorization code for a credential.
	// Failures are *model.UpstreamAuthError; no partial credential is returned.
	ExchangeCodeForToken(ctx context.Context, code, redirectURI string) (model.Credential, error)

	// FetchCampaignMetrics lazily pulls current campaigns with their stats.
	// The sequence is finite and may be ranged over only once; failures are
	// yielded as *model.UpstreamAPIError and end the sequence.
	FetchCampaignMetrics(ctx context.Context, cred model.Credential) iter.Seq2[model.CampaignMetric, error]

	// SetCampaignStatus pauses or activates a campaign. Re-issuing the current
	// status succeeds.
	SetCampaignStatus(ctx context.Context, cred model.Credential, campaignID string, status model.CampaignStatus) error
}
