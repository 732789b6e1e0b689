package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/adpanel/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// ADPANEL_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set ADPANEL_SECRET_KEY")

// CredentialStore defines the driven port for provider credential persistence.
// The adapter layer is responsible for encrypting tokens at rest; this
// interface operates on plaintext values at the domain boundary.
type CredentialStore interface {
	// Upsert stores the credential keyed by provider, replacing any existing row.
	Upsert(ctx context.Context, cred model.Credential) error

	// GetActive returns the active credential for provider, or (nil, nil) if
	// none exists or the stored row is inactive.
	GetActive(ctx context.Context, provider model.Provider) (*model.Credential, error)

	// List returns every stored credential, active or not, ordered by provider.
	List(ctx context.Context) ([]model.Credential, error)

	// Deactivate marks the provider's credential inactive. Deactivating a
	// provider with no credential is not an error.
	Deactivate(ctx context.Context, provider model.Provider) error
}
