package application

import (
	"context"
	"time"

	"github.com/ericfisherdev/adpanel/internal/domain/model"
	"github.com/ericfisherdev/adpanel/internal/domain/port/driven"
)

// activeCredential loads the usable credential for p. A missing, inactive or
// expired credential is a *model.NoCredentialError; a store failure is a
// read-side *model.CacheError.
func activeCredential(ctx context.Context, store driven.CredentialStore, p model.Provider, now time.Time) (*model.Credential, error) {
	cred, err := store.GetActive(ctx, p)
	if err != nil {
		return nil, model.CacheReadError(err)
	}
	if cred == nil {
		return nil, &model.NoCredentialError{Provider: p, Reason: "not connected"}
	}
	if cred.Expired(now) {
		return nil, &model.NoCredentialError{Provider: p, Reason: "expired"}
	}
	if !cred.Usable(now) {
		return nil, &model.NoCredentialError{Provider: p, Reason: "inactive"}
	}
	return cred, nil
}
